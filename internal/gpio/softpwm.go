package gpio

import (
	"sync"
	"time"
)

const (
	defaultSoftFrequency = 800
	defaultSoftRange     = 255
)

// softPWM emulates PWM by toggling an output from a goroutine per pin.
// Timing jitter is whatever the scheduler gives us.
type softPWM struct {
	mu       sync.Mutex
	channels map[int]*softChannel
}

type softChannel struct {
	mu    sync.Mutex
	freq  int
	rng   int
	duty  int
	write func(Level) error
	stop  chan struct{}
	done  chan struct{}
}

func newSoftPWM() *softPWM {
	return &softPWM{channels: make(map[int]*softChannel)}
}

// channel returns the channel for pin, starting its toggler on first use.
func (s *softPWM) channel(pin int, write func(Level) error) *softChannel {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[pin]
	if !ok {
		ch = &softChannel{
			freq:  defaultSoftFrequency,
			rng:   defaultSoftRange,
			write: write,
			stop:  make(chan struct{}),
			done:  make(chan struct{}),
		}
		s.channels[pin] = ch
		go ch.run()
	}
	return ch
}

func (s *softPWM) setFrequency(pin, freq int, write func(Level) error) {
	ch := s.channel(pin, write)
	ch.mu.Lock()
	ch.freq = freq
	ch.mu.Unlock()
}

func (s *softPWM) setRange(pin, rng int, write func(Level) error) {
	ch := s.channel(pin, write)
	ch.mu.Lock()
	ch.rng = rng
	ch.mu.Unlock()
}

func (s *softPWM) setDuty(pin, duty int, write func(Level) error) {
	ch := s.channel(pin, write)
	ch.mu.Lock()
	ch.duty = duty
	ch.mu.Unlock()
}

// release stops the toggler for pin, if any, and leaves the pin LOW.
func (s *softPWM) release(pin int) {
	s.mu.Lock()
	ch, ok := s.channels[pin]
	delete(s.channels, pin)
	s.mu.Unlock()
	if ok {
		close(ch.stop)
		<-ch.done
	}
}

func (s *softPWM) closeAll() {
	s.mu.Lock()
	pins := make([]int, 0, len(s.channels))
	for pin := range s.channels {
		pins = append(pins, pin)
	}
	s.mu.Unlock()
	for _, pin := range pins {
		s.release(pin)
	}
}

// timing returns the high and low phase lengths for the current settings.
func (c *softChannel) timing() (high, low time.Duration) {
	c.mu.Lock()
	freq, rng, duty := c.freq, c.rng, c.duty
	c.mu.Unlock()

	if freq <= 0 || rng <= 0 {
		return 0, 100 * time.Millisecond
	}
	if duty < 0 {
		duty = 0
	}
	if duty > rng {
		duty = rng
	}
	period := time.Second / time.Duration(freq)
	if period <= 0 {
		period = time.Microsecond
	}
	high = period * time.Duration(duty) / time.Duration(rng)
	return high, period - high
}

func (c *softChannel) run() {
	defer close(c.done)
	defer c.write(Low)

	level := Low
	for {
		high, low := c.timing()
		switch {
		case high == 0:
			if level != Low {
				c.write(Low)
				level = Low
			}
			if !c.sleep(low) {
				return
			}
		case low == 0:
			if level != High {
				c.write(High)
				level = High
			}
			if !c.sleep(high) {
				return
			}
		default:
			c.write(High)
			if !c.sleep(high) {
				return
			}
			c.write(Low)
			level = Low
			if !c.sleep(low) {
				return
			}
		}
	}
}

func (c *softChannel) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-c.stop:
		return false
	case <-t.C:
		return true
	}
}
