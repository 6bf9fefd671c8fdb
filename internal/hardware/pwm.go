package hardware

import (
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/sweeney/brew-controller/internal/gpio"
	"github.com/sweeney/brew-controller/internal/logger"
)

// Mode is how a PWM channel is generated.
type Mode string

const (
	ModeHardware Mode = "hardware"
	ModeSoftware Mode = "software"
)

// softwareRange is the software PWM full scale: duty is a plain percentage.
const softwareRange = 100

// Channel is the recorded state of a running PWM channel.
type Channel struct {
	Pin       int
	Mode      Mode
	Frequency int
	Duty      float64
}

// Registry tracks which pins run hardware or software PWM so duty changes can
// be applied without re-deriving the mode. Operations on one pin are
// serialized; different pins proceed independently.
type Registry struct {
	backend *Backend
	log     *logger.Logger

	mu       sync.Mutex
	channels map[int]Channel
	pinLocks map[int]*sync.Mutex
}

// NewRegistry returns an empty registry on top of b.
func NewRegistry(b *Backend, l *logger.Logger) *Registry {
	return &Registry{
		backend:  b,
		log:      l.WithTag("pwm"),
		channels: make(map[int]Channel),
		pinLocks: make(map[int]*sync.Mutex),
	}
}

func (r *Registry) lockPin(pin int) func() {
	r.mu.Lock()
	m, ok := r.pinLocks[pin]
	if !ok {
		m = &sync.Mutex{}
		r.pinLocks[pin] = m
	}
	r.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func (r *Registry) lookup(pin int) (Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[pin]
	return ch, ok
}

func (r *Registry) store(ch Channel) {
	r.mu.Lock()
	r.channels[ch.Pin] = ch
	r.mu.Unlock()
}

func (r *Registry) forget(pin int) {
	r.mu.Lock()
	delete(r.channels, pin)
	r.mu.Unlock()
}

// hardwareDuty scales a percentage onto the hardware duty range, truncating.
func hardwareDuty(percent float64) int {
	return int(percent / 100 * gpio.HardwareDutyRange)
}

// softwareDuty maps a percentage onto the software range. It rounds rather
// than truncates, so 45.5% becomes 46.
func softwareDuty(percent float64) int {
	return int(math.Round(percent * softwareRange / 100))
}

// StartPWM starts PWM on pin, preferring hardware PWM and falling back to
// software PWM when the driver refuses. It returns the pin and true on
// success, or false when the driver rejects the pin outright. Duty is a
// percentage and is not clamped.
func (r *Registry) StartPWM(pin, freq int, duty float64) (int, bool) {
	defer r.lockPin(pin)()
	log := r.log.With("pin", pin, "freq", freq, "duty", duty)

	if r.backend.kind == KindSimulated {
		r.store(Channel{Pin: pin, Mode: ModeSoftware, Frequency: freq, Duty: duty})
		log.Infof("pwm started (simulated)")
		return pin, true
	}

	d := r.backend.driver
	if err := d.SetOutput(pin); err != nil {
		log.With("err", err).Errorf("pwm start failed")
		return 0, false
	}

	err := d.HardwarePWM(pin, freq, hardwareDuty(duty))
	if err == nil {
		r.store(Channel{Pin: pin, Mode: ModeHardware, Frequency: freq, Duty: duty})
		log.With("mode", ModeHardware).Infof("pwm started")
		return pin, true
	}
	if !errors.Is(err, gpio.ErrHardwarePWMUnavailable) {
		log.With("err", err).Errorf("pwm start failed")
		return 0, false
	}

	log.With("reason", err).Infof("hardware pwm not available, falling back to software pwm")
	if err := d.SetPWMFrequency(pin, freq); err != nil {
		log.With("err", err).Errorf("pwm start failed")
		return 0, false
	}
	if err := d.SetPWMRange(pin, softwareRange); err != nil {
		log.With("err", err).Errorf("pwm start failed")
		return 0, false
	}
	if err := d.SetPWMDutyCycle(pin, softwareDuty(duty)); err != nil {
		log.With("err", err).Errorf("pwm start failed")
		return 0, false
	}
	r.store(Channel{Pin: pin, Mode: ModeSoftware, Frequency: freq, Duty: duty})
	log.With("mode", ModeSoftware).Infof("pwm started")
	return pin, true
}

// StopPWM drives the channel to zero using its recorded mode and forgets it.
// An untracked pin is a logged no-op.
func (r *Registry) StopPWM(pin int) {
	defer r.lockPin(pin)()
	log := r.log.With("pin", pin)

	ch, ok := r.lookup(pin)
	if r.backend.kind == KindSimulated || !ok {
		r.forget(pin)
		log.Infof("pwm stopped (simulated or not started)")
		return
	}

	d := r.backend.driver
	var err error
	switch ch.Mode {
	case ModeHardware:
		err = d.HardwarePWM(pin, 0, 0)
	case ModeSoftware:
		err = d.SetPWMDutyCycle(pin, 0)
	}
	if err != nil {
		log.With("mode", ch.Mode, "err", err).Errorf("pwm stop failed")
		return
	}
	r.forget(pin)
	log.With("mode", ch.Mode).Infof("pwm stopped")
}

// ChangeDutyCycle re-applies duty on a running channel without touching its
// frequency. Without a prior StartPWM this only logs: clients may send duty
// before initialization completes.
func (r *Registry) ChangeDutyCycle(pin int, duty float64) {
	defer r.lockPin(pin)()
	log := r.log.With("pin", pin, "duty", duty)

	ch, ok := r.lookup(pin)
	if !ok {
		log.Infof("pwm duty change ignored, channel not started (simulated)")
		return
	}
	if r.backend.kind == KindSimulated {
		ch.Duty = duty
		r.store(ch)
		log.Infof("pwm duty changed (simulated)")
		return
	}

	d := r.backend.driver
	var err error
	switch ch.Mode {
	case ModeHardware:
		err = d.HardwarePWM(pin, ch.Frequency, hardwareDuty(duty))
	case ModeSoftware:
		err = d.SetPWMDutyCycle(pin, softwareDuty(duty))
	}
	if err != nil {
		log.With("mode", ch.Mode, "err", err).Errorf("pwm duty change failed")
		return
	}
	ch.Duty = duty
	r.store(ch)
	log.With("mode", ch.Mode).Infof("pwm duty changed")
}

// Channel returns the recorded state for pin.
func (r *Registry) Channel(pin int) (Channel, bool) {
	return r.lookup(pin)
}

// Channels returns all running channels sorted by pin.
func (r *Registry) Channels() []Channel {
	r.mu.Lock()
	out := make([]Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Pin < out[j].Pin })
	return out
}
