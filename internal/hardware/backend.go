// Package hardware maps logical rig operations onto a pin driver, or onto a
// simulation when no driver is reachable. Driver errors are logged here and
// never returned to callers.
package hardware

import (
	"context"
	"sort"
	"sync"

	"github.com/sweeney/brew-controller/internal/gpio"
	"github.com/sweeney/brew-controller/internal/logger"
)

// Kind tells whether a Backend drives real pins.
type Kind int

const (
	KindSimulated Kind = iota
	KindReal
)

func (k Kind) String() string {
	if k == KindReal {
		return "real"
	}
	return "simulated"
}

// Opener connects to a pin driver.
type Opener func(ctx context.Context) (gpio.Driver, error)

// Backend is the hardware access point. Its kind is fixed at construction.
type Backend struct {
	kind   Kind
	driver gpio.Driver
	log    *logger.Logger

	mu     sync.Mutex
	levels map[int]gpio.Level
}

// Probe opens the pin driver once. Success yields a real backend; any
// failure yields a simulated one.
func Probe(ctx context.Context, open Opener, l *logger.Logger) *Backend {
	log := l.WithTag("hardware")
	d, err := open(ctx)
	if err != nil {
		log.With("err", err).Warnf("pin driver unavailable, running simulated")
		return NewSimulated(l)
	}
	log.With("driver", d.Name()).Infof("pin driver connected")
	return NewReal(d, l)
}

// NewReal returns a backend that drives d.
func NewReal(d gpio.Driver, l *logger.Logger) *Backend {
	return &Backend{
		kind:   KindReal,
		driver: d,
		log:    l.WithTag("hardware"),
		levels: make(map[int]gpio.Level),
	}
}

// NewSimulated returns a backend that only logs.
func NewSimulated(l *logger.Logger) *Backend {
	return &Backend{
		kind:   KindSimulated,
		log:    l.WithTag("hardware"),
		levels: make(map[int]gpio.Level),
	}
}

// Kind reports whether the backend is real or simulated.
func (b *Backend) Kind() Kind {
	return b.kind
}

// DriverName names the pin driver, or "simulated".
func (b *Backend) DriverName() string {
	if b.driver == nil {
		return "simulated"
	}
	return b.driver.Name()
}

// SetDigitalOutput drives pin to level. Failures are logged, not returned.
func (b *Backend) SetDigitalOutput(pin int, level gpio.Level) {
	log := b.log.With("pin", pin, "level", level)
	if b.kind == KindSimulated {
		log.Infof("gpio set (simulated)")
		b.setLevel(pin, level)
		return
	}
	if err := b.driver.Write(pin, level); err != nil {
		log.With("err", err).Errorf("gpio set failed")
		return
	}
	b.setLevel(pin, level)
	log.Infof("gpio set")
}

// InitializeAllPins puts every pin in output mode and drives it LOW.
// Calling it again leaves the same state.
func (b *Backend) InitializeAllPins(pins []int) {
	if b.kind == KindSimulated {
		for _, pin := range pins {
			b.setLevel(pin, gpio.Low)
		}
		b.log.With("pins", pins).Infof("gpio initialization skipped (simulated)")
		return
	}
	for _, pin := range pins {
		if err := b.driver.SetOutput(pin); err != nil {
			b.log.With("pin", pin, "err", err).Errorf("gpio initialization failed")
			return
		}
		if err := b.driver.Write(pin, gpio.Low); err != nil {
			b.log.With("pin", pin, "err", err).Errorf("gpio initialization failed")
			return
		}
		b.setLevel(pin, gpio.Low)
	}
	b.log.With("pins", pins).Infof("gpio pins initialized")
}

func (b *Backend) setLevel(pin int, level gpio.Level) {
	b.mu.Lock()
	b.levels[pin] = level
	b.mu.Unlock()
}

// Level returns the last level successfully set on pin.
func (b *Backend) Level(pin int) (gpio.Level, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.levels[pin]
	return l, ok
}

// Levels returns the known pin levels sorted by pin.
func (b *Backend) Levels() []PinLevel {
	b.mu.Lock()
	out := make([]PinLevel, 0, len(b.levels))
	for pin, l := range b.levels {
		out = append(out, PinLevel{Pin: pin, Level: l})
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Pin < out[j].Pin })
	return out
}

// PinLevel is a pin and its last known level.
type PinLevel struct {
	Pin   int
	Level gpio.Level
}

// Close releases the driver, if any.
func (b *Backend) Close() error {
	if b.driver == nil {
		return nil
	}
	return b.driver.Close()
}
