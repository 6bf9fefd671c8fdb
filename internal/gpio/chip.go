//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// DefaultChip is the GPIO character device on a Raspberry Pi.
const DefaultChip = "gpiochip0"

const consumer = "brew-controller"

// ChipDriver drives outputs through the Linux GPIO character device.
// The character device has no PWM support, so HardwarePWM always reports
// ErrHardwarePWMUnavailable and PWM is emulated in software.
type ChipDriver struct {
	mu    sync.Mutex
	chip  *gpiocdev.Chip
	lines map[int]*gpiocdev.Line
	soft  *softPWM
}

// NewChipDriver opens the named GPIO chip.
func NewChipDriver(name string) (*ChipDriver, error) {
	chip, err := gpiocdev.NewChip(name, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &ChipDriver{
		chip:  chip,
		lines: make(map[int]*gpiocdev.Line),
		soft:  newSoftPWM(),
	}, nil
}

// Name identifies the driver.
func (d *ChipDriver) Name() string {
	return "gpiocdev(" + d.chip.Name + ")"
}

// line returns the requested output line for pin, requesting it LOW if needed.
func (d *ChipDriver) line(pin int) (*gpiocdev.Line, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l, ok := d.lines[pin]; ok {
		return l, nil
	}
	l, err := d.chip.RequestLine(pin, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request pin %d: %w", pin, err)
	}
	d.lines[pin] = l
	return l, nil
}

// SetOutput requests pin as an output, reconfiguring it if already held.
func (d *ChipDriver) SetOutput(pin int) error {
	d.mu.Lock()
	l, ok := d.lines[pin]
	d.mu.Unlock()
	if ok {
		if err := l.Reconfigure(gpiocdev.AsOutput()); err != nil {
			return fmt.Errorf("reconfigure pin %d: %w", pin, err)
		}
		return nil
	}
	_, err := d.line(pin)
	return err
}

// Write drives pin to level. A running software PWM on the pin is stopped
// first so the level sticks.
func (d *ChipDriver) Write(pin int, level Level) error {
	d.soft.release(pin)
	return d.write(pin, level)
}

func (d *ChipDriver) write(pin int, level Level) error {
	l, err := d.line(pin)
	if err != nil {
		return err
	}
	if err := l.SetValue(int(level)); err != nil {
		return fmt.Errorf("set pin %d=%s: %w", pin, level, err)
	}
	return nil
}

func (d *ChipDriver) writer(pin int) func(Level) error {
	return func(level Level) error { return d.write(pin, level) }
}

// HardwarePWM is not supported by the character device.
func (d *ChipDriver) HardwarePWM(pin, freq, duty int) error {
	return fmt.Errorf("%w: pin %d via %s", ErrHardwarePWMUnavailable, pin, d.Name())
}

// SetPWMFrequency sets the software PWM frequency.
func (d *ChipDriver) SetPWMFrequency(pin, freq int) error {
	if _, err := d.line(pin); err != nil {
		return err
	}
	d.soft.setFrequency(pin, freq, d.writer(pin))
	return nil
}

// SetPWMRange sets the software PWM full-scale value.
func (d *ChipDriver) SetPWMRange(pin, rng int) error {
	if rng <= 0 {
		return fmt.Errorf("pwm range %d must be positive", rng)
	}
	if _, err := d.line(pin); err != nil {
		return err
	}
	d.soft.setRange(pin, rng, d.writer(pin))
	return nil
}

// SetPWMDutyCycle sets the software PWM duty.
func (d *ChipDriver) SetPWMDutyCycle(pin, duty int) error {
	if _, err := d.line(pin); err != nil {
		return err
	}
	d.soft.setDuty(pin, duty, d.writer(pin))
	return nil
}

// Close stops software PWM, drives held lines LOW and releases them.
func (d *ChipDriver) Close() error {
	d.soft.closeAll()

	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for pin, l := range d.lines {
		if err := l.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("reset pin %d: %w", pin, err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
		}
	}
	d.lines = make(map[int]*gpiocdev.Line)
	if err := d.chip.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close chip: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
