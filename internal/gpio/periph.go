package gpio

import (
	"fmt"
	"sync"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// PeriphDriver drives pins through periph.io host drivers. On a Raspberry Pi
// the bcm283x driver exposes hardware PWM on the PWM0/PWM1 capable pins;
// other pins fall back to software PWM.
type PeriphDriver struct {
	mu   sync.Mutex
	pins map[int]pgpio.PinIO
	soft *softPWM
}

// NewPeriphDriver initialises the periph host. It fails when no GPIO driver
// registers, which is the normal outcome off-target.
func NewPeriphDriver() (*PeriphDriver, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	if len(gpioreg.All()) == 0 {
		return nil, fmt.Errorf("periph: no gpio pins registered (%d drivers loaded)", len(state.Loaded))
	}
	return &PeriphDriver{
		pins: make(map[int]pgpio.PinIO),
		soft: newSoftPWM(),
	}, nil
}

// Name identifies the driver.
func (d *PeriphDriver) Name() string {
	return "periph"
}

func (d *PeriphDriver) pin(n int) (pgpio.PinIO, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pins[n]; ok {
		return p, nil
	}
	p := gpioreg.ByName(fmt.Sprintf("GPIO%d", n))
	if p == nil {
		return nil, fmt.Errorf("periph: no pin GPIO%d", n)
	}
	d.pins[n] = p
	return p, nil
}

// SetOutput drives the pin LOW, which also puts it in output mode.
func (d *PeriphDriver) SetOutput(pin int) error {
	return d.write(pin, Low)
}

// Write drives pin to level.
func (d *PeriphDriver) Write(pin int, level Level) error {
	d.soft.release(pin)
	return d.write(pin, level)
}

func (d *PeriphDriver) write(pin int, level Level) error {
	p, err := d.pin(pin)
	if err != nil {
		return err
	}
	if err := p.Out(pgpio.Level(level == High)); err != nil {
		return fmt.Errorf("set %s=%s: %w", p, level, err)
	}
	return nil
}

// HardwarePWM asks periph for a hardware PWM signal.
func (d *PeriphDriver) HardwarePWM(pin, freq, duty int) error {
	p, err := d.pin(pin)
	if err != nil {
		return err
	}
	if freq == 0 && duty == 0 {
		if err := p.Out(pgpio.Low); err != nil {
			return fmt.Errorf("stop pwm on %s: %w", p, err)
		}
		return nil
	}
	scaled := pgpio.Duty(int64(duty) * int64(pgpio.DutyMax) / HardwareDutyRange)
	if err := p.PWM(scaled, physic.Frequency(freq)*physic.Hertz); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrHardwarePWMUnavailable, p, err)
	}
	return nil
}

func (d *PeriphDriver) writer(pin int) func(Level) error {
	return func(level Level) error { return d.write(pin, level) }
}

// SetPWMFrequency sets the software PWM frequency.
func (d *PeriphDriver) SetPWMFrequency(pin, freq int) error {
	if _, err := d.pin(pin); err != nil {
		return err
	}
	d.soft.setFrequency(pin, freq, d.writer(pin))
	return nil
}

// SetPWMRange sets the software PWM full-scale value.
func (d *PeriphDriver) SetPWMRange(pin, rng int) error {
	if rng <= 0 {
		return fmt.Errorf("pwm range %d must be positive", rng)
	}
	if _, err := d.pin(pin); err != nil {
		return err
	}
	d.soft.setRange(pin, rng, d.writer(pin))
	return nil
}

// SetPWMDutyCycle sets the software PWM duty.
func (d *PeriphDriver) SetPWMDutyCycle(pin, duty int) error {
	if _, err := d.pin(pin); err != nil {
		return err
	}
	d.soft.setDuty(pin, duty, d.writer(pin))
	return nil
}

// Close stops software PWM and halts every pin used.
func (d *PeriphDriver) Close() error {
	d.soft.closeAll()

	d.mu.Lock()
	defer d.mu.Unlock()
	var errs []error
	for _, p := range d.pins {
		if err := p.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("halt %s: %w", p, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
