//go:build !linux

package gpio

import "errors"

// DefaultChip is the GPIO character device on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// ChipDriver is not available on non-Linux platforms.
type ChipDriver struct{}

// NewChipDriver returns an error on non-Linux platforms.
func NewChipDriver(name string) (*ChipDriver, error) {
	return nil, errors.New("gpio: character device not supported on this platform (requires Linux)")
}

func (d *ChipDriver) Name() string                          { return "gpiocdev(unsupported)" }
func (d *ChipDriver) SetOutput(pin int) error               { return errors.New("gpio: not supported") }
func (d *ChipDriver) Write(pin int, level Level) error      { return errors.New("gpio: not supported") }
func (d *ChipDriver) HardwarePWM(pin, freq, duty int) error { return ErrHardwarePWMUnavailable }
func (d *ChipDriver) SetPWMFrequency(pin, freq int) error   { return errors.New("gpio: not supported") }
func (d *ChipDriver) SetPWMRange(pin, rng int) error        { return errors.New("gpio: not supported") }
func (d *ChipDriver) SetPWMDutyCycle(pin, duty int) error   { return errors.New("gpio: not supported") }
func (d *ChipDriver) Close() error                          { return nil }
