// Package gpio provides pin drivers for relay outputs and PWM channels.
// PigpioClient talks to a running pigpiod daemon; ChipDriver uses the Linux
// GPIO character device and PeriphDriver uses periph.io host drivers.
// FakeDriver allows testing without hardware.
package gpio

import "errors"

// Level is the logic level of an output pin.
type Level int

const (
	Low  Level = 0
	High Level = 1
)

func (l Level) String() string {
	if l == High {
		return "HIGH"
	}
	return "LOW"
}

// HardwareDutyRange is the full-scale duty value for HardwarePWM (100%).
const HardwareDutyRange = 1_000_000

// ErrHardwarePWMUnavailable is returned by HardwarePWM when the pin has no
// hardware PWM channel or the driver refuses the request.
var ErrHardwarePWMUnavailable = errors.New("hardware PWM not available")

// Driver drives output pins, addressed by BCM number.
type Driver interface {
	// Name identifies the driver in logs and status output.
	Name() string

	// SetOutput puts the pin in output mode.
	SetOutput(pin int) error

	// Write drives the pin to level.
	Write(pin int, level Level) error

	// HardwarePWM starts or updates hardware PWM. duty is in
	// [0, HardwareDutyRange]; freq 0 with duty 0 stops the channel.
	HardwarePWM(pin, freq, duty int) error

	// SetPWMFrequency sets the software PWM frequency in Hz.
	SetPWMFrequency(pin, freq int) error

	// SetPWMRange sets the full-scale value for SetPWMDutyCycle.
	SetPWMRange(pin, rng int) error

	// SetPWMDutyCycle sets the software PWM duty in [0, range].
	SetPWMDutyCycle(pin, duty int) error

	// Close releases driver resources.
	Close() error
}
