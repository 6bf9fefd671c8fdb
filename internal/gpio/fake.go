package gpio

import (
	"fmt"
	"sync"
)

// FakeDriver is a test double that records pin operations.
type FakeDriver struct {
	mu sync.Mutex

	// HardwarePins lists pins that accept HardwarePWM. Others get
	// ErrHardwarePWMUnavailable.
	HardwarePins map[int]bool

	// Outputs tracks pins put in output mode.
	Outputs map[int]bool

	// Levels tracks the last level written per pin.
	Levels map[int]Level

	// Hardware tracks the last HardwarePWM (freq, duty) per pin.
	Hardware map[int]PWMSetting

	// Software tracks software PWM frequency, range and duty per pin.
	Software map[int]PWMSetting

	// Calls is the ordered log of operations, e.g. "write 17 HIGH".
	Calls []string

	// Err, if set, is returned by every operation.
	Err error

	// RejectPins makes every operation on these pins fail.
	RejectPins map[int]bool

	// Closed tracks if Close was called.
	Closed bool
}

// PWMSetting is a recorded PWM configuration.
type PWMSetting struct {
	Frequency int
	Range     int
	Duty      int
}

// NewFakeDriver creates a FakeDriver where the given pins support hardware PWM.
func NewFakeDriver(hardwarePins ...int) *FakeDriver {
	f := &FakeDriver{
		HardwarePins: make(map[int]bool),
		Outputs:      make(map[int]bool),
		Levels:       make(map[int]Level),
		Hardware:     make(map[int]PWMSetting),
		Software:     make(map[int]PWMSetting),
		RejectPins:   make(map[int]bool),
	}
	for _, p := range hardwarePins {
		f.HardwarePins[p] = true
	}
	return f
}

func (f *FakeDriver) record(pin int, format string, args ...interface{}) error {
	f.Calls = append(f.Calls, fmt.Sprintf(format, args...))
	if f.Err != nil {
		return f.Err
	}
	if f.RejectPins[pin] {
		return fmt.Errorf("fake: pin %d rejected", pin)
	}
	return nil
}

// Name identifies the driver.
func (f *FakeDriver) Name() string { return "fake" }

// SetOutput records the pin as an output.
func (f *FakeDriver) SetOutput(pin int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(pin, "mode %d OUTPUT", pin); err != nil {
		return err
	}
	f.Outputs[pin] = true
	return nil
}

// Write records the level.
func (f *FakeDriver) Write(pin int, level Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(pin, "write %d %s", pin, level); err != nil {
		return err
	}
	f.Levels[pin] = level
	return nil
}

// HardwarePWM records the setting, or fails for pins not in HardwarePins.
func (f *FakeDriver) HardwarePWM(pin, freq, duty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(pin, "hardware %d freq=%d duty=%d", pin, freq, duty); err != nil {
		return err
	}
	if !f.HardwarePins[pin] {
		return fmt.Errorf("%w: pin %d", ErrHardwarePWMUnavailable, pin)
	}
	f.Hardware[pin] = PWMSetting{Frequency: freq, Range: HardwareDutyRange, Duty: duty}
	return nil
}

// SetPWMFrequency records the software frequency.
func (f *FakeDriver) SetPWMFrequency(pin, freq int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(pin, "software %d freq=%d", pin, freq); err != nil {
		return err
	}
	s := f.Software[pin]
	s.Frequency = freq
	f.Software[pin] = s
	return nil
}

// SetPWMRange records the software range.
func (f *FakeDriver) SetPWMRange(pin, rng int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(pin, "software %d range=%d", pin, rng); err != nil {
		return err
	}
	s := f.Software[pin]
	s.Range = rng
	f.Software[pin] = s
	return nil
}

// SetPWMDutyCycle records the software duty.
func (f *FakeDriver) SetPWMDutyCycle(pin, duty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(pin, "software %d duty=%d", pin, duty); err != nil {
		return err
	}
	s := f.Software[pin]
	s.Duty = duty
	f.Software[pin] = s
	return nil
}

// Close marks the driver as closed.
func (f *FakeDriver) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Level returns the last level written to pin.
func (f *FakeDriver) Level(pin int) (Level, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.Levels[pin]
	return l, ok
}

// CallLog returns a copy of the recorded operations.
func (f *FakeDriver) CallLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}

// Reset clears recorded state but keeps HardwarePins.
func (f *FakeDriver) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Outputs = make(map[int]bool)
	f.Levels = make(map[int]Level)
	f.Hardware = make(map[int]PWMSetting)
	f.Software = make(map[int]PWMSetting)
	f.Calls = nil
	f.Err = nil
	f.Closed = false
}
