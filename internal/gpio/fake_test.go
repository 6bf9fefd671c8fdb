package gpio

import (
	"errors"
	"testing"
)

func TestFakeDriverWrite(t *testing.T) {
	f := NewFakeDriver()

	if err := f.SetOutput(17); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Write(17, High); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !f.Outputs[17] {
		t.Error("pin 17 should be an output")
	}
	if l, ok := f.Level(17); !ok || l != High {
		t.Errorf("pin 17: got (%v, %v), want (HIGH, true)", l, ok)
	}

	calls := f.CallLog()
	want := []string{"mode 17 OUTPUT", "write 17 HIGH"}
	if len(calls) != len(want) {
		t.Fatalf("calls: got %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d: got %q, want %q", i, calls[i], want[i])
		}
	}
}

func TestFakeDriverHardwarePWM(t *testing.T) {
	f := NewFakeDriver(12)

	if err := f.HardwarePWM(12, 1000, 500_000); err != nil {
		t.Fatalf("hardware pin: unexpected error: %v", err)
	}
	if got := f.Hardware[12]; got.Frequency != 1000 || got.Duty != 500_000 {
		t.Errorf("pin 12: got %+v", got)
	}

	err := f.HardwarePWM(24, 1000, 0)
	if !errors.Is(err, ErrHardwarePWMUnavailable) {
		t.Errorf("pin 24: expected ErrHardwarePWMUnavailable, got %v", err)
	}
}

func TestFakeDriverSoftwarePWM(t *testing.T) {
	f := NewFakeDriver()

	f.SetPWMFrequency(24, 800)
	f.SetPWMRange(24, 100)
	f.SetPWMDutyCycle(24, 40)

	want := PWMSetting{Frequency: 800, Range: 100, Duty: 40}
	if got := f.Software[24]; got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestFakeDriverError(t *testing.T) {
	f := NewFakeDriver()
	f.Err = errors.New("simulated error")

	if err := f.Write(5, High); err == nil || err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
	if _, ok := f.Level(5); ok {
		t.Error("failed write should not record a level")
	}
}

func TestFakeDriverRejectPins(t *testing.T) {
	f := NewFakeDriver(12)
	f.RejectPins[12] = true

	if err := f.HardwarePWM(12, 1000, 0); err == nil {
		t.Error("expected rejected pin to fail")
	}
	if err := f.Write(13, High); err != nil {
		t.Errorf("other pins should work: %v", err)
	}
}

func TestFakeDriverCloseAndReset(t *testing.T) {
	f := NewFakeDriver(12)
	f.Write(1, High)
	f.Close()
	if !f.Closed {
		t.Error("should be closed after Close()")
	}

	f.Reset()
	if f.Closed || len(f.Calls) != 0 || len(f.Levels) != 0 {
		t.Error("Reset should clear recorded state")
	}
	if !f.HardwarePins[12] {
		t.Error("Reset should keep HardwarePins")
	}
}
