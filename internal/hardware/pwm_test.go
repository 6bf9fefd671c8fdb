package hardware

import (
	"fmt"
	"sync"
	"testing"

	"github.com/sweeney/brew-controller/internal/gpio"
	"github.com/sweeney/brew-controller/internal/logger"
)

func newRealRegistry(hardwarePins ...int) (*Registry, *gpio.FakeDriver) {
	f := gpio.NewFakeDriver(hardwarePins...)
	b := NewReal(f, logger.Discard())
	return NewRegistry(b, logger.Discard()), f
}

func TestStartPWMHardware(t *testing.T) {
	r, f := newRealRegistry(12)

	pin, ok := r.StartPWM(12, 1000, 45.5)
	if !ok || pin != 12 {
		t.Fatalf("got (%d, %v)", pin, ok)
	}

	ch, ok := r.Channel(12)
	if !ok || ch.Mode != ModeHardware || ch.Frequency != 1000 {
		t.Errorf("channel: got %+v", ch)
	}
	if got := f.Hardware[12]; got.Frequency != 1000 || got.Duty != 455_000 {
		t.Errorf("driver: got %+v", got)
	}
	if !f.Outputs[12] {
		t.Error("pin should be put in output mode first")
	}
}

func TestStartPWMFallsBackToSoftware(t *testing.T) {
	r, f := newRealRegistry()

	if _, ok := r.StartPWM(24, 800, 40); !ok {
		t.Fatal("start should succeed via software PWM")
	}

	ch, _ := r.Channel(24)
	if ch.Mode != ModeSoftware {
		t.Errorf("mode: got %s, want software", ch.Mode)
	}
	want := gpio.PWMSetting{Frequency: 800, Range: 100, Duty: 40}
	if got := f.Software[24]; got != want {
		t.Errorf("driver: got %+v, want %+v", got, want)
	}

	f.Reset()
	r.ChangeDutyCycle(24, 75)

	calls := f.CallLog()
	if len(calls) != 1 || calls[0] != "software 24 duty=75" {
		t.Errorf("duty change should only set software duty, got %v", calls)
	}
}

func TestStartPWMRejectedPin(t *testing.T) {
	r, f := newRealRegistry(12)
	f.RejectPins[12] = true

	if _, ok := r.StartPWM(12, 1000, 0); ok {
		t.Error("start should fail")
	}
	if _, ok := r.Channel(12); ok {
		t.Error("failed start should not register a channel")
	}
}

func TestChangeDutyCycleHardwareKeepsFrequency(t *testing.T) {
	r, f := newRealRegistry(12)
	r.StartPWM(12, 1000, 0)

	r.ChangeDutyCycle(12, 45.5)

	if got := f.Hardware[12]; got.Frequency != 1000 || got.Duty != 455_000 {
		t.Errorf("driver: got %+v", got)
	}
	if ch, _ := r.Channel(12); ch.Duty != 45.5 {
		t.Errorf("recorded duty: got %v", ch.Duty)
	}
}

func TestSoftwareDutyRounds(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{0, 0},
		{45.5, 46},
		{45.4, 45},
		{100, 100},
	}
	for _, tt := range tests {
		if got := softwareDuty(tt.in); got != tt.want {
			t.Errorf("softwareDuty(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestHardwareDutyScale(t *testing.T) {
	if got := hardwareDuty(100); got != gpio.HardwareDutyRange {
		t.Errorf("100%%: got %d", got)
	}
	if got := hardwareDuty(33.3); got != 332_999 {
		t.Errorf("33.3%%: got %d, want truncation", got)
	}
}

func TestStopPWM(t *testing.T) {
	r, f := newRealRegistry(12)
	r.StartPWM(12, 1000, 50)
	r.StartPWM(24, 800, 50)

	r.StopPWM(12)
	r.StopPWM(24)

	if got := f.Hardware[12]; got.Frequency != 0 || got.Duty != 0 {
		t.Errorf("hardware stop: got %+v", got)
	}
	if got := f.Software[24]; got.Duty != 0 {
		t.Errorf("software stop: got %+v", got)
	}
	if len(r.Channels()) != 0 {
		t.Errorf("channels should be empty, got %v", r.Channels())
	}
}

func TestStopThenChangeIsNoOp(t *testing.T) {
	r, f := newRealRegistry(12)
	r.StartPWM(12, 1000, 50)
	r.StopPWM(12)
	f.Reset()

	r.ChangeDutyCycle(12, 80)

	if calls := f.CallLog(); len(calls) != 0 {
		t.Errorf("no driver calls expected, got %v", calls)
	}
	if _, ok := r.Channel(12); ok {
		t.Error("duty change must not create a channel")
	}
}

func TestStopUntrackedPin(t *testing.T) {
	r, f := newRealRegistry()
	r.StopPWM(99)
	if calls := f.CallLog(); len(calls) != 0 {
		t.Errorf("no driver calls expected, got %v", calls)
	}
}

func TestSimulatedRegistry(t *testing.T) {
	r := NewRegistry(NewSimulated(logger.Discard()), logger.Discard())

	if _, ok := r.StartPWM(12, 1000, 0); !ok {
		t.Fatal("simulated start should succeed")
	}
	ch, _ := r.Channel(12)
	if ch.Mode != ModeSoftware {
		t.Errorf("simulated channels record software mode, got %s", ch.Mode)
	}

	r.ChangeDutyCycle(12, 60)
	if ch, _ := r.Channel(12); ch.Duty != 60 {
		t.Errorf("duty: got %v", ch.Duty)
	}

	r.StopPWM(12)
	if _, ok := r.Channel(12); ok {
		t.Error("stop should forget the channel")
	}
}

func TestRegistryConcurrentPins(t *testing.T) {
	r, _ := newRealRegistry(12, 13)
	var wg sync.WaitGroup
	for _, pin := range []int{12, 13, 24, 25} {
		wg.Add(1)
		go func(pin int) {
			defer wg.Done()
			r.StartPWM(pin, 1000, 0)
			for i := 0; i <= 100; i += 10 {
				r.ChangeDutyCycle(pin, float64(i))
			}
		}(pin)
	}
	wg.Wait()

	chans := r.Channels()
	if len(chans) != 4 {
		t.Fatalf("got %d channels", len(chans))
	}
	for _, ch := range chans {
		if ch.Duty != 100 {
			t.Errorf("%s: duty %v", fmt.Sprint(ch.Pin), ch.Duty)
		}
	}
}
