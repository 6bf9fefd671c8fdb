package hardware

import (
	"context"
	"errors"
	"testing"

	"github.com/sweeney/brew-controller/internal/gpio"
	"github.com/sweeney/brew-controller/internal/logger"
)

func TestProbeRealDriver(t *testing.T) {
	f := gpio.NewFakeDriver()
	b := Probe(context.Background(), func(context.Context) (gpio.Driver, error) {
		return f, nil
	}, logger.Discard())

	if b.Kind() != KindReal {
		t.Errorf("got %v, want real", b.Kind())
	}
	if b.DriverName() != "fake" {
		t.Errorf("driver name: got %q", b.DriverName())
	}
}

func TestProbeFallsBackToSimulated(t *testing.T) {
	b := Probe(context.Background(), func(context.Context) (gpio.Driver, error) {
		return nil, errors.New("connection refused")
	}, logger.Discard())

	if b.Kind() != KindSimulated {
		t.Errorf("got %v, want simulated", b.Kind())
	}
	if b.DriverName() != "simulated" {
		t.Errorf("driver name: got %q", b.DriverName())
	}
	if err := b.Close(); err != nil {
		t.Errorf("closing a simulated backend: %v", err)
	}
}

func TestSetDigitalOutput(t *testing.T) {
	f := gpio.NewFakeDriver()
	b := NewReal(f, logger.Discard())

	b.SetDigitalOutput(17, gpio.High)

	if l, ok := f.Level(17); !ok || l != gpio.High {
		t.Errorf("driver level: got (%v, %v)", l, ok)
	}
	if l, ok := b.Level(17); !ok || l != gpio.High {
		t.Errorf("backend level: got (%v, %v)", l, ok)
	}
}

func TestSetDigitalOutputFailureIsSwallowed(t *testing.T) {
	f := gpio.NewFakeDriver()
	f.RejectPins[17] = true
	b := NewReal(f, logger.Discard())

	b.SetDigitalOutput(17, gpio.High)

	if _, ok := b.Level(17); ok {
		t.Error("failed write should not record a level")
	}
}

func TestSetDigitalOutputSimulated(t *testing.T) {
	b := NewSimulated(logger.Discard())

	b.SetDigitalOutput(18, gpio.High)
	b.SetDigitalOutput(18, gpio.Low)

	if l, ok := b.Level(18); !ok || l != gpio.Low {
		t.Errorf("got (%v, %v), want (LOW, true)", l, ok)
	}
}

func TestInitializeAllPinsIsIdempotent(t *testing.T) {
	f := gpio.NewFakeDriver()
	b := NewReal(f, logger.Discard())
	pins := []int{17, 18, 12, 13}

	b.InitializeAllPins(pins)
	first := b.Levels()
	b.InitializeAllPins(pins)
	second := b.Levels()

	if len(first) != len(pins) || len(second) != len(pins) {
		t.Fatalf("levels: got %v then %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("entry %d changed: %v -> %v", i, first[i], second[i])
		}
		if first[i].Level != gpio.Low {
			t.Errorf("pin %d should be LOW", first[i].Pin)
		}
	}
	for _, p := range pins {
		if !f.Outputs[p] {
			t.Errorf("pin %d should be an output", p)
		}
	}
}

func TestInitializeAllPinsStopsAtFirstFailure(t *testing.T) {
	f := gpio.NewFakeDriver()
	f.RejectPins[18] = true
	b := NewReal(f, logger.Discard())

	b.InitializeAllPins([]int{17, 18, 12})

	if _, ok := b.Level(17); !ok {
		t.Error("pin 17 should be initialized")
	}
	if _, ok := b.Level(12); ok {
		t.Error("pin 12 should not be reached after pin 18 fails")
	}
}

func TestLevelsSorted(t *testing.T) {
	b := NewSimulated(logger.Discard())
	b.SetDigitalOutput(23, gpio.High)
	b.SetDigitalOutput(17, gpio.Low)
	b.SetDigitalOutput(22, gpio.High)

	levels := b.Levels()
	want := []int{17, 22, 23}
	if len(levels) != len(want) {
		t.Fatalf("got %v", levels)
	}
	for i, p := range want {
		if levels[i].Pin != p {
			t.Errorf("entry %d: got pin %d, want %d", i, levels[i].Pin, p)
		}
	}
}
