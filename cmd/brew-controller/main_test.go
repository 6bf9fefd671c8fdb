package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/brew-controller/internal/config"
	"github.com/sweeney/brew-controller/internal/gpio"
	"github.com/sweeney/brew-controller/internal/hardware"
	"github.com/sweeney/brew-controller/internal/logger"
	"github.com/sweeney/brew-controller/internal/mqtt"
	"github.com/sweeney/brew-controller/internal/sensor"
	"github.com/sweeney/brew-controller/internal/status"
)

func TestSignalName(t *testing.T) {
	tests := []struct {
		sig  os.Signal
		want string
	}{
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
		{syscall.SIGHUP, "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := signalName(tt.sig); got != tt.want {
			t.Errorf("signalName(%v): got %q, want %q", tt.sig, got, tt.want)
		}
	}
}

func TestOpenerUnknownDriver(t *testing.T) {
	if _, err := opener(options{driver: "wiringpi"}); err == nil {
		t.Error("expected an error for an unknown driver")
	}
}

func TestOpenerPigpioUnreachableFallsBackToSimulated(t *testing.T) {
	open, err := opener(options{driver: "pigpio", pigpioAddr: "127.0.0.1:1", probeTimeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("opener: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	b := hardware.Probe(ctx, open, logger.Discard())
	if b.Kind() != hardware.KindSimulated {
		t.Errorf("got %v backend, want simulated", b.Kind())
	}
}

func TestNewReaderSimulated(t *testing.T) {
	b := hardware.NewSimulated(logger.Discard())
	r := newReader(b, config.NewStore("missing.json"), options{}, logger.Discard())
	if _, ok := r.(*sensor.SimReader); !ok {
		t.Errorf("got %T, want *sensor.SimReader", r)
	}
}

func TestNewReaderRealSetsResolution(t *testing.T) {
	dir := t.TempDir()
	w1 := filepath.Join(dir, "w1")
	for _, serial := range []string{"28-a", "28-b", "28-c"} {
		os.MkdirAll(filepath.Join(w1, serial), 0o755)
		os.WriteFile(filepath.Join(w1, serial, "resolution"), []byte("12\n"), 0o644)
	}
	cfgPath := filepath.Join(dir, "config.json")
	os.WriteFile(cfgPath, []byte(`{
	  "gpio": {
	    "pot": {"bk": 17, "hlt": 18},
	    "pump": {"p1": 22, "p2": 23},
	    "pwm_heating": {"bk": 12, "hlt": 13},
	    "pwm_pump": {"p1": 24, "p2": 25}
	  },
	  "pwm": {"frequency": 1000, "software_frequency": 800},
	  "sensors": {"ds18b20": {"bk": "28-a", "mlt": "28-b", "hlt": "28-c"}}
	}`), 0o644)

	b := hardware.NewReal(gpio.NewFakeDriver(), logger.Discard())
	r := newReader(b, config.NewStore(cfgPath), options{w1Dir: w1, w1Resolution: 10}, logger.Discard())
	if _, ok := r.(*sensor.W1Reader); !ok {
		t.Fatalf("got %T, want *sensor.W1Reader", r)
	}
	data, err := os.ReadFile(filepath.Join(w1, "28-b", "resolution"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "10" && string(data) != "10\n" {
		t.Errorf("resolution: got %q, want 10", data)
	}
}

func TestNewPublisherDisabled(t *testing.T) {
	tr := status.NewTracker(time.Now(), status.Config{})
	p, conn := newPublisher(options{}, tr, logger.Discard())
	if _, ok := p.(mqtt.NopPublisher); !ok {
		t.Errorf("got %T, want mqtt.NopPublisher", p)
	}
	if conn.IsConnected() {
		t.Error("disabled MQTT should report disconnected")
	}
}

func TestPublishSystemEventStartup(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	tr := status.NewTracker(time.Now(), status.Config{Broker: "tcp://broker:1883"})
	tr.SetBackend("real", "pigpio")

	publishSystemEvent(pub, pub, tr, "STARTUP", "", logger.Discard())

	if len(pub.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(pub.SystemEvents))
	}
	e := pub.SystemEvents[0]
	if e.Event != "STARTUP" || !e.Retained {
		t.Errorf("event: got %+v", e)
	}
	var sj status.StatusJSON
	if err := json.Unmarshal(e.RawPayload, &sj); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if sj.Status.Event != "STARTUP" || sj.Status.Driver != "pigpio" || !sj.Status.MQTT.Connected {
		t.Errorf("payload: got %+v", sj.Status)
	}
}

func TestPublishSystemEventShutdownReason(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	tr := status.NewTracker(time.Now(), status.Config{})

	publishSystemEvent(pub, pub, tr, "SHUTDOWN", "SIGTERM", logger.Discard())

	var sj status.StatusJSON
	json.Unmarshal(pub.SystemEvents[0].RawPayload, &sj)
	if sj.Status.Reason != "SIGTERM" {
		t.Errorf("reason: got %q", sj.Status.Reason)
	}
	if sj.Status.MQTT.Connected {
		t.Error("tracker should pick up the disconnected publisher")
	}
}

func TestPublishSystemEventErrorIsAbsorbed(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.PublishError = errors.New("broker down")
	tr := status.NewTracker(time.Now(), status.Config{})

	publishSystemEvent(pub, pub, tr, "SHUTDOWN", "SIGINT", logger.Discard())
}

func TestNewLoggerLevel(t *testing.T) {
	t.Setenv("INVOCATION_ID", "abc")
	l := newLogger(logger.LogLevelWarning)
	if l.Level() != logger.LogLevelWarning {
		t.Errorf("level: got %v", l.Level())
	}
}
