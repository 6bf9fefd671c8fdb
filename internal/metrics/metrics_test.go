package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sweeney/brew-controller/internal/sensor"
)

func TestObserveReading(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveReading(sensor.Readings{BK: 65.5, MLT: 60, HLT: 78})
	m.ObserveReading(sensor.Readings{BK: sensor.Sentinel, MLT: 61, HLT: 79})

	if got := testutil.ToFloat64(m.temperature.WithLabelValues("bk")); got != 65.5 {
		t.Errorf("bk: got %v, want last good value 65.5", got)
	}
	if got := testutil.ToFloat64(m.temperature.WithLabelValues("hlt")); got != 79 {
		t.Errorf("hlt: got %v, want 79", got)
	}
	if got := testutil.ToFloat64(m.sensorFailures.WithLabelValues("bk")); got != 1 {
		t.Errorf("bk failures: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.sensorFailures.WithLabelValues("mlt")); got != 0 {
		t.Errorf("mlt failures: got %v, want 0", got)
	}
}

func TestActuatorGauges(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SetRelay("BK", true)
	m.SetDuty("BK", 45.5)
	m.SetRelay("P1", false)

	if got := testutil.ToFloat64(m.relayOn.WithLabelValues("BK")); got != 1 {
		t.Errorf("BK relay: got %v", got)
	}
	if got := testutil.ToFloat64(m.relayOn.WithLabelValues("P1")); got != 0 {
		t.Errorf("P1 relay: got %v", got)
	}
	if got := testutil.ToFloat64(m.dutyPercent.WithLabelValues("BK")); got != 45.5 {
		t.Errorf("BK duty: got %v", got)
	}
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ReadingLogged()
	m.ReadingLogged()
	m.PublishFailed()
	m.SetHardwareReal(true)

	if got := testutil.ToFloat64(m.readingsLogged); got != 2 {
		t.Errorf("readings logged: got %v", got)
	}
	if got := testutil.ToFloat64(m.publishFailures); got != 1 {
		t.Errorf("publish failures: got %v", got)
	}
	if got := testutil.ToFloat64(m.hardwareReal); got != 1 {
		t.Errorf("hardware real: got %v", got)
	}
}

func TestRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveReading(sensor.Readings{BK: 1, MLT: 2, HLT: 3})
	m.SetRelay("BK", true)
	m.SetDuty("BK", 1)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"brew_temperature_celsius",
		"brew_readings_logged_total",
		"brew_relay_on_binary",
		"brew_duty_percent",
		"brew_hardware_real_binary",
		"brew_mqtt_publish_failures_total",
	} {
		if !names[want] {
			t.Errorf("missing metric %s", want)
		}
	}
}
