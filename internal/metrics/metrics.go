// Package metrics exposes rig state as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/brew-controller/internal/sensor"
)

const namespace = "brew"

// Metrics holds the rig collectors.
type Metrics struct {
	temperature     *prometheus.GaugeVec
	sensorFailures  *prometheus.CounterVec
	readingsLogged  prometheus.Counter
	relayOn         *prometheus.GaugeVec
	dutyPercent     *prometheus.GaugeVec
	hardwareReal    prometheus.Gauge
	publishFailures prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Last temperature read per vessel",
		}, []string{"vessel"}),
		sensorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_read_failures_total",
			Help:      "Increase when a probe read returned the failure sentinel",
		}, []string{"vessel"}),
		readingsLogged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_logged_total",
			Help:      "Readings appended to the session log",
		}),
		relayOn: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_on_binary",
			Help:      "Relay state per pot or pump",
		}, []string{"actuator"}),
		dutyPercent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "duty_percent",
			Help:      "Commanded PWM duty per pot or pump",
		}, []string{"actuator"}),
		hardwareReal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hardware_real_binary",
			Help:      "1 when driving real pins, 0 when simulated",
		}),
		publishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_publish_failures_total",
			Help:      "Increase when an MQTT publish failed",
		}),
	}

	reg.MustRegister(
		m.temperature,
		m.sensorFailures,
		m.readingsLogged,
		m.relayOn,
		m.dutyPercent,
		m.hardwareReal,
		m.publishFailures,
	)
	return m
}

// ObserveReading records the three vessel temperatures. Failed probes bump
// the failure counter and leave the last good temperature in place.
func (m *Metrics) ObserveReading(r sensor.Readings) {
	for vessel, v := range map[string]float64{"bk": r.BK, "mlt": r.MLT, "hlt": r.HLT} {
		if v == sensor.Sentinel {
			m.sensorFailures.WithLabelValues(vessel).Inc()
			continue
		}
		m.temperature.WithLabelValues(vessel).Set(v)
	}
}

// ReadingLogged counts a reading written to the session log.
func (m *Metrics) ReadingLogged() {
	m.readingsLogged.Inc()
}

// SetRelay records a relay state.
func (m *Metrics) SetRelay(actuator string, on bool) {
	m.relayOn.WithLabelValues(actuator).Set(boolToFloat(on))
}

// SetDuty records a commanded duty.
func (m *Metrics) SetDuty(actuator string, duty float64) {
	m.dutyPercent.WithLabelValues(actuator).Set(duty)
}

// SetHardwareReal records whether real pins are driven.
func (m *Metrics) SetHardwareReal(real bool) {
	m.hardwareReal.Set(boolToFloat(real))
}

// PublishFailed counts a failed MQTT publish.
func (m *Metrics) PublishFailed() {
	m.publishFailures.Inc()
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
