package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string         `json:"event,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Backend       string         `json:"backend"`
	Driver        string         `json:"driver"`
	Ready         bool           `json:"ready"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartTime     string         `json:"start_time"`
	Timestamp     string         `json:"timestamp"`
	MQTT          MQTTStatus     `json:"mqtt"`
	Session       SessionJSON    `json:"session"`
	Actuators     []ActuatorJSON `json:"actuators"`
	Config        ConfigJSON     `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// SessionJSON describes the current session log.
type SessionJSON struct {
	Path        string       `json:"path,omitempty"`
	Readings    int          `json:"readings"`
	LastReading *ReadingJSON `json:"last_reading,omitempty"`
}

// ReadingJSON is the JSON representation of a reading.
type ReadingJSON struct {
	Timestamp string  `json:"timestamp"`
	BK        float64 `json:"bk"`
	MLT       float64 `json:"mlt"`
	HLT       float64 `json:"hlt"`
}

// ActuatorJSON is the JSON representation of an actuator.
type ActuatorJSON struct {
	Name string  `json:"name"`
	Kind string  `json:"kind"`
	On   bool    `json:"on"`
	Duty float64 `json:"duty"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	IntervalMs int64  `json:"interval_ms"`
	Broker     string `json:"broker"`
	HTTPAddr   string `json:"http_addr"`
	ConfigPath string `json:"config_path"`
	LogDir     string `json:"log_dir"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Backend:       snap.Backend,
		Driver:        snap.Driver,
		Ready:         snap.Initialized,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Session:       SessionJSON{Path: snap.SessionPath, Readings: snap.Readings},
		Actuators:     make([]ActuatorJSON, 0, len(snap.Actuators)),
		Config: ConfigJSON{
			IntervalMs: snap.Config.IntervalMs,
			Broker:     snap.Config.Broker,
			HTTPAddr:   snap.Config.HTTPAddr,
			ConfigPath: snap.Config.ConfigPath,
			LogDir:     snap.Config.LogDir,
		},
	}
	if r := snap.LastReading; r != nil {
		inner.Session.LastReading = &ReadingJSON{Timestamp: r.Timestamp, BK: r.BK, MLT: r.MLT, HLT: r.HLT}
	}
	for _, a := range snap.Actuators {
		inner.Actuators = append(inner.Actuators, ActuatorJSON{Name: a.Name, Kind: a.Kind, On: a.On, Duty: a.Duty})
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
