// Package status provides a thread-safe view of the rig for the status page,
// the JSON endpoint and MQTT system events.
package status

import (
	"sort"
	"sync"
	"time"
)

// Actuator is the last commanded state of a pot or pump.
type Actuator struct {
	Name string
	Kind string // "pot" or "pump"
	On   bool    // relay closed and PWM channel running
	Duty float64 // efficiency of a running pot, remembered speed for pumps
}

// Reading is a local copy of the last logged temperatures, to avoid
// importing internal/session from status.
type Reading struct {
	Timestamp string
	BK        float64
	MLT       float64
	HLT       float64
}

// Config contains daemon configuration for display.
type Config struct {
	IntervalMs int64
	Broker     string
	HTTPAddr   string
	ConfigPath string
	LogDir     string
}

// Snapshot is a point-in-time view of rig state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Backend       string
	Driver        string
	Initialized   bool
	SessionPath   string
	Readings      int
	LastReading   *Reading
	Actuators     []Actuator
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable rig state behind an RWMutex.
type Tracker struct {
	mu        sync.RWMutex
	snap      Snapshot
	actuators map[string]Actuator
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Backend:   "simulated",
			Driver:    "simulated",
			StartTime: startTime,
			Config:    cfg,
		},
		actuators: make(map[string]Actuator),
	}
}

// SetBackend records which hardware backend the rig runs on.
func (t *Tracker) SetBackend(kind, driver string) {
	t.mu.Lock()
	t.snap.Backend = kind
	t.snap.Driver = driver
	t.mu.Unlock()
}

// SetSession marks the rig initialized with a fresh session file.
func (t *Tracker) SetSession(path string) {
	t.mu.Lock()
	t.snap.Initialized = true
	t.snap.SessionPath = path
	t.snap.Readings = 0
	t.snap.LastReading = nil
	t.mu.Unlock()
}

// RecordReading stores the last logged reading. Called from the sampling
// loop on every logged tick.
func (t *Tracker) RecordReading(r Reading) {
	t.mu.Lock()
	t.snap.Readings++
	t.snap.LastReading = &r
	t.mu.Unlock()
}

// SetActuator records the last command sent to an actuator.
func (t *Tracker) SetActuator(a Actuator) {
	t.mu.Lock()
	t.actuators[a.Name] = a
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the rig state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.LastReading != nil {
		r := *s.LastReading
		s.LastReading = &r
	}
	s.Actuators = make([]Actuator, 0, len(t.actuators))
	for _, a := range t.actuators {
		s.Actuators = append(s.Actuators, a)
	}
	t.mu.RUnlock()
	sort.Slice(s.Actuators, func(i, j int) bool {
		if s.Actuators[i].Kind != s.Actuators[j].Kind {
			return s.Actuators[i].Kind < s.Actuators[j].Kind
		}
		return s.Actuators[i].Name < s.Actuators[j].Name
	})
	s.Now = time.Now()
	return s
}
