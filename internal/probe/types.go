// Package probe tracks whether each temperature probe is answering and
// reports debounced changes. It does no I/O and never sleeps: time always
// comes in with the input.
package probe

import (
	"time"

	"github.com/sweeney/brew-controller/internal/sensor"
)

// State is the debounced presence of a probe.
type State string

const (
	StatePresent State = "PRESENT"
	StateMissing State = "MISSING"
)

// EventType is a presence transition.
type EventType string

const (
	EventLost  EventType = "lost"
	EventFound EventType = "found"
)

// Vessels lists the probes in reporting order.
var Vessels = [3]string{"BK", "MLT", "HLT"}

// Event is a debounced presence transition of one probe.
type Event struct {
	Timestamp time.Time
	Vessel    string
	Type      EventType
	State     State
}

// vesselState is the debounce state of one probe.
type vesselState struct {
	stable       State
	pending      State
	pendingSince time.Time
	baselined    bool
}

// Input is one set of readings and when it was taken.
type Input struct {
	Readings sensor.Readings
	Time     time.Time
}

// EventCounts counts transitions since startup.
type EventCounts struct {
	Lost  int
	Found int
}

// HeartbeatData is emitted once per heartbeat interval.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
	States    map[string]State
}
