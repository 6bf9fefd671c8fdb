package probe

import (
	"time"

	"github.com/sweeney/brew-controller/internal/sensor"
)

// Monitor debounces probe presence. A probe must read the same way for the
// debounce duration before its state changes; nothing is reported until
// every probe has a baseline.
type Monitor struct {
	debounce      time.Duration
	vessels       [len(Vessels)]vesselState
	baselined     bool
	startTime     time.Time
	counts        EventCounts
	lastHeartbeat time.Time
}

// NewMonitor creates a Monitor. startTime is the origin for heartbeat uptime.
func NewMonitor(debounce time.Duration, startTime time.Time) *Monitor {
	return &Monitor{
		debounce:      debounce,
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

func presence(v float64) State {
	if v == sensor.Sentinel {
		return StateMissing
	}
	return StatePresent
}

// Process takes one set of readings and returns the transitions it
// completes, in BK, MLT, HLT order.
func (m *Monitor) Process(in Input) []Event {
	values := [len(Vessels)]float64{in.Readings.BK, in.Readings.MLT, in.Readings.HLT}

	var transitions [len(Vessels)]bool
	for i, v := range values {
		transitions[i] = m.processVessel(&m.vessels[i], presence(v), in.Time)
	}

	if !m.baselined {
		for i := range m.vessels {
			if !m.vessels[i].baselined {
				return nil
			}
		}
		m.baselined = true
		return nil
	}

	var events []Event
	for i, changed := range transitions {
		if !changed {
			continue
		}
		e := Event{Timestamp: in.Time, Vessel: Vessels[i], State: m.vessels[i].stable, Type: EventFound}
		if e.State == StateMissing {
			e.Type = EventLost
			m.counts.Lost++
		} else {
			m.counts.Found++
		}
		events = append(events, e)
	}
	return events
}

// processVessel reports whether the stable state changed.
func (m *Monitor) processVessel(v *vesselState, s State, now time.Time) bool {
	if !v.baselined {
		if v.pending != s {
			v.pending = s
			v.pendingSince = now
			return false
		}
		if now.Sub(v.pendingSince) >= m.debounce {
			v.stable = s
			v.baselined = true
			v.pending = ""
		}
		return false
	}

	if s == v.stable {
		v.pending = ""
		return false
	}
	if v.pending != s {
		v.pending = s
		v.pendingSince = now
		return false
	}
	if now.Sub(v.pendingSince) >= m.debounce {
		v.stable = s
		v.pending = ""
		return true
	}
	return false
}

// IsBaselined reports whether every probe has a baseline.
func (m *Monitor) IsBaselined() bool {
	return m.baselined
}

// States returns the stable state per vessel. Probes without a baseline are
// absent from the map.
func (m *Monitor) States() map[string]State {
	out := make(map[string]State, len(Vessels))
	for i, v := range m.vessels {
		if v.baselined {
			out[Vessels[i]] = v.stable
		}
	}
	return out
}

// CheckHeartbeat returns heartbeat data once interval has passed since the
// last heartbeat or startup. It returns nil before the baseline and when
// interval <= 0.
func (m *Monitor) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 || !m.baselined {
		return nil
	}
	if now.Sub(m.lastHeartbeat) < interval {
		return nil
	}
	m.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(m.startTime),
		Counts:    m.counts,
		States:    m.States(),
	}
}
