package probe

import (
	"testing"
	"time"

	"github.com/sweeney/brew-controller/internal/sensor"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

const debounce = 30 * time.Second

func all(v float64) sensor.Readings {
	return sensor.Readings{BK: v, MLT: v, HLT: v}
}

// feed processes readings every 10s starting at start and returns every
// emitted event.
func feed(m *Monitor, start time.Time, readings ...sensor.Readings) []Event {
	var events []Event
	for i, r := range readings {
		events = append(events, m.Process(Input{Readings: r, Time: start.Add(time.Duration(i) * 10 * time.Second)})...)
	}
	return events
}

func baselined(t *testing.T) *Monitor {
	t.Helper()
	m := NewMonitor(debounce, t0)
	feed(m, t0, all(20), all(20), all(20), all(20))
	if !m.IsBaselined() {
		t.Fatal("monitor should be baselined after the debounce period")
	}
	return m
}

func TestNewMonitor(t *testing.T) {
	m := NewMonitor(debounce, t0)
	if m.IsBaselined() {
		t.Error("new monitor should not be baselined")
	}
	if len(m.States()) != 0 {
		t.Errorf("no states expected before baseline, got %v", m.States())
	}
	if !m.lastHeartbeat.Equal(t0) {
		t.Errorf("lastHeartbeat: got %v, want %v", m.lastHeartbeat, t0)
	}
}

func TestBaselineEstablishment(t *testing.T) {
	m := NewMonitor(debounce, t0)
	r := sensor.Readings{BK: 20, MLT: sensor.Sentinel, HLT: 21}

	if events := feed(m, t0, r, r, r); len(events) != 0 {
		t.Errorf("expected no events during baseline, got %v", events)
	}
	if m.IsBaselined() {
		t.Error("should not be baselined before the debounce period")
	}

	if events := m.Process(Input{Readings: r, Time: t0.Add(debounce)}); len(events) != 0 {
		t.Errorf("baseline itself emits nothing, got %v", events)
	}
	if !m.IsBaselined() {
		t.Fatal("should be baselined after the debounce period")
	}

	want := map[string]State{"BK": StatePresent, "MLT": StateMissing, "HLT": StatePresent}
	got := m.States()
	for v, s := range want {
		if got[v] != s {
			t.Errorf("%s: got %s, want %s", v, got[v], s)
		}
	}
}

func TestBaselineResetOnChange(t *testing.T) {
	m := NewMonitor(debounce, t0)
	feed(m, t0, all(20), all(20), all(sensor.Sentinel), all(20))
	if m.IsBaselined() {
		t.Error("a change during baseline should restart the debounce")
	}
}

func TestProbeLost(t *testing.T) {
	m := baselined(t)
	start := t0.Add(time.Minute)
	lost := sensor.Readings{BK: 20, MLT: sensor.Sentinel, HLT: 20}

	events := feed(m, start, lost, lost, lost, lost)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %v", events)
	}
	e := events[0]
	if e.Vessel != "MLT" || e.Type != EventLost || e.State != StateMissing {
		t.Errorf("got %+v", e)
	}
	if !e.Timestamp.Equal(start.Add(debounce)) {
		t.Errorf("timestamp: got %v, want %v", e.Timestamp, start.Add(debounce))
	}
}

func TestProbeFound(t *testing.T) {
	m := NewMonitor(debounce, t0)
	missing := sensor.Readings{BK: sensor.Sentinel, MLT: 20, HLT: 20}
	feed(m, t0, missing, missing, missing, missing)

	events := feed(m, t0.Add(time.Minute), all(20), all(20), all(20), all(20))
	if len(events) != 1 || events[0].Vessel != "BK" || events[0].Type != EventFound {
		t.Errorf("got %+v", events)
	}
}

func TestSingleFailedReadIsIgnored(t *testing.T) {
	m := baselined(t)
	glitch := sensor.Readings{BK: 20, MLT: 20, HLT: sensor.Sentinel}

	if events := feed(m, t0.Add(time.Minute), glitch, all(20), glitch, glitch, all(20)); len(events) != 0 {
		t.Errorf("flaps shorter than the debounce must not emit, got %v", events)
	}
	if m.States()["HLT"] != StatePresent {
		t.Error("HLT should still be present")
	}
}

func TestSimultaneousTransitionsInVesselOrder(t *testing.T) {
	m := baselined(t)
	gone := sensor.Readings{BK: sensor.Sentinel, MLT: 20, HLT: sensor.Sentinel}

	events := feed(m, t0.Add(time.Minute), gone, gone, gone, gone)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %v", events)
	}
	if events[0].Vessel != "BK" || events[1].Vessel != "HLT" {
		t.Errorf("order: got %s, %s", events[0].Vessel, events[1].Vessel)
	}
}

func TestCheckHeartbeat(t *testing.T) {
	tests := []struct {
		name     string
		baseline bool
		interval time.Duration
		at       time.Duration
		want     bool
	}{
		{"disabled", true, 0, time.Hour, false},
		{"before baseline", false, time.Minute, time.Hour, false},
		{"before interval", true, 15 * time.Minute, 14 * time.Minute, false},
		{"at interval", true, 15 * time.Minute, 15 * time.Minute, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(debounce, t0)
			if tt.baseline {
				feed(m, t0, all(20), all(20), all(20), all(20))
			}
			hb := m.CheckHeartbeat(t0.Add(tt.at), tt.interval)
			if (hb != nil) != tt.want {
				t.Errorf("got %+v, want heartbeat=%v", hb, tt.want)
			}
		})
	}
}

func TestHeartbeatCountsAndUptime(t *testing.T) {
	m := baselined(t)
	lost := sensor.Readings{BK: 20, MLT: sensor.Sentinel, HLT: 20}
	feed(m, t0.Add(time.Minute), lost, lost, lost, lost)
	feed(m, t0.Add(2*time.Minute), all(20), all(20), all(20), all(20))

	now := t0.Add(15 * time.Minute)
	hb := m.CheckHeartbeat(now, 15*time.Minute)
	if hb == nil {
		t.Fatal("expected a heartbeat")
	}
	if hb.Uptime != 15*time.Minute {
		t.Errorf("uptime: got %v", hb.Uptime)
	}
	if hb.Counts != (EventCounts{Lost: 1, Found: 1}) {
		t.Errorf("counts: got %+v", hb.Counts)
	}
	if hb.States["MLT"] != StatePresent {
		t.Errorf("states: got %v", hb.States)
	}

	if m.CheckHeartbeat(now.Add(time.Minute), 15*time.Minute) != nil {
		t.Error("next heartbeat should wait a full interval")
	}
	if m.CheckHeartbeat(now.Add(15*time.Minute), 15*time.Minute) == nil {
		t.Error("expected the second heartbeat")
	}
}
