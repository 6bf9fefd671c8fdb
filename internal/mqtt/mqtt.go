// Package mqtt publishes rig readings, actuator commands and lifecycle events
// to an MQTT broker, with an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/brew-controller/internal/session"
)

// TopicTemperature is the MQTT topic for logged temperature readings.
const TopicTemperature = "brew/rig/temperature"

// TopicEvents is the MQTT topic for actuator commands.
const TopicEvents = "brew/rig/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "brew/rig/system"

// Publisher publishes rig activity to MQTT. Errors should be logged by the
// caller and never stop the rig.
type Publisher interface {
	// PublishReading sends a logged temperature reading.
	PublishReading(rec session.Record) error

	// PublishEvent sends an actuator command.
	PublishEvent(event Event) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Event is an actuator command as applied by the rig.
type Event struct {
	Timestamp time.Time
	Kind      string   // "pot", "pump", "probe" or "rig"
	Name      string   // "BK", "MLT", "HLT", "P1", "P2"; empty for rig-wide events
	Action    string   // "power", "efficiency", "speed", "initialize", "lost", "found"
	On        *bool    // set for power events
	Value     *float64 // set for efficiency and speed events
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "OFFLINE"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// TemperaturePayload is the MQTT message payload for a reading.
type TemperaturePayload struct {
	Temperature session.Record `json:"temperature"`
}

// FormatReadingPayload creates the JSON payload for a logged reading.
func FormatReadingPayload(rec session.Record) ([]byte, error) {
	return json.Marshal(TemperaturePayload{Temperature: rec})
}

// EventPayload is the MQTT message payload for an actuator command.
type EventPayload struct {
	Event EventPayloadInner `json:"event"`
}

// EventPayloadInner contains the actuator command details.
type EventPayloadInner struct {
	Timestamp string   `json:"timestamp"`
	Kind      string   `json:"kind"`
	Name      string   `json:"name,omitempty"`
	Action    string   `json:"action"`
	On        *bool    `json:"on,omitempty"`
	Value     *float64 `json:"value,omitempty"`
}

// FormatEventPayload creates the JSON payload for an actuator command.
func FormatEventPayload(event Event) ([]byte, error) {
	return json.Marshal(EventPayload{
		Event: EventPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Kind:      event.Kind,
			Name:      event.Name,
			Action:    event.Action,
			On:        event.On,
			Value:     event.Value,
		},
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
// A zero Timestamp is left out of the payload.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Event:  event.Event,
			Reason: event.Reason,
		},
	}
	if !event.Timestamp.IsZero() {
		payload.System.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(payload)
}

// NopPublisher discards everything. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishReading(session.Record) error { return nil }
func (NopPublisher) PublishEvent(Event) error            { return nil }
func (NopPublisher) PublishSystem(SystemEvent) error     { return nil }
func (NopPublisher) Close() error                        { return nil }
func (NopPublisher) IsConnected() bool                   { return false }
