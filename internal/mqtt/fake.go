package mqtt

import (
	"sync"

	"github.com/sweeney/brew-controller/internal/session"
)

// FakePublisher records published messages for test assertions.
// It is safe for concurrent use.
type FakePublisher struct {
	mu sync.Mutex

	// Readings contains all readings that were published.
	Readings []session.Record

	// Events contains all actuator events that were published.
	Events []Event

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// Payloads contains every JSON payload published, keyed by topic.
	Payloads map[string][][]byte

	// PublishError, if set, will be returned by every publish call.
	PublishError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{Payloads: make(map[string][][]byte)}
}

// PublishReading records the reading.
func (f *FakePublisher) PublishReading(rec session.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatReadingPayload(rec)
	if err != nil {
		return err
	}
	f.Readings = append(f.Readings, rec)
	f.Payloads[TopicTemperature] = append(f.Payloads[TopicTemperature], payload)
	return nil
}

// PublishEvent records the actuator event.
func (f *FakePublisher) PublishEvent(event Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatEventPayload(event)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, event)
	f.Payloads[TopicEvents] = append(f.Payloads[TopicEvents], payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.Payloads[TopicSystem] = append(f.Payloads[TopicSystem], payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// ReadingCount returns how many readings were published.
func (f *FakePublisher) ReadingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Readings)
}

// EventLog returns a copy of the published actuator events.
func (f *FakePublisher) EventLog() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.Events...)
}

// Reset clears recorded messages.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Readings = nil
	f.Events = nil
	f.SystemEvents = nil
	f.Payloads = make(map[string][][]byte)
	f.Closed = false
	f.PublishError = nil
	f.Connected = false
}
