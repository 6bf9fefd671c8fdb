package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sweeney/brew-controller/internal/logger"
	"github.com/sweeney/brew-controller/internal/session"
)

// DefaultBufferSize is how many messages are kept while the broker is
// unreachable.
const DefaultBufferSize = 500

const publishTimeout = 5 * time.Second

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	BufferSize int

	// OnConnectionChange, if set, is called on every connect and
	// connection loss.
	OnConnectionChange func(connected bool)
}

// client is the subset of paho.Client the publisher uses.
type client interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client client
	log    *logger.Logger

	mu  sync.Mutex
	out *outbox
}

// NewRealPublisher creates a publisher for the given broker. The broker's
// last-will marks the rig OFFLINE on the system topic. The will is registered
// at connect time, so it carries no timestamp. If the first connect
// does not finish within 10 seconds the publisher is still returned and keeps
// retrying in the background.
func NewRealPublisher(opts Options, l *logger.Logger) (*RealPublisher, error) {
	size := opts.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	p := &RealPublisher{
		log: l.WithTag("mqtt"),
		out: newOutbox(size),
	}

	will, err := willPayload()
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	clientOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(func(paho.Client) {
			p.log.With("broker", opts.Broker).Infof("connected")
			if opts.OnConnectionChange != nil {
				opts.OnConnectionChange(true)
			}
			p.flush()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.With("broker", opts.Broker, "err", err).Warnf("connection lost")
			if opts.OnConnectionChange != nil {
				opts.OnConnectionChange(false)
			}
		})

	c := paho.NewClient(clientOpts)
	p.client = c

	token := c.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		p.log.With("broker", opts.Broker).Warnf("broker not reachable yet, buffering until connected")
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// PublishReading sends a logged reading. QoS 0, not retained.
func (p *RealPublisher) PublishReading(rec session.Record) error {
	payload, err := FormatReadingPayload(rec)
	if err != nil {
		return fmt.Errorf("format reading payload: %w", err)
	}
	return p.publish(TopicTemperature, 0, false, payload)
}

// PublishEvent sends an actuator command. QoS 1 so commands are not lost
// on a flaky link.
func (p *RealPublisher) PublishEvent(event Event) error {
	payload, err := FormatEventPayload(event)
	if err != nil {
		return fmt.Errorf("format event payload: %w", err)
	}
	return p.publish(TopicEvents, 1, false, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(TopicSystem, 1, event.Retained, payload)
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		if p.out.add(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained}) {
			p.log.With("capacity", p.out.capacity()).Warnf("buffer full, dropping oldest")
		}
		p.mu.Unlock()
		return nil
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// flush replays buffered messages in order.
func (p *RealPublisher) flush() {
	p.mu.Lock()
	msgs, dropped := p.out.take()
	p.mu.Unlock()
	if len(msgs) == 0 {
		return
	}

	p.log.With("count", len(msgs), "dropped", dropped).Infof("replaying buffered messages")
	for _, m := range msgs {
		token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
		if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
			p.log.With("topic", m.topic, "err", token.Error()).Warnf("replay failed")
		}
	}
}

// Buffered reports how many messages are waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.len()
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

func willPayload() ([]byte, error) {
	return FormatSystemPayload(SystemEvent{Event: "OFFLINE", Reason: "MQTT_DISCONNECT"})
}
