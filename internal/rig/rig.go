// Package rig implements the brewing-rig operations behind the HTTP API:
// initialization, pot and pump control, temperature reads and settings.
package rig

import (
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/brew-controller/internal/config"
	"github.com/sweeney/brew-controller/internal/gpio"
	"github.com/sweeney/brew-controller/internal/hardware"
	"github.com/sweeney/brew-controller/internal/logger"
	"github.com/sweeney/brew-controller/internal/metrics"
	"github.com/sweeney/brew-controller/internal/mqtt"
	"github.com/sweeney/brew-controller/internal/sensor"
	"github.com/sweeney/brew-controller/internal/session"
	"github.com/sweeney/brew-controller/internal/status"
)

// ConfigStore reads and persists the rig configuration.
type ConfigStore interface {
	Load() (config.Config, error)
	SaveAtomic(cfg config.Config) error
}

// Options wires a Controller. Tracker, Metrics and Publisher are optional.
type Options struct {
	Store     ConfigStore
	Backend   *hardware.Backend
	PWM       *hardware.Registry
	Reader    sensor.Reader
	Session   *session.Logger
	Tracker   *status.Tracker
	Metrics   *metrics.Metrics
	Publisher mqtt.Publisher
	Log       *logger.Logger
}

// Controller applies rig commands. Hardware failures are logged, never
// returned; errors come only from name validation, configuration and the
// session file.
type Controller struct {
	store     ConfigStore
	backend   *hardware.Backend
	pwm       *hardware.Registry
	reader    sensor.Reader
	session   *session.Logger
	tracker   *status.Tracker
	metrics   *metrics.Metrics
	publisher mqtt.Publisher
	log       *logger.Logger
	now       func() time.Time

	speeds *PumpSpeedMemory

	// cmdMu serializes actuator commands so a relay and its PWM channel
	// change together.
	cmdMu     sync.Mutex
	actuators map[string]status.Actuator
}

// New returns a Controller.
func New(o Options) *Controller {
	return &Controller{
		store:     o.Store,
		backend:   o.Backend,
		pwm:       o.PWM,
		reader:    o.Reader,
		session:   o.Session,
		tracker:   o.Tracker,
		metrics:   o.Metrics,
		publisher: o.Publisher,
		log:       o.Log.WithTag("rig"),
		now:       time.Now,
		speeds:    NewPumpSpeedMemory(),
		actuators: make(map[string]status.Actuator),
	}
}

// Initialize drives every configured pin LOW and starts a new session log.
func (c *Controller) Initialize() error {
	cfg, err := c.store.Load()
	if err != nil {
		return err
	}

	c.cmdMu.Lock()
	c.backend.InitializeAllPins(cfg.Pins())
	for _, name := range []string{string(PotBK), string(PotHLT)} {
		c.recordLocked(status.Actuator{Name: name, Kind: "pot"})
	}
	for _, name := range []string{string(PumpP1), string(PumpP2)} {
		c.recordLocked(status.Actuator{Name: name, Kind: "pump", Duty: c.speeds.Get(Pump(name))})
	}
	c.cmdMu.Unlock()

	if err := c.session.StartNewSession(); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	if c.tracker != nil {
		c.tracker.SetSession(c.session.Path())
	}
	c.publish(mqtt.Event{Kind: "rig", Action: "initialize"})
	c.log.With("session", c.session.Path()).Infof("rig initialized")
	return nil
}

func potPins(cfg config.Config, p Pot) (relay, pwm int) {
	if p == PotBK {
		return cfg.GPIO.Pot.BK, cfg.GPIO.PWMHeating.BK
	}
	return cfg.GPIO.Pot.HLT, cfg.GPIO.PWMHeating.HLT
}

func pumpPins(cfg config.Config, p Pump) (relay, pwm int) {
	if p == PumpP1 {
		return cfg.GPIO.Pump.P1, cfg.GPIO.PWMPump.P1
	}
	return cfg.GPIO.Pump.P2, cfg.GPIO.PWMPump.P2
}

// SetPotPower switches a heating element. On closes the relay and starts
// its PWM at 0% duty; off opens the relay and stops the PWM.
func (c *Controller) SetPotPower(name string, on bool) error {
	p, err := ParsePot(name)
	if err != nil {
		return err
	}
	cfg, err := c.store.Load()
	if err != nil {
		return err
	}
	relay, pwmPin := potPins(cfg, p)

	c.cmdMu.Lock()
	running := c.switchChannel(string(p), relay, pwmPin, cfg.PWM.Frequency, 0, on)
	c.recordLocked(status.Actuator{Name: string(p), Kind: "pot", On: running})
	c.cmdMu.Unlock()
	c.publish(mqtt.Event{Kind: "pot", Name: string(p), Action: "power", On: &on})
	return nil
}

// SetPotEfficiency changes the heating duty of a pot, in percent. The
// recorded duty only changes while the pot's PWM channel is running.
func (c *Controller) SetPotEfficiency(name string, value float64) error {
	p, err := ParsePot(name)
	if err != nil {
		return err
	}
	cfg, err := c.store.Load()
	if err != nil {
		return err
	}
	_, pwmPin := potPins(cfg, p)

	c.cmdMu.Lock()
	c.pwm.ChangeDutyCycle(pwmPin, value)
	if _, ok := c.pwm.Channel(pwmPin); ok {
		a := c.actuators[string(p)]
		a.Name, a.Kind, a.Duty = string(p), "pot", value
		c.recordLocked(a)
	}
	c.cmdMu.Unlock()
	c.publish(mqtt.Event{Kind: "pot", Name: string(p), Action: "efficiency", Value: &value})
	return nil
}

// SetPumpPower switches a pump. On closes the relay and starts its PWM at
// the last requested speed; off opens the relay and stops the PWM.
func (c *Controller) SetPumpPower(name string, on bool) error {
	p, err := ParsePump(name)
	if err != nil {
		return err
	}
	cfg, err := c.store.Load()
	if err != nil {
		return err
	}
	relay, pwmPin := pumpPins(cfg, p)
	speed := c.speeds.Get(p)

	c.cmdMu.Lock()
	running := c.switchChannel(string(p), relay, pwmPin, cfg.PWM.SoftwareFrequency, speed, on)
	c.recordLocked(status.Actuator{Name: string(p), Kind: "pump", On: running, Duty: speed})
	c.cmdMu.Unlock()
	c.publish(mqtt.Event{Kind: "pump", Name: string(p), Action: "power", On: &on})
	return nil
}

// SetPumpSpeed remembers the speed and applies it, in percent. The speed is
// remembered even when the pump is off or the config cannot be read.
func (c *Controller) SetPumpSpeed(name string, value float64) error {
	p, err := ParsePump(name)
	if err != nil {
		return err
	}
	c.speeds.Set(p, value)

	cfg, err := c.store.Load()
	if err != nil {
		return err
	}
	_, pwmPin := pumpPins(cfg, p)

	c.cmdMu.Lock()
	c.pwm.ChangeDutyCycle(pwmPin, value)
	a := c.actuators[string(p)]
	a.Name, a.Kind, a.Duty = string(p), "pump", value
	c.recordLocked(a)
	c.cmdMu.Unlock()
	c.publish(mqtt.Event{Kind: "pump", Name: string(p), Action: "speed", Value: &value})
	return nil
}

// PumpSpeed returns the remembered speed of a pump.
func (c *Controller) PumpSpeed(p Pump) float64 {
	return c.speeds.Get(p)
}

// switchChannel drives the relay and its PWM channel and reports whether the
// channel is running afterwards.
func (c *Controller) switchChannel(name string, relay, pwmPin, freq int, duty float64, on bool) bool {
	if !on {
		c.backend.SetDigitalOutput(relay, gpio.Low)
		c.pwm.StopPWM(pwmPin)
		return false
	}
	c.backend.SetDigitalOutput(relay, gpio.High)
	if _, ok := c.pwm.StartPWM(pwmPin, freq, duty); !ok {
		c.log.With("name", name, "pin", pwmPin).Warnf("pwm channel did not start, reporting off")
		return false
	}
	return true
}

func (c *Controller) recordLocked(a status.Actuator) {
	c.actuators[a.Name] = a
	if c.tracker != nil {
		c.tracker.SetActuator(a)
	}
	if c.metrics != nil {
		c.metrics.SetRelay(a.Name, a.On)
		c.metrics.SetDuty(a.Name, a.Duty)
	}
}

func (c *Controller) publish(e mqtt.Event) {
	if c.publisher == nil {
		return
	}
	e.Timestamp = c.now()
	if err := c.publisher.PublishEvent(e); err != nil {
		c.log.With("action", e.Action, "name", e.Name, "err", err).Warnf("publish event failed")
		if c.metrics != nil {
			c.metrics.PublishFailed()
		}
	}
}

// Temperatures reads the three probes now.
func (c *Controller) Temperatures() (sensor.Readings, error) {
	cfg, err := c.store.Load()
	if err != nil {
		return sensor.Readings{}, err
	}
	return sensor.ReadAll(c.reader, cfg.Sensors.DS18B20), nil
}

// Settings returns the stored configuration.
func (c *Controller) Settings() (config.Config, error) {
	return c.store.Load()
}

// SaveSettings replaces the stored configuration atomically.
func (c *Controller) SaveSettings(cfg config.Config) error {
	if err := c.store.SaveAtomic(cfg); err != nil {
		return err
	}
	c.log.Infof("settings updated")
	return nil
}

// History returns the readings of the current session.
func (c *Controller) History() []session.Record {
	return c.session.History()
}

// Channels reports the running PWM channels.
func (c *Controller) Channels() []hardware.Channel {
	return c.pwm.Channels()
}
