// Package sampler runs the periodic temperature logging loop.
package sampler

import (
	"context"
	"time"

	"github.com/sweeney/brew-controller/internal/config"
	"github.com/sweeney/brew-controller/internal/logger"
	"github.com/sweeney/brew-controller/internal/metrics"
	"github.com/sweeney/brew-controller/internal/mqtt"
	"github.com/sweeney/brew-controller/internal/probe"
	"github.com/sweeney/brew-controller/internal/sensor"
	"github.com/sweeney/brew-controller/internal/session"
	"github.com/sweeney/brew-controller/internal/status"
)

// DefaultInterval is the time between two logged readings.
const DefaultInterval = 10 * time.Second

// ConfigLoader loads the current rig configuration.
type ConfigLoader interface {
	Load() (config.Config, error)
}

// SessionLog receives readings.
type SessionLog interface {
	LogReading(r sensor.Readings) (session.Record, bool)
}

// Loop reads all probes on every tick and logs the result. Tracker, Metrics,
// Publisher, Conn and Probes are optional.
type Loop struct {
	Config    ConfigLoader
	Reader    sensor.Reader
	Session   SessionLog
	Tracker   *status.Tracker
	Metrics   *metrics.Metrics
	Publisher mqtt.Publisher
	Conn      mqtt.ConnectionStatus
	Log       *logger.Logger

	// Probes reports probes dropping out or coming back. Heartbeat is the
	// interval of HEARTBEAT system events; 0 disables them.
	Probes    *probe.Monitor
	Heartbeat time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// Run processes ticks until ctx is cancelled. A tick in progress always
// completes before Run returns, so the caller may close the session log
// right after.
func (l *Loop) Run(ctx context.Context, tick <-chan time.Time) {
	log := l.Log.WithTag("sampler")
	log.Infof("temperature logging started")
	for {
		select {
		case <-ctx.Done():
			log.Infof("temperature logging stopped")
			return
		case <-tick:
			l.Tick()
		}
	}
}

// Tick performs one read-and-log cycle. Errors are logged and never stop
// the loop.
func (l *Loop) Tick() {
	log := l.Log.WithTag("sampler")

	cfg, err := l.Config.Load()
	if err != nil {
		log.With("err", err).Errorf("temp log error")
		return
	}

	readings := sensor.ReadAll(l.Reader, cfg.Sensors.DS18B20)
	if l.Metrics != nil {
		l.Metrics.ObserveReading(readings)
	}
	if l.Probes != nil {
		l.checkProbes(readings, log)
	}

	rec, ok := l.Session.LogReading(readings)
	if !ok {
		log.Debugf("no session open, reading dropped")
		return
	}
	log.With("bk", rec.BK, "mlt", rec.MLT, "hlt", rec.HLT).Debugf("reading logged")

	if l.Metrics != nil {
		l.Metrics.ReadingLogged()
	}
	if l.Tracker != nil {
		l.Tracker.RecordReading(status.Reading{Timestamp: rec.Timestamp, BK: rec.BK, MLT: rec.MLT, HLT: rec.HLT})
		if l.Conn != nil {
			l.Tracker.SetMQTTConnected(l.Conn.IsConnected())
		}
	}
	if l.Publisher != nil {
		if err := l.Publisher.PublishReading(rec); err != nil {
			log.With("err", err).Warnf("publish reading failed")
			if l.Metrics != nil {
				l.Metrics.PublishFailed()
			}
		}
	}
}

func (l *Loop) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *Loop) checkProbes(readings sensor.Readings, log *logger.Logger) {
	now := l.now()
	for _, e := range l.Probes.Process(probe.Input{Readings: readings, Time: now}) {
		elog := log.With("vessel", e.Vessel, "state", e.State)
		if e.Type == probe.EventLost {
			elog.Warnf("probe lost")
		} else {
			elog.Infof("probe found")
		}
		if l.Publisher == nil {
			continue
		}
		err := l.Publisher.PublishEvent(mqtt.Event{Timestamp: e.Timestamp, Kind: "probe", Name: e.Vessel, Action: string(e.Type)})
		if err != nil {
			l.publishFailed(log, err)
		}
	}

	hb := l.Probes.CheckHeartbeat(now, l.Heartbeat)
	if hb == nil {
		return
	}
	log.With("uptime", hb.Uptime.Round(time.Second), "lost", hb.Counts.Lost, "found", hb.Counts.Found).Infof("heartbeat")
	if l.Publisher == nil {
		return
	}
	event := mqtt.SystemEvent{Timestamp: hb.Timestamp, Event: "HEARTBEAT"}
	if l.Tracker != nil {
		if l.Conn != nil {
			l.Tracker.SetMQTTConnected(l.Conn.IsConnected())
		}
		event.RawPayload = status.FormatStatusEvent(l.Tracker.Snapshot(), "HEARTBEAT", "")
	}
	if err := l.Publisher.PublishSystem(event); err != nil {
		l.publishFailed(log, err)
	}
}

func (l *Loop) publishFailed(log *logger.Logger, err error) {
	log.With("err", err).Warnf("publish failed")
	if l.Metrics != nil {
		l.Metrics.PublishFailed()
	}
}
