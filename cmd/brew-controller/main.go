// Command brew-controller drives a brewing rig: heating elements, pumps and
// temperature probes behind an HTTP API, with session logging to CSV and
// optional MQTT publication.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sweeney/brew-controller/internal/config"
	"github.com/sweeney/brew-controller/internal/gpio"
	"github.com/sweeney/brew-controller/internal/hardware"
	"github.com/sweeney/brew-controller/internal/logger"
	"github.com/sweeney/brew-controller/internal/metrics"
	"github.com/sweeney/brew-controller/internal/mqtt"
	"github.com/sweeney/brew-controller/internal/probe"
	"github.com/sweeney/brew-controller/internal/rig"
	"github.com/sweeney/brew-controller/internal/sampler"
	"github.com/sweeney/brew-controller/internal/sensor"
	"github.com/sweeney/brew-controller/internal/session"
	"github.com/sweeney/brew-controller/internal/status"
	"github.com/sweeney/brew-controller/internal/web"
)

type options struct {
	configPath   string
	httpAddr     string
	logDir       string
	driver       string
	pigpioAddr   string
	chip         string
	w1Dir        string
	w1Resolution int
	interval     time.Duration
	debounce     time.Duration
	heartbeat    time.Duration
	broker       string
	clientID     string
	probeTimeout time.Duration
	staticDir    string
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "config.json", "Path to the rig configuration file")
	flag.StringVar(&o.httpAddr, "http", ":8000", "HTTP listen address")
	flag.StringVar(&o.logDir, "log-dir", "logs", "Directory for session CSV files")
	flag.StringVar(&o.driver, "driver", "pigpio", "Pin driver: pigpio, gpiocdev or periph")
	flag.StringVar(&o.pigpioAddr, "pigpio-addr", gpio.DefaultPigpioAddr, "pigpiod address")
	flag.StringVar(&o.chip, "gpiochip", gpio.DefaultChip, "GPIO character device (gpiocdev driver)")
	flag.StringVar(&o.w1Dir, "w1-dir", sensor.DefaultW1Dir, "1-Wire devices directory")
	flag.IntVar(&o.w1Resolution, "w1-resolution", 0, "DS18B20 resolution in bits, 9-12 (0 leaves it unchanged)")
	flag.DurationVar(&o.interval, "interval", sampler.DefaultInterval, "Temperature logging interval")
	flag.DurationVar(&o.debounce, "probe-debounce", 30*time.Second, "How long a probe must stay missing or present before it is reported")
	flag.DurationVar(&o.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	flag.StringVar(&o.broker, "broker", "", "MQTT broker address (empty to disable)")
	flag.StringVar(&o.clientID, "client-id", "brew-controller", "MQTT client ID")
	flag.DurationVar(&o.probeTimeout, "probe-timeout", 2*time.Second, "How long to wait for the pin driver at startup")
	flag.StringVar(&o.staticDir, "static", "dist", "Built web UI served at / when the directory exists")
	logLevel := flag.Int("log", int(logger.LogLevelInfo), "Log level (0=none, 1=error, 2=warn, 3=info, 4=debug)")

	flag.Parse()

	l := newLogger(logger.LogLevel(*logLevel))
	if err := run(o, l); err != nil {
		l.Fatalf("fatal: %v", err)
	}
}

// newLogger drops timestamps under systemd, which adds its own.
func newLogger(level logger.LogLevel) *logger.Logger {
	var std *log.Logger
	if os.Getenv("INVOCATION_ID") != "" {
		std = log.New(os.Stdout, "", 0)
	} else {
		std = log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds|log.Lmsgprefix)
	}
	return logger.NewLogger(std, level)
}

func run(o options, l *logger.Logger) error {
	open, err := opener(o)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.probeTimeout)
	backend := hardware.Probe(ctx, open, l)
	cancel()
	defer backend.Close()

	store := config.NewStore(o.configPath)
	reader := newReader(backend, store, o, l)

	startTime := time.Now()
	tracker := status.NewTracker(startTime, status.Config{
		IntervalMs: o.interval.Milliseconds(),
		Broker:     o.broker,
		HTTPAddr:   o.httpAddr,
		ConfigPath: o.configPath,
		LogDir:     o.logDir,
	})
	tracker.SetBackend(backend.Kind().String(), backend.DriverName())

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	m.SetHardwareReal(backend.Kind() == hardware.KindReal)

	publisher, conn := newPublisher(o, tracker, l)
	defer publisher.Close()

	sess := session.NewLogger(o.logDir, l)
	if err := sess.StartNewSession(); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.Close()
	tracker.SetSession(sess.Path())

	ctrl := rig.New(rig.Options{
		Store:     store,
		Backend:   backend,
		PWM:       hardware.NewRegistry(backend, l),
		Reader:    reader,
		Session:   sess,
		Tracker:   tracker,
		Metrics:   m,
		Publisher: publisher,
		Log:       l,
	})

	publishSystemEvent(publisher, conn, tracker, "STARTUP", "", l)

	srv := web.New(web.Options{
		Addr:      o.httpAddr,
		Rig:       ctrl,
		Tracker:   tracker,
		Gatherer:  reg,
		StaticDir: o.staticDir,
		Log:       l,
	})
	srvErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()
	l.With("addr", o.httpAddr).Infof("http server listening")

	loop := &sampler.Loop{
		Config:    store,
		Reader:    reader,
		Session:   sess,
		Tracker:   tracker,
		Metrics:   m,
		Publisher: publisher,
		Conn:      conn,
		Log:       l,
		Probes:    probe.NewMonitor(o.debounce, startTime),
		Heartbeat: o.heartbeat,
	}
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()
	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		loop.Run(loopCtx, ticker.C)
		close(loopDone)
	}()

	l.With("backend", backend.Kind(), "driver", backend.DriverName(), "interval", o.interval,
		"heartbeat", o.heartbeat, "broker", o.broker, "session", sess.Path()).Infof("started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	reason := ""
	select {
	case s := <-sigCh:
		reason = signalName(s)
		l.With("signal", s).Infof("shutting down")
	case err := <-srvErr:
		reason = "HTTP_ERROR"
		runErr = fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.With("err", err).Warnf("http shutdown")
	}
	cancelShutdown()

	stopLoop()
	<-loopDone

	publishSystemEvent(publisher, conn, tracker, "SHUTDOWN", reason, l)
	return runErr
}

func opener(o options) (hardware.Opener, error) {
	switch o.driver {
	case "pigpio":
		return func(ctx context.Context) (gpio.Driver, error) {
			c, err := gpio.DialPigpio(ctx, o.pigpioAddr, o.probeTimeout)
			if err != nil {
				return nil, err
			}
			return c, nil
		}, nil
	case "gpiocdev":
		return func(context.Context) (gpio.Driver, error) {
			c, err := gpio.NewChipDriver(o.chip)
			if err != nil {
				return nil, err
			}
			return c, nil
		}, nil
	case "periph":
		return func(context.Context) (gpio.Driver, error) {
			d, err := gpio.NewPeriphDriver()
			if err != nil {
				return nil, err
			}
			return d, nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown driver %q (want pigpio, gpiocdev or periph)", o.driver)
	}
}

// newReader reads the real probes when the pins are real and simulates them
// otherwise.
func newReader(b *hardware.Backend, store *config.Store, o options, l *logger.Logger) sensor.Reader {
	if b.Kind() != hardware.KindReal {
		l.WithTag("sensor").Infof("using simulated temperatures")
		return sensor.NewSimReader(time.Now().UnixNano())
	}
	r := sensor.NewW1Reader(o.w1Dir, l)
	if o.w1Resolution == 0 {
		return r
	}
	cfg, err := store.Load()
	if err != nil {
		l.With("err", err).Warnf("probe resolution not set")
		return r
	}
	s := cfg.Sensors.DS18B20
	for _, serial := range []string{s.BK, s.MLT, s.HLT} {
		r.SetResolution(serial, o.w1Resolution)
	}
	return r
}

// newPublisher returns a no-op publisher when no broker is configured or the
// client cannot be built.
func newPublisher(o options, tracker *status.Tracker, l *logger.Logger) (mqtt.Publisher, mqtt.ConnectionStatus) {
	if o.broker == "" {
		return mqtt.NopPublisher{}, mqtt.NopPublisher{}
	}
	p, err := mqtt.NewRealPublisher(mqtt.Options{
		Broker:             o.broker,
		ClientID:           o.clientID,
		OnConnectionChange: tracker.SetMQTTConnected,
	}, l)
	if err != nil {
		l.With("broker", o.broker, "err", err).Errorf("mqtt disabled")
		return mqtt.NopPublisher{}, mqtt.NopPublisher{}
	}
	return p, p
}

// publishSystemEvent sends a retained lifecycle event carrying the full
// status snapshot.
func publishSystemEvent(p mqtt.Publisher, conn mqtt.ConnectionStatus, tracker *status.Tracker, event, reason string, l *logger.Logger) {
	tracker.SetMQTTConnected(conn.IsConnected())
	snap := tracker.Snapshot()
	e := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := p.PublishSystem(e); err != nil {
		l.With("event", event, "err", err).Warnf("failed to publish system event")
		return
	}
	l.With("event", event).Debugf("published system event")
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}
