// Package config loads and atomically persists the rig's pin-mapping file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultPath is the configuration file used when none is given.
const DefaultPath = "config.json"

var (
	// ErrNotFound is returned by Load when the file does not exist.
	ErrNotFound = errors.New("config file not found")
	// ErrCorrupt is returned by Load when the file is not a valid configuration.
	ErrCorrupt = errors.New("invalid config file format")
)

// SaveError reports a failed atomic write. The previous file is left untouched.
type SaveError struct {
	Path string
	Err  error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save config %s: %v", e.Path, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// PotPins holds the pin numbers for the two pots.
type PotPins struct {
	BK  int `json:"bk"`
	HLT int `json:"hlt"`
}

// PumpPins holds the pin numbers for the two pumps.
type PumpPins struct {
	P1 int `json:"p1"`
	P2 int `json:"p2"`
}

// GPIO maps logical devices onto BCM pin numbers.
type GPIO struct {
	Pot        PotPins  `json:"pot"`
	Pump       PumpPins `json:"pump"`
	PWMHeating PotPins  `json:"pwm_heating"`
	PWMPump    PumpPins `json:"pwm_pump"`
}

// PWM holds the carrier frequencies in Hz.
type PWM struct {
	Frequency         int `json:"frequency"`          // heating elements, hardware PWM
	SoftwareFrequency int `json:"software_frequency"` // pumps, software PWM
}

// DS18B20 holds the 1-wire device serials of the three probes.
type DS18B20 struct {
	BK  string `json:"bk"`
	MLT string `json:"mlt"`
	HLT string `json:"hlt"`
}

// Sensors groups the probe families.
type Sensors struct {
	DS18B20 DS18B20 `json:"ds18b20"`
}

// Config is the document persisted to config.json.
type Config struct {
	GPIO    GPIO    `json:"gpio"`
	PWM     PWM     `json:"pwm"`
	Sensors Sensors `json:"sensors"`
}

// requiredKeys lists every leaf the schema demands. Missing ints would
// otherwise silently decode as pin 0.
var requiredKeys = [][]string{
	{"gpio", "pot", "bk"}, {"gpio", "pot", "hlt"},
	{"gpio", "pump", "p1"}, {"gpio", "pump", "p2"},
	{"gpio", "pwm_heating", "bk"}, {"gpio", "pwm_heating", "hlt"},
	{"gpio", "pwm_pump", "p1"}, {"gpio", "pwm_pump", "p2"},
	{"pwm", "frequency"}, {"pwm", "software_frequency"},
	{"sensors", "ds18b20", "bk"}, {"sensors", "ds18b20", "mlt"}, {"sensors", "ds18b20", "hlt"},
}

// Parse decodes and checks a configuration document.
func Parse(data []byte) (Config, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Config{}, err
	}
	for _, path := range requiredKeys {
		if !hasKey(raw, path) {
			return Config{}, fmt.Errorf("missing key %s", strings.Join(path, "."))
		}
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func hasKey(m map[string]interface{}, path []string) bool {
	var cur interface{} = m
	for _, k := range path {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return false
		}
		if cur, ok = obj[k]; !ok {
			return false
		}
	}
	return cur != nil
}

// Validate checks that all pins are non-negative and every probe has a serial.
func (c Config) Validate() error {
	pins := map[string]int{
		"gpio.pot.bk":          c.GPIO.Pot.BK,
		"gpio.pot.hlt":         c.GPIO.Pot.HLT,
		"gpio.pump.p1":         c.GPIO.Pump.P1,
		"gpio.pump.p2":         c.GPIO.Pump.P2,
		"gpio.pwm_heating.bk":  c.GPIO.PWMHeating.BK,
		"gpio.pwm_heating.hlt": c.GPIO.PWMHeating.HLT,
		"gpio.pwm_pump.p1":     c.GPIO.PWMPump.P1,
		"gpio.pwm_pump.p2":     c.GPIO.PWMPump.P2,
	}
	for name, pin := range pins {
		if pin < 0 {
			return fmt.Errorf("%s: pin %d is negative", name, pin)
		}
	}
	if c.PWM.Frequency < 0 || c.PWM.SoftwareFrequency < 0 {
		return errors.New("pwm: frequency must not be negative")
	}
	serials := map[string]string{
		"sensors.ds18b20.bk":  c.Sensors.DS18B20.BK,
		"sensors.ds18b20.mlt": c.Sensors.DS18B20.MLT,
		"sensors.ds18b20.hlt": c.Sensors.DS18B20.HLT,
	}
	for name, s := range serials {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s: serial is empty", name)
		}
	}
	return nil
}

// Pins returns every physical pin the rig drives, relays first.
func (c Config) Pins() []int {
	g := c.GPIO
	return []int{
		g.Pot.BK, g.Pot.HLT,
		g.PWMHeating.BK, g.PWMHeating.HLT,
		g.Pump.P1, g.Pump.P2,
		g.PWMPump.P1, g.PWMPump.P2,
	}
}

// Store reads and writes a configuration file. It holds no cached state:
// every Load goes to disk.
type Store struct {
	path string

	// createTemp is swapped in tests to simulate write failures.
	createTemp func(dir, pattern string) (*os.File, error)
}

// NewStore returns a Store for the file at path.
func NewStore(path string) *Store {
	return &Store{path: path, createTemp: os.CreateTemp}
}

// Path returns the file the store manages.
func (s *Store) Path() string {
	return s.path
}

// Load reads the configuration fresh from disk.
func (s *Store) Load() (Config, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, ErrNotFound
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return cfg, nil
}

// SaveAtomic writes cfg to a temp file beside the target and renames it into
// place. Readers see either the old or the new document, never a mix.
func (s *Store) SaveAtomic(cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return &SaveError{Path: s.path, Err: err}
	}

	dir := filepath.Dir(s.path)
	tmp, err := s.createTemp(dir, "."+filepath.Base(s.path)+"-*.tmp")
	if err != nil {
		return &SaveError{Path: s.path, Err: fmt.Errorf("create temp: %w", err)}
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &SaveError{Path: s.path, Err: fmt.Errorf("write temp: %w", err)}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &SaveError{Path: s.path, Err: fmt.Errorf("sync temp: %w", err)}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &SaveError{Path: s.path, Err: fmt.Errorf("close temp: %w", err)}
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return &SaveError{Path: s.path, Err: fmt.Errorf("rename: %w", err)}
	}
	return nil
}
