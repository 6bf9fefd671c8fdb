// Package sensor reads DS18B20 temperature probes over the 1-Wire sysfs
// interface, or simulates them.
package sensor

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sweeney/brew-controller/internal/config"
	"github.com/sweeney/brew-controller/internal/logger"
)

// DefaultW1Dir is where the kernel exposes 1-Wire devices.
const DefaultW1Dir = "/sys/bus/w1/devices"

// Sentinel is returned by Read when a probe cannot be read.
const Sentinel = -1.0

var (
	errCRC    = errors.New("crc check failed")
	errNoTemp = errors.New("temperature data not found")
)

// Reader reads one probe by serial. It never fails: unreadable probes
// report Sentinel.
type Reader interface {
	Read(serial string) float64
}

// Readings is one reading of the three vessels, in degrees Celsius.
type Readings struct {
	BK  float64 `json:"bk"`
	MLT float64 `json:"mlt"`
	HLT float64 `json:"hlt"`
}

// ReadAll reads the three probes independently.
func ReadAll(r Reader, s config.DS18B20) Readings {
	return Readings{
		BK:  r.Read(s.BK),
		MLT: r.Read(s.MLT),
		HLT: r.Read(s.HLT),
	}
}

// W1Reader reads probes from the w1_therm sysfs files.
type W1Reader struct {
	Dir string
	log *logger.Logger
}

// NewW1Reader returns a reader rooted at dir.
func NewW1Reader(dir string, l *logger.Logger) *W1Reader {
	return &W1Reader{Dir: dir, log: l.WithTag("sensor")}
}

// Read returns the probe temperature, or Sentinel on any failure.
func (w *W1Reader) Read(serial string) float64 {
	start := time.Now()
	t, err := w.read(serial)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			w.log.With("serial", serial, "err", err).Errorf("ds18b20 read failed")
		}
		return Sentinel
	}
	w.log.With("serial", serial, "took", time.Since(start).Round(time.Millisecond)).Debugf("ds18b20 read")
	return t
}

func (w *W1Reader) read(serial string) (float64, error) {
	f, err := os.Open(filepath.Join(w.Dir, serial, "w1_slave"))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	var lines []string
	for sc.Scan() && len(lines) < 2 {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	return parseW1Slave(lines)
}

func parseW1Slave(lines []string) (float64, error) {
	if len(lines) == 0 || !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, errCRC
	}
	if len(lines) < 2 {
		return 0, errNoTemp
	}
	_, raw, ok := strings.Cut(lines[1], "t=")
	if !ok {
		return 0, errNoTemp
	}
	// millidegrees as a plain integer; NaN, Inf and hex floats are rejected
	milli, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse temperature %q: %w", raw, err)
	}
	return float64(milli) / 1000, nil
}

// SetResolution writes the conversion resolution (9 to 12 bits) for a probe.
// Missing or unwritable resolution files are logged and ignored.
func (w *W1Reader) SetResolution(serial string, bits int) {
	log := w.log.With("serial", serial, "bits", bits)
	path := filepath.Join(w.Dir, serial, "resolution")
	if _, err := os.Stat(path); err != nil {
		log.Warnf("resolution file not found")
		return
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(bits)), 0o644); err != nil {
		log.With("err", err).Warnf("unable to set sensor resolution")
		return
	}
	log.Infof("sensor resolution set")
}

// SimReader returns plausible random temperatures in [20.0, 30.0].
type SimReader struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSimReader returns a simulated reader seeded with seed.
func NewSimReader(seed int64) *SimReader {
	return &SimReader{rnd: rand.New(rand.NewSource(seed))}
}

// Read ignores serial and returns a value rounded to 0.1.
func (s *SimReader) Read(string) float64 {
	s.mu.Lock()
	v := 20 + s.rnd.Float64()*10
	s.mu.Unlock()
	return math.Round(v*10) / 10
}
