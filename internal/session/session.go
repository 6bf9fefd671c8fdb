// Package session records temperature readings for a brew day to a CSV file
// and keeps them in memory for the history endpoint.
package session

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sweeney/brew-controller/internal/logger"
	"github.com/sweeney/brew-controller/internal/sensor"
)

// TimestampLayout is the local-time layout of a reading's timestamp.
const TimestampLayout = "2006-01-02T15:04:05"

var header = []string{"timestamp", "bk", "mlt", "hlt"}

// Record is one logged reading.
type Record struct {
	Timestamp string `json:"timestamp"`
	sensor.Readings
}

// Logger appends readings to the current session file. It is safe for
// concurrent use; StartNewSession and LogReading never interleave.
type Logger struct {
	dir string
	log *logger.Logger
	now func() time.Time

	mu      sync.Mutex
	path    string
	f       *os.File
	w       *csv.Writer
	history []Record
}

// NewLogger returns a logger writing session files under dir. No session is
// open until StartNewSession.
func NewLogger(dir string, l *logger.Logger) *Logger {
	return &Logger{dir: dir, log: l.WithTag("session"), now: time.Now}
}

// FileName returns the session file name for day t.
func FileName(t time.Time) string {
	return "session_" + t.Format("02-01-2006") + ".csv"
}

// StartNewSession opens today's session file, truncating it if it exists,
// writes the header and clears the history.
func (s *Logger) StartNewSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	path := filepath.Join(s.dir, FileName(s.now()))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open session file: %w", err)
	}
	w := csv.NewWriter(f)
	if err := writeRow(f, w, header); err != nil {
		f.Close()
		return fmt.Errorf("write session header: %w", err)
	}

	s.closeLocked()
	s.path, s.f, s.w = path, f, w
	s.history = nil
	s.log.With("path", path).Infof("session started")
	return nil
}

// LogReading stamps r, appends it to the history and the session file. It
// returns false when no session has been started. A failed write is logged;
// the reading stays in the history.
func (s *Logger) LogReading(r sensor.Readings) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return Record{}, false
	}
	rec := Record{Timestamp: s.now().Format(TimestampLayout), Readings: r}
	s.history = append(s.history, rec)

	row := []string{rec.Timestamp, formatTemp(r.BK), formatTemp(r.MLT), formatTemp(r.HLT)}
	if err := writeRow(s.f, s.w, row); err != nil {
		s.log.With("path", s.path, "err", err).Errorf("session write failed")
	}
	return rec, true
}

func writeRow(f *os.File, w *csv.Writer, row []string) error {
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}

// formatTemp always keeps a decimal point so sentinels read as -1.0.
func formatTemp(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// History returns a copy of the readings of the current session.
func (s *Logger) History() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record{}, s.history...)
}

// Path returns the current session file, or "" before the first session.
func (s *Logger) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Close closes the session file. Later readings are dropped until the next
// StartNewSession.
func (s *Logger) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Logger) closeLocked() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f, s.w = nil, nil
	return err
}
