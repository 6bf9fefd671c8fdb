package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/brew-controller/internal/logger"
	"github.com/sweeney/brew-controller/internal/sensor"
)

func newTestLogger(t *testing.T, now time.Time) (*Logger, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "session_logs")
	s := NewLogger(dir, logger.Discard())
	s.now = func() time.Time { return now }
	t.Cleanup(func() { s.Close() })
	return s, dir
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestLogReadingBeforeSessionIsNoOp(t *testing.T) {
	s, dir := newTestLogger(t, time.Date(2024, 3, 9, 10, 0, 0, 0, time.Local))

	if _, ok := s.LogReading(sensor.Readings{BK: 1}); ok {
		t.Error("expected no-op before the first session")
	}
	if len(s.History()) != 0 {
		t.Error("history should be empty")
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("no files should be created before a session starts")
	}
}

func TestStartNewSessionWritesHeader(t *testing.T) {
	s, dir := newTestLogger(t, time.Date(2024, 3, 9, 10, 0, 0, 0, time.Local))

	if err := s.StartNewSession(); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "session_09-03-2024.csv")
	if s.Path() != want {
		t.Errorf("path: got %q, want %q", s.Path(), want)
	}
	lines := readLines(t, want)
	if len(lines) != 1 || lines[0] != "timestamp,bk,mlt,hlt" {
		t.Errorf("got %q", lines)
	}
}

func TestLogReadingAppends(t *testing.T) {
	s, _ := newTestLogger(t, time.Date(2024, 3, 9, 10, 15, 30, 0, time.Local))
	if err := s.StartNewSession(); err != nil {
		t.Fatal(err)
	}

	rec, ok := s.LogReading(sensor.Readings{BK: 65.5, MLT: -1, HLT: 78.125})
	if !ok {
		t.Fatal("expected reading to be logged")
	}
	if rec.Timestamp != "2024-03-09T10:15:30" {
		t.Errorf("timestamp: got %q", rec.Timestamp)
	}

	lines := readLines(t, s.Path())
	if len(lines) != 2 || lines[1] != "2024-03-09T10:15:30,65.5,-1.0,78.125" {
		t.Errorf("got %q", lines)
	}
	h := s.History()
	if len(h) != 1 || h[0] != rec {
		t.Errorf("history: got %+v", h)
	}
}

func TestHistoryIsACopy(t *testing.T) {
	s, _ := newTestLogger(t, time.Date(2024, 3, 9, 10, 0, 0, 0, time.Local))
	s.StartNewSession()
	s.LogReading(sensor.Readings{BK: 1})

	h := s.History()
	h[0].BK = 99
	if s.History()[0].BK != 1 {
		t.Error("mutating the returned history changed the logger")
	}
}

func TestRestartSameDayTruncates(t *testing.T) {
	s, _ := newTestLogger(t, time.Date(2024, 3, 9, 10, 0, 0, 0, time.Local))
	s.StartNewSession()
	s.LogReading(sensor.Readings{BK: 1})
	s.LogReading(sensor.Readings{BK: 2})

	if err := s.StartNewSession(); err != nil {
		t.Fatal(err)
	}
	if len(s.History()) != 0 {
		t.Error("history should reset")
	}
	if lines := readLines(t, s.Path()); len(lines) != 1 {
		t.Errorf("file should hold only the header, got %q", lines)
	}
}

func TestNewDayNewFile(t *testing.T) {
	day := time.Date(2024, 3, 9, 23, 59, 0, 0, time.Local)
	s, dir := newTestLogger(t, day)
	s.StartNewSession()
	s.LogReading(sensor.Readings{BK: 1})

	s.now = func() time.Time { return day.Add(2 * time.Minute) }
	s.StartNewSession()
	s.LogReading(sensor.Readings{BK: 2})

	if lines := readLines(t, filepath.Join(dir, "session_09-03-2024.csv")); len(lines) != 2 {
		t.Errorf("first file: got %q", lines)
	}
	if lines := readLines(t, filepath.Join(dir, "session_10-03-2024.csv")); len(lines) != 2 {
		t.Errorf("second file: got %q", lines)
	}
}

func TestCloseDropsReadings(t *testing.T) {
	s, _ := newTestLogger(t, time.Date(2024, 3, 9, 10, 0, 0, 0, time.Local))
	s.StartNewSession()
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.LogReading(sensor.Readings{}); ok {
		t.Error("closed logger should drop readings")
	}
}

func TestConcurrentLogAndRestart(t *testing.T) {
	s, _ := newTestLogger(t, time.Date(2024, 3, 9, 10, 0, 0, 0, time.Local))
	s.StartNewSession()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.LogReading(sensor.Readings{BK: float64(j)})
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 5; j++ {
			s.StartNewSession()
		}
	}()
	wg.Wait()

	lines := readLines(t, s.Path())
	if lines[0] != "timestamp,bk,mlt,hlt" {
		t.Fatalf("header missing: %q", lines[0])
	}
	if got := len(lines) - 1; got != len(s.History()) {
		t.Errorf("file has %d rows, history has %d", got, len(s.History()))
	}
}

func TestRecordJSON(t *testing.T) {
	rec := Record{Timestamp: "2024-03-09T10:00:00", Readings: sensor.Readings{BK: 1.5, MLT: 2, HLT: -1}}
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"timestamp":"2024-03-09T10:00:00","bk":1.5,"mlt":2,"hlt":-1}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestFormatTemp(t *testing.T) {
	tests := map[float64]string{-1: "-1.0", 23.125: "23.125", 0: "0.0", 100: "100.0"}
	for in, want := range tests {
		if got := formatTemp(in); got != want {
			t.Errorf("formatTemp(%v) = %q, want %q", in, got, want)
		}
	}
}
