// Package logger provides a leveled, tagged logger with key/value fields.
package logger

import (
	"fmt"
	"io"
	"log"
	"strings"
)

type LogLevel int

const (
	LogLevelNone LogLevel = iota
	LogLevelError
	LogLevelWarning
	LogLevelInfo
	LogLevelDebug
)

type Logger struct {
	logger *log.Logger
	level  LogLevel
	tag    string
	fields []field
}

type field struct {
	key   string
	value interface{}
}

func NewLogger(logger *log.Logger, level LogLevel) *Logger {
	return &Logger{
		logger: logger,
		level:  level,
	}
}

// Discard returns a logger that drops everything. Useful for tests.
func Discard() *Logger {
	return NewLogger(log.New(io.Discard, "", 0), LogLevelNone)
}

// WithTag creates a new logger with a tag prefix
func (l *Logger) WithTag(tag string) *Logger {
	return &Logger{
		logger: l.logger,
		level:  l.level,
		tag:    tag,
		fields: l.fields,
	}
}

// With returns a logger that appends the given key/value pairs to every line.
// A trailing key without a value is logged as "key=<missing>".
func (l *Logger) With(kv ...interface{}) *Logger {
	fields := make([]field, len(l.fields), len(l.fields)+len(kv)/2+1)
	copy(fields, l.fields)
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		var value interface{} = "<missing>"
		if i+1 < len(kv) {
			value = kv[i+1]
		}
		fields = append(fields, field{key: key, value: value})
	}
	return &Logger{
		logger: l.logger,
		level:  l.level,
		tag:    l.tag,
		fields: fields,
	}
}

// Level reports the configured level.
func (l *Logger) Level() LogLevel {
	return l.level
}

func (l *Logger) formatMessage(level string, format string) string {
	var b strings.Builder
	if l.tag != "" {
		b.WriteString("[" + l.tag + "] ")
	}
	if level != "" {
		b.WriteString(level + " ")
	}
	b.WriteString(format)
	return b.String()
}

func (l *Logger) output(level string, format string, v ...interface{}) string {
	msg := fmt.Sprintf(l.formatMessage(level, format), v...)
	if len(l.fields) == 0 {
		return msg
	}
	var b strings.Builder
	b.WriteString(msg)
	for _, f := range l.fields {
		b.WriteString(" ")
		b.WriteString(f.key)
		b.WriteString("=")
		b.WriteString(formatValue(f.value))
	}
	return b.String()
}

func formatValue(v interface{}) string {
	s := fmt.Sprint(v)
	if s == "" || strings.ContainsAny(s, " \t\"=") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

func (l *Logger) Debugf(format string, v ...interface{}) {
	if l.level >= LogLevelDebug {
		l.logger.Print(l.output("DEBUG:", format, v...))
	}
}

func (l *Logger) Infof(format string, v ...interface{}) {
	if l.level >= LogLevelInfo {
		l.logger.Print(l.output("", format, v...))
	}
}

// Printf is an alias for Infof for compatibility
func (l *Logger) Printf(format string, v ...interface{}) {
	l.Infof(format, v...)
}

func (l *Logger) Warnf(format string, v ...interface{}) {
	if l.level >= LogLevelWarning {
		l.logger.Print(l.output("WARN:", format, v...))
	}
}

func (l *Logger) Errorf(format string, v ...interface{}) {
	if l.level >= LogLevelError {
		l.logger.Print(l.output("ERROR:", format, v...))
	}
}

func (l *Logger) Fatalf(format string, v ...interface{}) {
	l.logger.Fatal(l.output("FATAL:", format, v...))
}
