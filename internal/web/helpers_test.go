package web

import (
	"io"
	"log"
)

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

func newStdLogger(w io.Writer) *log.Logger {
	return log.New(w, "", 0)
}
