package ylog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps a configured logrus.Logger. One Logger is created per
// process (supervisor or worker) and threaded down through the service
// descriptors and handlers that need to log.
type Logger struct {
	log *logrus.Logger
}

// New builds a Logger writing JSON lines to w at minimum level lvl. EDS
// workers write to os.Stderr; unless run with -n, cmd/yansd's supervisor
// replaces its output with the dump file from internal/daemonctl via
// SetOutput.
func New(w io.Writer, lvl Level) *Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(lvl.toLogrus())
	l.SetFormatter(&logrus.JSONFormatter{})
	return &Logger{log: l}
}

// Default builds a Logger writing to os.Stderr at InfoLevel.
func Default() *Logger {
	return New(os.Stderr, InfoLevel)
}

// Entry starts a new Entry at lvl with message msg, as a shortcut for
// l.NewEntry(lvl, msg).
func (l *Logger) Entry(lvl Level, msg string) *Entry {
	return l.NewEntry(lvl, msg)
}

// SetOutput redirects subsequent log output, used when the dump file
// opens after the logger was constructed at startup.
func (l *Logger) SetOutput(w io.Writer) {
	l.log.SetOutput(w)
}
