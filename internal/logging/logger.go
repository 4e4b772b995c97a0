// Package logging provides structured logging for the Duet client core.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	// global logger instance
	global *logrus.Logger
	once   sync.Once
)

// Init initializes the global logger with the given output and minimum level.
// Level strings follow logrus ("debug", "info", "warn", "error").
func Init(out io.Writer, level string) {
	once.Do(func() {
		global = newLogger(out, level)
	})
}

// Get returns the global logger instance.
func Get() *logrus.Logger {
	if global == nil {
		Init(os.Stdout, "info")
	}
	return global
}

func newLogger(out io.Writer, level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.JSONFormatter{})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.SetLevel(parsed)
	return l
}

// Fields aliases logrus.Fields for call sites.
type Fields = logrus.Fields

// Convenience functions using the global logger.

func Debug(message string, fields ...Fields) {
	withFields(fields).Debug(message)
}

func Info(message string, fields ...Fields) {
	withFields(fields).Info(message)
}

func Warn(message string, fields ...Fields) {
	withFields(fields).Warn(message)
}

func Error(message string, err error, fields ...Fields) {
	entry := withFields(fields)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(message)
}

// withFields merges the variadic field maps into a single entry.
func withFields(fields []Fields) *logrus.Entry {
	entry := logrus.NewEntry(Get())
	for _, f := range fields {
		entry = entry.WithFields(f)
	}
	return entry
}
