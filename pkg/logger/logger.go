// Package logger provides the runtime's structured logging wrapper.
package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus entry, scoped to a set of correlation fields
// (endpoint name, grain id, rpc id, ...).
type Logger struct {
	entry *logrus.Entry
}

var base = logrus.New()

// Default is the package-level logger used by the free functions below.
var Default = &Logger{entry: logrus.NewEntry(base)}

func init() {
	base.SetOutput(os.Stdout)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// New returns a fresh logger with no fields set.
func New() *Logger {
	return &Logger{entry: logrus.NewEntry(base)}
}

// WithField returns a logger scoped to one additional correlation field.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithFields returns a logger scoped to several additional correlation fields.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *Logger) Info(format string, v ...any) {
	l.entry.Infof(format, v...)
}

func (l *Logger) Error(format string, v ...any) {
	l.entry.Errorf(format, v...)
}

func (l *Logger) Debug(format string, v ...any) {
	l.entry.Debugf(format, v...)
}

func (l *Logger) Warn(format string, v ...any) {
	l.entry.Warnf(format, v...)
}

func Info(format string, v ...any) {
	Default.Info(format, v...)
}

func Error(format string, v ...any) {
	Default.Error(format, v...)
}

func Debug(format string, v ...any) {
	Default.Debug(format, v...)
}

func Warn(format string, v ...any) {
	Default.Warn(format, v...)
}

// SetLevel adjusts the package-wide logrus level (e.g. for -v CLI flags).
func SetLevel(level logrus.Level) {
	base.SetLevel(level)
}
