// Package logger provides a small leveled logging facade over logrus,
// shared by every Spark component. Call lines use a bracketed component
// tag (e.g. "[Bridge]") the same way echoryn's pkg/logger is used.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu  sync.RWMutex
	log = newDefault()
)

func newDefault() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// Configure replaces the package logger's level and output destination.
// A zero-value level string is ignored.
func Configure(level string, out io.Writer) error {
	mu.Lock()
	defer mu.Unlock()
	if out != nil {
		log.SetOutput(out)
	}
	if level == "" {
		return nil
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}
	log.SetLevel(lvl)
	return nil
}

func current() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Debug logs a formatted message at debug level.
func Debug(format string, args ...interface{}) { current().Debugf(format, args...) }

// Info logs a formatted message at info level.
func Info(format string, args ...interface{}) { current().Infof(format, args...) }

// Warn logs a formatted message at warn level.
func Warn(format string, args ...interface{}) { current().Warnf(format, args...) }

// Error logs a formatted message at error level.
func Error(format string, args ...interface{}) { current().Errorf(format, args...) }
