// Package logging provides the run-scoped debug log for lightkeeper components.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Logger writes structured entries for one component of a run.
// All loggers created by NewLogger in a process share the run's log file
// in ~/.lightkeeper/logs/.
type Logger struct {
	runID     string
	component string
	file      *os.File
	entry     *logrus.Entry
	logPath   string
	closeOnce sync.Once
}

var (
	// Global run ID for the current execution
	runID     string
	runIDOnce sync.Once

	// logDir is the directory where log files are stored
	logDir string

	initOnce sync.Once
	initErr  error
)

func getRunID() string {
	runIDOnce.Do(func() {
		runID = uuid.New().String()
	})
	return runID
}

// initLogDirectory ensures the log directory exists
func initLogDirectory() error {
	initOnce.Do(func() {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			initErr = fmt.Errorf("failed to get home directory: %w", err)
			return
		}

		logDir = filepath.Join(homeDir, ".lightkeeper", "logs")
		if err := os.MkdirAll(logDir, 0750); err != nil {
			initErr = fmt.Errorf("failed to create log directory: %w", err)
			return
		}
	})
	return initErr
}

// NewLogger creates a logger for a component writing to
// ~/.lightkeeper/logs/<run-id>-lightkeeper.log.
//
// If the log file cannot be set up, it returns a logger writing to stderr
// along with the error, so callers can warn about the fallback.
func NewLogger(component string) (*Logger, error) {
	if err := initLogDirectory(); err != nil {
		return newFallbackLogger(component, err), err
	}

	id := getRunID()
	logPath := filepath.Join(logDir, fmt.Sprintf("%s-lightkeeper.log", id))

	// Append mode, several components share the file
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return newFallbackLogger(component, fmt.Errorf("failed to open log file: %w", err)), err
	}

	l := newLogger(component, file)
	l.file = file
	l.logPath = logPath
	return l, nil
}

// NewWriterLogger creates a logger writing to w. The caller owns w.
func NewWriterLogger(component string, w io.Writer) *Logger {
	return newLogger(component, w)
}

// Discard returns a logger that drops every entry.
func Discard() *Logger {
	return newLogger("discard", io.Discard)
}

func newFallbackLogger(component string, err error) *Logger {
	l := newLogger(component, os.Stderr)
	l.Warnf("Failed to initialize file logging: %v", err)
	l.Warnf("Falling back to stderr logging")
	return l
}

func newLogger(component string, w io.Writer) *Logger {
	base := logrus.New()
	base.SetOutput(w)
	base.SetLevel(logrus.DebugLevel)
	base.SetFormatter(&logrus.TextFormatter{
		DisableColors:    true,
		FullTimestamp:    true,
		TimestampFormat:  "2006-01-02 15:04:05.000",
		QuoteEmptyFields: true,
	})

	id := getRunID()
	return &Logger{
		runID:     id,
		component: component,
		entry: base.WithFields(logrus.Fields{
			"component": component,
			"run_id":    id,
		}),
	}
}

// WithField returns a logger sharing the output of l with one extra field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		runID:     l.runID,
		component: l.component,
		entry:     l.entry.WithField(key, value),
		logPath:   l.logPath,
	}
}

// Debugf logs a debug-level message
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.entry.Debugf(format, v...)
}

// Infof logs an info-level message
func (l *Logger) Infof(format string, v ...interface{}) {
	l.entry.Infof(format, v...)
}

// Warnf logs a warning-level message
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.entry.Warnf(format, v...)
}

// Errorf logs an error-level message
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.entry.Errorf(format, v...)
}

// RunID returns the run ID attached to every entry
func (l *Logger) RunID() string {
	return l.runID
}

// LogPath returns the path to the log file, empty when not file backed
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close closes the log file. Safe to call multiple times.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}
