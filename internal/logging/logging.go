// Package logging builds the process logger and adapts it to the scanner.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New creates a logger writing to stderr, so stdout stays reserved for the
// scan result. An unknown level falls back to info.
func New(level, format string) *logrus.Logger {
	return NewWithOutput(os.Stderr, level, format)
}

// NewWithOutput is New with an explicit destination
func NewWithOutput(out io.Writer, level, format string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)

	switch strings.ToLower(format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	if level == "" {
		logger.SetLevel(logrus.InfoLevel)
		return logger
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logger.WithError(err).Warn("Invalid log level, defaulting to info")
		logger.SetLevel(logrus.InfoLevel)
		return logger
	}
	logger.SetLevel(parsed)
	return logger
}

// ScanLogger forwards scan progress to a logrus entry.
type ScanLogger struct {
	entry *logrus.Entry
}

// NewScanLogger wraps entry. Tail output lines are logged at info level.
func NewScanLogger(entry *logrus.Entry) *ScanLogger {
	return &ScanLogger{entry: entry}
}

func (l *ScanLogger) LogDebug(msg string) { l.entry.Debug(msg) }
func (l *ScanLogger) LogInfo(msg string)  { l.entry.Info(msg) }
func (l *ScanLogger) LogWarn(msg string)  { l.entry.Warn(msg) }
func (l *ScanLogger) LogError(msg string) { l.entry.Error(msg) }
