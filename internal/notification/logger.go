// File: internal/notification/logger.go
package notification

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/homesentry/notifier/pkg/utils"
)

// Logger handles logging for notification operations
type Logger struct {
	logger   *logrus.Logger
	logLevel logrus.Level
	context  map[string]interface{}
}

// NewLogger creates a new notification logger
func NewLogger(logLevel string) *Logger {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}

	return &Logger{
		logger:   utils.GetLogger(),
		logLevel: level,
		context:  make(map[string]interface{}),
	}
}

// WithContext adds context to the logger
func (nl *Logger) WithContext(context map[string]interface{}) *Logger {
	newLogger := &Logger{
		logger:   nl.logger,
		logLevel: nl.logLevel,
		context:  make(map[string]interface{}),
	}

	for k, v := range nl.context {
		newLogger.context[k] = v
	}

	for k, v := range context {
		newLogger.context[k] = v
	}

	return newLogger
}

// WithField adds a single field to the logger context
func (nl *Logger) WithField(key string, value interface{}) *Logger {
	return nl.WithContext(map[string]interface{}{key: value})
}

// Debug logs a debug message
func (nl *Logger) Debug(message string, context ...map[string]interface{}) {
	nl.log(logrus.DebugLevel, message, context...)
}

// Info logs an info message
func (nl *Logger) Info(message string, context ...map[string]interface{}) {
	nl.log(logrus.InfoLevel, message, context...)
}

// Warn logs a warning message
func (nl *Logger) Warn(message string, context ...map[string]interface{}) {
	nl.log(logrus.WarnLevel, message, context...)
}

// Error logs an error message
func (nl *Logger) Error(message string, context ...map[string]interface{}) {
	nl.log(logrus.ErrorLevel, message, context...)
}

// log is the internal logging method
func (nl *Logger) log(level logrus.Level, message string, context ...map[string]interface{}) {
	if level < nl.logLevel {
		return
	}

	merged := make(map[string]interface{})
	for k, v := range nl.context {
		merged[k] = v
	}
	for _, ctx := range context {
		for k, v := range ctx {
			merged[k] = v
		}
	}
	merged["component"] = "notification"

	entry := nl.logger.WithFields(logrus.Fields(merged))

	switch level {
	case logrus.DebugLevel:
		entry.Debug(message)
	case logrus.InfoLevel:
		entry.Info(message)
	case logrus.WarnLevel:
		entry.Warn(message)
	case logrus.ErrorLevel:
		entry.Error(message)
	}
}

// LogSendAttempt logs a channel delivery attempt
func (nl *Logger) LogSendAttempt(channel, eventType string, priority string) {
	nl.Debug("Delivery attempt started", map[string]interface{}{
		"channel":    channel,
		"event_type": eventType,
		"priority":   priority,
	})
}

// LogSendResult logs the outcome of a channel delivery attempt
func (nl *Logger) LogSendResult(channel string, success bool, duration time.Duration, err error) {
	fields := map[string]interface{}{
		"channel":     channel,
		"success":     success,
		"duration_ms": duration.Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	if success {
		nl.Info("Delivery complete", fields)
	} else {
		nl.Error("Delivery failed", fields)
	}
}
