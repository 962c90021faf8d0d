package helpers

import (
	"errors"
	"fmt"

	"sjsage522/listingharvester/logger"
	errs "sjsage522/listingharvester/pkg/errors"
)

// LoggerInterface defines the interface for logger implementations
type LoggerInterface interface {
	LogError(source string, err error)
	LogInfo(format string, args ...interface{})
}

// Logger forwards to a structured logger
type Logger struct {
	log *logger.Logger
}

// NewLogger creates a new logger instance. A nil log uses the worker logger.
func NewLogger(log *logger.Logger) *Logger {
	if log == nil {
		log = logger.ForWorker()
	}
	return &Logger{log: log}
}

// LogError logs an error with its source and, for typed errors, its type
func (l *Logger) LogError(source string, err error) {
	event := l.log.Error().Str("source", source).Err(err)
	var ce *errs.CrawlerError
	if errors.As(err, &ce) {
		event = event.Str("error_type", string(ce.Type))
	}
	event.Msg("Harvest failed")
}

// LogInfo logs an informational message
func (l *Logger) LogInfo(format string, args ...interface{}) {
	l.log.Info().Msg(fmt.Sprintf(format, args...))
}
