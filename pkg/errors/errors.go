package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNavigation represents a target page that could not be loaded
	ErrorTypeNavigation ErrorType = "navigation"
	// ErrorTypeNoContent represents a page where no ad appeared before the first-content timeout
	ErrorTypeNoContent ErrorType = "no_content"
	// ErrorTypeRendering represents a rendering session that stopped answering mid-run
	ErrorTypeRendering ErrorType = "rendering"
	// ErrorTypeCancelled represents a run stopped by its caller
	ErrorTypeCancelled ErrorType = "cancelled"
	// ErrorTypeSerialization represents spreadsheet encoding errors
	ErrorTypeSerialization ErrorType = "serialization"
	// ErrorTypeCache represents cache-related errors
	ErrorTypeCache ErrorType = "cache"
	// ErrorTypePublisher represents publisher-related errors
	ErrorTypePublisher ErrorType = "publisher"
	// ErrorTypeQueue represents job queue errors
	ErrorTypeQueue ErrorType = "queue"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// CrawlerError represents a collection-run error
type CrawlerError struct {
	Type    ErrorType
	Source  string
	Message string
	Err     error
	Time    time.Time
}

// Error implements the error interface
func (e *CrawlerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Source, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Source, e.Message)
}

// Unwrap returns the underlying error
func (e *CrawlerError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is retryable
func (e *CrawlerError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeNavigation, ErrorTypeRendering:
		return true
	case ErrorTypeNoContent:
		return false
	default:
		return false
	}
}

// New creates a new CrawlerError
func New(errType ErrorType, source, message string, err error) *CrawlerError {
	return &CrawlerError{
		Type:    errType,
		Source:  source,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

// NewNavigation creates a new navigation failure
func NewNavigation(source, message string, err error) *CrawlerError {
	return New(ErrorTypeNavigation, source, message, err)
}

// NewNoContent creates a new no-content error for the given page
func NewNoContent(source string, timeout time.Duration, err error) *CrawlerError {
	message := fmt.Sprintf("no ad appeared within %v", timeout)
	return New(ErrorTypeNoContent, source, message, err)
}

// NewRendering creates a new rendering error
func NewRendering(source, message string, err error) *CrawlerError {
	return New(ErrorTypeRendering, source, message, err)
}

// NewCancelled creates a new cancellation error
func NewCancelled(source string, err error) *CrawlerError {
	return New(ErrorTypeCancelled, source, "run cancelled", err)
}

// NewSerialization creates a new serialization error
func NewSerialization(message string, err error) *CrawlerError {
	return New(ErrorTypeSerialization, "", message, err)
}

// NewCache creates a new cache error
func NewCache(source, message string, err error) *CrawlerError {
	return New(ErrorTypeCache, source, message, err)
}

// NewPublisher creates a new publisher error
func NewPublisher(source, message string, err error) *CrawlerError {
	return New(ErrorTypePublisher, source, message, err)
}

// NewQueue creates a new queue error
func NewQueue(source, message string, err error) *CrawlerError {
	return New(ErrorTypeQueue, source, message, err)
}

// NewValidation creates a new validation error
func NewValidation(source, message string) *CrawlerError {
	return New(ErrorTypeValidation, source, message, nil)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *CrawlerError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// IsType reports whether any error in err's chain is a CrawlerError of type t
func IsType(err error, t ErrorType) bool {
	var ce *CrawlerError
	if stderrors.As(err, &ce) {
		return ce.Type == t
	}
	return false
}
