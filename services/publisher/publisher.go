package publisher

// ResultKey is the stream field holding a base64 encoded result
const ResultKey = "b64_report"

// Publisher represents a service for publishing harvest results
type Publisher interface {
	// Publish publishes a message under key
	Publish(key string, message []byte) error

	// TrimStreams trims the result stream to the configured maximum length
	TrimStreams() error

	// Close closes the publisher connection
	Close() error
}
