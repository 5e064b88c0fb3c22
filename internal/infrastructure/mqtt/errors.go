package mqtt

import "errors"

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when publishing on a session that is not connected.
	ErrNotConnected = errors.New("mqtt: session not connected")

	// ErrInvalidURL is returned when the broker URL cannot be parsed or uses an
	// unsupported scheme.
	ErrInvalidURL = errors.New("mqtt: invalid broker url")

	// ErrPublishFailed is returned when a publish operation is rejected.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned when an empty topic is provided.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrClosed is returned by operations on a session after Close.
	ErrClosed = errors.New("mqtt: session closed")
)
