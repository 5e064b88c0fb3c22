package mqtt

import (
	"fmt"
)

// Maximum payload size for MQTT messages (1MB).
const maxPayloadSize = 1 << 20

// Publish sends a message without waiting for broker acknowledgment.
//
// The publish is handed to the transport and its outcome is logged in the
// background; callers never block on the broker.
//
// QoS Levels:
//   - 0: At most once (fire and forget)
//   - 1: At least once (may duplicate)
//   - 2: Exactly once
//
// Returns:
//   - error: validation failures, ErrClosed, or ErrNotConnected while the
//     session is down. Nothing is queued for a later reconnect.
//
// Example:
//
//	err := session.Publish("cmnd/sonoff/POWER", []byte("ON"), 0, false)
func (s *Session) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if s.isClosed() {
		return ErrClosed
	}
	if !s.IsConnected() {
		return ErrNotConnected
	}

	token := s.client.Publish(topic, qos, retained, payload)
	go s.logTokenError(token, "mqtt publish failed", topic)

	return nil
}

// PublishString is a convenience method that publishes a string payload.
func (s *Session) PublishString(topic string, payload string, qos byte, retained bool) error {
	return s.Publish(topic, []byte(payload), qos, retained)
}
