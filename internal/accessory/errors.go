package accessory

import "errors"

// Domain errors for the accessory package.
var (
	// ErrMissingStatusSet is returned when topics.statusSet is empty.
	// The power field name is derived from it, so the accessory cannot be built.
	ErrMissingStatusSet = errors.New("accessory: topics.statusSet is required")

	// ErrInvalidSwitchType is returned for a switchType other than switch or outlet.
	ErrInvalidSwitchType = errors.New("accessory: invalid switch type")

	// ErrInvalidQoS is returned for a qos outside 0..2.
	ErrInvalidQoS = errors.New("accessory: invalid qos")

	// ErrMissingPowerField is returned when a status payload does not carry
	// this accessory's power field. Callers treat it as "not for me".
	ErrMissingPowerField = errors.New("accessory: payload has no power field")

	// ErrInvalidPayload is returned when a status or state payload is not JSON.
	ErrInvalidPayload = errors.New("accessory: invalid payload")

	// ErrHandlerPanic is returned when a topic handler panics.
	ErrHandlerPanic = errors.New("accessory: handler panicked")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("accessory: already started")

	// ErrNotStarted is returned by operations that need the broker session.
	ErrNotStarted = errors.New("accessory: not started")

	// ErrNotFound is returned when no accessory has the requested name.
	ErrNotFound = errors.New("accessory: not found")

	// ErrDuplicateName is returned when registering a second accessory with
	// an existing name.
	ErrDuplicateName = errors.New("accessory: duplicate name")

	// ErrUnsupported is returned when reading a characteristic the
	// accessory does not expose.
	ErrUnsupported = errors.New("accessory: characteristic not supported")
)
