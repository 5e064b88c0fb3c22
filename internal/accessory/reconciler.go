package accessory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// markSwitchStatus reads the power field from a status payload and compares
// it with onValue.
//
// The field named key is looked up exactly first, then case-insensitively
// (first match in key order). String values are compared unquoted; other
// JSON values are compared by their literal text, so onValue "1" matches
// {"POWER":1}.
//
// Returns:
//   - bool: whether the device reports on
//   - error: ErrInvalidPayload for non-JSON, ErrMissingPowerField when the
//     payload is not an object or lacks the field
func markSwitchStatus(payload []byte, key, onValue string) (bool, error) {
	if !json.Valid(payload) {
		return false, fmt.Errorf("%w: not valid JSON", ErrInvalidPayload)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return false, ErrMissingPowerField
	}

	raw, ok := fields[key]
	if !ok {
		raw, ok = lookupFold(fields, key)
	}
	if !ok {
		return false, ErrMissingPowerField
	}

	return powerValue(raw) == onValue, nil
}

// lookupFold finds a field whose name matches key ignoring case.
func lookupFold(fields map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		if strings.EqualFold(name, key) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, false
	}
	sort.Strings(names)
	return fields[names[0]], true
}

// powerValue returns the comparable text of a JSON value.
func powerValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

// receiveStatus handles a statusGet report.
func (a *Accessory) receiveStatus(payload []byte) error {
	return a.receivePower(payload)
}

// receiveState handles a stateGet report. Full state reports are device
// originated exactly like status reports and never publish.
func (a *Accessory) receiveState(payload []byte) error {
	return a.receivePower(payload)
}

func (a *Accessory) receivePower(payload []byte) error {
	on, err := markSwitchStatus(payload, a.profile.PowerKey, a.profile.OnValue)
	if errors.Is(err, ErrMissingPowerField) {
		// Another relay's report on a shared topic.
		return nil
	}
	if err != nil {
		return err
	}

	a.ApplyFromDevice(on)
	return nil
}

// receiveActivity handles an activity topic report. The raw payload is
// compared verbatim with the configured activity parameter.
func (a *Accessory) receiveActivity(payload []byte) error {
	active := string(payload) == a.profile.ActivityParameter
	if a.state.setActive(active) {
		a.notify(CharacteristicStatusActive, active, OriginDevice)
	}
	return nil
}
