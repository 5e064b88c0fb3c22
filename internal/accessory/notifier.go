package accessory

import "time"

// Characteristic names a value exposed to the home-automation framework.
type Characteristic string

// Characteristics exposed by an accessory.
const (
	CharacteristicOn           Characteristic = "on"
	CharacteristicOutletInUse  Characteristic = "outletInUse"
	CharacteristicStatusActive Characteristic = "statusActive"
)

// Origin tells where a characteristic change came from.
type Origin string

// Change origins. Only OriginUser changes are published to the device.
const (
	OriginDevice Origin = "device"
	OriginUser   Origin = "user"
)

// Change is one characteristic value pushed to the framework.
type Change struct {
	Accessory      string         `json:"accessory"`
	Characteristic Characteristic `json:"characteristic"`
	Value          bool           `json:"value"`
	Origin         Origin         `json:"origin"`
	Time           time.Time      `json:"time"`
}

// Notifier receives characteristic changes.
// Implementations must not block; they are called from the message path.
type Notifier interface {
	CharacteristicChanged(change Change)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(change Change)

// CharacteristicChanged calls f(change).
func (f NotifierFunc) CharacteristicChanged(change Change) {
	f(change)
}

// Notifiers fans a change out to several notifiers in order.
type Notifiers []Notifier

// CharacteristicChanged forwards change to every non-nil notifier.
func (ns Notifiers) CharacteristicChanged(change Change) {
	for _, n := range ns {
		if n != nil {
			n.CharacteristicChanged(change)
		}
	}
}
