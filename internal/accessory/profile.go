package accessory

import (
	"fmt"
	"strings"

	"github.com/nerrad567/switchbridge/internal/infrastructure/config"
)

// SwitchType selects the framework service an accessory is exposed as.
type SwitchType string

// Switch types.
const (
	SwitchTypeSwitch SwitchType = config.SwitchTypeSwitch
	SwitchTypeOutlet SwitchType = config.SwitchTypeOutlet
)

// Profile is the resolved, immutable description of one device.
// It is built once by NewProfile and never mutated afterwards.
type Profile struct {
	URL                   string
	QoS                   byte
	Username              string
	Password              string
	TLSInsecureSkipVerify bool

	OnValue  string
	OffValue string

	StatusSet string
	StatusGet string
	StateGet  string

	ActivityTopic     string
	ActivityParameter string

	StartCmd       string
	StartParameter string
	hasStart       bool

	Name            string
	Manufacturer    string
	Model           string
	SerialNumberMAC string
	SwitchType      SwitchType

	// PowerKey is the final path segment of StatusSet, e.g. "POWER" for
	// "cmnd/sonoff/POWER". Status payloads carry the switch state under it.
	PowerKey string
}

// NewProfile resolves an accessory config entry into a Profile.
//
// Defaults are expected to have been merged already (config.Load does this;
// start from config.DefaultAccessory when building entries in code).
//
// Returns:
//   - Profile: resolved profile
//   - error: ErrMissingStatusSet, ErrInvalidSwitchType or ErrInvalidQoS
func NewProfile(cfg config.AccessoryConfig) (Profile, error) {
	if cfg.Topics.StatusSet == "" {
		return Profile{}, fmt.Errorf("%w (accessory %q)", ErrMissingStatusSet, cfg.Name)
	}

	switchType := SwitchType(cfg.SwitchType)
	if switchType != SwitchTypeSwitch && switchType != SwitchTypeOutlet {
		return Profile{}, fmt.Errorf("%w: %q", ErrInvalidSwitchType, cfg.SwitchType)
	}

	if cfg.QoS < 0 || cfg.QoS > 2 {
		return Profile{}, fmt.Errorf("%w: %d", ErrInvalidQoS, cfg.QoS)
	}

	p := Profile{
		URL:                   cfg.URL,
		QoS:                   byte(cfg.QoS),
		Username:              cfg.Username,
		Password:              cfg.Password,
		TLSInsecureSkipVerify: cfg.TLSInsecureSkipVerify,
		OnValue:               cfg.OnValue,
		OffValue:              cfg.OffValue,
		StatusSet:             cfg.Topics.StatusSet,
		StatusGet:             cfg.Topics.StatusGet,
		StateGet:              cfg.Topics.StateTopic(),
		ActivityTopic:         cfg.ActivityTopic,
		ActivityParameter:     cfg.ActivityParameter,
		StartCmd:              cfg.StartCmd,
		hasStart:              cfg.HasStartCommand(),
		Name:                  cfg.Name,
		Manufacturer:          cfg.Manufacturer,
		Model:                 cfg.Model,
		SerialNumberMAC:       cfg.SerialNumberMAC,
		SwitchType:            switchType,
		PowerKey:              powerKey(cfg.Topics.StatusSet),
	}
	if cfg.StartParameter != nil {
		p.StartParameter = *cfg.StartParameter
	}

	return p, nil
}

// powerKey returns the final path segment of a topic.
func powerKey(statusSet string) string {
	return statusSet[strings.LastIndex(statusSet, "/")+1:]
}

// HasStartCommand reports whether a startup command is published on connect.
func (p Profile) HasStartCommand() bool {
	return p.hasStart
}

// HasActivity reports whether the StatusActive characteristic is exposed.
func (p Profile) HasActivity() bool {
	return p.ActivityTopic != ""
}

// IsOutlet reports whether the accessory is exposed as an outlet.
func (p Profile) IsOutlet() bool {
	return p.SwitchType == SwitchTypeOutlet
}

// powerPayload translates a switch state to the device vocabulary.
func (p Profile) powerPayload(on bool) string {
	if on {
		return p.OnValue
	}
	return p.OffValue
}
