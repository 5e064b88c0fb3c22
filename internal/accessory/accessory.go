package accessory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/switchbridge/internal/infrastructure/config"
	"github.com/nerrad567/switchbridge/internal/infrastructure/mqtt"
)

// subscribeQoS is the QoS requested for device report topics.
const subscribeQoS = 0

// Accessory bridges one MQTT smart switch to the framework's accessory model.
//
// Inbound reports are reconciled into a cached DeviceState and pushed to the
// Notifier as device-originated changes. User sets go the other way: they
// update the cache and publish a power command. Device reports never publish,
// which is what keeps the two directions from feeding back into each other.
//
// Thread Safety: All methods are safe for concurrent use. Inbound messages
// are handled one at a time; getters read the cache under a read lock.
type Accessory struct {
	profile Profile
	state   deviceState
	router  router

	dial     Dialer
	notifier Notifier
	logger   Logger

	transport   Transport
	transportMu sync.RWMutex

	started   chan struct{}
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

// Logger is the structured logger used by accessories.
// Satisfied by *logging.Logger and *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Transport is the broker session an accessory talks through.
// *mqtt.Session satisfies it.
type Transport interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
	HealthCheck(ctx context.Context) error
	Close() error
}

// Dialer opens a Transport. The session must call opts.OnConnect after
// every successful (re)connect.
type Dialer func(opts mqtt.Options) (Transport, error)

// DialMQTT opens a real broker session.
func DialMQTT(opts mqtt.Options) (Transport, error) {
	session, err := mqtt.Open(opts)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Options holds configuration for creating an accessory.
type Options struct {
	// Config is the accessory entry with defaults merged.
	Config config.AccessoryConfig

	// Dial opens the broker session. Defaults to DialMQTT.
	Dial Dialer

	// Notifier receives characteristic changes. Optional.
	Notifier Notifier

	// Logger is optional structured logger, already tagged with the accessory name.
	Logger Logger
}

// New builds an accessory. Configuration defects fail here.
// Call Start to open the broker session.
func New(opts Options) (*Accessory, error) {
	profile, err := NewProfile(opts.Config)
	if err != nil {
		return nil, err
	}

	dial := opts.Dial
	if dial == nil {
		dial = DialMQTT
	}

	a := &Accessory{
		profile:  profile,
		dial:     dial,
		notifier: opts.Notifier,
		logger:   opts.Logger,
		started:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	a.router.table = newHandlerTable(profile, a.receiveStatus, a.receiveState, a.receiveActivity)

	return a, nil
}

// Start opens the broker session and subscribes to every configured report
// topic. It does not wait for the broker: an unreachable broker is retried
// by the session and the accessory serves its last known state meanwhile.
func (a *Accessory) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := ErrAlreadyStarted
	a.startOnce.Do(func() {
		err = a.start()
	})
	return err
}

func (a *Accessory) start() error {
	transport, err := a.dial(mqtt.Options{
		URL:                   a.profile.URL,
		Username:              a.profile.Username,
		Password:              a.profile.Password,
		TLSInsecureSkipVerify: a.profile.TLSInsecureSkipVerify,
		OnConnect:             a.handleConnect,
		Logger:                a.logger,
	})
	if err != nil {
		return fmt.Errorf("open mqtt session for %q: %w", a.profile.Name, err)
	}

	a.transportMu.Lock()
	a.transport = transport
	a.transportMu.Unlock()

	for _, topic := range a.router.table.Topics() {
		if err := transport.Subscribe(topic, subscribeQoS, a.HandleMessage); err != nil {
			a.logWarn("subscribe failed", "topic", topic, "error", err)
			continue
		}
		a.logDebug("subscribed", "topic", topic)
	}

	// The startup command asks the device for a status dump, so it waits
	// until the report topics are subscribed.
	close(a.started)

	a.logInfo("accessory started",
		"switch_type", string(a.profile.SwitchType),
		"power_key", a.profile.PowerKey,
		"topics", len(a.router.table))

	return nil
}

// handleConnect re-sends the startup command after every (re)connect.
func (a *Accessory) handleConnect() {
	select {
	case <-a.started:
	case <-a.done:
		return
	}
	select {
	case <-a.done:
		return
	default:
	}

	if !a.profile.HasStartCommand() {
		return
	}

	transport := a.getTransport()
	err := transport.Publish(a.profile.StartCmd, []byte(a.profile.StartParameter), a.profile.QoS, false)
	if err != nil {
		a.logWarn("startup command not sent", "topic", a.profile.StartCmd, "error", err)
		return
	}
	a.logDebug("startup command sent", "topic", a.profile.StartCmd)
}

// HandleMessage routes one inbound message. Messages on topics without a
// handler are dropped. Handler failures are logged with the raw payload and
// never propagate, so one bad payload cannot affect other topics.
func (a *Accessory) HandleMessage(topic string, payload []byte) error {
	_, err := a.router.dispatch(topic, payload)
	if err != nil {
		a.logWarn("failed to handle message",
			"topic", topic,
			"payload", string(payload),
			"error", err)
	}
	return nil
}

// On returns the cached switch state.
func (a *Accessory) On() bool {
	return a.state.switchOn()
}

// StatusActive returns the cached activity state.
// Returns ErrUnsupported when no activity topic is configured.
func (a *Accessory) StatusActive() (bool, error) {
	if !a.profile.HasActivity() {
		return false, ErrUnsupported
	}
	return a.state.active(), nil
}

// OutletInUse always reports true for outlets; the device has no in-use
// telemetry. Returns ErrUnsupported for switch-type accessories.
func (a *Accessory) OutletInUse() (bool, error) {
	if !a.profile.IsOutlet() {
		return false, ErrUnsupported
	}
	return true, nil
}

// ApplyFromDevice records a device-reported switch state. It never publishes.
func (a *Accessory) ApplyFromDevice(on bool) {
	if a.state.setSwitch(on) {
		a.notify(CharacteristicOn, on, OriginDevice)
	}
}

// SetOn handles a user-initiated switch change: the state is recorded and
// the matching on/off value is published to statusSet without waiting for
// the broker.
//
// Returns:
//   - error: ErrNotStarted before Start, or the publish error (for example
//     mqtt.ErrNotConnected). The state is recorded either way.
func (a *Accessory) SetOn(on bool) error {
	if a.state.setSwitch(on) {
		a.notify(CharacteristicOn, on, OriginUser)
	}

	transport := a.getTransport()
	if transport == nil {
		return ErrNotStarted
	}

	payload := a.profile.powerPayload(on)
	if err := transport.Publish(a.profile.StatusSet, []byte(payload), a.profile.QoS, false); err != nil {
		return fmt.Errorf("publish power command: %w", err)
	}

	a.logDebug("power command published", "topic", a.profile.StatusSet, "payload", payload)
	return nil
}

// Set is the framework-style setter: device-originated values are applied
// silently, anything else goes through SetOn.
func (a *Accessory) Set(on bool, origin Origin) error {
	if origin == OriginDevice {
		a.ApplyFromDevice(on)
		return nil
	}
	return a.SetOn(on)
}

// Name returns the accessory name.
func (a *Accessory) Name() string {
	return a.profile.Name
}

// Profile returns the resolved profile.
func (a *Accessory) Profile() Profile {
	return a.profile
}

// Topics returns the topics the accessory subscribes to.
func (a *Accessory) Topics() []string {
	return a.router.table.Topics()
}

// Characteristics lists the characteristics the accessory exposes.
func (a *Accessory) Characteristics() []Characteristic {
	chars := []Characteristic{CharacteristicOn}
	if a.profile.IsOutlet() {
		chars = append(chars, CharacteristicOutletInUse)
	}
	if a.profile.HasActivity() {
		chars = append(chars, CharacteristicStatusActive)
	}
	return chars
}

// Values returns a snapshot of every exposed characteristic.
func (a *Accessory) Values() map[Characteristic]bool {
	values := map[Characteristic]bool{
		CharacteristicOn: a.On(),
	}
	if inUse, err := a.OutletInUse(); err == nil {
		values[CharacteristicOutletInUse] = inUse
	}
	if active, err := a.StatusActive(); err == nil {
		values[CharacteristicStatusActive] = active
	}
	return values
}

// IsConnected reports whether the broker session is up.
func (a *Accessory) IsConnected() bool {
	transport := a.getTransport()
	return transport != nil && transport.IsConnected()
}

// HealthCheck checks the broker session.
func (a *Accessory) HealthCheck(ctx context.Context) error {
	transport := a.getTransport()
	if transport == nil {
		return ErrNotStarted
	}
	return transport.HealthCheck(ctx)
}

// Close disconnects the broker session. Safe to call more than once.
func (a *Accessory) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.done)
		if transport := a.getTransport(); transport != nil {
			err = transport.Close()
		}
		a.logInfo("accessory closed")
	})
	return err
}

func (a *Accessory) getTransport() Transport {
	a.transportMu.RLock()
	defer a.transportMu.RUnlock()
	return a.transport
}

func (a *Accessory) notify(c Characteristic, value bool, origin Origin) {
	if a.notifier == nil {
		return
	}
	a.notifier.CharacteristicChanged(Change{
		Accessory:      a.profile.Name,
		Characteristic: c,
		Value:          value,
		Origin:         origin,
		Time:           time.Now(),
	})
}

func (a *Accessory) logDebug(msg string, keysAndValues ...any) {
	if a.logger != nil {
		a.logger.Debug(msg, keysAndValues...)
	}
}

func (a *Accessory) logInfo(msg string, keysAndValues ...any) {
	if a.logger != nil {
		a.logger.Info(msg, keysAndValues...)
	}
}

func (a *Accessory) logWarn(msg string, keysAndValues ...any) {
	if a.logger != nil {
		a.logger.Warn(msg, keysAndValues...)
	}
}
