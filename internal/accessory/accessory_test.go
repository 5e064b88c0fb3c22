package accessory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/switchbridge/internal/infrastructure/config"
	"github.com/nerrad567/switchbridge/internal/infrastructure/mqtt"
)

// =============================================================================
// Construction Tests
// =============================================================================

func TestNew_MissingStatusSet(t *testing.T) {
	cfg := testAccessoryConfig()
	cfg.Topics.StatusSet = ""

	_, err := New(Options{Config: cfg})
	if !errors.Is(err, ErrMissingStatusSet) {
		t.Errorf("New() error = %v, want ErrMissingStatusSet", err)
	}
}

func TestStart_PassesSessionOptions(t *testing.T) {
	cfg := testAccessoryConfig()
	cfg.Username = "bridge"
	cfg.Password = "secret"
	cfg.TLSInsecureSkipVerify = false

	_, transport, _, _ := startedAccessory(t, cfg)

	opts := transport.opts
	if opts.URL != cfg.URL {
		t.Errorf("URL = %q, want %q", opts.URL, cfg.URL)
	}
	if opts.Username != "bridge" || opts.Password != "secret" {
		t.Errorf("credentials not passed through: %q/%q", opts.Username, opts.Password)
	}
	if opts.TLSInsecureSkipVerify {
		t.Error("TLSInsecureSkipVerify = true, want false")
	}
	if opts.OnConnect == nil {
		t.Error("OnConnect not set")
	}
}

func TestStart_Twice(t *testing.T) {
	a, _, _, _ := startedAccessory(t, testAccessoryConfig())

	if err := a.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestStart_CancelledContext(t *testing.T) {
	a, err := New(Options{Config: testAccessoryConfig(), Dial: NewMockTransport().Dial})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := a.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Start() error = %v, want context.Canceled", err)
	}
}

func TestStart_DialError(t *testing.T) {
	dialErr := errors.New("bad url")
	a, err := New(Options{
		Config: testAccessoryConfig(),
		Dial: func(mqtt.Options) (Transport, error) {
			return nil, dialErr
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := a.Start(context.Background()); !errors.Is(err, dialErr) {
		t.Errorf("Start() error = %v, want wrapped dial error", err)
	}
}

// =============================================================================
// Subscription Tests
// =============================================================================

func TestStart_SubscribesConfiguredTopics(t *testing.T) {
	_, transport, _, _ := startedAccessory(t, testAccessoryConfig())

	subs := transport.GetSubscriptions()
	want := map[string]bool{"stat/desk/RESULT": true, "tele/desk/STATE": true}
	if len(subs) != len(want) {
		t.Fatalf("subscriptions = %v, want %d", subs, len(want))
	}
	for _, s := range subs {
		if !want[s.Topic] {
			t.Errorf("unexpected subscription %q", s.Topic)
		}
		if s.QoS != 0 {
			t.Errorf("subscription %q QoS = %d, want 0", s.Topic, s.QoS)
		}
	}
}

func TestUnconfiguredActivityTopic(t *testing.T) {
	a, transport, _, _ := startedAccessory(t, testAccessoryConfig())

	for _, s := range transport.GetSubscriptions() {
		if s.Topic == "" {
			t.Error("subscribed to empty activity topic")
		}
	}
	for _, c := range a.Characteristics() {
		if c == CharacteristicStatusActive {
			t.Error("StatusActive exposed without activity topic")
		}
	}
	if _, err := a.StatusActive(); !errors.Is(err, ErrUnsupported) {
		t.Errorf("StatusActive() error = %v, want ErrUnsupported", err)
	}
}

func TestOnlyStatusSetConfigured(t *testing.T) {
	cfg := config.DefaultAccessory()
	cfg.URL = "mqtt://127.0.0.1"
	cfg.Topics.StatusSet = "cmnd/plug/POWER"

	_, transport, _, _ := startedAccessory(t, cfg)

	if subs := transport.GetSubscriptions(); len(subs) != 0 {
		t.Errorf("subscriptions = %v, want none", subs)
	}
}

// =============================================================================
// Reconciliation Tests
// =============================================================================

func TestReceiveStatus_OnOff(t *testing.T) {
	tests := []struct {
		name    string
		onValue string
		payload string
		want    bool
	}{
		{"on", "ON", `{"POWER":"ON"}`, true},
		{"off", "ON", `{"POWER":"OFF"}`, false},
		{"custom vocabulary on", "1", `{"POWER":"1"}`, true},
		{"numeric field", "1", `{"POWER":1}`, true},
		{"case-sensitive value", "ON", `{"POWER":"on"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testAccessoryConfig()
			cfg.OnValue = tt.onValue
			a, transport, _, _ := startedAccessory(t, cfg)

			// Start from the opposite state so "off" is observable.
			a.ApplyFromDevice(!tt.want)
			transport.SimulateMessage("stat/desk/RESULT", tt.payload)

			if got := a.On(); got != tt.want {
				t.Errorf("On() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReceiveStatus_Idempotent(t *testing.T) {
	a, transport, notifier, _ := startedAccessory(t, testAccessoryConfig())

	transport.SimulateMessage("stat/desk/RESULT", `{"POWER":"ON"}`)
	transport.SimulateMessage("stat/desk/RESULT", `{"POWER":"ON"}`)

	if !a.On() {
		t.Error("On() = false, want true")
	}
	if pubs := transport.GetPublished(); len(pubs) != 0 {
		t.Errorf("published %v, want nothing", pubs)
	}
	if changes := notifier.GetChanges(); len(changes) != 1 {
		t.Errorf("changes = %d, want 1", len(changes))
	}
}

func TestDeviceReports_NeverPublish(t *testing.T) {
	cfg := testAccessoryConfig()
	cfg.ActivityTopic = "tele/desk/LWT"
	cfg.ActivityParameter = "Online"
	_, transport, notifier, _ := startedAccessory(t, cfg)

	transport.SimulateMessage("stat/desk/RESULT", `{"POWER":"ON"}`)
	transport.SimulateMessage("tele/desk/STATE", `{"POWER":"OFF"}`)
	transport.SimulateMessage("tele/desk/STATE", `{"POWER":"ON"}`)
	transport.SimulateMessage("tele/desk/LWT", "Online")

	if pubs := transport.GetPublished(); len(pubs) != 0 {
		t.Errorf("device reports published %v, want nothing", pubs)
	}
	for _, c := range notifier.GetChanges() {
		if c.Origin != OriginDevice {
			t.Errorf("change %+v origin = %q, want device", c, c.Origin)
		}
	}
}

func TestReceiveStatus_UnknownFieldIgnored(t *testing.T) {
	a, transport, notifier, logger := startedAccessory(t, testAccessoryConfig())
	a.ApplyFromDevice(true)

	transport.SimulateMessage("stat/desk/RESULT", `{"OTHER":"OFF"}`)
	transport.SimulateMessage("stat/desk/RESULT", `{"POWER2":"OFF"}`)

	if !a.On() {
		t.Error("On() = false, want unchanged true")
	}
	if changes := notifier.GetChanges(); len(changes) != 1 {
		t.Errorf("changes = %d, want only the initial apply", len(changes))
	}
	if found := logger.Find("failed to handle message"); len(found) != 0 {
		t.Errorf("unknown field logged as failure: %v", found)
	}
}

func TestReceiveStatus_MultiRelay(t *testing.T) {
	relay1 := testAccessoryConfig()
	relay1.Name = "Relay 1"
	relay1.Topics.StatusSet = "cmnd/dual/POWER1"
	relay1.Topics.StatusGet = "stat/dual/RESULT"

	relay2 := relay1
	relay2.Name = "Relay 2"
	relay2.Topics.StatusSet = "cmnd/dual/POWER2"

	a1, t1, _, _ := startedAccessory(t, relay1)
	a2, t2, _, _ := startedAccessory(t, relay2)

	payload := `{"POWER2":"ON"}`
	t1.SimulateMessage("stat/dual/RESULT", payload)
	t2.SimulateMessage("stat/dual/RESULT", payload)

	if a1.On() {
		t.Error("relay 1 On() = true, want false")
	}
	if !a2.On() {
		t.Error("relay 2 On() = false, want true")
	}
}

func TestMalformedJSON_DoesNotBreakRouting(t *testing.T) {
	a, transport, _, logger := startedAccessory(t, testAccessoryConfig())

	transport.SimulateMessage("stat/desk/RESULT", `{not json`)

	found := logger.Find("failed to handle message")
	if len(found) != 1 {
		t.Fatalf("failure log entries = %v, want 1", found)
	}
	if logger.Find("{not json") == nil {
		t.Error("raw payload missing from failure log")
	}

	transport.SimulateMessage("tele/desk/STATE", `{"POWER":"ON"}`)
	if !a.On() {
		t.Error("On() = false after valid stateGet report, want true")
	}
}

func TestHandleMessage_UnknownTopicDropped(t *testing.T) {
	a, _, notifier, logger := startedAccessory(t, testAccessoryConfig())

	if err := a.HandleMessage("some/other/topic", []byte(`{"POWER":"ON"}`)); err != nil {
		t.Errorf("HandleMessage() error = %v", err)
	}
	if a.On() {
		t.Error("On() = true after message on unknown topic")
	}
	if len(notifier.GetChanges()) != 0 || len(logger.Find("failed")) != 0 {
		t.Error("unknown topic produced side effects")
	}
}

// =============================================================================
// Activity Tests
// =============================================================================

func TestReceiveActivity(t *testing.T) {
	cfg := testAccessoryConfig()
	cfg.ActivityTopic = "tele/desk/LWT"
	cfg.ActivityParameter = "Online"
	a, transport, notifier, _ := startedAccessory(t, cfg)

	if !hasSubscription(transport, "tele/desk/LWT") {
		t.Fatal("activity topic not subscribed")
	}

	transport.SimulateMessage("tele/desk/LWT", "Online")
	if active, err := a.StatusActive(); err != nil || !active {
		t.Errorf("StatusActive() = %v, %v; want true, nil", active, err)
	}

	transport.SimulateMessage("tele/desk/LWT", "Offline")
	if active, _ := a.StatusActive(); active {
		t.Error("StatusActive() = true after Offline, want false")
	}

	changes := notifier.GetChanges()
	if len(changes) != 2 {
		t.Fatalf("changes = %v, want 2", changes)
	}
	if changes[0].Characteristic != CharacteristicStatusActive || !changes[0].Value {
		t.Errorf("changes[0] = %+v, want statusActive=true", changes[0])
	}
}

func hasSubscription(m *MockTransport, topic string) bool {
	for _, s := range m.GetSubscriptions() {
		if s.Topic == topic {
			return true
		}
	}
	return false
}

// =============================================================================
// Bridge (get/set) Tests
// =============================================================================

func TestSetOn_Publishes(t *testing.T) {
	cfg := testAccessoryConfig()
	cfg.QoS = 1
	cfg.OnValue = "1"
	cfg.OffValue = "0"
	a, transport, notifier, _ := startedAccessory(t, cfg)

	if err := a.SetOn(true); err != nil {
		t.Fatalf("SetOn(true) error = %v", err)
	}
	if err := a.SetOn(false); err != nil {
		t.Fatalf("SetOn(false) error = %v", err)
	}

	pubs := transport.GetPublished()
	want := []mockPublish{
		{Topic: "cmnd/desk/POWER", Payload: "1", QoS: 1},
		{Topic: "cmnd/desk/POWER", Payload: "0", QoS: 1},
	}
	if len(pubs) != len(want) {
		t.Fatalf("published = %v, want %v", pubs, want)
	}
	for i := range want {
		if pubs[i] != want[i] {
			t.Errorf("published[%d] = %+v, want %+v", i, pubs[i], want[i])
		}
	}

	for _, c := range notifier.GetChanges() {
		if c.Origin != OriginUser {
			t.Errorf("change origin = %q, want user", c.Origin)
		}
	}
}

func TestSetOn_PublishFailureKeepsState(t *testing.T) {
	a, transport, _, _ := startedAccessory(t, testAccessoryConfig())
	transport.SetPublishError(mqtt.ErrNotConnected)

	err := a.SetOn(true)
	if !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("SetOn() error = %v, want ErrNotConnected", err)
	}
	if !a.On() {
		t.Error("On() = false, want recorded true")
	}
}

func TestSetOn_BeforeStart(t *testing.T) {
	a, err := New(Options{Config: testAccessoryConfig()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := a.SetOn(true); !errors.Is(err, ErrNotStarted) {
		t.Errorf("SetOn() error = %v, want ErrNotStarted", err)
	}
}

func TestSet_DeviceOriginDoesNotPublish(t *testing.T) {
	a, transport, _, _ := startedAccessory(t, testAccessoryConfig())

	if err := a.Set(true, OriginDevice); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if !a.On() {
		t.Error("On() = false, want true")
	}
	if pubs := transport.GetPublished(); len(pubs) != 0 {
		t.Errorf("device-origin Set published %v", pubs)
	}

	if err := a.Set(false, OriginUser); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if pubs := transport.GetPublished(); len(pubs) != 1 || pubs[0].Payload != "OFF" {
		t.Errorf("user-origin Set published %v, want one OFF", pubs)
	}
}

func TestOutletInUse(t *testing.T) {
	switchCfg := testAccessoryConfig()
	a, _, _, _ := startedAccessory(t, switchCfg)
	if _, err := a.OutletInUse(); !errors.Is(err, ErrUnsupported) {
		t.Errorf("switch OutletInUse() error = %v, want ErrUnsupported", err)
	}

	outletCfg := testAccessoryConfig()
	outletCfg.SwitchType = config.SwitchTypeOutlet
	o, _, _, _ := startedAccessory(t, outletCfg)
	inUse, err := o.OutletInUse()
	if err != nil || !inUse {
		t.Errorf("outlet OutletInUse() = %v, %v; want true, nil", inUse, err)
	}

	values := o.Values()
	if !values[CharacteristicOutletInUse] {
		t.Error("Values() missing outletInUse=true")
	}
}

func TestEndToEnd_UserSetThenDeviceReport(t *testing.T) {
	cfg := config.DefaultAccessory()
	cfg.URL = "mqtt://127.0.0.1"
	cfg.Topics.StatusSet = "dev/1/power"
	cfg.Topics.StatusGet = "dev/1/status"
	cfg.OnValue = "ON"
	cfg.OffValue = "OFF"
	a, transport, _, _ := startedAccessory(t, cfg)

	if err := a.SetOn(true); err != nil {
		t.Fatalf("SetOn(true) error = %v", err)
	}
	pubs := transport.GetPublished()
	if len(pubs) != 1 || pubs[0].Topic != "dev/1/power" || pubs[0].Payload != "ON" {
		t.Fatalf("published = %v, want one ON to dev/1/power", pubs)
	}

	transport.SimulateMessage("dev/1/status", `{"POWER":"OFF"}`)

	if a.On() {
		t.Error("On() = true after device OFF report, want false")
	}
	if pubs := transport.GetPublished(); len(pubs) != 1 {
		t.Errorf("device report caused publish: %v", pubs)
	}
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestStartupCommandOnEveryConnect(t *testing.T) {
	cfg := testAccessoryConfig()
	cfg.StartCmd = "cmnd/desk/state"
	empty := ""
	cfg.StartParameter = &empty
	_, transport, _, _ := startedAccessory(t, cfg)

	transport.SimulateConnect()
	transport.SimulateConnect()

	pubs := transport.GetPublished()
	if len(pubs) != 2 {
		t.Fatalf("published = %v, want startup command twice", pubs)
	}
	for _, p := range pubs {
		if p.Topic != "cmnd/desk/state" || p.Payload != "" {
			t.Errorf("startup publish = %+v", p)
		}
	}
}

// TestStartupCommandAfterSubscriptions covers a broker that accepts the
// connection while Start is still subscribing: the status dump requested by
// the startup command must not arrive on an unsubscribed topic.
func TestStartupCommandAfterSubscriptions(t *testing.T) {
	cfg := testAccessoryConfig()
	cfg.StartCmd = "cmnd/desk/state"
	empty := ""
	cfg.StartParameter = &empty

	transport := NewMockTransport()
	transport.subscribeDelay = 20 * time.Millisecond
	dial := func(opts mqtt.Options) (Transport, error) {
		go opts.OnConnect()
		return transport.Dial(opts)
	}

	a, err := New(Options{Config: cfg, Dial: dial})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(transport.GetPublished()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	want := []string{"sub stat/desk/RESULT", "sub tele/desk/STATE", "pub cmnd/desk/state"}
	got := transport.GetEvents()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("events = %v, want %v", got, want)
			break
		}
	}
}

func TestStartupCommandRequiresParameter(t *testing.T) {
	cfg := testAccessoryConfig()
	cfg.StartCmd = "cmnd/desk/state"
	_, transport, _, _ := startedAccessory(t, cfg)

	transport.SimulateConnect()

	if pubs := transport.GetPublished(); len(pubs) != 0 {
		t.Errorf("published = %v, want nothing without startParameter", pubs)
	}
}

func TestClose(t *testing.T) {
	a, transport, _, _ := startedAccessory(t, testAccessoryConfig())

	if !a.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := a.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if !transport.closed {
		t.Error("transport not closed")
	}
	if a.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}

	// A reconnect racing Close must not send the startup command.
	transport.SimulateConnect()
}

func TestAccessoriesAreIndependent(t *testing.T) {
	cfgA := testAccessoryConfig()
	cfgB := testAccessoryConfig()
	cfgB.Name = "Heater"

	a, ta, _, _ := startedAccessory(t, cfgA)
	b, _, _, _ := startedAccessory(t, cfgB)

	ta.SimulateMessage("stat/desk/RESULT", `{"POWER":"ON"}`)

	if !a.On() {
		t.Error("a.On() = false, want true")
	}
	if b.On() {
		t.Error("b.On() = true, state leaked between accessories")
	}
}
