package accessory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/switchbridge/internal/infrastructure/config"
	"github.com/nerrad567/switchbridge/internal/infrastructure/mqtt"
)

// MockTransport implements Transport for testing.
type MockTransport struct {
	mu            sync.Mutex
	opts          mqtt.Options
	published     []mockPublish
	subscriptions []mockSubscription
	handlers      map[string]mqtt.MessageHandler
	connected     bool
	closed        bool
	publishErr    error

	// subscribeDelay stands in for waiting on a SUBACK.
	subscribeDelay time.Duration
	// events records subscribes and publishes in call order.
	events []string
}

type mockPublish struct {
	Topic    string
	Payload  string
	QoS      byte
	Retained bool
}

type mockSubscription struct {
	Topic string
	QoS   byte
}

func NewMockTransport() *MockTransport {
	return &MockTransport{
		connected: true,
		handlers:  make(map[string]mqtt.MessageHandler),
	}
}

// Dial is a Dialer returning the mock and capturing the session options.
func (m *MockTransport) Dial(opts mqtt.Options) (Transport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts = opts
	return m, nil
}

func (m *MockTransport) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	delay := m.subscribeDelay
	m.mu.Unlock()
	time.Sleep(delay)

	m.mu.Lock()
	m.events = append(m.events, "sub "+topic)
	defer m.mu.Unlock()
	m.subscriptions = append(m.subscriptions, mockSubscription{Topic: topic, QoS: qos})
	m.handlers[topic] = handler
	return nil
}

func (m *MockTransport) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.events = append(m.events, "pub "+topic)
	m.published = append(m.published, mockPublish{
		Topic:    topic,
		Payload:  string(payload),
		QoS:      qos,
		Retained: retained,
	})
	return nil
}

func (m *MockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockTransport) HealthCheck(_ context.Context) error {
	if !m.IsConnected() {
		return mqtt.ErrNotConnected
	}
	return nil
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.connected = false
	return nil
}

func (m *MockTransport) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishErr = err
}

func (m *MockTransport) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockPublish(nil), m.published...)
}

func (m *MockTransport) GetSubscriptions() []mockSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockSubscription(nil), m.subscriptions...)
}

func (m *MockTransport) GetEvents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

func (m *MockTransport) ClearPublished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}

// SimulateConnect runs the session's on-connect callback.
func (m *MockTransport) SimulateConnect() {
	m.mu.Lock()
	onConnect := m.opts.OnConnect
	m.mu.Unlock()
	if onConnect != nil {
		onConnect()
	}
}

// SimulateMessage delivers a message to the handler subscribed on topic.
// Messages on topics nobody subscribed to are dropped, as a broker would.
func (m *MockTransport) SimulateMessage(topic, payload string) {
	m.mu.Lock()
	handler, ok := m.handlers[topic]
	m.mu.Unlock()
	if ok {
		_ = handler(topic, []byte(payload))
	}
}

// MockNotifier records characteristic changes.
type MockNotifier struct {
	mu      sync.Mutex
	changes []Change
}

func (n *MockNotifier) CharacteristicChanged(change Change) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, change)
}

func (n *MockNotifier) GetChanges() []Change {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Change(nil), n.changes...)
}

// MockLogger records log entries.
type MockLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *MockLogger) log(level, msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, fmt.Sprintf("%s %s %v", level, msg, args))
}

func (l *MockLogger) Debug(msg string, args ...any) { l.log("DEBUG", msg, args...) }
func (l *MockLogger) Info(msg string, args ...any)  { l.log("INFO", msg, args...) }
func (l *MockLogger) Warn(msg string, args ...any)  { l.log("WARN", msg, args...) }
func (l *MockLogger) Error(msg string, args ...any) { l.log("ERROR", msg, args...) }

// Find returns the entries containing s.
func (l *MockLogger) Find(s string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var found []string
	for _, e := range l.entries {
		if strings.Contains(e, s) {
			found = append(found, e)
		}
	}
	return found
}

// testAccessoryConfig returns a Sonoff-style accessory with every topic set.
func testAccessoryConfig() config.AccessoryConfig {
	cfg := config.DefaultAccessory()
	cfg.Name = "Desk Lamp"
	cfg.URL = "mqtt://127.0.0.1:1883"
	cfg.Topics = config.TopicsConfig{
		StatusSet: "cmnd/desk/POWER",
		StatusGet: "stat/desk/RESULT",
		StateGet:  "tele/desk/STATE",
	}
	return cfg
}

// startedAccessory builds and starts an accessory on a mock transport.
func startedAccessory(t *testing.T, cfg config.AccessoryConfig) (*Accessory, *MockTransport, *MockNotifier, *MockLogger) {
	t.Helper()

	transport := NewMockTransport()
	notifier := &MockNotifier{}
	logger := &MockLogger{}

	a, err := New(Options{
		Config:   cfg,
		Dial:     transport.Dial,
		Notifier: notifier,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	return a, transport, notifier, logger
}
