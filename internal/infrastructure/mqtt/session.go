package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Session owns one broker connection for one accessory.
//
// Opening a session never blocks on the broker: the connection is retried in
// the background at a fixed interval and every successful (re)connect
// re-issues the tracked subscriptions before OnConnect runs.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Session struct {
	client   pahomqtt.Client
	clientID string

	// subscriptions tracks topics for re-subscription on reconnect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	connected bool
	closed    bool
	connMu    sync.RWMutex

	onConnect        func()
	onConnectionLost func(err error)
	logger           Logger
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
}

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers of one session are invoked one at a time in arrival order.
// They should not block for extended periods.
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// Open creates a session and starts connecting in the background.
//
// Only invalid options fail here. An unreachable broker is retried every
// second until Close; IsConnected reports the current state.
//
// Returns:
//   - *Session: Session ready for Subscribe and Publish
//   - error: ErrInvalidURL if the broker URL is unusable
func Open(opts Options) (*Session, error) {
	brokerURL, secure, err := normalizeURL(opts.URL)
	if err != nil {
		return nil, err
	}

	clientID := opts.ClientID
	if clientID == "" {
		clientID = newClientID()
	}

	s := &Session{
		clientID:         clientID,
		subscriptions:    make(map[string]subscription),
		onConnect:        opts.OnConnect,
		onConnectionLost: opts.OnConnectionLost,
		logger:           opts.Logger,
	}

	po := buildClientOptions(brokerURL, secure, clientID, opts)
	configureLastWill(po)

	po.SetOnConnectHandler(func(_ pahomqtt.Client) {
		s.handleConnect()
	})

	po.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		s.handleConnectionLost(err)
	})

	po.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		if s.logger != nil {
			s.logger.Info("reconnecting to mqtt broker", "client_id", s.clientID)
		}
	})

	s.client = pahomqtt.NewClient(po)
	token := s.client.Connect()
	go s.awaitConnect(token)

	return s, nil
}

// awaitConnect logs the final outcome of the initial connect token.
// With connect retry enabled it only completes on success or Close.
func (s *Session) awaitConnect(token pahomqtt.Token) {
	token.Wait()
	if err := token.Error(); err != nil && !s.isClosed() && s.logger != nil {
		s.logger.Error("mqtt connect failed", "client_id", s.clientID, "error", err)
	}
}

// handleConnect is called when the connection is established.
func (s *Session) handleConnect() {
	s.connMu.Lock()
	s.connected = true
	s.connMu.Unlock()

	if s.logger != nil {
		s.logger.Info("connected to mqtt broker", "client_id", s.clientID)
	}

	s.restoreSubscriptions()

	if s.onConnect != nil {
		s.onConnect()
	}
}

// handleConnectionLost is called when an established connection drops.
func (s *Session) handleConnectionLost(err error) {
	s.connMu.Lock()
	s.connected = false
	s.connMu.Unlock()

	if s.logger != nil {
		s.logger.Warn("mqtt connection lost", "client_id", s.clientID, "error", err)
	}

	if s.onConnectionLost != nil {
		s.onConnectionLost(err)
	}
}

// restoreSubscriptions subscribes to all tracked topics.
func (s *Session) restoreSubscriptions() {
	s.subMu.RLock()
	subs := make([]subscription, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		subs = append(subs, sub)
	}
	s.subMu.RUnlock()

	for _, sub := range subs {
		token := s.client.Subscribe(sub.topic, sub.qos, s.wrapHandler(sub.handler))
		go s.logTokenError(token, "mqtt resubscribe failed", sub.topic)
	}
}

// ClientID returns the identity presented to the broker.
func (s *Session) ClientID() string {
	return s.clientID
}

// Close disconnects from the broker. A clean disconnect does not trigger
// the last will. Calling Close more than once is a no-op.
func (s *Session) Close() error {
	s.connMu.Lock()
	if s.closed {
		s.connMu.Unlock()
		return nil
	}
	s.closed = true
	s.connected = false
	s.connMu.Unlock()

	s.client.Disconnect(disconnectQuiesce)
	return nil
}

func (s *Session) isClosed() bool {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.closed
}

// HealthCheck verifies the session is connected.
func (s *Session) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if s.isClosed() {
		return ErrClosed
	}
	if !s.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
func (s *Session) IsConnected() bool {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.connected && s.client.IsConnectionOpen()
}

// logTokenError waits for a token in the background and logs a failure.
func (s *Session) logTokenError(token pahomqtt.Token, msg, topic string) {
	if !token.WaitTimeout(publishTimeout) {
		if s.logger != nil {
			s.logger.Warn(msg, "topic", topic, "error", "timeout")
		}
		return
	}
	if err := token.Error(); err != nil && s.logger != nil {
		s.logger.Warn(msg, "topic", topic, "error", err)
	}
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (s *Session) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil && s.logger != nil {
				s.logger.Error("mqtt handler panic recovered",
					"topic", msg.Topic(),
					"panic", r,
				)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil && s.logger != nil {
			s.logger.Warn("mqtt handler returned error",
				"topic", msg.Topic(),
				"error", err,
			)
		}
	}
}

// SetTransportLogger routes the paho library's package-level loggers into
// structured logging, e.g. logger.StdLogger(slog.LevelError). Critical and
// error output share errorLog. Debug output stays disabled. Call it once at
// startup, before any session is opened.
func SetTransportLogger(errorLog, warnLog pahomqtt.Logger) error {
	if errorLog == nil || warnLog == nil {
		return errors.New("mqtt: transport loggers cannot be nil")
	}

	pahomqtt.CRITICAL = errorLog
	pahomqtt.ERROR = errorLog
	pahomqtt.WARN = warnLog
	return nil
}
