package mqtt

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Session constants. Keep-alive, connect timeout and reconnect interval are
// part of the device contract and must not drift.
const (
	// keepAlive is the MQTT keep-alive interval.
	keepAlive = 10 * time.Second

	// connectTimeout bounds a single connection attempt.
	connectTimeout = 30 * time.Second

	// reconnectInterval is the fixed delay between reconnection attempts.
	reconnectInterval = 1 * time.Second

	// protocolVersion selects MQTT 3.1.1.
	protocolVersion = 4

	// subscribeTimeout is the maximum time Subscribe waits for a SUBACK.
	subscribeTimeout = 5 * time.Second

	// publishTimeout bounds the background wait used to log publish failures.
	publishTimeout = 5 * time.Second

	// disconnectQuiesce is the time to wait for pending work on Close.
	disconnectQuiesce = 250 // milliseconds

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// clientIDPrefix prefixes every generated client identity.
	clientIDPrefix = "switchbridge_"

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Last will sent by the broker when the session drops without a DISCONNECT.
const (
	WillTopic   = "WillMsg"
	WillPayload = "Connection Closed abnormally..!"
)

// Options describes one broker session.
type Options struct {
	// URL is the broker URL. Supported schemes: mqtt, tcp, mqtts, ssl, tls, ws, wss.
	// A missing port defaults to 1883, or 8883 for TLS schemes.
	URL string

	// Username and Password are passed through unchanged.
	Username string
	Password string

	// TLSInsecureSkipVerify disables broker certificate verification.
	TLSInsecureSkipVerify bool

	// ClientID overrides the generated client identity. Leave empty in production.
	ClientID string

	// OnConnect runs after every successful connect, including reconnects,
	// once tracked subscriptions have been re-issued.
	OnConnect func()

	// OnConnectionLost runs when an established connection drops.
	OnConnectionLost func(err error)

	// Logger receives transport errors and handler failures. Optional.
	Logger Logger
}

// newClientID returns a random client identity, unique per process start.
func newClientID() string {
	return clientIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// normalizeURL validates the broker URL and fills in the default port.
// It reports whether the URL selects a TLS transport.
func normalizeURL(raw string) (string, bool, error) {
	if raw == "" {
		return "", false, fmt.Errorf("%w: url is empty", ErrInvalidURL)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("%w: %q has no host", ErrInvalidURL, raw)
	}

	scheme := strings.ToLower(u.Scheme)
	var defaultPort string
	secure := false
	switch scheme {
	case "mqtt", "tcp":
		defaultPort = "1883"
	case "mqtts", "ssl", "tls":
		defaultPort = "8883"
		secure = true
	case "ws":
	case "wss":
		secure = true
	default:
		return "", false, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	u.Scheme = scheme

	if defaultPort != "" && u.Port() == "" {
		u.Host = net.JoinHostPort(u.Hostname(), defaultPort)
	}

	return u.String(), secure, nil
}

// buildClientOptions creates paho options for one session.
//
// This configures:
//   - Broker URL and client identity
//   - Passthrough credentials (if provided)
//   - MQTT 3.1.1, clean session, 10s keep-alive, 30s connect timeout
//   - Auto-reconnect and initial connect retry at a fixed 1s interval
//   - Ordered, one-at-a-time message delivery
//   - TLS configuration for secure schemes
func buildClientOptions(brokerURL string, secure bool, clientID string, opts Options) *pahomqtt.ClientOptions {
	po := pahomqtt.NewClientOptions()

	po.AddBroker(brokerURL)
	po.SetClientID(clientID)

	if opts.Username != "" {
		po.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		po.SetPassword(opts.Password)
	}

	po.SetProtocolVersion(protocolVersion)
	po.SetCleanSession(true)
	po.SetKeepAlive(keepAlive)
	po.SetConnectTimeout(connectTimeout)

	// A fixed interval: paho doubles up to MaxReconnectInterval, so pin both.
	po.SetAutoReconnect(true)
	po.SetConnectRetry(true)
	po.SetConnectRetryInterval(reconnectInterval)
	po.SetMaxReconnectInterval(reconnectInterval)

	// Handlers for one session run one at a time, in arrival order.
	po.SetOrderMatters(true)

	if secure {
		po.SetTLSConfig(&tls.Config{
			MinVersion:         tlsMinVersion,
			InsecureSkipVerify: opts.TLSInsecureSkipVerify, //nolint:gosec // Opt-out configured per accessory
		})
	}

	return po
}

// configureLastWill sets the static last will message.
// QoS 0, not retained.
func configureLastWill(po *pahomqtt.ClientOptions) {
	po.SetWill(WillTopic, WillPayload, 0, false)
}
