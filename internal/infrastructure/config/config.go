package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for switchbridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Logging     LoggingConfig     `yaml:"logging"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Security    SecurityConfig    `yaml:"security"`
	Accessories []AccessoryConfig `yaml:"accessories"`
}

// Switch types understood by the accessory layer.
const (
	SwitchTypeSwitch = "switch"
	SwitchTypeOutlet = "outlet"
)

// AccessoryConfig describes one MQTT-controlled smart switch.
//
// Keys follow the homebridge accessory block so an existing config.json
// entry can be pasted into the YAML file unchanged (YAML is a JSON superset).
// Fields absent from the file keep the values of DefaultAccessory.
type AccessoryConfig struct {
	// URL is the broker URL, e.g. "mqtt://10.0.0.2:1883" or "mqtts://broker:8883".
	URL string `yaml:"url"`

	// QoS is used for every outbound publish (0, 1, or 2).
	QoS int `yaml:"qos"`

	// Username and Password are passed through to the broker unchanged.
	// WARNING: Never log Password. Use String() for safe logging.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// TLSInsecureSkipVerify disables broker certificate verification for
	// mqtts:// and ssl:// URLs. Default: true.
	TLSInsecureSkipVerify bool `yaml:"tlsInsecureSkipVerify"`

	// OnValue and OffValue are the device's power vocabulary.
	OnValue  string `yaml:"onValue"`
	OffValue string `yaml:"offValue"`

	Topics TopicsConfig `yaml:"topics"`

	// ActivityTopic is optional. When set, its raw payload is compared
	// with ActivityParameter to drive the StatusActive characteristic.
	ActivityTopic     string `yaml:"activityTopic"`
	ActivityParameter string `yaml:"activityParameter"`

	// StartCmd and StartParameter are published on every (re)connect.
	// StartParameter is a pointer so that an explicitly empty payload
	// (a Tasmota state query) can be told apart from an absent one.
	StartCmd       string  `yaml:"startCmd"`
	StartParameter *string `yaml:"startParameter"`

	Name            string `yaml:"name"`
	Manufacturer    string `yaml:"manufacturer"`
	Model           string `yaml:"model"`
	SerialNumberMAC string `yaml:"serialNumberMAC"`

	// SwitchType is "switch" or "outlet".
	SwitchType string `yaml:"switchType"`
}

// TopicsConfig holds the device topic set.
type TopicsConfig struct {
	// StatusSet receives outbound power commands. Required: its final path
	// segment names the power field in status payloads.
	StatusSet string `yaml:"statusSet"`

	// StatusGet carries device status reports.
	StatusGet string `yaml:"statusGet"`

	// StateGet carries full state reports.
	StateGet string `yaml:"stateGet"`

	// LegacyStateGet accepts the capitalised key used by older homebridge configs.
	LegacyStateGet string `yaml:"StateGet"`
}

// StateTopic returns the configured state topic, preferring stateGet over
// the legacy StateGet key.
func (t TopicsConfig) StateTopic() string {
	if t.StateGet != "" {
		return t.StateGet
	}
	return t.LegacyStateGet
}

// DefaultAccessory returns the defaults every accessory entry is merged over.
func DefaultAccessory() AccessoryConfig {
	return AccessoryConfig{
		QoS:                   0,
		TLSInsecureSkipVerify: true,
		OnValue:               "ON",
		OffValue:              "OFF",
		Topics:                TopicsConfig{},
		Name:                  "Sonoff",
		Manufacturer:          "ITEAD",
		Model:                 "sonoff",
		SerialNumberMAC:       "",
		SwitchType:            SwitchTypeSwitch,
	}
}

// UnmarshalYAML decodes an accessory entry over DefaultAccessory, giving a
// shallow field-by-field merge: keys present in the file win, absent keys
// keep their defaults.
func (a *AccessoryConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain AccessoryConfig
	merged := plain(DefaultAccessory())
	if err := value.Decode(&merged); err != nil {
		return err
	}
	*a = AccessoryConfig(merged)
	return nil
}

// HasStartCommand reports whether a startup command should be published on connect.
func (a AccessoryConfig) HasStartCommand() bool {
	return a.StartCmd != "" && a.StartParameter != nil
}

// String returns a string representation with password masked.
// Use this for logging to prevent credential exposure.
func (a AccessoryConfig) String() string {
	password := ""
	if a.Password != "" {
		password = "[REDACTED]"
	}
	return fmt.Sprintf("AccessoryConfig{Name:%q, URL:%q, Username:%q, Password:%s, QoS:%d, StatusSet:%q}",
		a.Name, a.URL, a.Username, password, a.QoS, a.Topics.StatusSet)
}

// MarshalJSON implements json.Marshaler to redact the password in JSON output.
func (a AccessoryConfig) MarshalJSON() ([]byte, error) {
	type redacted AccessoryConfig
	safe := redacted(a)
	if safe.Password != "" {
		safe.Password = "[REDACTED]"
	}
	return json.Marshal(safe)
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
// An empty Secret leaves the accessory API open.
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SWITCHBRIDGE_SECTION_KEY
// For example: SWITCHBRIDGE_API_PORT, SWITCHBRIDGE_JWT_SECRET
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Logging
	if v := os.Getenv("SWITCHBRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// API
	if v := os.Getenv("SWITCHBRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("SWITCHBRIDGE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Security
	if v := os.Getenv("SWITCHBRIDGE_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	// InfluxDB
	if v := os.Getenv("SWITCHBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// MQTT credentials fill accessories that carry none of their own
	username := os.Getenv("SWITCHBRIDGE_MQTT_USERNAME")
	password := os.Getenv("SWITCHBRIDGE_MQTT_PASSWORD")
	for i := range cfg.Accessories {
		if username != "" && cfg.Accessories[i].Username == "" {
			cfg.Accessories[i].Username = username
		}
		if password != "" && cfg.Accessories[i].Password == "" {
			cfg.Accessories[i].Password = password
		}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	errs = append(errs, c.validateAccessories()...)
	errs = append(errs, c.validateLogging()...)

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	const minJWTSecretLength = 32
	if c.Security.JWT.Secret != "" && len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" {
			errs = append(errs, "influxdb.org is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validateAccessories validates every accessory entry.
func (c *Config) validateAccessories() []string {
	var errs []string

	if len(c.Accessories) == 0 {
		errs = append(errs, "at least one accessory is required")
	}

	names := make(map[string]bool)
	for i, acc := range c.Accessories {
		if acc.URL == "" {
			errs = append(errs, fmt.Sprintf("accessories[%d].url is required", i))
		}
		if acc.QoS < 0 || acc.QoS > 2 {
			errs = append(errs, fmt.Sprintf("accessories[%d].qos must be 0, 1, or 2", i))
		}
		if acc.Topics.StatusSet == "" {
			errs = append(errs, fmt.Sprintf("accessories[%d].topics.statusSet is required", i))
		}
		if acc.SwitchType != SwitchTypeSwitch && acc.SwitchType != SwitchTypeOutlet {
			errs = append(errs, fmt.Sprintf("accessories[%d].switchType %q is invalid (use switch or outlet)", i, acc.SwitchType))
		}
		if acc.Name == "" {
			errs = append(errs, fmt.Sprintf("accessories[%d].name is required", i))
		} else if names[acc.Name] {
			errs = append(errs, fmt.Sprintf("accessories[%d].name %q is duplicate", i, acc.Name))
		}
		names[acc.Name] = true
	}

	return errs
}

// validateLogging validates logging settings.
func (c *Config) validateLogging() []string {
	var errs []string

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("logging.level %q is invalid (use debug, info, warn, or error)", c.Logging.Level))
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("logging.format %q is invalid (use json or text)", c.Logging.Format))
	}

	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
