// Package logging provides structured logging for switchbridge.
//
// It wraps log/slog so that every entry carries the service name and
// build version, and every accessory-scoped entry carries the accessory name.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	accLogger := logger.ForAccessory("Desk Lamp")
//	accLogger.Warn("payload rejected", "topic", topic, "error", err)
//
// Never log MQTT passwords, the JWT secret or the InfluxDB token.
// config.AccessoryConfig.String redacts the password.
package logging
