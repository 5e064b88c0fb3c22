// switchbridge - MQTT smart switch bridge
//
// This is the main entry point for switchbridge. It exposes Tasmota-style
// MQTT switches and outlets as home-automation accessories:
//   - Device reports are reconciled into cached accessory state
//   - User sets are published to the device as power commands
//   - Every change is pushed to WebSocket clients (and optionally InfluxDB)
//
// Configuration is read from configs/config.yaml or $SWITCHBRIDGE_CONFIG.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/switchbridge/internal/accessory"
	"github.com/nerrad567/switchbridge/internal/api"
	"github.com/nerrad567/switchbridge/internal/infrastructure/config"
	"github.com/nerrad567/switchbridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/switchbridge/internal/infrastructure/logging"
	"github.com/nerrad567/switchbridge/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting switchbridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath, "accessories", len(cfg.Accessories))

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Route paho's internal diagnostics through the structured logger.
	if err := mqtt.SetTransportLogger(log.StdLogger(slog.LevelError), log.StdLogger(slog.LevelWarn)); err != nil {
		return fmt.Errorf("configuring MQTT logging: %w", err)
	}

	// WebSocket hub receives every characteristic change.
	hub := api.NewHub(cfg.WebSocket, log)
	notifiers := accessory.Notifiers{hub}
	var telemetry api.HealthChecker

	// Connect to InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection", "dropped_points", influxClient.Dropped())
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		notifiers = append(notifiers, telemetryRecorder(influxClient))
		telemetry = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	registry, err := buildRegistry(cfg, notifiers, log)
	if err != nil {
		return fmt.Errorf("building accessories: %w", err)
	}
	defer func() {
		log.Info("closing accessories")
		if closeErr := registry.Close(); closeErr != nil {
			log.Error("error closing accessories", "error", closeErr)
		}
	}()

	// Sessions connect in the background; an unreachable broker is retried.
	if err := registry.Start(ctx); err != nil {
		return fmt.Errorf("starting accessories: %w", err)
	}
	log.Info("accessories started", "count", registry.Len())

	server, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Security:  cfg.Security,
		Logger:    log,
		Registry:  registry,
		Hub:       hub,
		Telemetry: telemetry,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	if !server.AuthEnabled() {
		log.Warn("security.jwt.secret not set, accessory API is unauthenticated")
	}

	log.Info("initialisation complete, waiting for shutdown signal", "address", server.Addr())

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Accessories (MQTT sessions)
	// 3. InfluxDB (if enabled)

	log.Info("switchbridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SWITCHBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SWITCHBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildRegistry creates one accessory per config entry. Each gets its own
// broker session when the registry is started.
func buildRegistry(cfg *config.Config, notifier accessory.Notifier, log *logging.Logger) (*accessory.Registry, error) {
	registry := accessory.NewRegistry()
	for _, accCfg := range cfg.Accessories {
		a, err := accessory.New(accessory.Options{
			Config:   accCfg,
			Notifier: notifier,
			Logger:   log.ForAccessory(accCfg.Name),
		})
		if err != nil {
			return nil, fmt.Errorf("accessory %q: %w", accCfg.Name, err)
		}
		if err := registry.Add(a); err != nil {
			return nil, err
		}
		log.Debug("accessory configured", "accessory", accCfg.String())
	}
	return registry, nil
}

// telemetryRecorder writes characteristic changes to InfluxDB.
func telemetryRecorder(client *influxdb.Client) accessory.Notifier {
	return accessory.NotifierFunc(func(c accessory.Change) {
		client.WriteCharacteristic(c.Accessory, string(c.Characteristic), string(c.Origin), c.Value, c.Time)
	})
}
