// Gray Logic AC Bridge - IR air conditioner control over MQTT
//
// This is the main entry point for the AC bridge service. The bridge
// exposes IR-controlled air conditioners as Home Assistant climate entities:
//   - Commands arrive on MQTT (or the REST API) and are resolved to a
//     recorded IR code
//   - Codes are sent through a Zigbee IR blaster via zigbee2mqtt
//   - State is persisted in SQLite and republished on a schedule
//
// Send SIGHUP to reload the device library without restarting.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gray-logic-acbridge/internal/api"
	"github.com/nerrad567/gray-logic-acbridge/internal/bridge"
	"github.com/nerrad567/gray-logic-acbridge/internal/command"
	"github.com/nerrad567/gray-logic-acbridge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-acbridge/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-acbridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-acbridge/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-acbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-acbridge/internal/ircode"
	"github.com/nerrad567/gray-logic-acbridge/internal/state"
	"github.com/nerrad567/gray-logic-acbridge/migrations"
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
	log := logging.Default()
	log.Info("starting AC bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	states := state.NewStore(db.DB)
	if retention := cfg.GetHistoryRetention(); retention > 0 {
		pruned, pruneErr := states.PruneHistory(ctx, retention)
		if pruneErr != nil {
			log.Warn("pruning state history failed", "error", pruneErr)
		} else if pruned > 0 {
			log.Info("state history pruned", "rows", pruned, "retention_days", cfg.Database.HistoryRetentionDays)
		}
	}

	library, err := ircode.OpenLibrary(cfg.Bridge.DevicesFile)
	if err != nil {
		return fmt.Errorf("loading device library: %w", err)
	}
	log.Info("device library loaded",
		"path", cfg.Bridge.DevicesFile,
		"devices", len(library.IDs()),
	)

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	influxClient, err := connectInflux(ctx, cfg, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	adapter := &mqttBridgeAdapter{client: mqttClient}
	qos := mqttClient.QoS()

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	go hub.Run(ctx)

	errs := bridge.NewErrorStatus(adapter, qos)
	errs.SetLogger(log.Component("errors"))
	errs.OnChange(hub.PublishError)

	statePublisher := bridge.NewStatePublisher(adapter, qos)

	dispatcher := command.NewDispatcher(command.Env{
		States:    states,
		Library:   library,
		Transport: bridge.NewZigbeeTransport(adapter, qos),
		Publisher: command.MultiPublisher{statePublisher, hub},
		Errors:    errs,
	})
	dispatcher.SetLogger(log.Component("command"))
	if influxClient != nil {
		dispatcher.SetRecorder(influxRecorder{client: influxClient})
	}

	acBridge, err := bridge.New(bridge.Options{
		Version:          version,
		QoS:              qos,
		DiscoveryEnabled: cfg.Bridge.Discovery.Enabled,
		DiscoveryPrefix:  cfg.Bridge.Discovery.Prefix,
		Intervals: bridge.Intervals{
			Availability: config.Interval(cfg.Bridge.Intervals.Availability),
			State:        config.Interval(cfg.Bridge.Intervals.State),
			Discovery:    config.Interval(cfg.Bridge.Intervals.Discovery),
		},
		MQTT:       adapter,
		Library:    library,
		States:     states,
		Dispatcher: dispatcher,
		Publisher:  statePublisher,
		Errors:     errs,
		Logger:     log.Component("bridge"),
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if startErr := acBridge.Start(ctx); startErr != nil {
		return fmt.Errorf("starting bridge: %w", startErr)
	}
	defer func() {
		log.Info("stopping bridge")
		acBridge.Stop()
	}()
	log.Info("bridge started", "bridge_id", cfg.Bridge.ID)

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer, err = api.New(api.Deps{
			Config:      cfg.API,
			WS:          cfg.WebSocket,
			Security:    cfg.Security,
			Logger:      log.Component("api"),
			Library:     library,
			States:      states,
			Dispatcher:  dispatcher,
			Errors:      errs,
			Version:     version,
			ExternalHub: hub,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	waitForShutdown(ctx, acBridge, log)

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. API server (if enabled)
	// 2. Bridge (publishes offline availability)
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Database

	log.Info("AC bridge stopped")
	return nil
}

// waitForShutdown blocks until ctx is cancelled, reloading the device
// library on every SIGHUP in the meantime.
func waitForShutdown(ctx context.Context, b *bridge.Bridge, log *logging.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			log.Info("SIGHUP received, reloading device library")
			if _, err := b.Reload(ctx); err != nil {
				log.Error("reload failed", "error", err)
			}
		}
	}
}

// connectInflux connects to InfluxDB when enabled. A nil client with a nil
// error means metrics are disabled.
func connectInflux(ctx context.Context, cfg *config.Config, log *logging.Logger) (*influxdb.Client, error) {
	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}

	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	return client, nil
}

// getConfigPath returns the configuration file path.
// Uses ACBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ACBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//   - apiServer: API server to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, apiServer *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	if apiServer != nil {
		if err := apiServer.HealthCheck(ctx); err != nil {
			return fmt.Errorf("api: %w", err)
		}
	}

	return nil
}
