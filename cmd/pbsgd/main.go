// PBSG Core - Push-Button Switch Group service
//
// This is the main entry point for the PBSG Core daemon. PBSG Core
// manages named groups of mutually exclusive push buttons:
//   - At most one button active per group, LIFO history of the rest
//   - Optional default button re-asserted when a group would go dark
//   - Companion switches on MQTT so wall hardware can drive groups
//   - HTTP + WebSocket API for dashboards and automation
//
// The wiring order in run() matters: collaborators (switches,
// publisher, telemetry sink) must be installed on the registry before
// Restore(), because instances only pick up collaborators present at
// creation time.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/switchwork/pbsg-core/migrations"

	"github.com/switchwork/pbsg-core/internal/api"
	"github.com/switchwork/pbsg-core/internal/companion"
	"github.com/switchwork/pbsg-core/internal/infrastructure/config"
	"github.com/switchwork/pbsg-core/internal/infrastructure/database"
	"github.com/switchwork/pbsg-core/internal/infrastructure/logging"
	"github.com/switchwork/pbsg-core/internal/infrastructure/mqtt"
	"github.com/switchwork/pbsg-core/internal/infrastructure/tsdb"
	"github.com/switchwork/pbsg-core/internal/pbsg"
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

// retainedSettleDelay is how long startup waits after subscribing to
// the companion switch topics before restoring groups. The broker
// replays retained switch states asynchronously; restoring too early
// would rebuild against switches that look dark when they are not.
const retainedSettleDelay = 250 * time.Millisecond

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting PBSG Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
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

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Group registry backed by the SQLite journal
	repo := pbsg.NewSQLiteRepository(db.DB)
	registry := pbsg.NewRegistry(repo)
	registry.SetLogger(log)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled, running HTTP-only")
	}

	// Connect to InfluxDB (optional)
	tsdbClient, err := tsdb.Connect(cfg.InfluxDB)
	if err != nil {
		if !errors.Is(err, tsdb.ErrDisabled) {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		log.Info("telemetry disabled")
		tsdbClient = nil
	}
	if tsdbClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := tsdbClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		tsdbClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	// WebSocket hub, created here rather than inside the API server
	// because the attribute fan-out broadcasts through it too.
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	// Companion switches
	switches, mqttSwitches, err := buildSwitches(cfg, mqttClient, registry, log)
	if err != nil {
		return fmt.Errorf("building companion switches: %w", err)
	}
	if mqttSwitches != nil {
		defer func() {
			log.Info("stopping companion switches")
			if closeErr := mqttSwitches.Close(); closeErr != nil {
				log.Error("error closing companion switches", "error", closeErr)
			}
		}()

		// Let retained switch states land before groups rebuild
		// against them.
		select {
		case <-time.After(retainedSettleDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	registry.SetSwitches(companion.AsGroupSwitches(switches))

	// Attribute fan-out: broker topics, WebSocket channels, telemetry
	// and the companion mirror all hang off one publisher.
	registry.SetPublisher(&attributeFanout{
		mqtt:   mqttClient,
		hub:    hub,
		tsdb:   tsdbClient,
		mirror: companion.NewMirror(switches, log),
		qos:    byte(cfg.MQTT.QoS),
		log:    log,
	})
	if tsdbClient != nil {
		registry.SetTransitionSink(&transitionTelemetry{tsdb: tsdbClient})
	}

	// Bring persisted groups back up. Each restore runs a structural
	// rebuild, which is where retained switch positions get adopted.
	if err := registry.Restore(ctx); err != nil {
		return fmt.Errorf("restoring groups: %w", err)
	}
	defer registry.Close()
	log.Info("groups restored", "count", registry.Count())

	// Start API server
	apiServer, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log,
		Groups:      registry,
		Repo:        repo,
		DB:          db,
		MQTT:        mqttClient,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, tsdbClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// API server, registry, companion switches, InfluxDB, MQTT, database.

	log.Info("PBSG Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses PBSG_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("PBSG_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildSwitches constructs the companion switch collection named by
// companion.source. Asking for MQTT switches without a broker falls
// back to memory with a warning rather than failing startup.
func buildSwitches(cfg *config.Config, mqttClient *mqtt.Client, registry *pbsg.Registry, log *logging.Logger) (companion.Switches, *companion.MQTTSwitches, error) {
	source := cfg.Companion.Source
	if source == "mqtt" && mqttClient == nil {
		log.Warn("companion.source is mqtt but MQTT is disabled, using memory switches")
		source = "memory"
	}

	if source != "mqtt" {
		log.Info("companion switches in memory")
		return companion.NewMemory(), nil, nil
	}

	mqttSwitches, err := companion.NewMQTT(companion.MQTTOptions{
		Broker: mqttClient,
		Groups: registry,
		QoS:    byte(cfg.MQTT.QoS),
		Retain: cfg.Companion.Retain,
		Logger: log,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating MQTT switches: %w", err)
	}
	if err := mqttSwitches.Start(); err != nil {
		return nil, nil, fmt.Errorf("starting MQTT switches: %w", err)
	}
	log.Info("companion switches on MQTT", "retain", cfg.Companion.Retain)
	return mqttSwitches, mqttSwitches, nil
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - tsdbClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, tsdbClient *tsdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if tsdbClient != nil {
		if err := tsdbClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// attributeFanout delivers one attribute publication to every observer
// surface: retained broker topics, WebSocket channels, telemetry and
// the companion switch mirror. Any surface may be missing; the rest
// still fire. It runs on the group processor goroutine, so every leg
// must stay non-blocking.
type attributeFanout struct {
	mqtt   *mqtt.Client
	hub    *api.Hub
	tsdb   *tsdb.Client
	mirror *companion.Mirror
	qos    byte
	log    *logging.Logger
	topics mqtt.Topics
}

// PublishAttribute implements pbsg.AttributePublisher.
func (f *attributeFanout) PublishAttribute(instance, attribute string, value any) {
	// Broker: retained, so late subscribers see current state.
	if f.mqtt != nil {
		payload, err := json.Marshal(value)
		if err != nil {
			f.log.Error("failed to encode attribute",
				"instance", instance, "attribute", attribute, "error", err)
		} else if pubErr := f.mqtt.Publish(f.topics.GroupAttribute(instance, attribute), payload, f.qos, true); pubErr != nil {
			f.log.Warn("failed to publish attribute",
				"instance", instance, "attribute", attribute, "error", pubErr)
		}
	}

	// WebSocket: one channel per attribute.
	if f.hub != nil {
		f.hub.Broadcast("pbsg."+attribute+"_changed", map[string]any{
			"group":     instance,
			"attribute": attribute,
			"value":     value,
		})
	}

	// Telemetry projections for the scalar attributes.
	if f.tsdb != nil {
		switch attribute {
		case pbsg.AttrActive:
			if active, ok := value.(string); ok {
				f.tsdb.WriteActiveState(instance, active)
			}
		case pbsg.AttrButtonCount:
			if count, ok := value.(int); ok {
				f.tsdb.WriteButtonCount(instance, count)
			}
		}
	}

	// Companion switches follow the full state snapshot.
	if f.mirror != nil {
		f.mirror.Apply(instance, attribute, value)
	}
}

// transitionTelemetry forwards journalled transitions to the
// time-series store.
type transitionTelemetry struct {
	tsdb *tsdb.Client
}

// RecordTransition implements pbsg.TransitionSink. The underlying
// write API buffers and flushes in the background, so this never
// blocks the group processor.
func (t *transitionTelemetry) RecordTransition(tr pbsg.Transition) {
	t.tsdb.WriteTransition(tr.Instance, tr.Kind, tr.Rule, tr.Button, tr.Position)
}
