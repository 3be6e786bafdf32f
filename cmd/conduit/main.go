// Conduit Core - Device Tree Connection Orchestrator
//
// This is the main entry point for the Conduit Core application.
// Conduit assembles a hierarchical device tree from configuration,
// connects every device concurrently against MQTT-backed or simulated
// transports, and exposes the tree state over an HTTP API. Connect
// attempts are journalled to SQLite and optionally mirrored to InfluxDB.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	_ "github.com/nerrad567/conduit-core/migrations"

	"github.com/nerrad567/conduit-core/internal/api"
	"github.com/nerrad567/conduit-core/internal/assembly"
	"github.com/nerrad567/conduit-core/internal/device"
	"github.com/nerrad567/conduit-core/internal/infrastructure/config"
	"github.com/nerrad567/conduit-core/internal/infrastructure/database"
	"github.com/nerrad567/conduit-core/internal/infrastructure/logging"
	"github.com/nerrad567/conduit-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/conduit-core/internal/journal"
	"github.com/nerrad567/conduit-core/internal/telemetry"
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

// Journal retention: entries older than this are pruned daily.
const (
	journalRetention     = 30 * 24 * time.Hour
	journalPruneInterval = 24 * time.Hour
)

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
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
	log.Info("starting Conduit Core",
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

	// Open database for the connect journal
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	jrnl := journal.New(db, log)
	monitors := []device.Monitor{jrnl}

	// Connect to the MQTT broker. Skipped entirely in mock mode: the tree
	// is assembled over soft backends and never touches the broker.
	var session *mqtt.Session
	if cfg.MQTT.Enabled && !cfg.Connect.Mock {
		session = mqtt.NewSession(cfg.MQTT, cfg.Site.ID)
		session.SetLogger(log)
		if err := session.Connect(ctx); err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := session.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		session.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		session.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled", "mock", cfg.Connect.Mock)
	}

	// Connect telemetry recorder (optional)
	var recorder *telemetry.Recorder
	if cfg.InfluxDB.Enabled {
		recorder, err = telemetry.Connect(cfg.InfluxDB, cfg.Site.ID)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := recorder.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		recorder.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		monitors = append(monitors, recorder)
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	var monitor device.Monitor = monitors[0]
	if len(monitors) > 1 {
		monitor = device.MultiMonitor(monitors)
	}

	// Mock connects record on controllers held here; the API reuses the
	// same registry so reconnects land on the same bindings.
	var registry *device.MockRegistry
	if cfg.Connect.Mock {
		registry = device.NewMockRegistry()
	}

	// Assemble the device tree
	group, err := assembly.Build(cfg.Tree, assembly.Options{
		Session: session,
		Group: device.GroupOptions{
			Mock:     cfg.Connect.Mock,
			Registry: registry,
			Timeout:  cfg.ConnectTimeout(),
			Logger:   log.Logger,
			Monitor:  monitor,
		},
	})
	if err != nil {
		return fmt.Errorf("assembling device tree: %w", err)
	}
	log.Info("device tree assembled",
		"devices", len(group.Devices()),
		"mock", cfg.Connect.Mock,
	)

	if err := healthCheck(ctx, db, session, recorder); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// Start the HTTP API
	server, err := api.New(api.Deps{
		Config:         cfg.API,
		Logger:         log,
		Group:          group,
		Journal:        jrnl,
		MQTT:           session,
		Version:        version,
		ConnectTimeout: cfg.ConnectTimeout(),
		Mock:           cfg.Connect.Mock,
		Registry:       registry,
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
	log.Info("API server started",
		"addr", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	// Background work: the initial tree connect and the journal prune
	// loop. A failed initial connect is reported but does not abort
	// startup; operators retry individual devices through the API.
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if connectErr := group.Connect(gctx); connectErr != nil {
			log.Error("initial tree connect incomplete", "error", connectErr)
		} else {
			log.Info("device tree connected")
		}
		return nil
	})

	g.Go(func() error {
		return pruneLoop(gctx, jrnl, log)
	})

	log.Info("initialisation complete, waiting for shutdown signal")

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if enabled)
	// 4. Database

	log.Info("Conduit Core stopped")
	return nil
}

// pruneLoop deletes journal entries past the retention window once a day.
// Returns nil when ctx is cancelled.
func pruneLoop(ctx context.Context, jrnl *journal.Journal, log *logging.Logger) error {
	ticker := time.NewTicker(journalPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := jrnl.Prune(ctx, journalRetention)
			if err != nil {
				log.Error("pruning connect journal", "error", err)
				continue
			}
			if n > 0 {
				log.Info("pruned connect journal", "entries", n)
			}
		}
	}
}

// getConfigPath returns the configuration file path.
// Uses CONDUIT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("CONDUIT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// The MQTT session and telemetry recorder may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, session *mqtt.Session, recorder *telemetry.Recorder) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if session != nil {
		if err := session.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if recorder != nil {
		if err := recorder.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
