// Gatehouse - authentication and section access control service.
//
// Gatehouse authenticates credentials against the local store and an
// optional external directory, issues signed session tokens, and computes
// per-section access from role permissions, administrator-configured
// defaults, and per-user overrides. Every terminal authentication outcome
// and policy change lands in the audit trail.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/thornfield/gatehouse/migrations"

	"github.com/thornfield/gatehouse/internal/access"
	"github.com/thornfield/gatehouse/internal/api"
	"github.com/thornfield/gatehouse/internal/audit"
	"github.com/thornfield/gatehouse/internal/auth"
	"github.com/thornfield/gatehouse/internal/directory"
	"github.com/thornfield/gatehouse/internal/infrastructure/config"
	"github.com/thornfield/gatehouse/internal/infrastructure/database"
	"github.com/thornfield/gatehouse/internal/infrastructure/events"
	"github.com/thornfield/gatehouse/internal/infrastructure/logging"
	"github.com/thornfield/gatehouse/internal/infrastructure/metrics"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// defaultConfigPath is used when GATEHOUSE_CONFIG is not set.
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
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gatehouse",
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

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	// Open database and apply migrations
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

	// Repositories
	users := auth.NewUserRepository(db.DB)
	identities := auth.NewIdentityRepository(db.DB)
	auditRepo := audit.NewRepository(db.DB)

	// Seed the initial admin account on an empty database. The generated
	// password appears once in the logs.
	if _, seedErr := auth.SeedAdmin(ctx, users, identities, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding admin account: %w", seedErr)
	}

	// Connect to the MQTT event bus (optional)
	var eventsClient *events.Client
	if cfg.Events.Enabled {
		eventsClient, err = events.Connect(cfg.Events)
		if err != nil {
			return fmt.Errorf("connecting to event bus: %w", err)
		}
		defer func() {
			log.Info("disconnecting from event bus")
			if closeErr := eventsClient.Close(); closeErr != nil {
				log.Error("error closing event bus", "error", closeErr)
			}
		}()
		eventsClient.SetLogger(log.Logger)
		log.Info("event bus connected",
			"broker", fmt.Sprintf("%s:%d", cfg.Events.Host, cfg.Events.Port),
			"client_id", cfg.Events.ClientID,
		)
	} else {
		log.Info("event bus disabled")
	}

	// Audit recorder publishes to the event bus when one is connected.
	var publisher audit.Publisher
	if eventsClient != nil {
		publisher = eventsClient
	}
	recorder := audit.NewRecorder(auditRepo, publisher, log.Logger)

	// Connect to InfluxDB metrics (optional)
	var metricsClient *metrics.Client
	if cfg.Metrics.Enabled {
		metricsClient, err = metrics.Connect(cfg.Metrics)
		if err != nil {
			return fmt.Errorf("connecting to metrics store: %w", err)
		}
		defer func() {
			log.Info("closing metrics connection")
			if closeErr := metricsClient.Close(); closeErr != nil {
				log.Error("error closing metrics", "error", closeErr)
			}
		}()
		metricsClient.SetOnError(func(err error) {
			log.Error("metrics write error", "error", err)
		})
		log.Info("metrics connected",
			"url", cfg.Metrics.URL,
			"org", cfg.Metrics.Org,
			"bucket", cfg.Metrics.Bucket,
		)
	} else {
		log.Info("metrics disabled")
	}

	// Authentication services
	tokens, err := auth.NewTokenService(cfg.Auth.RootKey, cfg.TokenTTL())
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	versions := auth.NewVersionCache(users, cfg.VersionCacheTTL())

	hasher := auth.NewPasswordHasher(
		uint32(cfg.Auth.Argon2.Time),      //nolint:gosec // G115: validated config value
		uint32(cfg.Auth.Argon2.MemoryKiB), //nolint:gosec // G115: validated config value
		uint8(cfg.Auth.Argon2.Threads),    //nolint:gosec // G115: validated config value
	)

	var dir auth.DirectoryAuthenticator
	if cfg.Directory.Enabled {
		dir = directory.NewAuthenticator(cfg.Directory, users, identities, log.Logger)
		log.Info("directory authentication enabled", "url", cfg.Directory.URL)
	} else {
		log.Info("directory authentication disabled")
	}

	resolver := auth.NewStrategyResolver(cfg.Auth.Strategy,
		auth.NewLocalVerifier(identities), dir, recorder, log.Logger)
	log.Info("authentication strategy configured", "strategy", cfg.Auth.Strategy)

	// Section access policy
	accessSvc := access.NewService(
		access.NewOverrideRepository(db.DB),
		access.NewDefaultRepository(db.DB),
		users,
		recorder,
	)

	// HTTP API
	server, err := api.New(api.Deps{
		Config:     cfg.API,
		Logger:     log,
		Users:      users,
		Identities: identities,
		Tokens:     tokens,
		Versions:   versions,
		Resolver:   resolver,
		Hasher:     hasher,
		Access:     accessSvc,
		Audit:      recorder,
		AuditRepo:  auditRepo,
		Metrics:    metricsClient,
		TokenTTL:   cfg.TokenTTL(),
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server listening", "host", cfg.API.Host, "port", cfg.API.Port)

	if err := healthCheck(ctx, db, eventsClient, metricsClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses the GATEHOUSE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GATEHOUSE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies infrastructure connections. The events and metrics
// clients may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, eventsClient *events.Client, metricsClient *metrics.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if eventsClient != nil {
		if err := eventsClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("events: %w", err)
		}
	}

	if metricsClient != nil {
		if err := metricsClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	return nil
}
