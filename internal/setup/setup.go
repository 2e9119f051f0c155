package setup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/obviouslynottop1/snedbot/internal/automod/detector"
	"github.com/obviouslynottop1/snedbot/internal/automod/policy"
	"github.com/obviouslynottop1/snedbot/internal/automod/ratelimit"
	"github.com/obviouslynottop1/snedbot/internal/database"
	"github.com/obviouslynottop1/snedbot/internal/database/migrations"
	"github.com/obviouslynottop1/snedbot/internal/perspective"
	"github.com/obviouslynottop1/snedbot/internal/redis"
	"github.com/obviouslynottop1/snedbot/internal/setup/config"
	"github.com/obviouslynottop1/snedbot/internal/setup/telemetry"
	"github.com/uptrace/bun/migrate"
	"github.com/uptrace/uptrace-go/uptrace"
	"go.uber.org/zap"
)

// ErrPendingMigrations is returned when the database schema is out of date
// and the operator declined to migrate it.
var ErrPendingMigrations = errors.New("database migrations are pending")

// App bundles all core dependencies and services needed by the application.
// Each field represents a major subsystem that needs initialization and cleanup.
type App struct {
	Config         *config.Config      // Application configuration
	Logger         *zap.Logger         // Main application logger
	DBLogger       *zap.Logger         // Database-specific logger
	DB             database.Client     // Database connection pool
	RedisManager   *redis.Manager      // Redis connection manager
	Limiters       *ratelimit.Limiters // Auto-moderation rate limiters
	Policies       *policy.Store       // Cached guild policy resolution
	Classifier     detector.Classifier // Toxicity classifier, nil when not configured
	RequestTimeout time.Duration       // Timeout of outbound Discord requests
	LogManager     *telemetry.Manager  // Log management system
	tracing        bool                // Whether spans are exported
	debugServer    *debugServer        // Loopback pprof server
}

// InitializeApp bootstraps all application dependencies in the correct order,
// ensuring each component has its required dependencies available.
func InitializeApp(ctx context.Context, serviceType telemetry.ServiceType, logDir string) (*App, error) {
	// Load app configuration
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	// Tracing comes first so that loggers can forward errors to it
	tracing := configureTracing(&cfg.Common.Telemetry, serviceType)

	// Logging system is initialized next to capture setup issues
	logManager := telemetry.NewManager(serviceType, logDir, &cfg.Common.Debug)
	if tracing {
		logManager.ForwardErrorsToTracing()
	}

	logger, dbLogger, err := logManager.GetLoggers()
	if err != nil {
		return nil, err
	}

	// Redis manager provides connection pools for various subsystems
	redisManager := redis.NewManager(&cfg.Common.Redis, logger)

	// Initialize database with migration check
	db, err := checkAndRunMigrations(ctx, &cfg.Common.PostgreSQL, dbLogger)
	if err != nil {
		redisManager.Close()
		return nil, err
	}

	limiters, err := newLimiters(&cfg.Bot.Automod, redisManager, logger)
	if err != nil {
		db.Close()
		redisManager.Close()

		return nil, err
	}

	policies := policy.NewStore(
		db.Model().ModConfig(),
		cfg.Bot.Automod.PolicyCacheSize,
		time.Duration(cfg.Bot.Automod.PolicyCacheTTL)*time.Second,
		logger,
	)

	classifier, err := newClassifier(ctx, &cfg.Bot.Perspective, logger)
	if err != nil {
		db.Close()
		redisManager.Close()

		return nil, err
	}

	// Profiling is optional, a busy port only costs the profiles
	var debugSrv *debugServer

	if cfg.Common.Debug.EnablePprof {
		debugSrv, err = startDebugServer(cfg.Common.Debug.PprofPort, logger)
		if err != nil {
			logger.Error("Failed to start pprof server", zap.Error(err))
		}
	}

	// Bundle all initialized components
	return &App{
		Config:         cfg,
		Logger:         logger,
		DBLogger:       dbLogger.Named("database"),
		DB:             db,
		RedisManager:   redisManager,
		Limiters:       limiters,
		Policies:       policies,
		Classifier:     classifier,
		RequestTimeout: serviceType.RequestTimeout(cfg),
		LogManager:     logManager,
		tracing:        tracing,
		debugServer:    debugSrv,
	}, nil
}

// Cleanup ensures graceful shutdown of all components in reverse initialization order.
// Logs but does not fail on cleanup errors to ensure all components get cleanup attempts.
func (s *App) Cleanup(ctx context.Context) {
	if s.debugServer != nil {
		if err := s.debugServer.Shutdown(ctx); err != nil {
			s.Logger.Error("Failed to shutdown pprof server", zap.Error(err))
		}
	}

	// Flush pending spans
	if s.tracing {
		if err := uptrace.Shutdown(ctx); err != nil {
			s.Logger.Error("Failed to shutdown tracing", zap.Error(err))
		}
	}

	// Sync buffered logs before shutdown
	if err := s.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	if err := s.DBLogger.Sync(); err != nil {
		log.Printf("Failed to sync DB logger: %v", err)
	}

	// Close database connections
	if err := s.DB.Close(); err != nil {
		log.Printf("Failed to close database connection: %v", err)
	}

	// Close Redis connections last as other components might need it during cleanup
	s.RedisManager.Close()
}

// configureTracing installs the Uptrace exporter when a DSN is configured.
func configureTracing(cfg *config.Telemetry, serviceType telemetry.ServiceType) bool {
	if cfg.UptraceDSN == "" {
		return false
	}

	uptrace.ConfigureOpentelemetry(
		uptrace.WithDSN(cfg.UptraceDSN),
		uptrace.WithServiceName(cfg.ServiceName+"-"+serviceType.String()),
		uptrace.WithServiceVersion(config.RepositoryVersion),
		uptrace.WithDeploymentEnvironment(cfg.Environment),
	)

	return true
}

// newLimiters creates the auto-moderation rate limiters on the configured bucket store.
func newLimiters(cfg *config.Automod, redisManager *redis.Manager, logger *zap.Logger) (*ratelimit.Limiters, error) {
	switch cfg.RatelimitBackend {
	case config.RatelimitBackendRedis:
		client, err := redisManager.GetClient(redis.RatelimitDBIndex)
		if err != nil {
			return nil, err
		}

		logger.Info("Using Redis for automod rate limits")

		return ratelimit.NewLimiters(ratelimit.NewRedisStore(client)), nil
	default:
		return ratelimit.NewLimiters(ratelimit.NewMemoryStore(ratelimit.Retention)), nil
	}
}

// newClassifier creates the Perspective client. Toxicity checks are turned
// off when no API key is configured.
func newClassifier(ctx context.Context, cfg *config.Perspective, logger *zap.Logger) (detector.Classifier, error) {
	client, err := perspective.NewClient(ctx, perspective.Config{
		APIKey:    cfg.APIKey,
		Languages: cfg.Languages,
		Timeout:   time.Duration(cfg.Timeout) * time.Millisecond,
	}, logger)
	if errors.Is(err, perspective.ErrMissingAPIKey) {
		logger.Info("Perspective API key not configured, toxicity checks are disabled")
		return nil, nil //nolint:nilnil // no classifier is a valid configuration
	}

	if err != nil {
		return nil, err
	}

	return client, nil
}

// checkAndRunMigrations runs database migrations if needed.
func checkAndRunMigrations(ctx context.Context, cfg *config.PostgreSQL, dbLogger *zap.Logger) (database.Client, error) {
	tempDB, err := database.NewConnection(ctx, cfg, dbLogger, false)
	if err != nil {
		return nil, err
	}

	migrator := migrate.NewMigrator(tempDB.DB(), migrations.Migrations)

	ms, err := migrator.MigrationsWithStatus(ctx)
	if err != nil {
		tempDB.Close()
		return nil, fmt.Errorf("failed to check migration status: %w", err)
	}

	if len(ms.Unapplied()) == 0 {
		return tempDB, nil
	}

	log.Println("Database migrations are pending. Would you like to run them now? (y/N)")

	var response string

	_, _ = fmt.Scanln(&response)

	tempDB.Close()

	if response != "y" && response != "Y" {
		return nil, ErrPendingMigrations
	}

	return database.NewConnection(ctx, cfg, dbLogger, true)
}
