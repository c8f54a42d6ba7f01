// Package bootstrap assembles the version-control runtime from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/rpattn/rentalvc/internal/config"
	"github.com/rpattn/rentalvc/internal/db"
	"github.com/rpattn/rentalvc/internal/httpapi"
	"github.com/rpattn/rentalvc/internal/ingestion"
	"github.com/rpattn/rentalvc/internal/middleware"
	"github.com/rpattn/rentalvc/internal/rental"
	"github.com/rpattn/rentalvc/internal/repository"
	"github.com/rpattn/rentalvc/internal/versioning"
)

// Runtime holds the wired components shared by the server and the CLI.
type Runtime struct {
	Config   config.Config
	Logger   *logrus.Entry
	Repo     repository.VersionRepository
	Registry *versioning.Registry
	Service  *versioning.Service
	Tracker  *versioning.Tracker
	Hooks    *versioning.Hooks
	Records  *rental.Records
	Importer *ingestion.Service

	conn *db.Connection
}

// New connects the configured store and builds the versioning service on top
// of it. The postgres driver runs pending migrations first.
func New(ctx context.Context, cfg config.Config, logger *logrus.Entry) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	rt := &Runtime{Config: cfg, Logger: logger}

	var (
		tables  []rental.Table
		querier db.DBTX
	)
	switch cfg.Store.Driver {
	case config.DriverMemory:
		rt.Repo = repository.NewMemoryVersionRepository()
		tables = rental.MemoryTables()
	case config.DriverPostgres:
		if err := db.RunMigrations(cfg.Database, logger); err != nil {
			return nil, err
		}
		conn, err := db.NewConnection(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		rt.conn = conn
		rt.Repo = repository.NewVersionRepository(conn.Pool, cfg.Versioning.LockTimeout)
		tables = rental.PostgresTables()
		querier = conn.Pool
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}

	registry, err := versioning.NewRegistry()
	if err != nil {
		rt.Close()
		return nil, err
	}
	if err := rental.Register(registry, tables); err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to register rental entities: %w", err)
	}
	rt.Registry = registry

	rt.Service = versioning.NewService(rt.Repo, registry,
		versioning.WithLogger(logger.WithField("component", "versioning")),
		versioning.WithDefaultBranch(cfg.Versioning.DefaultBranch),
		versioning.WithHistoryLimit(cfg.Versioning.HistoryLimit),
		versioning.WithMaxRetries(cfg.Versioning.MaxRetries),
	)
	rt.Tracker = versioning.NewTracker(registry,
		versioning.WithTrackerSize(cfg.Tracker.Size),
		versioning.WithTrackerTTL(cfg.Tracker.TTL),
		versioning.WithTrackerLogger(logger.WithField("component", "tracker")),
	)
	rt.Hooks = versioning.NewHooks(rt.Service, rt.Tracker)
	rt.Records = rental.NewRecords(querier, tables, rt.Hooks)
	rt.Importer = ingestion.NewService(rt.Records, registry, logger.WithField("component", "import"))

	logger.WithFields(logrus.Fields{
		"store":        cfg.Store.Driver,
		"entity_types": registry.Types(),
	}).Info("version control runtime ready")
	return rt, nil
}

// Close releases the database pool, if any.
func (rt *Runtime) Close() {
	if rt.conn != nil {
		rt.conn.Close()
		rt.conn = nil
	}
}

// Handler returns the HTTP API wrapped in CORS, request logging, actor
// extraction and the per-request version loader.
func (rt *Runtime) Handler() http.Handler {
	api := http.NewServeMux()
	httpapi.NewHandler(rt.Service,
		httpapi.WithRecords(rt.Records),
		httpapi.WithKeepLast(rt.Config.Versioning.KeepLast),
		httpapi.WithLogger(rt.Logger.WithField("component", "http")),
	).Register(api)
	api.Handle("POST /imports/{type}", ingestion.NewHTTPHandler(rt.Importer))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   rt.Config.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
	})

	return corsHandler.Handler(middleware.LoggingMiddleware(rt.Logger)(
		middleware.ActorMiddleware(
			middleware.DataLoaderMiddleware(rt.Repo)(api),
		),
	))
}

// StartCleanup prunes every chain to the configured retention on each tick
// until ctx is cancelled. The returned channel closes when the loop exits.
// A non-positive interval disables the loop.
func (rt *Runtime) StartCleanup(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	if interval <= 0 {
		close(done)
		return done
	}
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := rt.Service.Cleanup(ctx, rt.Config.Versioning.KeepLast); err != nil && ctx.Err() == nil {
					rt.Logger.WithError(err).Error("scheduled version cleanup failed")
				}
			}
		}
	}()
	return done
}
