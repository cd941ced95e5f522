package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nemaec/nemaec-engine/pkg/adapters/geocoding"
	"github.com/nemaec/nemaec-engine/pkg/budget"
	"github.com/nemaec/nemaec-engine/pkg/config"
	"github.com/nemaec/nemaec-engine/pkg/database"
	"github.com/nemaec/nemaec-engine/pkg/handlers"
	"github.com/nemaec/nemaec-engine/pkg/logging"
	"github.com/nemaec/nemaec-engine/pkg/middleware"
	"github.com/nemaec/nemaec-engine/pkg/repositories"
	"github.com/nemaec/nemaec-engine/pkg/services"
	"github.com/nemaec/nemaec-engine/pkg/spreadsheet"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

// app holds the wired collaborators and what must be closed on exit.
type app struct {
	facilities repositories.FacilityRepository
	schedules  repositories.ScheduleRepository
	locker     services.ImportLocker
	store      handlers.Pinger
	redis      *redis.Client
	closers    []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp connects storage and Redis according to cfg.
func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{}

	switch cfg.Storage.Driver {
	case config.StorageMemory:
		logger.Warn("Using in-memory storage; data is lost on restart")
		store := repositories.NewStore()
		a.facilities = store.Facilities()
		a.schedules = store.Schedules()
		a.locker = services.NewMemoryImportLocker()
	default:
		logger.Info("Connecting to database",
			zap.String("dsn", logging.SanitizeConnectionString(cfg.Database.ConnectionString())))
		if cfg.Database.AutoMigrate {
			if err := migrate(cfg, logger); err != nil {
				return nil, err
			}
		}
		db, err := database.NewConnection(ctx, &database.Config{
			URL:            cfg.Database.URL(),
			MaxConnections: cfg.Database.MaxConnections,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		a.facilities = repositories.NewFacilityRepository(db)
		a.schedules = repositories.NewScheduleRepository(db)
		a.locker = database.NewFacilityLocker(db)
		a.store = db
	}

	client, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		// Redis only backs caching and notifications; run without it.
		logger.Warn("Redis unavailable, continuing without it", zap.Error(err))
	}
	if client != nil {
		a.redis = client
		a.closers = append(a.closers, func() { _ = client.Close() })
	}

	return a, nil
}

func newIngester(cfg *config.ImportConfig) (*spreadsheet.Ingester, error) {
	mapping := spreadsheet.DefaultColumnMapping()
	if cfg.TemplatePath != "" {
		m, err := spreadsheet.LoadColumnMapping(cfg.TemplatePath)
		if err != nil {
			return nil, err
		}
		mapping = m
	}
	return spreadsheet.NewIngester(mapping, cfg.MaxUploadBytes), nil
}

func newDiffer(cfg *config.ImportConfig) (*budget.Differ, error) {
	tolerance, err := cfg.Tolerance()
	if err != nil {
		return nil, err
	}
	return budget.NewDiffer(tolerance), nil
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	ingester, err := newIngester(&cfg.Import)
	if err != nil {
		return err
	}
	differ, err := newDiffer(&cfg.Import)
	if err != nil {
		return err
	}

	var notifier services.Notifier = services.NewLogNotifier(logger)
	if a.redis != nil {
		redisNotifier := services.NewRedisNotifier(a.redis, cfg.Redis.NotifyChannel, logger)
		// Closers run in reverse, so pending publishes finish before the client closes.
		a.closers = append(a.closers, redisNotifier.Close)
		notifier = redisNotifier
	}

	scheduleService := services.NewScheduleService(
		a.schedules,
		a.facilities,
		ingester,
		budget.NewCalculator(cfg.Import.RollupMaxDepth),
		differ,
		a.locker,
		notifier,
		services.ImportOptions{
			PreviewRows:       cfg.Import.PreviewRows,
			ErrorDisplayLimit: cfg.Import.ErrorDisplayLimit,
		},
		logger,
	)
	facilityService := services.NewFacilityService(a.facilities, a.schedules, logger)
	placeProvider := geocoding.NewProvider(&cfg.Geocoding, a.redis, cfg.Redis.CachePrefix, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, a.store, logger).RegisterRoutes(mux)
	handlers.NewFacilitiesHandler(facilityService, logger).RegisterRoutes(mux)
	handlers.NewSchedulesHandler(scheduleService, cfg.Import.MaxUploadBytes, logger).RegisterRoutes(mux)
	handlers.NewGeocodingHandler(placeProvider, logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	handler := middleware.RequestLogger(logger)(middleware.Recoverer(logger)(mux))

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting nemaec-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version),
			zap.String("env", cfg.Env),
			zap.String("storage", cfg.Storage.Driver),
			zap.String("geocoding", placeProvider.Name()))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
