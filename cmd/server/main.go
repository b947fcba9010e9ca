// Command server runs the rosterlink sync API: the per-user settings
// document store and the facility adapters thin clients import through.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	appfacility "github.com/rosterlink/backend/internal/application/facility"
	appsettings "github.com/rosterlink/backend/internal/application/settings"
	"github.com/rosterlink/backend/internal/domain/integration"
	"github.com/rosterlink/backend/internal/domain/settings"
	"github.com/rosterlink/backend/internal/infrastructure/auth"
	"github.com/rosterlink/backend/internal/infrastructure/cache"
	"github.com/rosterlink/backend/internal/infrastructure/config"
	"github.com/rosterlink/backend/internal/infrastructure/facility"
	"github.com/rosterlink/backend/internal/infrastructure/logger"
	"github.com/rosterlink/backend/internal/infrastructure/migration"
	"github.com/rosterlink/backend/internal/infrastructure/persistence"
	"github.com/rosterlink/backend/internal/infrastructure/storage"
	"github.com/rosterlink/backend/internal/infrastructure/telemetry"
	"github.com/rosterlink/backend/internal/interfaces/http/middleware"
	"github.com/rosterlink/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	ctx := context.Background()

	// Bootstrap logger for telemetry setup; replaced once the otelzap core exists
	bootLog, err := newLogger(cfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	providers, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
		LogsEnabled:       cfg.Telemetry.LogsEnabled,
	}, bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize telemetry", zap.Error(err))
	}

	log := bootLog
	if cfg.Telemetry.LogsEnabled && providers.Enabled() {
		if log, err = newLogger(cfg, providers.ZapCore(logger.ParseLevel(cfg.Log.Level))); err != nil {
			bootLog.Fatal("Failed to attach telemetry log core", zap.Error(err))
		}
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting rosterlink server",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.PyroscopeAddress,
		ApplicationName: cfg.Telemetry.ServiceName,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.Enabled() {
		providers.EnableSpanProfiles()
	}

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), 200*time.Millisecond)
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	meter := providers.Meter("rosterlink")
	if err := telemetry.InstrumentDB(db.DB, meter, telemetry.DBConfig{
		Tracing: cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		DBName:  cfg.Database.DBName,
	}, log); err != nil {
		log.Fatal("Failed to instrument database", zap.Error(err))
	}
	if err := migrate(db, log); err != nil {
		log.Fatal("Failed to apply migrations", zap.Error(err))
	}

	// Settings store, fronted by the document cache
	docCache, err := cache.NewDocumentCache(ctx, cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(!cfg.App.IsProduction()),
	)
	if err != nil {
		log.Fatal("Failed to initialize settings cache", zap.Error(err))
	}
	var repo settings.Repository = persistence.NewGormSettingsRepository(db.DB)
	repo = cache.NewCachedSettingsRepository(repo, docCache, cfg.Redis.SettingsTTL, log)
	settingsService := appsettings.NewService(repo, settings.DefaultPolicy(), appsettings.ServiceConfig{
		MaxDocumentBytes: cfg.Sync.MaxDocBytes,
	}, log)

	// Facility adapters
	adapters, closeAdapters, err := buildAdapters(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize facility adapters", zap.Error(err))
	}
	defer closeAdapters()

	var serviceOpts []appfacility.ServiceOption
	if providers.Enabled() {
		metrics, err := telemetry.NewFacilityMetrics(telemetry.FacilityMetricsConfig{Meter: meter, Logger: log})
		if err != nil {
			log.Fatal("Failed to create facility metrics", zap.Error(err))
		}
		serviceOpts = append(serviceOpts, appfacility.WithObserver(metrics))
	}
	facilityService := appfacility.NewService(facility.NewRegistry(adapters...), log, serviceOpts...)

	// HTTP
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := middleware.SetupValidator(); err != nil {
		log.Fatal("Failed to register validators", zap.Error(err))
	}

	engine, err := router.NewEngine(router.Dependencies{
		Config:     cfg,
		Logger:     log,
		Tokens:     auth.NewJWTService(cfg.JWT),
		Facilities: facilityService,
		Settings:   settingsService,
		DB:         db,
		Version:    version,
		Meter:      meter,
	})
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Warn("Failed to stop profiler", zap.Error(err))
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Warn("Failed to shut down telemetry", zap.Error(err))
	}
	if err := db.Close(); err != nil {
		log.Warn("Failed to close database", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

func newLogger(cfg *config.Config, extra ...zapcore.Core) (*zap.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}, extra...)
}

func migrate(db *persistence.Database, log *zap.Logger) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	m, err := migration.New(sqlDB, "", log)
	if err != nil {
		return err
	}
	return m.Up()
}

// buildAdapters creates the enabled facility adapters. The returned func
// releases the headless browser, when one was started.
func buildAdapters(cfg *config.Config, log *zap.Logger) ([]integration.FacilityAdapter, func(), error) {
	var (
		adapters []integration.FacilityAdapter
		closers  []func() error
	)
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	opts := []facility.Option{facility.WithLogger(log)}
	if cfg.Archive.Enabled {
		archive, err := storage.NewS3PageArchive(&cfg.Archive, storage.WithLogger(log))
		if err != nil {
			return nil, closeAll, err
		}
		opts = append(opts, facility.WithPageArchive(archive))
	}

	if cfg.Facilities.ResourceAPI.Enabled {
		adapter, err := facility.NewResourceAPIAdapter(facility.NewResourceAPIConfig(cfg.Facilities.ResourceAPI), opts...)
		if err != nil {
			return nil, closeAll, err
		}
		adapters = append(adapters, adapter)
	}

	if sf := cfg.Facilities.Storefront; sf.Enabled {
		storefrontOpts := opts
		if sf.RenderCatalog {
			renderer := facility.NewChromedpRenderer(facility.ChromedpConfig{
				Timeout:   sf.Timeout,
				RemoteURL: sf.ChromeRemoteURL,
				NoSandbox: true,
			}, log)
			closers = append(closers, renderer.Close)
			storefrontOpts = append(append([]facility.Option{}, opts...), facility.WithPageRenderer(renderer))
		}
		adapter, err := facility.NewStorefrontAdapter(facility.NewStorefrontConfig(sf), storefrontOpts...)
		if err != nil {
			return nil, closeAll, err
		}
		adapters = append(adapters, adapter)
	}

	log.Info("Facility adapters ready", zap.Int("count", len(adapters)))
	return adapters, closeAll, nil
}
