// Package main is the entrypoint for the handlerchain server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jose/handlerchain/internal/frameworks/service"
	"github.com/jose/handlerchain/internal/platform/cache"
	"github.com/jose/handlerchain/internal/platform/config"
	"github.com/jose/handlerchain/internal/platform/deps"
	"github.com/jose/handlerchain/internal/platform/http/realip"
	"github.com/jose/handlerchain/internal/platform/http/server"
	"github.com/jose/handlerchain/internal/platform/logutil"
	"github.com/jose/handlerchain/internal/platform/store"

	// Register cache drivers
	_ "github.com/jose/handlerchain/internal/platform/cache/loader"
	// Register store drivers
	_ "github.com/jose/handlerchain/internal/platform/store/loader"
	// Register services and interceptors
	_ "github.com/jose/handlerchain/internal/services/loader"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	modeFlag := flag.String("mode", "", "Operating mode: strict or dev (overrides config)")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	loggingLevel := flag.String("logging-level", "", "Log level: trace, debug, info, warn, error (overrides config)")
	cacheDriver := flag.String("cache-driver", "", "Cache driver: memory or redis (overrides config)")
	storeDriver := flag.String("store-driver", "", "Timing store driver: memory, sqlite or mirror (overrides config)")
	dataDir := flag.String("data-dir", "", "Data directory for file-backed stores (overrides config)")
	flag.Parse()

	// Bootstrap logger for config loading errors (uses default level)
	bootstrapLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Load config with precedence: mode preset -> TOML file -> CLI flags
	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: *configPath,
		ModeFlag:   *modeFlag,
		FlagOverrides: config.FlagOverrides{
			ListenAddr:   listenAddr,
			LoggingLevel: loggingLevel,
			CacheDriver:  cacheDriver,
			StoreDriver:  storeDriver,
			StoreDataDir: dataDir,
		},
		Logger: bootstrapLogger,
	})
	if err != nil {
		bootstrapLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logutil.ParseLevel(cfg.Logging.Level)}))
	slog.SetDefault(logger)

	logger.Info("effective configuration", "config", cfg.Redacted())

	// Passes driver-specific config from [cache.drivers.<driver>] section
	cacheInstance, err := cache.NewFromConfig(cfg.Cache.Driver, cfg.Cache.Drivers)
	if err != nil {
		logger.Error("failed to create cache", "driver", cfg.Cache.Driver, "error", err)
		os.Exit(1)
	}

	storeDriverInstance, err := store.New(&store.DriverConfig{
		Driver:  cfg.Store.Driver,
		DataDir: cfg.Store.DataDir,
		Mirror:  store.MirrorConfig{ExportLimit: cfg.Store.Mirror.ExportLimit},
	})
	if err != nil {
		logger.Error("failed to create store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	initCtx, cancelInit := context.WithTimeout(context.Background(), 10*time.Second)
	err = storeDriverInstance.Init(initCtx)
	cancelInit()
	if err != nil {
		logger.Error("failed to initialize store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	logger.Info("timing store ready", "driver", storeDriverInstance.Name())

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	deps.SetDeps(&deps.Deps{
		Config:  cfg,
		Cache:   cacheInstance,
		Store:   storeDriverInstance,
		Metrics: registry,
		RealIP:  realip.NewTrustedProxies(cfg.Server.TrustedProxies),
	})

	services, err := buildServices(cfg, logger)
	if err != nil {
		logger.Error("failed to build services", "error", err)
		os.Exit(1)
	}

	srv, err := server.New(cfg, logger, services)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("server started, press Ctrl+C to stop")

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shutdownErr := srv.Shutdown(shutdownCtx)
	if err := errors.Join(storeDriverInstance.Close(), cacheInstance.Close()); err != nil {
		logger.Warn("failed to release backends", "error", err)
	}
	if shutdownErr != nil {
		logger.Error("shutdown error", "error", shutdownErr)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// buildServices constructs every core service, plus any other registered
// service that has a [http.services.<name>] section.
func buildServices(cfg *config.Config, logger *slog.Logger) (map[string]service.Service, error) {
	services := make(map[string]service.Service)
	for _, name := range service.RegisteredServices() {
		conf := cfg.BuildServiceConfig(name)
		if conf == nil && !slices.Contains(service.CoreServices, name) {
			logger.Debug("service not configured, skipping", "service", name)
			continue
		}

		newFn := service.Get(name)
		svc, err := newFn(conf, logger.With("service", name))
		if err != nil {
			return nil, fmt.Errorf("service %s: %w", name, err)
		}
		services[name] = svc
	}
	return services, nil
}
