// Package main is the entry point for the MCP router.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avolkov/mcprouter/internal/config"
	"github.com/avolkov/mcprouter/internal/gateway"
	"github.com/avolkov/mcprouter/internal/health"
	"github.com/avolkov/mcprouter/internal/observability"
	"github.com/avolkov/mcprouter/internal/router"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	registryPath string
	snapshotPath string
	environment  string
	strategy     string
	adminAddr    string
	logLevel     string
	logFormat    string
	reconnect    bool
	showVersion  bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadAndValidateConfig(flags, logger)
	facade := initFacade(cfg, flags, logger)

	run(facade, flags, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	registryPath := flag.String("registry", getEnvOrDefault("MCPROUTER_REGISTRY_PATH", "configs/registry.yaml"),
		"Path to the server registry file")
	snapshotPath := flag.String("snapshot", getEnvOrDefault("MCPROUTER_SNAPSHOT_PATH", ""),
		"Path to a resolved environment snapshot (overrides -registry)")
	environment := flag.String("environment", getEnvOrDefault("MCPROUTER_ENVIRONMENT", "development"),
		"Deployment environment (development, staging, production, test)")
	strategy := flag.String("strategy", getEnvOrDefault("MCPROUTER_STRATEGY", "priority-based"),
		"Load balancing strategy (priority-based, round-robin, least-connections, random)")
	adminAddr := flag.String("admin-addr", getEnvOrDefault("MCPROUTER_ADMIN_ADDR", ":9090"),
		"Admin HTTP listen address")
	logLevel := flag.String("log-level", getEnvOrDefault("MCPROUTER_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("MCPROUTER_LOG_FORMAT", "json"),
		"Log format (json, console)")
	reconnect := flag.Bool("auto-reconnect", true, "Probe offline servers for recovery")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		registryPath: *registryPath,
		snapshotPath: *snapshotPath,
		environment:  *environment,
		strategy:     *strategy,
		adminAddr:    *adminAddr,
		logLevel:     *logLevel,
		logFormat:    *logFormat,
		reconnect:    *reconnect,
		showVersion:  *showVersion,
	}
}

// printVersion prints version information and exits.
func printVersion() {
	fmt.Printf("mcprouter version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// loadAndValidateConfig produces the active environment snapshot, either
// from a prebuilt snapshot file or by resolving the registry against the
// requested environment.
func loadAndValidateConfig(flags cliFlags, logger observability.Logger) *config.EnvironmentConfig {
	logger.Info("starting mcprouter",
		observability.String("version", version),
		observability.String("environment", flags.environment),
	)

	var (
		cfg *config.EnvironmentConfig
		err error
	)

	if flags.snapshotPath != "" {
		cfg, err = config.LoadEnvironmentConfig(flags.snapshotPath)
		if err != nil {
			logger.Fatal("failed to load snapshot", observability.Error(err))
		}
	} else {
		var registry *config.Registry
		registry, err = config.LoadRegistry(flags.registryPath)
		if err != nil {
			logger.Fatal("failed to load registry", observability.Error(err))
		}

		cfg, err = config.Resolve(registry, config.Environment(flags.environment))
		if err != nil {
			logger.Fatal("failed to resolve environment", observability.Error(err))
		}
	}

	if result := config.ValidateConfig(cfg); !result.Valid {
		logger.Fatal("invalid configuration", observability.Error(result.Err()))
	}

	logger.Info("configuration loaded",
		observability.String("environment", string(cfg.Environment)),
		observability.Int("servers", len(cfg.Servers)),
		observability.Int("enabled", len(cfg.EnabledServers())),
	)

	return cfg
}

// initFacade builds the routing facade.
func initFacade(cfg *config.EnvironmentConfig, flags cliFlags, logger observability.Logger) *gateway.Facade {
	facade, err := gateway.New(cfg,
		gateway.WithFacadeLogger(logger),
		gateway.WithStrategy(router.Strategy(flags.strategy)),
		gateway.WithProber(health.NewBreakerProber(health.NewHTTPProber(), health.WithBreakerLogger(logger))),
		gateway.WithAutoReconnect(flags.reconnect),
	)
	if err != nil {
		logger.Fatal("failed to create routing facade", observability.Error(err))
	}
	return facade
}

// run starts monitoring and the admin server, then blocks until shutdown.
func run(facade *gateway.Facade, flags cliFlags, logger observability.Logger) {
	ctx := context.Background()
	facade.Start(ctx)

	admin := gateway.NewAdminServer(facade, logger, flags.adminAddr)
	go func() {
		if err := admin.Start(); err != nil {
			logger.Error("admin server error", observability.Error(err))
		}
	}()

	watcher := startSnapshotWatcher(facade, flags, logger)

	waitForShutdown(facade, admin, watcher, logger)
}

// startSnapshotWatcher hot-reloads the snapshot file when running in
// snapshot mode. Registry mode has no watcher; resolved profiles are
// recomputed only on restart.
func startSnapshotWatcher(facade *gateway.Facade, flags cliFlags, logger observability.Logger) *config.Watcher {
	if flags.snapshotPath == "" {
		return nil
	}

	watcher, err := config.NewWatcher(flags.snapshotPath, func(newCfg *config.EnvironmentConfig) {
		logger.Info("configuration changed, reloading")
		if reloadErr := facade.UpdateConfig(newCfg); reloadErr != nil {
			logger.Error("failed to reload configuration", observability.Error(reloadErr))
		}
	}, config.WithWatcherLogger(logger))
	if err != nil {
		logger.Warn("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(context.Background()); err != nil {
		logger.Warn("failed to start config watcher", observability.Error(err))
		return nil
	}

	return watcher
}

// waitForShutdown waits for a shutdown signal and stops all components.
func waitForShutdown(
	facade *gateway.Facade,
	admin *gateway.AdminServer,
	watcher *config.Watcher,
	logger observability.Logger,
) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", observability.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if watcher != nil {
		_ = watcher.Stop()
	}

	if err := admin.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to stop admin server gracefully", observability.Error(err))
	}

	facade.Stop()
	logger.Info("mcprouter stopped")
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
