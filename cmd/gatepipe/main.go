// Package main is the entry point for the gatepipe gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/calmisko/gatepipe/internal/config"
	"github.com/calmisko/gatepipe/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadAndValidateConfig(flags.configPath, logger)

	app, err := newApplication(cfg, logger)
	if err != nil {
		fatal(logger, "failed to initialize gateway", err)
	}

	run(app, flags.configPath, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("GATEPIPE_CONFIG_PATH", "configs/gatepipe.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("GATEPIPE_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("GATEPIPE_LOG_FORMAT", "json"),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information and exits.
func printVersion() {
	fmt.Printf("gatepipe version %s\n", version)
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
	return logger
}

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig(configPath string, logger observability.Logger) *config.Config {
	logger.Info("starting gatepipe",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fatal(logger, "failed to load configuration", err)
	}

	if err := config.ValidateConfig(cfg); err != nil {
		fatal(logger, "invalid configuration", err)
	}

	logger.Info("configuration loaded",
		observability.Int("routes", len(cfg.Routes)),
		observability.Int("upstreams", len(cfg.Upstreams)),
		observability.Bool("rateLimit", cfg.RateLimit.Enabled),
		observability.Bool("auth", cfg.Auth.Enabled),
		observability.Bool("cache", cfg.Cache.Enabled),
		observability.Bool("analytics", cfg.Analytics.Enabled),
	)

	return cfg
}

// run starts the listener and blocks until a shutdown signal arrives
// or the listener fails.
func run(app *application, configPath string, logger observability.Logger) {
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.server.Start(context.Background())
	}()

	watcher := startConfigWatcher(app, configPath, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal",
			observability.String("signal", sig.String()),
		)
	case err := <-errCh:
		if watcher != nil {
			_ = watcher.Stop()
		}
		if err != nil {
			fatal(logger, "http server failed", err)
		}
		return
	}

	shutdown(app, watcher, logger)
}

// shutdown stops the components in dependency order.
func shutdown(app *application, watcher *config.Watcher, logger observability.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), app.shutdownTimeout())
	defer cancel()

	if watcher != nil {
		_ = watcher.Stop()
	}

	if err := app.server.Stop(ctx); err != nil {
		logger.Error("failed to stop http server gracefully", observability.Error(err))
	}

	if err := app.server.Pipeline().Close(); err != nil {
		logger.Error("failed to close pipeline", observability.Error(err))
	}

	if err := app.tracer.Shutdown(ctx); err != nil {
		logger.Error("failed to shut down tracer", observability.Error(err))
	}

	logger.Info("gateway stopped")
}

// fatal logs the error and exits.
func fatal(logger observability.Logger, msg string, err error) {
	logger.Error(msg, observability.Error(err))
	_ = logger.Sync()
	os.Exit(1)
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
