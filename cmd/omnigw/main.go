// Package main is the entry point for the omnigw gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vyrodovalexey/omnigw/internal/config"
	"github.com/vyrodovalexey/omnigw/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath    string
	logLevel      string
	logFormat     string
	adminUser     string
	adminEmail    string
	adminPassword string
	watchConfig   bool
	showVersion   bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(logConfig(observability.LogConfig{}, flags))

	logger.Info("starting omnigw",
		observability.String("version", version),
		observability.String("config", flags.configPath),
	)

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", observability.Error(err))
	}
	logger = initLogger(logConfig(cfg.Observability.Log, flags))
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize gateway", observability.Error(err))
	}

	if flags.adminUser != "" {
		if err := app.bootstrapAdmin(ctx, flags.adminUser, flags.adminEmail, flags.adminPassword); err != nil {
			logger.Fatal("failed to create admin user", observability.Error(err))
		}
	}

	watchPath := ""
	if flags.watchConfig {
		watchPath = flags.configPath
	}
	if err := app.run(ctx, watchPath); err != nil {
		logger.Error("gateway stopped with error", observability.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("gateway stopped")
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("OMNIGW_CONFIG_PATH", ""),
		"Path to configuration file (defaults and environment only when empty)")
	logLevel := flag.String("log-level", getEnvOrDefault("OMNIGW_LOG_LEVEL", ""),
		"Log level (debug, info, warn, error); overrides observability.log.level")
	logFormat := flag.String("log-format", getEnvOrDefault("OMNIGW_LOG_FORMAT", ""),
		"Log format (json, console); overrides observability.log.format")
	adminUser := flag.String("admin-user", getEnvOrDefault("OMNIGW_ADMIN_USER", ""),
		"Create an admin account with this username at startup")
	adminEmail := flag.String("admin-email", getEnvOrDefault("OMNIGW_ADMIN_EMAIL", "admin@localhost"),
		"Email of the bootstrap admin account")
	adminPassword := flag.String("admin-password", getEnvOrDefault("OMNIGW_ADMIN_PASSWORD", ""),
		"Password of the bootstrap admin account")
	watchConfig := flag.Bool("watch-config", getEnvBool("OMNIGW_WATCH_CONFIG", true),
		"Reload rate limit and cache policies when the config file changes")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:    *configPath,
		logLevel:      *logLevel,
		logFormat:     *logFormat,
		adminUser:     *adminUser,
		adminEmail:    *adminEmail,
		adminPassword: *adminPassword,
		watchConfig:   *watchConfig,
		showVersion:   *showVersion,
	}
}

// printVersion prints version information and exits.
func printVersion() {
	fmt.Printf("omnigw version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// logConfig applies the non-empty log flags on top of base.
func logConfig(base observability.LogConfig, flags cliFlags) observability.LogConfig {
	if flags.logLevel != "" {
		base.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		base.Format = flags.logFormat
	}
	return base
}

// initLogger builds the logger and installs it globally.
func initLogger(cfg observability.LogConfig) observability.Logger {
	logger, err := observability.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}
