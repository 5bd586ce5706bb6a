package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dstl/Apex-SAPIENT-Middleware/config"
)

// CLIConfig holds command-line configuration.
type CLIConfig struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
	Validate   bool
}

func parseFlags() (*CLIConfig, bool) {
	cli := &CLIConfig{}
	showVersion := false

	flag.StringVar(&cli.ConfigPath, "config",
		getEnv("APEX_CONFIG", "apex_config.json"),
		"Path to configuration file (env: APEX_CONFIG)")
	flag.StringVar(&cli.LogLevel, "log-level", "",
		"Override the configured log level: debug, info, warn, error")
	flag.StringVar(&cli.LogFormat, "log-format",
		getEnv("APEX_LOG_FORMAT", "text"),
		"Log format: json, text (env: APEX_LOG_FORMAT)")
	flag.BoolVar(&cli.Validate, "validate", false, "Validate configuration and exit")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return cli, true
	}
	return cli, false
}

// setupLogger builds the root logger, letting the CLI override the
// configured level.
func setupLogger(cfg *config.Config, cli *CLIConfig) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	if cli.LogLevel != "" {
		switch strings.ToLower(cli.LogLevel) {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			return nil, fmt.Errorf("invalid log level: %s", cli.LogLevel)
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cli.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler).With("service", appName, "version", Version), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
