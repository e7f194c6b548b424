package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/consentry/internal/app"
	"github.com/ternarybob/consentry/internal/common"
)

var (
	configPath   = flag.String("config", "", "Configuration file path")
	configPathC  = flag.String("c", "", "Configuration file path (shorthand)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Consentry version %s\n", common.GetVersion())
		os.Exit(0)
	}

	path := *configPath
	if path == "" {
		path = *configPathC
	}
	if path == "" {
		// Auto-discover a config file in the working directory
		if _, err := os.Stat("consentry.toml"); err == nil {
			path = "consentry.toml"
		}
	}

	// Startup order: config, logger, banner, application.
	config, err := common.LoadConfig(path)
	if err != nil {
		arbor.NewLogger().Fatal().Str("path", path).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger := common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	logger.Info().
		Str("config_file", path).
		Str("environment", config.Environment).
		Str("log_level", config.Logging.Level).
		Msg("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, config)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	if err := application.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start application")
	}

	logger.Info().Msg("Scan engine ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Interrupt signal received, shutting down")
	cancel()
}
