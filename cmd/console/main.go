package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/kjstillabower/city-weather/internal/app"
	"github.com/kjstillabower/city-weather/internal/config"
	"github.com/kjstillabower/city-weather/internal/console"
	"github.com/kjstillabower/city-weather/internal/observability"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Keep fetch warnings out of the interactive output unless asked for.
	if os.Getenv("LOG_LEVEL") == "" {
		_ = os.Setenv("LOG_LEVEL", "ERROR")
	}
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 1
	}
	defer func() {
		if err := observability.SyncLogger(logger); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	if !cfg.APIKeyConfigured() {
		key, err := console.PromptAPIKey(os.Stdin, os.Stdout)
		if err != nil {
			fmt.Println("API key is required. Get one from https://openweathermap.org/api")
			return 1
		}
		cfg.WeatherAPIKey = key
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup", zap.Error(err))
		return 1
	}
	defer deps.Close(logger)

	menu := console.New(deps.Service, os.Stdin, os.Stdout, cfg.DefaultCityCount, cfg.WeatherUnits)
	if err := menu.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("console", zap.Error(err))
		return 1
	}
	return 0
}
