package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tg "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/kjstillabower/city-weather/internal/app"
	"github.com/kjstillabower/city-weather/internal/batch"
	"github.com/kjstillabower/city-weather/internal/bot"
	"github.com/kjstillabower/city-weather/internal/config"
	"github.com/kjstillabower/city-weather/internal/observability"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := observability.SyncLogger(logger); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	if cfg.TelegramToken == "" {
		logger.Fatal("TELEGRAM_TOKEN is required")
	}
	if !cfg.APIKeyConfigured() {
		logger.Fatal("WEATHER_API_KEY is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup", zap.Error(err))
	}
	defer deps.Close(logger)

	api, err := tg.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		logger.Fatal("telegram", zap.Error(err))
	}
	logger.Info("bot authorized", zap.String("username", api.Self.UserName))

	runner := batch.NewRunner(deps.Service, logger)
	b := bot.New(api, deps.Service, runner, cfg.DefaultCityCount, cfg.WeatherUnits, logger)

	u := tg.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)

	if err := b.Run(ctx, updates); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("bot stopped", zap.Error(err))
	}
	api.StopReceivingUpdates()
	runner.Wait()
	logger.Info("shutdown complete")
}
