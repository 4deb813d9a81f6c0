// Package bot is the Telegram front end. Batches run on a batch.Runner so the
// update loop keeps answering while the upstream is slow.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tg "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/kjstillabower/city-weather/internal/batch"
	"github.com/kjstillabower/city-weather/internal/config"
	"github.com/kjstillabower/city-weather/internal/models"
	"github.com/kjstillabower/city-weather/internal/validation"
)

const (
	buttonRandom = "Random cities"
	buttonCity   = "Search city"
)

var mainKeyboard = tg.NewReplyKeyboard(
	tg.NewKeyboardButtonRow(
		tg.NewKeyboardButton(buttonRandom),
		tg.NewKeyboardButton(buttonCity),
	),
)

// Sender is the part of tg.BotAPI used to reply.
type Sender interface {
	Send(c tg.Chattable) (tg.Message, error)
}

// CityFetcher looks up a single city.
type CityFetcher interface {
	FetchCity(ctx context.Context, city string) (models.WeatherRecord, error)
}

// Submitter runs random batches in the background. *batch.Runner implements it.
type Submitter interface {
	Submit(ctx context.Context, n int, done func(batch.Result)) error
}

// Bot answers Telegram updates.
type Bot struct {
	sender       Sender
	svc          CityFetcher
	runner       Submitter
	defaultCount int
	units        string
	logger       *zap.Logger
}

// New creates a Bot.
func New(sender Sender, svc CityFetcher, runner Submitter, defaultCount int, units string, logger *zap.Logger) *Bot {
	if defaultCount <= 0 {
		defaultCount = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{sender: sender, svc: svc, runner: runner, defaultCount: defaultCount, units: units, logger: logger}
}

// Run handles updates until the channel closes or ctx is done.
func (b *Bot) Run(ctx context.Context, updates tg.UpdatesChannel) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			b.HandleUpdate(ctx, u)
		}
	}
}

// HandleUpdate answers one update. Non-message updates are ignored.
func (b *Bot) HandleUpdate(ctx context.Context, u tg.Update) {
	if u.Message == nil {
		return
	}
	chatID := u.Message.Chat.ID
	logger := b.logger.With(zap.Int64("chat_id", chatID))

	if u.Message.IsCommand() {
		switch u.Message.Command() {
		case "start", "help":
			msg := tg.NewMessage(chatID, "Hi! I report current weather. Pick a button below, send /random [n], /city <name> or just type a city name.")
			msg.ReplyMarkup = mainKeyboard
			b.send(logger, msg)
		case "random":
			b.random(ctx, logger, chatID, u.Message.CommandArguments())
		case "city":
			b.city(ctx, logger, chatID, u.Message.CommandArguments())
		default:
			b.reply(logger, chatID, "Unknown command. Try /random or /city <name>.")
		}
		return
	}

	switch text := strings.TrimSpace(u.Message.Text); text {
	case buttonRandom:
		b.random(ctx, logger, chatID, "")
	case buttonCity:
		b.reply(logger, chatID, "Send me a city name.")
	default:
		b.city(ctx, logger, chatID, text)
	}
}

func (b *Bot) random(ctx context.Context, logger *zap.Logger, chatID int64, arg string) {
	n := b.defaultCount
	if arg = strings.TrimSpace(arg); arg != "" {
		v, err := strconv.Atoi(arg)
		if err != nil || v < 1 || v > config.MaxCityCount {
			b.reply(logger, chatID, fmt.Sprintf("Count must be between 1 and %d.", config.MaxCityCount))
			return
		}
		n = v
	}

	// The result waits for the acknowledgement so the chat sees them in order.
	acked := make(chan struct{})
	err := b.runner.Submit(ctx, n, func(res batch.Result) {
		<-acked
		if res.Err != nil && len(res.Batch.Records) == 0 {
			logger.Warn("random batch failed", zap.Error(res.Err))
			text := "Could not fetch weather for any city."
			if len(res.Batch.Failed) == 0 {
				text = "Failed to fetch weather data."
			}
			b.reply(logger, chatID, text)
			return
		}
		b.reply(logger, chatID, FormatBatch(res.Batch, b.units))
	})
	if errors.Is(err, batch.ErrBusy) {
		b.reply(logger, chatID, "A batch is already running, please wait for it to finish.")
		return
	}
	if err != nil {
		logger.Error("submit batch", zap.Error(err))
		b.reply(logger, chatID, "Failed to fetch weather data.")
		return
	}
	b.reply(logger, chatID, fmt.Sprintf("Fetching weather for %d random cities...", n))
	close(acked)
}

func (b *Bot) city(ctx context.Context, logger *zap.Logger, chatID int64, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		b.reply(logger, chatID, "Please send a city name, e.g. /city London.")
		return
	}
	rec, err := b.svc.FetchCity(ctx, name)
	switch {
	case err == nil:
		b.reply(logger, chatID, FormatRecord(rec))
	case errors.Is(err, validation.ErrCityTooLong), errors.Is(err, validation.ErrCityInvalidChars), errors.Is(err, validation.ErrCityEmpty):
		b.reply(logger, chatID, "That does not look like a city name.")
	default:
		logger.Debug("city lookup failed", zap.String("city", name), zap.Error(err))
		b.reply(logger, chatID, "Could not find weather data for "+name)
	}
}

func (b *Bot) reply(logger *zap.Logger, chatID int64, text string) {
	b.send(logger, tg.NewMessage(chatID, text))
}

func (b *Bot) send(logger *zap.Logger, msg tg.MessageConfig) {
	if _, err := b.sender.Send(msg); err != nil {
		logger.Warn("send message failed", zap.Error(err))
	}
}
