package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"telegram-reaction-payout/internal/config"
	"telegram-reaction-payout/internal/domain/ports/adapter"
)

var _ adapter.TelegramBotAdapter = (*RealTelegramBotAdapter)(nil)

// Telegram allows roughly 30 messages per second per bot.
const sendsPerSecond = 25

// RealTelegramBotAdapter delivers payout notifications as direct messages.
type RealTelegramBotAdapter struct {
	bot     *tgbotapi.BotAPI
	limiter *rate.Limiter
	log     *zerolog.Logger
}

func NewRealTelegramBotAdapter(cfg *config.BotConfig, logger *zerolog.Logger) (*RealTelegramBotAdapter, error) {
	return newRealTelegramBotAdapter(cfg, tgbotapi.APIEndpoint, &http.Client{}, logger)
}

func newRealTelegramBotAdapter(cfg *config.BotConfig, endpoint string, client *http.Client, logger *zerolog.Logger) (*RealTelegramBotAdapter, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	if cfg.Token == "" {
		return nil, errors.New("bot token empty")
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram getMe: %w", err)
	}
	compLog := logger.With().Str("component", "TelegramBot").Str("bot", bot.Self.UserName).Logger()
	return &RealTelegramBotAdapter{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(sendsPerSecond), sendsPerSecond),
		log:     &compLog,
	}, nil
}

func (r *RealTelegramBotAdapter) SendMessage(ctx context.Context, tgID int64, text string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(tgID, text)
	msg.DisableWebPagePreview = true
	if _, err := r.bot.Send(msg); err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) {
			// 403 means the user blocked the bot or never started it
			r.log.Warn().Int64("tg_id", tgID).Int("code", apiErr.Code).Str("description", apiErr.Message).Msg("telegram rejected message")
		}
		return fmt.Errorf("telegram send to %d: %w", tgID, err)
	}
	return nil
}
