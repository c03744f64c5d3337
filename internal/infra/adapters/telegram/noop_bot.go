package telegram

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-reaction-payout/internal/domain/ports/adapter"
)

var _ adapter.TelegramBotAdapter = (*NoopBotAdapter)(nil)

// NoopBotAdapter implements adapter.TelegramBotAdapter for local/dev runs.
// It logs messages instead of sending real Telegram messages.
type NoopBotAdapter struct {
	delay time.Duration
	log   *zerolog.Logger
}

func NewNoopBotAdapter(logger *zerolog.Logger) *NoopBotAdapter {
	compLog := logger.With().Str("component", "NoopBot").Logger()
	return &NoopBotAdapter{delay: 100 * time.Millisecond, log: &compLog}
}

// SendMessage logs the message after a short simulated delay.
func (b *NoopBotAdapter) SendMessage(ctx context.Context, tgID int64, text string) error {
	select {
	case <-time.After(b.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	b.log.Info().Int64("tg_id", tgID).Str("text", text).Msg("[noop-telegram] message")
	return nil
}
