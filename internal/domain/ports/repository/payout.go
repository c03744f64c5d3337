package repository

import (
	"context"
	"time"

	"telegram-reaction-payout/internal/domain/model"
)

// -----------------------------
// Payouts
// -----------------------------

type PayoutRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Payout) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payout, error)
	// MarkProcessing moves a queued payout to processing. It reports false when the
	// payout was not queued (already picked up by another worker).
	MarkProcessing(ctx context.Context, tx Tx, id string) (bool, error)
	// Complete persists the terminal fields of p.
	Complete(ctx context.Context, tx Tx, p *model.Payout) error
	ListByTelegramID(ctx context.Context, tx Tx, tgID int64, limit int) ([]*model.Payout, error)
	ListQueuedOlderThan(ctx context.Context, tx Tx, before time.Time, limit int) ([]*model.Payout, error)
	// HasLive reports whether account has a queued or processing payout.
	HasLive(ctx context.Context, tx Tx, account string) (bool, error)
	// BreakStaleProcessing moves processing payouts last updated before `before`
	// to broken with errText and returns them.
	BreakStaleProcessing(ctx context.Context, tx Tx, before time.Time, errText string, now time.Time, limit int) ([]*model.Payout, error)
}
