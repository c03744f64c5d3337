package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-reaction-payout/internal/infra/metrics"
)

// Requeuer is the slice of the payout use case the reconciler drives.
type Requeuer interface {
	RequeueStale(ctx context.Context, before time.Time, limit int) (int, error)
	BreakStuck(ctx context.Context, before time.Time, limit int) (int, error)
}

// PayoutReconciler periodically hands queued payouts that never reached a
// worker (queue overflow, process restart) back to the pool, and closes
// processing payouts whose worker died as broken.
type PayoutReconciler struct {
	uc         Requeuer
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how old a queued payout must be to retry
	stuckAfter time.Duration // how long a payout may stay processing; at least the lock ttl
	batch      int
	log        *zerolog.Logger
}

func NewPayoutReconciler(uc Requeuer, interval, staleAfter, stuckAfter time.Duration, logger *zerolog.Logger) *PayoutReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	if stuckAfter <= 0 {
		stuckAfter = time.Hour
	}
	compLog := logger.With().Str("component", "PayoutReconciler").Logger()
	return &PayoutReconciler{uc: uc, interval: interval, staleAfter: staleAfter, stuckAfter: stuckAfter, batch: 200, log: &compLog}
}

func (w *PayoutReconciler) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Dur("stale_after", w.staleAfter).Dur("stuck_after", w.stuckAfter).Msg("Starting payout reconciler")
	t := time.NewTicker(w.interval)
	defer t.Stop()

	// catch up right away after a restart
	w.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping payout reconciler")
			return ctx.Err()
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *PayoutReconciler) tick(ctx context.Context) {
	if n, err := w.uc.BreakStuck(ctx, time.Now().Add(-w.stuckAfter), w.batch); err != nil {
		w.log.Error().Err(err).Msg("break stuck payouts failed")
	} else if n > 0 {
		metrics.AddPayoutsAbandoned(n)
		w.log.Warn().Int("count", n).Msg("stuck payouts marked broken")
	}

	n, err := w.uc.RequeueStale(ctx, time.Now().Add(-w.staleAfter), w.batch)
	if err != nil {
		w.log.Error().Err(err).Msg("requeue stale payouts failed")
		return
	}
	if n > 0 {
		metrics.AddPayoutsRequeued(n)
		w.log.Info().Int("count", n).Msg("stale payouts requeued")
	}
}
