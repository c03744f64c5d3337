// File: internal/usecase/payout_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"telegram-reaction-payout/internal/domain"
	"telegram-reaction-payout/internal/domain/model"
	"telegram-reaction-payout/internal/domain/ports/adapter"
	"telegram-reaction-payout/internal/domain/ports/repository"
	"telegram-reaction-payout/internal/infra/logging"
	"telegram-reaction-payout/internal/infra/metrics"
	"telegram-reaction-payout/internal/infra/worker"
)

// Compile-time check
var _ PayoutUseCase = (*payoutUC)(nil)

type PayoutUseCase interface {
	// Request validates the receiver, reserves the payee account and queues a payout.
	Request(ctx context.Context, req PayoutRequest) (*model.Payout, error)
	// Execute drives a queued payout to its terminal status. The caller owns the account lock.
	Execute(ctx context.Context, id string) (*model.Payout, error)
	Get(ctx context.Context, id string) (*model.Payout, error)
	ListByTelegramID(ctx context.Context, tgID int64, limit int) ([]*model.Payout, error)
	// RequeueStale re-submits queued payouts created before `before` whose account is free.
	RequeueStale(ctx context.Context, before time.Time, limit int) (int, error)
	// BreakStuck closes processing payouts not touched since `before` as broken.
	BreakStuck(ctx context.Context, before time.Time, limit int) (int, error)
}

type PayoutRequest struct {
	Account    string `json:"account"`
	TelegramID int64  `json:"telegram_id"`
	Username   string `json:"username"`
	Reactions  int64  `json:"reactions"`
	Rate       string `json:"rate,omitempty"` // optional override of the configured rate
}

type PayoutOptions struct {
	DefaultRate  decimal.Decimal
	MaxReactions int64
	LockTTL      time.Duration
	Dev          bool // log payee accounts unredacted
}

type payoutUC struct {
	payouts repository.PayoutRepository
	tm      repository.TransactionManager
	engine  Withdrawer
	locker  adapter.Locker
	bot     adapter.TelegramBotAdapter
	pool    *worker.Pool
	opts    PayoutOptions
	log     *zerolog.Logger
	nowFunc func() time.Time
}

func NewPayoutUseCase(
	payouts repository.PayoutRepository,
	tm repository.TransactionManager,
	engine Withdrawer,
	locker adapter.Locker,
	bot adapter.TelegramBotAdapter,
	pool *worker.Pool,
	opts PayoutOptions,
	logger *zerolog.Logger,
) *payoutUC {
	compLog := logger.With().Str("component", "PayoutUseCase").Logger()
	return &payoutUC{
		payouts: payouts,
		tm:      tm,
		engine:  engine,
		locker:  locker,
		bot:     bot,
		pool:    pool,
		opts:    opts,
		log:     &compLog,
		nowFunc: time.Now,
	}
}

func lockKey(account string) string { return "payout:lock:" + account }

func (uc *payoutUC) Request(ctx context.Context, req PayoutRequest) (*model.Payout, error) {
	r, err := model.NewReceiver(req.Account, req.TelegramID, req.Username, req.Reactions)
	if err != nil {
		return nil, err
	}
	if uc.opts.MaxReactions > 0 && r.Reactions > uc.opts.MaxReactions {
		return nil, fmt.Errorf("%w: %d reactions exceeds the limit of %d", domain.ErrInvalidArgument, r.Reactions, uc.opts.MaxReactions)
	}
	rate := uc.opts.DefaultRate
	if req.Rate != "" {
		if rate, err = model.ParseRate(req.Rate); err != nil {
			return nil, err
		}
	}
	if !rate.IsPositive() {
		return nil, fmt.Errorf("%w: no payout rate configured", domain.ErrInvalidArgument)
	}

	key := lockKey(r.Account)
	token, err := uc.locker.TryLock(ctx, key, uc.opts.LockTTL)
	if err != nil {
		return nil, err
	}
	// the lock may have lapsed while an earlier payout sat in the queue
	live, err := uc.payouts.HasLive(ctx, repository.NoTX, r.Account)
	if err != nil {
		uc.unlock(key, token)
		return nil, err
	}
	if live {
		uc.unlock(key, token)
		return nil, domain.ErrPayoutInFlight
	}

	p := model.NewPayout(r, rate, uc.nowFunc())
	ctx = logging.WithPayoutID(logging.WithTgID(ctx, r.TelegramID), p.ID)
	l := logging.With(ctx, uc.log)

	if err := uc.payouts.Save(ctx, repository.NoTX, p); err != nil {
		uc.unlock(key, token)
		l.Error().Err(err).Msg("failed to save payout")
		return nil, err
	}

	if err := uc.pool.Submit(uc.executeTask(p.ID, r.TelegramID, key, token)); err != nil {
		// the record stays queued; the reconciler picks it up once it is stale
		uc.unlock(key, token)
		metrics.IncQueueDrop()
		l.Warn().Err(err).Msg("payout not enqueued, deferred to reconciler")
		return p, nil
	}

	l.Info().
		Str("account", logging.Redact(r.Account, uc.opts.Dev)).
		Int64("reactions", r.Reactions).
		Str("amount", p.Amount.String()).
		Msg("payout queued")
	return p, nil
}

// executeTask creates a closure for the worker pool. The account lock is
// renewed when a worker picks the task up and released when it ends.
func (uc *payoutUC) executeTask(id string, tgID int64, key, token string) worker.Task {
	return func(ctx context.Context) error {
		defer uc.unlock(key, token)
		ctx = logging.WithPayoutID(logging.WithTgID(ctx, tgID), id)
		if err := uc.locker.Refresh(ctx, key, token, uc.opts.LockTTL); err != nil {
			logging.With(ctx, uc.log).Warn().Err(err).Msg("payout lock lost while queued, left for the reconciler")
			return err
		}
		_, err := uc.Execute(ctx, id)
		return err
	}
}

func (uc *payoutUC) Execute(ctx context.Context, id string) (*model.Payout, error) {
	l := logging.With(ctx, uc.log)
	defer logging.TraceDuration(l, "PayoutUseCase.Execute")()

	var p *model.Payout
	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		found, err := uc.payouts.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if found.Status != model.PayoutStatusQueued {
			return fmt.Errorf("%w: payout %s is %s", domain.ErrPayoutNotQueued, id, found.Status)
		}
		ok, err := uc.payouts.MarkProcessing(ctx, tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: payout %s", domain.ErrPayoutNotQueued, id)
		}
		found.Status = model.PayoutStatusProcessing
		p = found
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrPayoutNotQueued) {
			l.Debug().Err(err).Msg("payout already picked up")
		}
		return nil, err
	}

	start := uc.nowFunc()
	outcome, werr := uc.engine.Withdraw(ctx, p.Receiver(), p.Rate)
	errText := ""
	if werr != nil {
		errText = werr.Error()
		l.Error().Err(werr).Str("request_id", outcome.RequestID).Msg("payout broken")
	}
	p.Complete(outcome, errText, uc.nowFunc())

	metrics.ObservePayout(string(outcome.Kind), outcome.Attempts, uc.nowFunc().Sub(start))
	if outcome.IsSucceeded() {
		metrics.AddPayoutAmount(p.Currency, p.Amount.InexactFloat64())
	}

	// the terminal state must land even when ctx was cancelled mid-poll
	persistCtx := context.WithoutCancel(ctx)
	if err := uc.payouts.Complete(persistCtx, repository.NoTX, p); err != nil {
		l.Error().Err(err).Str("status", string(p.Status)).Msg("failed to persist payout outcome")
		return p, err
	}

	l.Info().
		Str("status", string(p.Status)).
		Str("request_id", p.RequestID).
		Str("payment_id", p.PaymentID).
		Int("attempts", p.Attempts).
		Msg("payout finished")

	uc.notify(persistCtx, p)
	return p, nil
}

func (uc *payoutUC) notify(ctx context.Context, p *model.Payout) {
	kind := string(p.Status)
	if err := uc.bot.SendMessage(ctx, p.TelegramID, outcomeMessage(p)); err != nil {
		metrics.IncPayoutDM(kind, "error")
		logging.With(ctx, uc.log).Warn().Err(err).Msg("failed to notify receiver")
		return
	}
	metrics.IncPayoutDM(kind, "ok")
}

func outcomeMessage(p *model.Payout) string {
	switch p.Status {
	case model.PayoutStatusSucceeded:
		return fmt.Sprintf("Your payout of %s %s for %d reactions has been sent.", p.Amount.String(), p.Currency, p.Reactions)
	case model.PayoutStatusRefused:
		return fmt.Sprintf("Your payout of %s %s was refused by the payment service (%s).", p.Amount.String(), p.Currency, p.Error)
	default:
		return fmt.Sprintf("Your payout of %s %s could not be completed. It will be reviewed manually.", p.Amount.String(), p.Currency)
	}
}

func (uc *payoutUC) Get(ctx context.Context, id string) (*model.Payout, error) {
	return uc.payouts.FindByID(ctx, repository.NoTX, id)
}

func (uc *payoutUC) ListByTelegramID(ctx context.Context, tgID int64, limit int) ([]*model.Payout, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return uc.payouts.ListByTelegramID(ctx, repository.NoTX, tgID, limit)
}

func (uc *payoutUC) RequeueStale(ctx context.Context, before time.Time, limit int) (int, error) {
	stale, err := uc.payouts.ListQueuedOlderThan(ctx, repository.NoTX, before, limit)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, p := range stale {
		key := lockKey(p.Account)
		token, err := uc.locker.TryLock(ctx, key, uc.opts.LockTTL)
		if err != nil {
			if !errors.Is(err, domain.ErrPayoutInFlight) {
				uc.log.Warn().Err(err).Str("payout_id", p.ID).Msg("lock failed during requeue")
			}
			continue
		}
		if err := uc.pool.Submit(uc.executeTask(p.ID, p.TelegramID, key, token)); err != nil {
			uc.unlock(key, token)
			metrics.IncQueueDrop()
			uc.log.Warn().Err(err).Msg("worker pool saturated, requeue stopped")
			break
		}
		n++
	}
	return n, nil
}

const abandonedError = "abandoned while processing, needs manual review"

func (uc *payoutUC) BreakStuck(ctx context.Context, before time.Time, limit int) (int, error) {
	broken, err := uc.payouts.BreakStaleProcessing(ctx, repository.NoTX, before, abandonedError, uc.nowFunc(), limit)
	if err != nil {
		return 0, err
	}
	for _, p := range broken {
		metrics.ObservePayout(string(model.OutcomeBroken), p.Attempts, p.UpdatedAt.Sub(p.CreatedAt))
		logging.With(logging.WithPayoutID(ctx, p.ID), uc.log).Error().
			Str("request_id", p.RequestID).
			Msg("stuck payout marked broken")
		uc.notify(ctx, p)
	}
	return len(broken), nil
}

func (uc *payoutUC) unlock(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := uc.locker.Unlock(ctx, key, token); err != nil {
		uc.log.Warn().Err(err).Str("key", key).Msg("failed to release payout lock")
	}
}
