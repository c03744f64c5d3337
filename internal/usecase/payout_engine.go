// File: internal/usecase/payout_engine.go
package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"telegram-reaction-payout/internal/domain"
	"telegram-reaction-payout/internal/domain/model"
	"telegram-reaction-payout/internal/domain/ports/adapter"
	"telegram-reaction-payout/internal/infra/logging"
)

// Withdrawer drives one payout to a terminal outcome.
type Withdrawer interface {
	Withdraw(ctx context.Context, r model.Receiver, rate decimal.Decimal) (model.PaymentOutcome, error)
}

var _ Withdrawer = (*PayoutEngine)(nil)

type EngineConfig struct {
	MaxAttempts  int           // confirmation calls per payout
	PollInterval time.Duration // wait between in_progress confirmations
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{MaxAttempts: 10, PollInterval: time.Minute}
}

// PayoutEngine turns a (receiver, rate) pair into a PaymentOutcome: one
// request-payment call, then process-payment calls until the gateway settles or
// MaxAttempts is reached. It holds no per-payout state, so one engine serves
// any number of concurrent payouts.
type PayoutEngine struct {
	client adapter.TransferClient
	cfg    EngineConfig
	wait   func(ctx context.Context, d time.Duration) error
	log    *zerolog.Logger
}

func NewPayoutEngine(client adapter.TransferClient, cfg EngineConfig, logger *zerolog.Logger) *PayoutEngine {
	def := DefaultEngineConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.PollInterval < 0 {
		cfg.PollInterval = def.PollInterval
	}
	compLog := logger.With().Str("component", "PayoutEngine").Str("gateway", client.Name()).Logger()
	return &PayoutEngine{client: client, cfg: cfg, wait: sleepCtx, log: &compLog}
}

// Withdraw runs the withdrawal protocol for r at rate.
//
// Submission refused by the gateway ends in Broken, not Refused; only a refusal
// at confirmation time is reported as Refused. Transport and malformed-response
// errors end in Broken and are returned alongside the outcome. Cancelling ctx
// during a poll wait ends in Broken with ctx.Err().
func (e *PayoutEngine) Withdraw(ctx context.Context, r model.Receiver, rate decimal.Decimal) (model.PaymentOutcome, error) {
	l := logging.With(ctx, e.log)
	defer logging.TraceDuration(l, "PayoutEngine.Withdraw")()

	amount := r.AmountDue(rate)
	sub, err := e.client.SubmitTransfer(ctx, r.Account, amount, r.SenderComment(), r.PayeeMessage())
	if err != nil {
		return model.Broken("", 0), fmt.Errorf("submit transfer: %w", err)
	}
	if sub.Status == model.TransferStatusRefused {
		l.Warn().
			Str("error", sub.Error).
			Str("error_description", sub.ErrorDescription).
			Str("amount_due", amount.String()).
			Msg("transfer request refused")
		return model.Broken("", 0), nil
	}
	if sub.RequestID == "" {
		return model.Broken("", 0), fmt.Errorf("%w: request-payment status %q without request_id", domain.ErrMalformedResponse, sub.Status)
	}

	l.Info().Str("request_id", sub.RequestID).Str("amount_due", amount.String()).Msg("transfer requested")
	return e.confirm(ctx, l, sub.RequestID)
}

// confirm is the Confirming state: it self-loops on in_progress up to MaxAttempts.
func (e *PayoutEngine) confirm(ctx context.Context, l *zerolog.Logger, requestID string) (model.PaymentOutcome, error) {
	for attempts := 1; ; attempts++ {
		resp, err := e.client.ConfirmTransfer(ctx, requestID)
		if err != nil {
			return model.Broken(requestID, attempts), fmt.Errorf("confirm transfer: %w", err)
		}

		switch resp.Status {
		case model.TransferStatusSuccess:
			l.Info().Str("request_id", requestID).Str("payment_id", resp.PaymentID).Int("attempts", attempts).Msg("transfer succeeded")
			return model.Succeeded(resp, requestID, attempts), nil

		case model.TransferStatusRefused:
			l.Warn().Str("request_id", requestID).Str("error", resp.Error).Int("attempts", attempts).Msg("transfer refused")
			return model.Refused(resp, requestID, attempts), nil

		case model.TransferStatusInProgress:
			if attempts >= e.cfg.MaxAttempts {
				l.Error().Str("request_id", requestID).Int("attempts", attempts).Msg("transfer still in progress, giving up")
				return model.Broken(requestID, attempts), nil
			}
			l.Debug().Str("request_id", requestID).Int("attempts", attempts).Dur("retry_in", e.cfg.PollInterval).Msg("transfer in progress")
			if err := e.wait(ctx, e.cfg.PollInterval); err != nil {
				return model.Broken(requestID, attempts), err
			}

		default:
			return model.Broken(requestID, attempts), fmt.Errorf("%w: unknown process-payment status %q", domain.ErrMalformedResponse, resp.Status)
		}
	}
}

// sleepCtx waits d without blocking other goroutines and returns early on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
