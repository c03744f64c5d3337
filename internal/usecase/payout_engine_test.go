//go:build !integration

package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"telegram-reaction-payout/internal/domain"
	"telegram-reaction-payout/internal/domain/model"
)

// scriptedGateway answers submissions with submitResp/submitErr and confirmations
// with the next entry of confirms (the last entry repeats).
type scriptedGateway struct {
	mu sync.Mutex

	submitResp model.TransferResponse
	submitErr  error
	confirms   []confirmStep

	submitCalls  int
	confirmCalls int
	confirmIDs   []string
	payee        string
	amountDue    decimal.Decimal
	comment      string
	message      string
}

type confirmStep struct {
	resp model.TransferResponse
	err  error
}

func (g *scriptedGateway) Name() string { return "scripted" }

func (g *scriptedGateway) SubmitTransfer(ctx context.Context, payee string, amountDue decimal.Decimal, comment, message string) (model.TransferResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitCalls++
	g.payee, g.amountDue, g.comment, g.message = payee, amountDue, comment, message
	return g.submitResp, g.submitErr
}

func (g *scriptedGateway) ConfirmTransfer(ctx context.Context, requestID string) (model.TransferResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.confirmCalls++
	g.confirmIDs = append(g.confirmIDs, requestID)
	i := g.confirmCalls - 1
	if i >= len(g.confirms) {
		i = len(g.confirms) - 1
	}
	return g.confirms[i].resp, g.confirms[i].err
}

func status(s model.TransferStatus) confirmStep {
	return confirmStep{resp: model.TransferResponse{StatusCode: 200, Status: s, PaymentID: "pay-" + string(s)}}
}

func accepted(requestID string) model.TransferResponse {
	return model.TransferResponse{StatusCode: 200, Status: model.TransferStatusSuccess, RequestID: requestID}
}

func nopLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

// newTestEngine returns an engine whose waits are recorded instead of slept.
func newTestEngine(g *scriptedGateway, cfg EngineConfig) (*PayoutEngine, *[]time.Duration) {
	e := NewPayoutEngine(g, cfg, nopLogger())
	var waits []time.Duration
	e.wait = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return e, &waits
}

var testReceiver = model.Receiver{Account: "410011234567890", TelegramID: 42, Username: "alice", Reactions: 5}

func TestPayoutEngine_Withdraw(t *testing.T) {
	ctx := context.Background()
	rate := decimal.RequireFromString("2.5")
	cfg := EngineConfig{MaxAttempts: 10, PollInterval: time.Minute}

	t.Run("should succeed on first confirmation", func(t *testing.T) {
		g := &scriptedGateway{submitResp: accepted("req-1"), confirms: []confirmStep{status(model.TransferStatusSuccess)}}
		e, waits := newTestEngine(g, cfg)

		out, err := e.Withdraw(ctx, testReceiver, rate)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if out.Kind != model.OutcomeSucceeded || out.Response == nil || out.Response.Status != model.TransferStatusSuccess {
			t.Fatalf("expected Succeeded with response, got %+v", out)
		}
		if !g.amountDue.Equal(decimal.RequireFromString("12.5")) {
			t.Errorf("expected amount_due 12.5, got %s", g.amountDue)
		}
		if g.payee != testReceiver.Account {
			t.Errorf("expected payee %s, got %s", testReceiver.Account, g.payee)
		}
		if g.comment != testReceiver.SenderComment() || g.message != testReceiver.PayeeMessage() {
			t.Errorf("unexpected comments: %q / %q", g.comment, g.message)
		}
		if g.confirmCalls != 1 || len(*waits) != 0 {
			t.Errorf("expected 1 confirmation and no wait, got %d calls, %d waits", g.confirmCalls, len(*waits))
		}
	})

	t.Run("should stop at the first success after in_progress", func(t *testing.T) {
		g := &scriptedGateway{submitResp: accepted("req-2"), confirms: []confirmStep{
			status(model.TransferStatusInProgress),
			status(model.TransferStatusInProgress),
			status(model.TransferStatusSuccess),
			status(model.TransferStatusRefused), // must never be reached
		}}
		e, waits := newTestEngine(g, cfg)

		out, err := e.Withdraw(ctx, testReceiver, rate)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if out.Kind != model.OutcomeSucceeded || out.Attempts != 3 {
			t.Fatalf("expected Succeeded on attempt 3, got %+v", out)
		}
		if g.confirmCalls != 3 {
			t.Errorf("expected 3 confirmation calls, got %d", g.confirmCalls)
		}
		if len(*waits) != 2 || (*waits)[0] != time.Minute {
			t.Errorf("expected 2 waits of 1m, got %v", *waits)
		}
		for _, id := range g.confirmIDs {
			if id != "req-2" {
				t.Errorf("expected every confirmation to reuse req-2, got %s", id)
			}
		}
	})

	t.Run("should report refusal at confirmation as Refused", func(t *testing.T) {
		g := &scriptedGateway{submitResp: accepted("req-3"), confirms: []confirmStep{
			status(model.TransferStatusInProgress),
			{resp: model.TransferResponse{Status: model.TransferStatusRefused, Error: "limit_exceeded"}},
		}}
		e, _ := newTestEngine(g, cfg)

		out, err := e.Withdraw(ctx, testReceiver, rate)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if out.Kind != model.OutcomeRefused || out.Response == nil || out.Response.Error != "limit_exceeded" {
			t.Fatalf("expected Refused carrying the last response, got %+v", out)
		}
	})

	t.Run("should map submission refusal to Broken without confirming", func(t *testing.T) {
		g := &scriptedGateway{
			submitResp: model.TransferResponse{Status: model.TransferStatusRefused, Error: "not_enough_funds"},
			confirms:   []confirmStep{status(model.TransferStatusSuccess)},
		}
		e, _ := newTestEngine(g, cfg)

		out, err := e.Withdraw(ctx, testReceiver, rate)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if out.Kind != model.OutcomeBroken || out.Response != nil {
			t.Fatalf("expected Broken without response, got %+v", out)
		}
		if g.confirmCalls != 0 {
			t.Errorf("expected no confirmation call, got %d", g.confirmCalls)
		}
	})

	t.Run("should give up as Broken after max attempts in progress", func(t *testing.T) {
		g := &scriptedGateway{submitResp: accepted("req-4"), confirms: []confirmStep{status(model.TransferStatusInProgress)}}
		e, waits := newTestEngine(g, cfg)

		out, err := e.Withdraw(ctx, testReceiver, rate)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if out.Kind != model.OutcomeBroken || out.Response != nil {
			t.Fatalf("expected Broken without response, got %+v", out)
		}
		if g.submitCalls != 1 || g.confirmCalls != 10 {
			t.Errorf("expected 1 submission and exactly 10 confirmations, got %d and %d", g.submitCalls, g.confirmCalls)
		}
		if len(*waits) != 9 {
			t.Errorf("expected 9 waits between 10 calls, got %d", len(*waits))
		}
	})

	t.Run("should honour a configured attempt cap", func(t *testing.T) {
		g := &scriptedGateway{submitResp: accepted("req-5"), confirms: []confirmStep{status(model.TransferStatusInProgress)}}
		e, _ := newTestEngine(g, EngineConfig{MaxAttempts: 3, PollInterval: time.Second})

		out, _ := e.Withdraw(ctx, testReceiver, rate)
		if out.Kind != model.OutcomeBroken || g.confirmCalls != 3 {
			t.Fatalf("expected Broken after 3 calls, got %+v after %d", out, g.confirmCalls)
		}
	})
}

func TestPayoutEngine_Errors(t *testing.T) {
	ctx := context.Background()
	rate := decimal.NewFromInt(1)
	cfg := EngineConfig{MaxAttempts: 10, PollInterval: time.Minute}

	t.Run("transport error on submission is Broken and surfaced", func(t *testing.T) {
		g := &scriptedGateway{submitErr: domain.ErrTransport}
		e, _ := newTestEngine(g, cfg)

		out, err := e.Withdraw(ctx, testReceiver, rate)
		if !errors.Is(err, domain.ErrTransport) {
			t.Fatalf("expected ErrTransport, got %v", err)
		}
		if out.Kind != model.OutcomeBroken || g.confirmCalls != 0 {
			t.Fatalf("expected Broken without confirmation, got %+v (%d calls)", out, g.confirmCalls)
		}
	})

	t.Run("transport error on confirmation is not retried", func(t *testing.T) {
		g := &scriptedGateway{submitResp: accepted("req-6"), confirms: []confirmStep{
			status(model.TransferStatusInProgress),
			{err: domain.ErrTransport},
			status(model.TransferStatusSuccess),
		}}
		e, _ := newTestEngine(g, cfg)

		out, err := e.Withdraw(ctx, testReceiver, rate)
		if !errors.Is(err, domain.ErrTransport) {
			t.Fatalf("expected ErrTransport, got %v", err)
		}
		if out.Kind != model.OutcomeBroken || g.confirmCalls != 2 || out.RequestID != "req-6" {
			t.Fatalf("expected Broken after 2 calls, got %+v (%d calls)", out, g.confirmCalls)
		}
	})

	t.Run("submission without request id is malformed", func(t *testing.T) {
		g := &scriptedGateway{submitResp: model.TransferResponse{Status: model.TransferStatusSuccess}}
		e, _ := newTestEngine(g, cfg)

		out, err := e.Withdraw(ctx, testReceiver, rate)
		if !errors.Is(err, domain.ErrMalformedResponse) || out.Kind != model.OutcomeBroken {
			t.Fatalf("expected Broken with ErrMalformedResponse, got %+v, %v", out, err)
		}
	})

	t.Run("unknown confirmation status is malformed", func(t *testing.T) {
		g := &scriptedGateway{submitResp: accepted("req-7"), confirms: []confirmStep{status("ext_auth_required")}}
		e, _ := newTestEngine(g, cfg)

		out, err := e.Withdraw(ctx, testReceiver, rate)
		if !errors.Is(err, domain.ErrMalformedResponse) || out.Kind != model.OutcomeBroken {
			t.Fatalf("expected Broken with ErrMalformedResponse, got %+v, %v", out, err)
		}
		if g.confirmCalls != 1 {
			t.Errorf("expected no retry after unknown status, got %d calls", g.confirmCalls)
		}
	})

	t.Run("cancelled context during poll wait is Broken", func(t *testing.T) {
		g := &scriptedGateway{submitResp: accepted("req-8"), confirms: []confirmStep{status(model.TransferStatusInProgress)}}
		e := NewPayoutEngine(g, EngineConfig{MaxAttempts: 10, PollInterval: time.Hour}, nopLogger())

		cctx, cancel := context.WithCancel(ctx)
		time.AfterFunc(20*time.Millisecond, cancel)

		out, err := e.Withdraw(cctx, testReceiver, rate)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if out.Kind != model.OutcomeBroken || g.confirmCalls != 1 {
			t.Fatalf("expected Broken after 1 call, got %+v (%d calls)", out, g.confirmCalls)
		}
	})
}

func TestPayoutEngine_ConcurrentPayoutsDoNotBlockEachOther(t *testing.T) {
	// a slow payout polling with a real timer must not delay a fast one
	slow := &scriptedGateway{submitResp: accepted("slow"), confirms: []confirmStep{status(model.TransferStatusInProgress)}}
	fast := &scriptedGateway{submitResp: accepted("fast"), confirms: []confirmStep{status(model.TransferStatusSuccess)}}
	slowEngine := NewPayoutEngine(slow, EngineConfig{MaxAttempts: 3, PollInterval: 200 * time.Millisecond}, nopLogger())
	fastEngine := NewPayoutEngine(fast, EngineConfig{MaxAttempts: 3, PollInterval: 200 * time.Millisecond}, nopLogger())

	slowDone := make(chan model.PaymentOutcome, 1)
	go func() {
		out, _ := slowEngine.Withdraw(context.Background(), testReceiver, decimal.NewFromInt(1))
		slowDone <- out
	}()

	start := time.Now()
	out, err := fastEngine.Withdraw(context.Background(), testReceiver, decimal.NewFromInt(1))
	if err != nil || out.Kind != model.OutcomeSucceeded {
		t.Fatalf("fast payout: %+v, %v", out, err)
	}
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("fast payout waited on the slow one: %s", elapsed)
	}

	select {
	case o := <-slowDone:
		if o.Kind != model.OutcomeBroken {
			t.Errorf("expected slow payout to exhaust attempts, got %s", o.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("slow payout did not finish")
	}
}

func TestSleepCtx(t *testing.T) {
	if err := sleepCtx(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepCtx(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
