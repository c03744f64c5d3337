package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"telegram-reaction-payout/internal/domain"
	"telegram-reaction-payout/internal/domain/model"
	"telegram-reaction-payout/internal/domain/ports/adapter"
)

var _ adapter.TransferClient = (*NoopTransferClient)(nil)

// NoopTransferClient is an in-memory gateway for dev mode and tests. Every transfer
// reports in_progress for PendingPolls confirmations and then succeeds.
type NoopTransferClient struct {
	PendingPolls int

	mu       sync.Mutex
	seq      int64
	requests map[string]*noopRequest // request id -> state, until settled
}

type noopRequest struct {
	payee  string
	amount decimal.Decimal
	polls  int
}

func NewNoopTransferClient(pendingPolls int) *NoopTransferClient {
	return &NoopTransferClient{
		PendingPolls: pendingPolls,
		requests:     make(map[string]*noopRequest),
	}
}

func (g *NoopTransferClient) Name() string { return "noop" }

func (g *NoopTransferClient) next() string {
	g.seq++
	return fmt.Sprintf("noop-%d", g.seq)
}

func (g *NoopTransferClient) SubmitTransfer(ctx context.Context, payee string, amountDue decimal.Decimal, comment, message string) (model.TransferResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !amountDue.IsPositive() {
		return model.TransferResponse{StatusCode: 200, Status: model.TransferStatusRefused, Error: "illegal_param_amount_due"}, nil
	}
	id := g.next()
	g.requests[id] = &noopRequest{payee: payee, amount: amountDue}
	return model.TransferResponse{StatusCode: 200, Status: model.TransferStatusSuccess, RequestID: id}, nil
}

func (g *NoopTransferClient) ConfirmTransfer(ctx context.Context, requestID string) (model.TransferResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.requests[requestID]
	if !ok {
		return model.TransferResponse{}, fmt.Errorf("%w: noop: request %s not found", domain.ErrMalformedResponse, requestID)
	}
	r.polls++
	if r.polls <= g.PendingPolls {
		return model.TransferResponse{StatusCode: 200, Status: model.TransferStatusInProgress, RequestID: requestID}, nil
	}
	// settled requests are forgotten
	delete(g.requests, requestID)
	return model.TransferResponse{
		StatusCode: 200,
		Status:     model.TransferStatusSuccess,
		RequestID:  requestID,
		PaymentID:  "pay-" + requestID,
	}, nil
}

func (g *NoopTransferClient) pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}
