package adapter

import (
	"context"

	"github.com/shopspring/decimal"

	"telegram-reaction-payout/internal/domain/model"
)

// TransferClient is the port to a p2p transfer gateway. Implementations do not
// retry and do not interpret the payload status.
type TransferClient interface {
	Name() string

	// SubmitTransfer asks the gateway to prepare a p2p transfer to payee.
	// comment lands in the sender's history, message is shown to the payee.
	SubmitTransfer(ctx context.Context, payee string, amountDue decimal.Decimal, comment, message string) (model.TransferResponse, error)
	// ConfirmTransfer processes a transfer previously prepared by SubmitTransfer.
	ConfirmTransfer(ctx context.Context, requestID string) (model.TransferResponse, error)
}
