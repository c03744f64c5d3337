package model

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

type PayoutStatus string

const (
	PayoutStatusQueued     PayoutStatus = "queued"     // accepted, waiting for a worker
	PayoutStatusProcessing PayoutStatus = "processing" // engine is talking to the gateway
	PayoutStatusSucceeded  PayoutStatus = "succeeded"
	PayoutStatusRefused    PayoutStatus = "refused"
	PayoutStatusBroken     PayoutStatus = "broken"
)

func (s PayoutStatus) IsTerminal() bool {
	switch s {
	case PayoutStatusSucceeded, PayoutStatusRefused, PayoutStatusBroken:
		return true
	}
	return false
}

// Payout is the ledger record of one withdrawal.
type Payout struct {
	ID          string // ULID
	TelegramID  int64
	Username    string
	Account     string
	Reactions   int64
	Rate        decimal.Decimal
	Amount      decimal.Decimal // Reactions * Rate
	Currency    string          // always RUB for YooMoney
	Status      PayoutStatus
	RequestID   string // gateway request id once submitted
	PaymentID   string // gateway payment id on success
	Attempts    int    // confirmation calls made
	Error       string // gateway error code or local error text
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

func NewPayout(r Receiver, rate decimal.Decimal, now time.Time) *Payout {
	return &Payout{
		ID:         ulid.Make().String(),
		TelegramID: r.TelegramID,
		Username:   r.Username,
		Account:    r.Account,
		Reactions:  r.Reactions,
		Rate:       rate,
		Amount:     r.AmountDue(rate),
		Currency:   "RUB",
		Status:     PayoutStatusQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (p *Payout) Receiver() Receiver {
	return Receiver{
		Account:    p.Account,
		TelegramID: p.TelegramID,
		Username:   p.Username,
		Reactions:  p.Reactions,
	}
}

// Complete moves the payout to the terminal status matching the outcome.
func (p *Payout) Complete(o PaymentOutcome, errText string, now time.Time) {
	p.Status = StatusFromOutcome(o.Kind)
	p.RequestID = o.RequestID
	p.Attempts = o.Attempts
	p.Error = errText
	if o.Response != nil {
		p.PaymentID = o.Response.PaymentID
		if p.Error == "" {
			p.Error = o.Response.Error
		}
	}
	p.UpdatedAt = now
	p.CompletedAt = &now
}

func StatusFromOutcome(k OutcomeKind) PayoutStatus {
	switch k {
	case OutcomeSucceeded:
		return PayoutStatusSucceeded
	case OutcomeRefused:
		return PayoutStatusRefused
	default:
		return PayoutStatusBroken
	}
}
