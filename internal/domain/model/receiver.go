package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"telegram-reaction-payout/internal/domain"
)

// Receiver is the payee of a single payout. It is a value: the engine never mutates it.
type Receiver struct {
	Account    string // YooMoney wallet number, phone or email
	TelegramID int64
	Username   string
	Reactions  int64 // reward units accrued since the last payout
}

func NewReceiver(account string, tgID int64, username string, reactions int64) (Receiver, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return Receiver{}, fmt.Errorf("%w: empty payee account", domain.ErrInvalidArgument)
	}
	if tgID <= 0 {
		return Receiver{}, fmt.Errorf("%w: telegram id must be positive", domain.ErrInvalidArgument)
	}
	if reactions < 0 {
		return Receiver{}, fmt.Errorf("%w: negative reaction count", domain.ErrInvalidArgument)
	}
	return Receiver{
		Account:    account,
		TelegramID: tgID,
		Username:   strings.TrimSpace(username),
		Reactions:  reactions,
	}, nil
}

// AmountDue is Reactions * rate, computed exactly.
func (r Receiver) AmountDue(rate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(r.Reactions).Mul(rate)
}

// SenderComment is shown in the sender's operation history.
func (r Receiver) SenderComment() string {
	name := r.Username
	if name == "" {
		name = "no username"
	}
	return fmt.Sprintf("Payout to Telegram user %d (%s). %d reactions.", r.TelegramID, name, r.Reactions)
}

// PayeeMessage is shown to the payee.
func (r Receiver) PayeeMessage() string {
	return fmt.Sprintf("Payout for %d reactions.", r.Reactions)
}

// MaxRateScale is the number of decimal places a rate may carry.
const MaxRateScale = 8

// ParseRate parses a currency-per-reaction rate. The rate must be positive.
func ParseRate(s string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: rate %q: %v", domain.ErrInvalidArgument, s, err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: rate must be positive", domain.ErrInvalidArgument)
	}
	// the ledger stores NUMERIC(20,8); finer rates would be rounded on save
	if !rate.Truncate(MaxRateScale).Equal(rate) {
		return decimal.Zero, fmt.Errorf("%w: rate %q has more than %d decimal places", domain.ErrInvalidArgument, s, MaxRateScale)
	}
	return rate, nil
}
