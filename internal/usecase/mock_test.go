//go:build !integration

package usecase_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"telegram-reaction-payout/internal/domain"
	"telegram-reaction-payout/internal/domain/model"
	"telegram-reaction-payout/internal/domain/ports/adapter"
	"telegram-reaction-payout/internal/domain/ports/repository"
	"telegram-reaction-payout/internal/usecase"
)

func newTestLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

// =============================
// Adapters
// =============================

// ---- Mock TelegramBotAdapter ----

type sentMessage struct {
	ChatID int64
	Text   string
}

type MockTelegramBot struct {
	mu   sync.Mutex
	Sent []sentMessage

	// Delivered receives every message after it is recorded, when non-nil.
	Delivered chan sentMessage

	SendMessageFunc func(ctx context.Context, telegramID int64, text string) error
}

var _ adapter.TelegramBotAdapter = (*MockTelegramBot)(nil)

func (m *MockTelegramBot) SendMessage(ctx context.Context, telegramID int64, text string) error {
	var err error
	if m.SendMessageFunc != nil {
		err = m.SendMessageFunc(ctx, telegramID, text)
	}
	msg := sentMessage{ChatID: telegramID, Text: text}
	m.mu.Lock()
	m.Sent = append(m.Sent, msg)
	m.mu.Unlock()
	if m.Delivered != nil {
		m.Delivered <- msg
	}
	return err
}

func (m *MockTelegramBot) messages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.Sent...)
}

// ---- Mock Locker ----

// MockLocker honours ttl against its own clock; advance moves the clock.
type MockLocker struct {
	mu        sync.Mutex
	held      map[string]heldLock
	now       time.Time
	locks     int
	refreshes int

	TryLockFunc func(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type heldLock struct {
	token   string
	expires time.Time
}

var _ adapter.Locker = (*MockLocker)(nil)

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]heldLock{}, now: time.Now()}
}

// current drops expired keys; callers hold m.mu.
func (m *MockLocker) current(key string) (heldLock, bool) {
	h, ok := m.held[key]
	if ok && !m.now.Before(h.expires) {
		delete(m.held, key)
		return heldLock{}, false
	}
	return h, ok
}

func (m *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if m.TryLockFunc != nil {
		return m.TryLockFunc(ctx, key, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.current(key); ok {
		return "", domain.ErrPayoutInFlight
	}
	token := uuid.NewString()
	m.held[key] = heldLock{token: token, expires: m.now.Add(ttl)}
	m.locks++
	return token, nil
}

func (m *MockLocker) Unlock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.current(key); ok && h.token == token {
		delete(m.held, key)
	}
	return nil
}

func (m *MockLocker) Refresh(ctx context.Context, key, token string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes++
	if h, ok := m.current(key); ok && h.token != token {
		return domain.ErrPayoutInFlight
	}
	m.held[key] = heldLock{token: token, expires: m.now.Add(ttl)}
	return nil
}

func (m *MockLocker) advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func (m *MockLocker) isHeld(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.current(key)
	return ok
}

func (m *MockLocker) refreshCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshes
}

// ---- Mock Withdrawer ----

type MockWithdrawer struct {
	mu    sync.Mutex
	calls []withdrawCall

	WithdrawFunc func(ctx context.Context, r model.Receiver, rate decimal.Decimal) (model.PaymentOutcome, error)
}

type withdrawCall struct {
	Receiver model.Receiver
	Rate     decimal.Decimal
}

var _ usecase.Withdrawer = (*MockWithdrawer)(nil)

func (m *MockWithdrawer) Withdraw(ctx context.Context, r model.Receiver, rate decimal.Decimal) (model.PaymentOutcome, error) {
	m.mu.Lock()
	m.calls = append(m.calls, withdrawCall{Receiver: r, Rate: rate})
	m.mu.Unlock()
	if m.WithdrawFunc != nil {
		return m.WithdrawFunc(ctx, r, rate)
	}
	resp := model.TransferResponse{Status: model.TransferStatusSuccess, PaymentID: "pay-1"}
	return model.Succeeded(resp, "req-1", 1), nil
}

func (m *MockWithdrawer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// =============================
// Repositories
// =============================

// ---- Mock TransactionManager ----

type MockTxManager struct{}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func (MockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}

// ---- Mock PayoutRepository ----

type MockPayoutRepo struct {
	mu   sync.Mutex
	data map[string]*model.Payout

	SaveFunc     func(ctx context.Context, tx repository.Tx, p *model.Payout) error
	CompleteFunc func(ctx context.Context, tx repository.Tx, p *model.Payout) error
}

var _ repository.PayoutRepository = (*MockPayoutRepo)(nil)

func NewMockPayoutRepo() *MockPayoutRepo { return &MockPayoutRepo{data: map[string]*model.Payout{}} }

func (m *MockPayoutRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payout) error {
	if m.SaveFunc != nil {
		if err := m.SaveFunc(ctx, tx, p); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// same rule as the partial unique index on live accounts
	if isLive(p.Status) {
		for id, other := range m.data {
			if id != p.ID && other.Account == p.Account && isLive(other.Status) {
				return domain.ErrPayoutInFlight
			}
		}
	}
	cp := *p
	m.data[p.ID] = &cp
	return nil
}

func isLive(s model.PayoutStatus) bool {
	return s == model.PayoutStatusQueued || s == model.PayoutStatusProcessing
}

func (m *MockPayoutRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPayoutRepo) MarkProcessing(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.data[id]
	if !ok || p.Status != model.PayoutStatusQueued {
		return false, nil
	}
	p.Status = model.PayoutStatusProcessing
	return true, nil
}

func (m *MockPayoutRepo) Complete(ctx context.Context, tx repository.Tx, p *model.Payout) error {
	if m.CompleteFunc != nil {
		if err := m.CompleteFunc(ctx, tx, p); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.data[p.ID] = &cp
	return nil
}

func (m *MockPayoutRepo) ListByTelegramID(ctx context.Context, tx repository.Tx, tgID int64, limit int) ([]*model.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Payout
	for _, p := range m.data {
		if p.TelegramID == tgID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockPayoutRepo) ListQueuedOlderThan(ctx context.Context, tx repository.Tx, before time.Time, limit int) ([]*model.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Payout
	for _, p := range m.data {
		if p.Status == model.PayoutStatusQueued && p.CreatedAt.Before(before) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockPayoutRepo) HasLive(ctx context.Context, tx repository.Tx, account string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.data {
		if p.Account == account && isLive(p.Status) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockPayoutRepo) BreakStaleProcessing(ctx context.Context, tx repository.Tx, before time.Time, errText string, now time.Time, limit int) ([]*model.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Payout
	for _, p := range m.data {
		if limit > 0 && len(out) >= limit {
			break
		}
		if p.Status == model.PayoutStatusProcessing && p.UpdatedAt.Before(before) {
			p.Status = model.PayoutStatusBroken
			p.Error = errText
			p.UpdatedAt = now
			p.CompletedAt = &now
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockPayoutRepo) setStatus(id string, s model.PayoutStatus, updatedAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id].Status = s
	m.data[id].UpdatedAt = updatedAt
}

func (m *MockPayoutRepo) get(id string) *model.Payout {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.data[id]; ok {
		cp := *p
		return &cp
	}
	return nil
}
