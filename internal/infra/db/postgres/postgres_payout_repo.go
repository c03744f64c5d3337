package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"telegram-reaction-payout/internal/domain"
	"telegram-reaction-payout/internal/domain/model"
	"telegram-reaction-payout/internal/domain/ports/repository"
)

var _ repository.PayoutRepository = (*payoutRepo)(nil)

type payoutRepo struct{ pool *pgxpool.Pool }

func NewPayoutRepo(pool *pgxpool.Pool) *payoutRepo {
	return &payoutRepo{pool: pool}
}

// numeric columns travel as text so decimal values keep their exact scale
const payoutColumns = `id, telegram_id, username, account, reactions, rate::text, amount::text, currency, status,
  request_id, payment_id, attempts, error, created_at, updated_at, completed_at`

func (r *payoutRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payout) error {
	const q = `
INSERT INTO payouts (
  id, telegram_id, username, account, reactions, rate, amount, currency, status,
  request_id, payment_id, attempts, error, created_at, updated_at, completed_at
) VALUES (
  $1,$2,$3,$4,$5,$6::numeric,$7::numeric,$8,$9,$10,$11,$12,$13,$14,$15,$16
) ON CONFLICT (id) DO UPDATE SET
  status=$9, request_id=$10, payment_id=$11, attempts=$12, error=$13, updated_at=$15, completed_at=$16;`

	_, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.TelegramID, p.Username, p.Account, p.Reactions, p.Rate.String(), p.Amount.String(), p.Currency, string(p.Status),
		p.RequestID, p.PaymentID, p.Attempts, p.Error, p.CreatedAt, p.UpdatedAt, p.CompletedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == liveAccountIndex {
			return fmt.Errorf("%w: account %s", domain.ErrPayoutInFlight, p.Account)
		}
		return storageErr(err)
	}
	return nil
}

const (
	uniqueViolation  = "23505"
	liveAccountIndex = "uq_payouts_live_account"
)

func (r *payoutRepo) HasLive(ctx context.Context, tx repository.Tx, account string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM payouts WHERE account=$1 AND status IN ('queued','processing'));`
	row, err := pickRow(ctx, r.pool, tx, q, account)
	if err != nil {
		return false, err
	}
	var live bool
	if err := row.Scan(&live); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return live, nil
}

// BreakStaleProcessing closes payouts whose worker died mid-confirmation.
func (r *payoutRepo) BreakStaleProcessing(ctx context.Context, tx repository.Tx, before time.Time, errText string, now time.Time, limit int) ([]*model.Payout, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `
    UPDATE payouts
       SET status = 'broken',
           error = $2,
           updated_at = $3,
           completed_at = $3
     WHERE id IN (
           SELECT id FROM payouts
            WHERE status = 'processing' AND updated_at < $1
            ORDER BY updated_at ASC
            LIMIT $4
              FOR UPDATE SKIP LOCKED)
    RETURNING ` + payoutColumns + `;`
	return r.list(ctx, tx, q, before, errText, now, limit)
}

func (r *payoutRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payout, error) {
	q := `SELECT ` + payoutColumns + ` FROM payouts WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}

	p, err := scanPayout(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

// MarkProcessing atomically moves a payout from queued to processing.
func (r *payoutRepo) MarkProcessing(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	const q = `
    UPDATE payouts
       SET status = 'processing',
           updated_at = NOW()
     WHERE id = $1
       AND status = 'queued';`

	cmd, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		return false, storageErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *payoutRepo) Complete(ctx context.Context, tx repository.Tx, p *model.Payout) error {
	if !p.Status.IsTerminal() {
		return fmt.Errorf("%w: status %s is not terminal", domain.ErrInvalidArgument, p.Status)
	}
	const q = `
    UPDATE payouts
       SET status = $2,
           request_id = $3,
           payment_id = $4,
           attempts = $5,
           error = $6,
           updated_at = $7,
           completed_at = $8
     WHERE id = $1
       AND status = 'processing';`

	cmd, err := execSQL(ctx, r.pool, tx, q, p.ID, string(p.Status), p.RequestID, p.PaymentID, p.Attempts, p.Error, p.UpdatedAt, p.CompletedAt)
	if err != nil {
		return storageErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: payout %s is not processing", domain.ErrNotFound, p.ID)
	}
	return nil
}

func (r *payoutRepo) ListByTelegramID(ctx context.Context, tx repository.Tx, tgID int64, limit int) ([]*model.Payout, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT ` + payoutColumns + ` FROM payouts WHERE telegram_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2;`
	return r.list(ctx, tx, q, tgID, limit)
}

func (r *payoutRepo) ListQueuedOlderThan(ctx context.Context, tx repository.Tx, before time.Time, limit int) ([]*model.Payout, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + payoutColumns + ` FROM payouts WHERE status='queued' AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	return r.list(ctx, tx, q, before, limit)
}

func (r *payoutRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Payout, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var out []*model.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}

func scanPayout(row pgx.Row) (*model.Payout, error) {
	var (
		p            model.Payout
		status       string
		rate, amount string
	)
	if err := row.Scan(&p.ID, &p.TelegramID, &p.Username, &p.Account, &p.Reactions, &rate, &amount, &p.Currency, &status,
		&p.RequestID, &p.PaymentID, &p.Attempts, &p.Error, &p.CreatedAt, &p.UpdatedAt, &p.CompletedAt); err != nil {
		return nil, err
	}
	var err error
	if p.Rate, err = decimal.NewFromString(rate); err != nil {
		return nil, err
	}
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	p.Status = model.PayoutStatus(status)
	return &p, nil
}
