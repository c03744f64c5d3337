package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is the infra-defined transaction handle (pgx.Tx for Postgres).
// Repositories MUST accept nil for the non-transactional path.
type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside one database transaction and hands the
// handle to repositories through tx. Returning an error rolls back.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
