package lifecycle

import (
	"context"
	"database/sql"

	"villageops/pkg/platform/tx"
)

// SQLStoreTx wraps fn in a database transaction and places the *sql.Tx in the
// context so the entity store and audit store share it.
type SQLStoreTx struct {
	db *sql.DB
}

// NewSQLStoreTx builds a StoreTx over a live database handle.
func NewSQLStoreTx(db *sql.DB) *SQLStoreTx {
	return &SQLStoreTx{db: db}
}

func (s *SQLStoreTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx.WithTx(ctx, dbTx)); err != nil {
		_ = dbTx.Rollback()
		return err
	}
	return dbTx.Commit()
}
