package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// TxBeginner is satisfied by *sqlx.DB.
type TxBeginner interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// TxFunc is the unit of work executed inside a transaction.
type TxFunc func(ctx context.Context, exec sqlx.ExtContext) error

// TxRunner executes units of work in a single transaction bounded by a timeout.
// A failing unit is rolled back wholesale; nothing is retried internally.
type TxRunner struct {
	db      TxBeginner
	timeout time.Duration
}

// NewTxRunner builds a runner. A non-positive timeout disables the deadline.
func NewTxRunner(db TxBeginner, timeout time.Duration) *TxRunner {
	return &TxRunner{db: db, timeout: timeout}
}

// WithinTx runs fn in a transaction, committing when it returns nil.
func (r *TxRunner) WithinTx(ctx context.Context, fn TxFunc) (err error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
