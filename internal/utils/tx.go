package utils

import (
	"context"
	"database/sql"

	"github.com/sirupsen/logrus"
)

// DBTX is the subset of database/sql used by repositories.
// Both *sql.DB and *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTransaction runs fn inside a transaction, committing on success and
// rolling back on error or panic. Panics are rethrown.
func WithTransaction(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	logrus.Debug("Transaction started")

	defer func() {
		if r := recover(); r != nil {
			logrus.Warn("Panic occurred, rolling back transaction")
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		logrus.WithError(err).Debug("Error occurred, rolling back transaction")
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	logrus.Debug("Transaction committed successfully")
	return nil
}
