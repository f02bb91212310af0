package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	maxTxAttempts = 3
	baseTxBackoff = 25 * time.Millisecond
)

// UnitOfWork is the only place money-moving code opens a transaction.
// Everything done through the tx handle passed to fn commits or rolls back together.
type UnitOfWork struct {
	db        *gorm.DB
	isolation sql.IsolationLevel
	useTxOpts bool
}

// NewUnitOfWork builds a UnitOfWork over db. isolation is one of
// read_committed, repeatable_read or serializable; SQLite ignores it.
func NewUnitOfWork(db *gorm.DB, isolation string) *UnitOfWork {
	return &UnitOfWork{
		db:        db,
		isolation: ParseIsolation(isolation),
		useTxOpts: db.Dialector.Name() != "sqlite",
	}
}

// DB returns the non-transactional handle for reads.
func (u *UnitOfWork) DB() *gorm.DB {
	return u.db
}

// Do runs fn in a transaction. Serialization failures and deadlocks are
// retried with backoff; any other error rolls back and is returned as is.
func (u *UnitOfWork) Do(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var opts []*sql.TxOptions
	if u.useTxOpts {
		opts = append(opts, &sql.TxOptions{Isolation: u.isolation})
	}

	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = u.db.WithContext(ctx).Transaction(fn, opts...)
		if err == nil || !IsRetryable(err) || attempt == maxTxAttempts {
			return err
		}

		wait := baseTxBackoff << (attempt - 1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return err
}

// IsRetryable reports whether err is a postgres serialization failure (40001)
// or deadlock (40P01).
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// ParseIsolation maps a DB_ISOLATION value to a sql.IsolationLevel.
func ParseIsolation(name string) sql.IsolationLevel {
	switch name {
	case "serializable":
		return sql.LevelSerializable
	case "repeatable_read":
		return sql.LevelRepeatableRead
	default:
		return sql.LevelReadCommitted
	}
}
