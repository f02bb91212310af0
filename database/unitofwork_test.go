package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"rewardsvault/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:uow_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := OpenSQLite(dsn)
	require.NoError(t, err)
	return db
}

func TestUnitOfWork_CommitsOnSuccess(t *testing.T) {
	db := newTestDB(t)
	uow := NewUnitOfWork(db, "serializable")

	err := uow.Do(context.Background(), func(tx *gorm.DB) error {
		return tx.Create(&models.Wallet{UserID: 1, Balance: decimal.NewFromInt(10), Currency: "INR"}).Error
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.Wallet{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUnitOfWork_RollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	uow := NewUnitOfWork(db, "")
	boom := errors.New("boom")

	err := uow.Do(context.Background(), func(tx *gorm.DB) error {
		if err := tx.Create(&models.Wallet{UserID: 1, Currency: "INR"}).Error; err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, db.Model(&models.Wallet{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestUnitOfWork_RetriesSerializationFailures(t *testing.T) {
	db := newTestDB(t)
	uow := NewUnitOfWork(db, "serializable")

	calls := 0
	err := uow.Do(context.Background(), func(tx *gorm.DB) error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestUnitOfWork_GivesUpAfterMaxAttempts(t *testing.T) {
	db := newTestDB(t)
	uow := NewUnitOfWork(db, "serializable")

	calls := 0
	err := uow.Do(context.Background(), func(tx *gorm.DB) error {
		calls++
		return fmt.Errorf("update wallet: %w", &pgconn.PgError{Code: "40P01"})
	})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, maxTxAttempts, calls)
}

func TestUnitOfWork_DoesNotRetryOtherErrors(t *testing.T) {
	db := newTestDB(t)
	uow := NewUnitOfWork(db, "serializable")

	calls := 0
	err := uow.Do(context.Background(), func(tx *gorm.DB) error {
		calls++
		return &pgconn.PgError{Code: "23505"}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWalletBalanceCheckConstraint(t *testing.T) {
	db := newTestDB(t)
	w := models.Wallet{UserID: 7, Balance: decimal.NewFromInt(5), Currency: "INR"}
	require.NoError(t, db.Create(&w).Error)

	err := db.Model(&models.Wallet{}).Where("id = ?", w.ID).Update("balance", decimal.NewFromInt(-1)).Error
	assert.Error(t, err)
}

func TestParseIsolation(t *testing.T) {
	assert.Equal(t, sql.LevelSerializable, ParseIsolation("serializable"))
	assert.Equal(t, sql.LevelRepeatableRead, ParseIsolation("repeatable_read"))
	assert.Equal(t, sql.LevelReadCommitted, ParseIsolation("read_committed"))
	assert.Equal(t, sql.LevelReadCommitted, ParseIsolation("bogus"))
}
