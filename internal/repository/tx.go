package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/artmarket/artledger/internal/apperrors"
	"github.com/artmarket/artledger/internal/logger"
	"github.com/artmarket/artledger/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxTxRetries = 3

// withRetry runs fn in a fresh transaction, retrying a bounded number of
// times when Postgres reports a serialization failure or deadlock.
func withRetry(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err = runInTx(ctx, db, fn)
		if !isRetryable(err) {
			return err
		}
		logger.Log.Warn("retrying ledger transaction after conflict",
			zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return fmt.Errorf("%w: %v", apperrors.ErrTransient, err)
}

func runInTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logger.Log.Error("rollback error", zap.Error(rbErr))
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	err = tx.Commit()
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func mapEntryError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return apperrors.ErrDuplicateExternalRef
		case "23514":
			// balance CHECK violation; a backstop behind the explicit check
			return apperrors.ErrInsufficientFunds
		}
	}
	return err
}

// lockWallet reads the wallet row under FOR UPDATE so concurrent entries on
// the same wallet serialize. Callers touching several wallets must lock them
// in ascending wallet id order.
func lockWallet(ctx context.Context, tx *sql.Tx, walletID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.QueryRowContext(ctx,
		`SELECT balance FROM wallets WHERE id = $1 FOR UPDATE`, walletID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, apperrors.ErrNotFound
	}
	return balance, err
}

// applyEntry appends one ledger row and moves the cached balance by the same
// signed amount. The wallet row must already be locked in this transaction.
func applyEntry(ctx context.Context, tx *sql.Tx, balance decimal.Decimal, p EntryParams) (models.WalletTransaction, decimal.Decimal, error) {
	newBalance := balance.Add(p.Amount)
	if newBalance.IsNegative() {
		return models.WalletTransaction{}, balance, apperrors.ErrInsufficientFunds
	}

	var entry models.WalletTransaction
	err := tx.QueryRowContext(ctx, `
		INSERT INTO wallet_transactions (wallet_id, amount, type, description, external_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, wallet_id, amount, type, description, external_ref, created_at
	`, p.WalletID, p.Amount, p.Type, p.Description, p.ExternalRef, time.Now()).
		Scan(&entry.ID, &entry.WalletID, &entry.Amount, &entry.Type,
			&entry.Description, &entry.ExternalRef, &entry.CreatedAt)
	if err != nil {
		return models.WalletTransaction{}, balance, mapEntryError(err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE wallets SET balance = $1 WHERE id = $2`, newBalance, p.WalletID)
	if err != nil {
		return models.WalletTransaction{}, balance, mapEntryError(err)
	}

	return entry, newBalance, nil
}

// ensureWallet creates the user's wallet inside tx if it does not exist yet
// and returns its id. Wallets are created lazily on first credit.
func ensureWallet(ctx context.Context, tx *sql.Tx, userID int64) (int64, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallets (user_id, balance, created_at)
		VALUES ($1, 0, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, time.Now())
	if err != nil {
		return 0, err
	}

	var walletID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM wallets WHERE user_id = $1`, userID).Scan(&walletID)
	return walletID, err
}
