package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/artmarket/artledger/internal/apperrors"
	"github.com/artmarket/artledger/internal/logger"
	"github.com/artmarket/artledger/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EntryParams describes one signed ledger movement against a wallet.
type EntryParams struct {
	WalletID    int64
	Amount      decimal.Decimal
	Type        string
	Description string
	ExternalRef *string
}

type WalletRepository interface {
	CreateWalletIfAbsent(ctx context.Context, userID int64) (models.Wallet, error)
	GetWalletByUserID(ctx context.Context, userID int64) (models.Wallet, error)
	GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error)
	ApplyEntry(ctx context.Context, params EntryParams) (models.WalletTransaction, decimal.Decimal, error)
	GetTransactions(ctx context.Context, walletID int64) ([]models.WalletTransaction, error)
}

type walletRepo struct {
	db *sql.DB
}

func NewWalletRepository(db *sql.DB) WalletRepository {
	return &walletRepo{db: db}
}

func (r *walletRepo) CreateWalletIfAbsent(ctx context.Context, userID int64) (models.Wallet, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO wallets (user_id, balance, created_at)
		VALUES ($1, 0, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, time.Now())
	if err != nil {
		logger.Log.Error("failed to create wallet", zap.Int64("user", userID), zap.Error(err))
		return models.Wallet{}, err
	}
	return r.GetWalletByUserID(ctx, userID)
}

func (r *walletRepo) GetWalletByUserID(ctx context.Context, userID int64) (models.Wallet, error) {
	var w models.Wallet
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, balance, created_at FROM wallets WHERE user_id = $1
	`, userID).Scan(&w.ID, &w.UserID, &w.Balance, &w.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Wallet{}, apperrors.ErrNotFound
	}
	return w, err
}

func (r *walletRepo) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.db.QueryRowContext(ctx,
		`SELECT balance FROM wallets WHERE user_id = $1`, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		// No wallet yet means nothing was ever credited.
		return decimal.Zero, nil
	}
	if err != nil {
		logger.Log.Error("failed to get balance", zap.Error(err))
		return decimal.Zero, err
	}
	return balance, nil
}

func (r *walletRepo) ApplyEntry(ctx context.Context, params EntryParams) (models.WalletTransaction, decimal.Decimal, error) {
	var (
		entry      models.WalletTransaction
		newBalance decimal.Decimal
	)
	err := withRetry(ctx, r.db, func(tx *sql.Tx) error {
		balance, err := lockWallet(ctx, tx, params.WalletID)
		if err != nil {
			return err
		}
		entry, newBalance, err = applyEntry(ctx, tx, balance, params)
		return err
	})
	if err != nil {
		return models.WalletTransaction{}, decimal.Zero, err
	}
	return entry, newBalance, nil
}

func (r *walletRepo) GetTransactions(ctx context.Context, walletID int64) ([]models.WalletTransaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, wallet_id, amount, type, description, external_ref, created_at
		FROM wallet_transactions WHERE wallet_id = $1 ORDER BY created_at DESC, id DESC
	`, walletID)
	if err != nil {
		logger.Log.Error("failed to query transactions", zap.Error(err))
		return nil, err
	}
	defer func(rows *sql.Rows) {
		err := rows.Close()
		if err != nil {
			logger.Log.Error("failed to close rows", zap.Error(err))
		}
	}(rows)

	var entries []models.WalletTransaction
	for rows.Next() {
		var e models.WalletTransaction
		if err := rows.Scan(&e.ID, &e.WalletID, &e.Amount, &e.Type,
			&e.Description, &e.ExternalRef, &e.CreatedAt); err != nil {
			logger.Log.Error("failed to scan transaction", zap.Error(err))
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
