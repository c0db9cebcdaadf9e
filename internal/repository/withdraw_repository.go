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
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type WithdrawRepository interface {
	// CreateWithReserve debits the wallet and files the PENDING request in
	// one transaction, so the reserved funds are out of the spendable
	// balance the moment the request exists.
	CreateWithReserve(ctx context.Context, userID int64, amount decimal.Decimal) (models.WithdrawRequest, decimal.Decimal, error)
	GetByID(ctx context.Context, requestID int64) (models.WithdrawRequest, error)
	Resolve(ctx context.Context, requestID int64, approve bool, note string) (models.WithdrawRequest, decimal.Decimal, error)
	ListByUser(ctx context.Context, userID int64) ([]models.WithdrawRequest, error)
	ListPending(ctx context.Context) ([]models.WithdrawRequest, error)
}

type withdrawRepo struct {
	db *sql.DB
}

func NewWithdrawRepository(db *sql.DB) WithdrawRepository {
	return &withdrawRepo{db: db}
}

func (r *withdrawRepo) CreateWithReserve(ctx context.Context, userID int64, amount decimal.Decimal) (models.WithdrawRequest, decimal.Decimal, error) {
	var (
		request    models.WithdrawRequest
		newBalance decimal.Decimal
	)
	err := withRetry(ctx, r.db, func(tx *sql.Tx) error {
		var walletID int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM wallets WHERE user_id = $1`, userID).Scan(&walletID)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.ErrInsufficientFunds
		}
		if err != nil {
			return err
		}

		balance, err := lockWallet(ctx, tx, walletID)
		if err != nil {
			return err
		}

		err = tx.QueryRowContext(ctx, `
			INSERT INTO withdraw_requests (user_id, amount, status, requested_at)
			VALUES ($1, $2, $3, $4)
			RETURNING id, user_id, amount, received, status, note, requested_at, processed_at
		`, userID, amount, models.WithdrawStatusPending, time.Now()).
			Scan(&request.ID, &request.UserID, &request.Amount, &request.Received,
				&request.Status, &request.Note, &request.RequestedAt, &request.ProcessedAt)
		if err != nil {
			return err
		}

		_, newBalance, err = applyEntry(ctx, tx, balance, EntryParams{
			WalletID:    walletID,
			Amount:      amount.Neg(),
			Type:        models.TxTypeWithdrawReserve,
			Description: fmt.Sprintf("reserve for withdrawal request %d", request.ID),
		})
		return err
	})
	if err != nil {
		return models.WithdrawRequest{}, decimal.Zero, err
	}
	return request, newBalance, nil
}

func (r *withdrawRepo) GetByID(ctx context.Context, requestID int64) (models.WithdrawRequest, error) {
	var request models.WithdrawRequest
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, amount, received, status, note, requested_at, processed_at
		FROM withdraw_requests WHERE id = $1
	`, requestID).Scan(&request.ID, &request.UserID, &request.Amount, &request.Received,
		&request.Status, &request.Note, &request.RequestedAt, &request.ProcessedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.WithdrawRequest{}, apperrors.ErrNotFound
	}
	return request, err
}

// Resolve moves a PENDING request to its terminal state. The status
// compare-and-swap guarantees a decision lands exactly once: a second call
// sees zero updated rows and reports ErrAlreadyProcessed.
func (r *withdrawRepo) Resolve(ctx context.Context, requestID int64, approve bool, note string) (models.WithdrawRequest, decimal.Decimal, error) {
	status := models.WithdrawStatusRejected
	if approve {
		status = models.WithdrawStatusApproved
	}

	var (
		request    models.WithdrawRequest
		newBalance decimal.Decimal
	)
	err := withRetry(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			UPDATE withdraw_requests
			SET status = $1, note = NULLIF($2, ''), processed_at = $3,
			    received = CASE WHEN $1 = 'APPROVED' THEN amount ELSE NULL END
			WHERE id = $4 AND status = $5
			RETURNING id, user_id, amount, received, status, note, requested_at, processed_at
		`, status, note, time.Now(), requestID, models.WithdrawStatusPending).
			Scan(&request.ID, &request.UserID, &request.Amount, &request.Received,
				&request.Status, &request.Note, &request.RequestedAt, &request.ProcessedAt)
		if errors.Is(err, sql.ErrNoRows) {
			var existing string
			err := tx.QueryRowContext(ctx,
				`SELECT status FROM withdraw_requests WHERE id = $1`, requestID).Scan(&existing)
			if errors.Is(err, sql.ErrNoRows) {
				return apperrors.ErrNotFound
			}
			if err != nil {
				return err
			}
			return apperrors.ErrAlreadyProcessed
		}
		if err != nil {
			return err
		}

		var walletID int64
		err = tx.QueryRowContext(ctx,
			`SELECT id FROM wallets WHERE user_id = $1`, request.UserID).Scan(&walletID)
		if err != nil {
			return err
		}
		balance, err := lockWallet(ctx, tx, walletID)
		if err != nil {
			return err
		}

		if approve {
			// The reserve already debited the balance; this zero-amount
			// entry documents the payout leaving the platform.
			_, newBalance, err = applyEntry(ctx, tx, balance, EntryParams{
				WalletID:    walletID,
				Amount:      decimal.Zero,
				Type:        models.TxTypeWithdrawSuccess,
				Description: fmt.Sprintf("payout of %s for withdrawal request %d", request.Amount.String(), request.ID),
			})
			return err
		}

		_, newBalance, err = applyEntry(ctx, tx, balance, EntryParams{
			WalletID:    walletID,
			Amount:      request.Amount,
			Type:        models.TxTypeRefund,
			Description: fmt.Sprintf("refund of rejected withdrawal request %d", request.ID),
		})
		return err
	})
	if err != nil {
		return models.WithdrawRequest{}, decimal.Zero, err
	}
	return request, newBalance, nil
}

func (r *withdrawRepo) ListByUser(ctx context.Context, userID int64) ([]models.WithdrawRequest, error) {
	return r.list(ctx, `
		SELECT id, user_id, amount, received, status, note, requested_at, processed_at
		FROM withdraw_requests WHERE user_id = $1 ORDER BY requested_at DESC
	`, userID)
}

func (r *withdrawRepo) ListPending(ctx context.Context) ([]models.WithdrawRequest, error) {
	return r.list(ctx, `
		SELECT id, user_id, amount, received, status, note, requested_at, processed_at
		FROM withdraw_requests WHERE status = $1 ORDER BY requested_at
	`, models.WithdrawStatusPending)
}

func (r *withdrawRepo) list(ctx context.Context, query string, args ...any) ([]models.WithdrawRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.Log.Error("failed to query withdrawal requests", zap.Error(err))
		return nil, err
	}
	defer func(rows *sql.Rows) {
		err := rows.Close()
		if err != nil {
			logger.Log.Error("failed to close rows", zap.Error(err))
		}
	}(rows)

	var requests []models.WithdrawRequest
	for rows.Next() {
		var request models.WithdrawRequest
		if err := rows.Scan(&request.ID, &request.UserID, &request.Amount, &request.Received,
			&request.Status, &request.Note, &request.RequestedAt, &request.ProcessedAt); err != nil {
			logger.Log.Error("failed to scan withdrawal request", zap.Error(err))
			return nil, err
		}
		requests = append(requests, request)
	}
	return requests, rows.Err()
}
