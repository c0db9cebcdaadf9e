package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/artmarket/artledger/internal/apperrors"
	"github.com/artmarket/artledger/internal/models"
	"github.com/shopspring/decimal"
)

type DepositRepository interface {
	CreateIntent(ctx context.Context, intent *models.DepositIntent) error
	SetCheckoutURL(ctx context.Context, externalRef, checkoutURL string) error
	GetIntentByRef(ctx context.Context, externalRef string) (models.DepositIntent, error)
	// Confirm credits the wallet and marks the intent PAID in one
	// transaction. A FAILED intent is confirmable too: the provider collected
	// the money, so a late confirmation must still credit no matter what
	// local bookkeeping did in the meantime. A replay against an already-PAID
	// intent returns ErrDuplicateExternalRef so callers can acknowledge it as
	// a no-op.
	Confirm(ctx context.Context, externalRef string) (models.DepositIntent, decimal.Decimal, error)
	MarkFailed(ctx context.Context, externalRef string) error
	ExpireStale(ctx context.Context, olderThan time.Time) (int64, error)
}

type depositRepo struct {
	db *sql.DB
}

func NewDepositRepository(db *sql.DB) DepositRepository {
	return &depositRepo{db: db}
}

func (r *depositRepo) CreateIntent(ctx context.Context, intent *models.DepositIntent) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO deposit_intents (external_ref, user_id, amount, status, checkout_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, intent.ExternalRef, intent.UserID, intent.Amount, intent.Status,
		intent.CheckoutURL, time.Now()).
		Scan(&intent.ID, &intent.CreatedAt)
}

func (r *depositRepo) SetCheckoutURL(ctx context.Context, externalRef, checkoutURL string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE deposit_intents SET checkout_url = $1 WHERE external_ref = $2
	`, checkoutURL, externalRef)
	return err
}

func (r *depositRepo) GetIntentByRef(ctx context.Context, externalRef string) (models.DepositIntent, error) {
	var intent models.DepositIntent
	err := r.db.QueryRowContext(ctx, `
		SELECT id, external_ref, user_id, amount, status, checkout_url, created_at, completed_at
		FROM deposit_intents WHERE external_ref = $1
	`, externalRef).Scan(&intent.ID, &intent.ExternalRef, &intent.UserID, &intent.Amount,
		&intent.Status, &intent.CheckoutURL, &intent.CreatedAt, &intent.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DepositIntent{}, apperrors.ErrUnknownReference
	}
	return intent, err
}

func (r *depositRepo) Confirm(ctx context.Context, externalRef string) (models.DepositIntent, decimal.Decimal, error) {
	var (
		intent     models.DepositIntent
		newBalance decimal.Decimal
	)
	err := withRetry(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			UPDATE deposit_intents SET status = $1, completed_at = $2
			WHERE external_ref = $3 AND status IN ($4, $5)
			RETURNING id, external_ref, user_id, amount, status, checkout_url, created_at, completed_at
		`, models.IntentStatusPaid, time.Now(), externalRef,
			models.IntentStatusCreated, models.IntentStatusFailed).
			Scan(&intent.ID, &intent.ExternalRef, &intent.UserID, &intent.Amount,
				&intent.Status, &intent.CheckoutURL, &intent.CreatedAt, &intent.CompletedAt)
		if errors.Is(err, sql.ErrNoRows) {
			var status string
			err := tx.QueryRowContext(ctx,
				`SELECT status FROM deposit_intents WHERE external_ref = $1`, externalRef).Scan(&status)
			if errors.Is(err, sql.ErrNoRows) {
				return apperrors.ErrUnknownReference
			}
			if err != nil {
				return err
			}
			if status == models.IntentStatusPaid {
				return apperrors.ErrDuplicateExternalRef
			}
			// Lost a race against a concurrent Confirm that has not committed.
			return apperrors.ErrAlreadyProcessed
		}
		if err != nil {
			return err
		}

		walletID, err := ensureWallet(ctx, tx, intent.UserID)
		if err != nil {
			return err
		}
		balance, err := lockWallet(ctx, tx, walletID)
		if err != nil {
			return err
		}

		ref := intent.ExternalRef
		_, newBalance, err = applyEntry(ctx, tx, balance, EntryParams{
			WalletID:    walletID,
			Amount:      intent.Amount,
			Type:        models.TxTypeDeposit,
			Description: fmt.Sprintf("deposit via provider, ref %s", ref),
			ExternalRef: &ref,
		})
		return err
	})
	if err != nil {
		return models.DepositIntent{}, decimal.Zero, err
	}
	return intent, newBalance, nil
}

func (r *depositRepo) MarkFailed(ctx context.Context, externalRef string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE deposit_intents SET status = $1, completed_at = $2
		WHERE external_ref = $3 AND status = $4
	`, models.IntentStatusFailed, time.Now(), externalRef, models.IntentStatusCreated)
	if err != nil {
		return err
	}
	// Zero affected rows means the intent already reached a terminal state;
	// callers verify the reference exists before calling.
	_, err = res.RowsAffected()
	return err
}

func (r *depositRepo) ExpireStale(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE deposit_intents SET status = $1, completed_at = $2
		WHERE status = $3 AND created_at < $4
	`, models.IntentStatusFailed, time.Now(), models.IntentStatusCreated, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
