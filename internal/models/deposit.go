package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	IntentStatusCreated = "CREATED"
	IntentStatusPaid    = "PAID"
	IntentStatusFailed  = "FAILED"
)

// DepositIntent correlates a provider checkout with the later callback.
// The wallet is credited only when the callback confirms payment.
type DepositIntent struct {
	ID          int64           `json:"id" db:"id"`
	ExternalRef string          `json:"external_ref" db:"external_ref"`
	UserID      int64           `json:"-" db:"user_id"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Status      string          `json:"status" db:"status"`
	CheckoutURL string          `json:"checkout_url" db:"checkout_url"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}
