package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	WithdrawStatusPending  = "PENDING"
	WithdrawStatusApproved = "APPROVED"
	WithdrawStatusRejected = "REJECTED"
)

// WithdrawRequest reserves its amount out of the wallet at request time.
// Rejection refunds the reservation; approval records the payout.
type WithdrawRequest struct {
	ID          int64            `json:"id" db:"id"`
	UserID      int64            `json:"-" db:"user_id"`
	Amount      decimal.Decimal  `json:"amount" db:"amount"`
	Received    *decimal.Decimal `json:"received,omitempty" db:"received"`
	Status      string           `json:"status" db:"status"`
	Note        *string          `json:"note,omitempty" db:"note"`
	RequestedAt time.Time        `json:"requested_at" db:"requested_at"`
	ProcessedAt *time.Time       `json:"processed_at,omitempty" db:"processed_at"`
}
