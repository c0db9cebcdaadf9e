package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types. Amounts are signed: credits positive, debits negative.
const (
	TxTypeDeposit         = "deposit"
	TxTypePurchase        = "purchase"
	TxTypeSale            = "sale"
	TxTypeWithdrawReserve = "withdraw_reserve"
	TxTypeWithdrawSuccess = "withdraw_success"
	TxTypeRefund          = "refund"
)

type Wallet struct {
	ID        int64           `json:"id" db:"id"`
	UserID    int64           `json:"user_id" db:"user_id"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// WalletTransaction is an append-only ledger entry. Rows are never updated
// or deleted; the wallet balance is a cached fold of these amounts.
type WalletTransaction struct {
	ID          int64           `json:"id" db:"id"`
	WalletID    int64           `json:"wallet_id" db:"wallet_id"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Type        string          `json:"type" db:"type"`
	Description string          `json:"description" db:"description"`
	ExternalRef *string         `json:"external_ref,omitempty" db:"external_ref"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}
