package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderStatusPending = "PENDING"
	OrderStatusPaid    = "PAID"
)

const PaymentMethodWallet = "wallet"

type Order struct {
	ID        int64           `json:"id" db:"id"`
	BuyerID   int64           `json:"-" db:"buyer_id"`
	Total     decimal.Decimal `json:"total" db:"total"`
	Status    string          `json:"status" db:"status"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	Details   []OrderDetail   `json:"details,omitempty"`
}

type OrderDetail struct {
	ID        int64           `json:"id" db:"id"`
	OrderID   int64           `json:"-" db:"order_id"`
	ProductID int64           `json:"product_id" db:"product_id"`
	ArtistID  int64           `json:"artist_id" db:"artist_id"`
	Price     decimal.Decimal `json:"price" db:"price"`
}

// Payment is the receipt written once per settled order.
type Payment struct {
	ID        int64           `json:"id" db:"id"`
	OrderID   int64           `json:"order_id" db:"order_id"`
	Method    string          `json:"method" db:"method"`
	Provider  string          `json:"provider" db:"provider"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}
