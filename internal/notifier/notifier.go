// Package notifier forwards ledger and withdrawal state changes to the
// external real-time channel. Delivery is best effort: a failed publish is
// logged and never fails the money operation that triggered it.
package notifier

import (
	"context"

	"github.com/shopspring/decimal"
)

type Notifier interface {
	BalanceChanged(ctx context.Context, userID int64, newBalance decimal.Decimal)
	WithdrawalResolved(ctx context.Context, userID int64, requestID int64, status string)
	OrderSettled(ctx context.Context, orderID int64, buyerID int64, artistShares map[int64]decimal.Decimal)
}

type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (*Noop) BalanceChanged(context.Context, int64, decimal.Decimal) {}

func (*Noop) WithdrawalResolved(context.Context, int64, int64, string) {}

func (*Noop) OrderSettled(context.Context, int64, int64, map[int64]decimal.Decimal) {}
