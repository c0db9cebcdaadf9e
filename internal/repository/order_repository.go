package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/artmarket/artledger/internal/apperrors"
	"github.com/artmarket/artledger/internal/logger"
	"github.com/artmarket/artledger/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ArtistCredit is the net share owed to one artist for a settled order.
type ArtistCredit struct {
	ArtistID int64
	Amount   decimal.Decimal
}

// SettleParams carries the money movements computed by the settlement
// service. The repository only executes them atomically.
type SettleParams struct {
	OrderID       int64
	BuyerID       int64
	Total         decimal.Decimal
	ArtistCredits []ArtistCredit
	Provider      string
}

type SettleResult struct {
	BuyerBalance   decimal.Decimal
	ArtistBalances map[int64]decimal.Decimal
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, orderID int64) (models.Order, error)
	GetOrdersByBuyer(ctx context.Context, buyerID int64) ([]models.Order, error)
	Settle(ctx context.Context, params SettleParams) (SettleResult, error)
}

type orderRepo struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepo{db: db}
}

func (r *orderRepo) CreateOrder(ctx context.Context, order *models.Order) error {
	return runInTx(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO orders (buyer_id, total, status, created_at)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at
		`, order.BuyerID, order.Total, order.Status, time.Now()).
			Scan(&order.ID, &order.CreatedAt)
		if err != nil {
			return err
		}

		for i := range order.Details {
			d := &order.Details[i]
			d.OrderID = order.ID
			err := tx.QueryRowContext(ctx, `
				INSERT INTO order_details (order_id, product_id, artist_id, price)
				VALUES ($1, $2, $3, $4)
				RETURNING id
			`, d.OrderID, d.ProductID, d.ArtistID, d.Price).Scan(&d.ID)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *orderRepo) GetOrder(ctx context.Context, orderID int64) (models.Order, error) {
	var order models.Order
	err := r.db.QueryRowContext(ctx, `
		SELECT id, buyer_id, total, status, created_at FROM orders WHERE id = $1
	`, orderID).Scan(&order.ID, &order.BuyerID, &order.Total, &order.Status, &order.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Order{}, apperrors.ErrNotFound
	}
	if err != nil {
		return models.Order{}, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, artist_id, price
		FROM order_details WHERE order_id = $1 ORDER BY id
	`, orderID)
	if err != nil {
		return models.Order{}, err
	}
	defer func(rows *sql.Rows) {
		err := rows.Close()
		if err != nil {
			logger.Log.Error("failed to close rows", zap.Error(err))
		}
	}(rows)

	for rows.Next() {
		var d models.OrderDetail
		if err := rows.Scan(&d.ID, &d.OrderID, &d.ProductID, &d.ArtistID, &d.Price); err != nil {
			return models.Order{}, err
		}
		order.Details = append(order.Details, d)
	}
	return order, rows.Err()
}

func (r *orderRepo) GetOrdersByBuyer(ctx context.Context, buyerID int64) ([]models.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, buyer_id, total, status, created_at FROM orders
		WHERE buyer_id = $1 ORDER BY created_at DESC
	`, buyerID)
	if err != nil {
		logger.Log.Error("failed to query orders", zap.Error(err))
		return nil, err
	}
	defer func(rows *sql.Rows) {
		err := rows.Close()
		if err != nil {
			logger.Log.Error("failed to close rows", zap.Error(err))
		}
	}(rows)

	var orders []models.Order
	for rows.Next() {
		var order models.Order
		if err := rows.Scan(&order.ID, &order.BuyerID, &order.Total, &order.Status, &order.CreatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// Settle executes the whole settlement as one transaction. The compare-and-swap
// on the order status is the idempotency guard: a concurrent or replayed call
// finds zero updated rows and fails with ErrAlreadySettled before any wallet
// is touched.
func (r *orderRepo) Settle(ctx context.Context, params SettleParams) (SettleResult, error) {
	result := SettleResult{ArtistBalances: make(map[int64]decimal.Decimal)}

	err := withRetry(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE orders SET status = $1
			WHERE id = $2 AND buyer_id = $3 AND status = $4
		`, models.OrderStatusPaid, params.OrderID, params.BuyerID, models.OrderStatusPending)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return apperrors.ErrAlreadySettled
		}

		buyerWallet, err := ensureWallet(ctx, tx, params.BuyerID)
		if err != nil {
			return err
		}

		artistWallets := make(map[int64]int64, len(params.ArtistCredits))
		for _, credit := range params.ArtistCredits {
			walletID, err := ensureWallet(ctx, tx, credit.ArtistID)
			if err != nil {
				return err
			}
			artistWallets[credit.ArtistID] = walletID
		}

		// Lock every touched wallet in ascending id order so two settlements
		// over overlapping wallets cannot deadlock.
		walletIDs := []int64{buyerWallet}
		for _, id := range artistWallets {
			if id != buyerWallet {
				walletIDs = append(walletIDs, id)
			}
		}
		sort.Slice(walletIDs, func(i, j int) bool { return walletIDs[i] < walletIDs[j] })

		balances := make(map[int64]decimal.Decimal, len(walletIDs))
		for _, id := range walletIDs {
			balance, err := lockWallet(ctx, tx, id)
			if err != nil {
				return err
			}
			balances[id] = balance
		}

		_, buyerBalance, err := applyEntry(ctx, tx, balances[buyerWallet], EntryParams{
			WalletID:    buyerWallet,
			Amount:      params.Total.Neg(),
			Type:        models.TxTypePurchase,
			Description: fmt.Sprintf("payment for order %d", params.OrderID),
		})
		if err != nil {
			return err
		}
		balances[buyerWallet] = buyerBalance
		result.BuyerBalance = buyerBalance

		for _, credit := range params.ArtistCredits {
			walletID := artistWallets[credit.ArtistID]
			_, newBalance, err := applyEntry(ctx, tx, balances[walletID], EntryParams{
				WalletID:    walletID,
				Amount:      credit.Amount,
				Type:        models.TxTypeSale,
				Description: fmt.Sprintf("sale proceeds for order %d", params.OrderID),
			})
			if err != nil {
				return err
			}
			balances[walletID] = newBalance
			result.ArtistBalances[credit.ArtistID] = newBalance
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO payments (order_id, method, provider, amount, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, params.OrderID, models.PaymentMethodWallet, params.Provider, params.Total, time.Now())
		return err
	})
	if err != nil {
		return SettleResult{}, err
	}
	return result, nil
}
