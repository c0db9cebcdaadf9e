package repository

import (
	"context"
	"testing"

	"github.com/artmarket/artledger/internal/apperrors"
	"github.com/artmarket/artledger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedWallet(t *testing.T, userID int64, amount string) {
	t.Helper()
	r := NewWalletRepository(testDB)
	ctx := context.Background()
	wallet, err := r.CreateWalletIfAbsent(ctx, userID)
	require.NoError(t, err)
	// Seed as a deposit so assertions over purchase/sale entries only see
	// what the settlement under test wrote.
	if amount != "0" {
		_, _, err = r.ApplyEntry(ctx, EntryParams{
			WalletID:    wallet.ID,
			Amount:      mustDec(amount),
			Type:        models.TxTypeDeposit,
			Description: "seed",
		})
		require.NoError(t, err)
	}
}

func createTestOrder(t *testing.T, buyerID int64) models.Order {
	t.Helper()
	r := NewOrderRepository(testDB)
	order := models.Order{
		BuyerID: buyerID,
		Total:   mustDec("300"),
		Status:  models.OrderStatusPending,
		Details: []models.OrderDetail{
			{ProductID: 10, ArtistID: 2, Price: mustDec("100")},
			{ProductID: 11, ArtistID: 3, Price: mustDec("200")},
		},
	}
	require.NoError(t, r.CreateOrder(context.Background(), &order))
	return order
}

func TestOrderRepo_CreateAndGet(t *testing.T) {
	r := NewOrderRepository(testDB)
	ctx := context.Background()

	setupTestUsers(t, testDB)
	created := createTestOrder(t, 1)
	require.NotZero(t, created.ID)

	got, err := r.GetOrder(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, models.OrderStatusPending, got.Status)
	require.Len(t, got.Details, 2)
	assert.Equal(t, int64(2), got.Details[0].ArtistID)
	assert.True(t, got.Total.Equal(mustDec("300")))

	_, err = r.GetOrder(ctx, 9999)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	orders, err := r.GetOrdersByBuyer(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestOrderRepo_Settle(t *testing.T) {
	r := NewOrderRepository(testDB)
	walletRepo := NewWalletRepository(testDB)
	ctx := context.Background()

	setupTestUsers(t, testDB)
	seedWallet(t, 1, "500")
	order := createTestOrder(t, 1)

	params := SettleParams{
		OrderID: order.ID,
		BuyerID: 1,
		Total:   mustDec("300"),
		ArtistCredits: []ArtistCredit{
			{ArtistID: 2, Amount: mustDec("90")},
			{ArtistID: 3, Amount: mustDec("180")},
		},
		Provider: "wallet",
	}

	result, err := r.Settle(ctx, params)
	require.NoError(t, err)
	assert.True(t, result.BuyerBalance.Equal(mustDec("200")))
	assert.True(t, result.ArtistBalances[2].Equal(mustDec("90")))
	assert.True(t, result.ArtistBalances[3].Equal(mustDec("180")))

	settled, err := r.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, settled.Status)

	var paymentAmount string
	err = testDB.QueryRow(`SELECT amount FROM payments WHERE order_id = $1`, order.ID).Scan(&paymentAmount)
	require.NoError(t, err)
	assert.True(t, mustDec(paymentAmount).Equal(mustDec("300")))

	// Replaying the settlement must fail the status guard, not debit again.
	_, err = r.Settle(ctx, params)
	assert.ErrorIs(t, err, apperrors.ErrAlreadySettled)

	balance, err := walletRepo.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.True(t, balance.Equal(mustDec("200")))
}

func TestOrderRepo_SettleInsufficientFunds(t *testing.T) {
	r := NewOrderRepository(testDB)
	ctx := context.Background()

	setupTestUsers(t, testDB)
	seedWallet(t, 1, "100")
	order := createTestOrder(t, 1)

	_, err := r.Settle(ctx, SettleParams{
		OrderID: order.ID,
		BuyerID: 1,
		Total:   mustDec("300"),
		ArtistCredits: []ArtistCredit{
			{ArtistID: 2, Amount: mustDec("90")},
			{ArtistID: 3, Amount: mustDec("180")},
		},
		Provider: "wallet",
	})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)

	// The whole settlement rolls back: order pending, no entries, no payment.
	unchanged, err := r.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, unchanged.Status)

	var entryCount int
	err = testDB.QueryRow(`SELECT count(*) FROM wallet_transactions WHERE type IN ('purchase', 'sale')`).Scan(&entryCount)
	require.NoError(t, err)
	assert.Zero(t, entryCount)

	var paymentCount int
	err = testDB.QueryRow(`SELECT count(*) FROM payments WHERE order_id = $1`, order.ID).Scan(&paymentCount)
	require.NoError(t, err)
	assert.Zero(t, paymentCount)
}

func TestOrderRepo_SettleUnknownArtistRollsBack(t *testing.T) {
	r := NewOrderRepository(testDB)
	walletRepo := NewWalletRepository(testDB)
	ctx := context.Background()

	setupTestUsers(t, testDB)
	seedWallet(t, 1, "500")
	order := createTestOrder(t, 1)

	// Artist 999 has no users row, so creating their wallet violates the
	// foreign key mid-settlement.
	_, err := r.Settle(ctx, SettleParams{
		OrderID: order.ID,
		BuyerID: 1,
		Total:   mustDec("300"),
		ArtistCredits: []ArtistCredit{
			{ArtistID: 2, Amount: mustDec("90")},
			{ArtistID: 999, Amount: mustDec("180")},
		},
		Provider: "wallet",
	})
	require.Error(t, err)

	unchanged, err := r.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, unchanged.Status)

	balance, err := walletRepo.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.True(t, balance.Equal(mustDec("500")), "buyer balance = %s", balance)

	var entryCount int
	err = testDB.QueryRow(`SELECT count(*) FROM wallet_transactions WHERE type IN ('purchase', 'sale')`).Scan(&entryCount)
	require.NoError(t, err)
	assert.Zero(t, entryCount)

	var paymentCount int
	err = testDB.QueryRow(`SELECT count(*) FROM payments WHERE order_id = $1`, order.ID).Scan(&paymentCount)
	require.NoError(t, err)
	assert.Zero(t, paymentCount)
}

func TestOrderRepo_SettleFailureAfterDebitRollsBack(t *testing.T) {
	r := NewOrderRepository(testDB)
	walletRepo := NewWalletRepository(testDB)
	ctx := context.Background()

	setupTestUsers(t, testDB)
	seedWallet(t, 1, "500")
	order := createTestOrder(t, 1)

	// Force a failure on the very last statement of the settlement
	// transaction: the receipt insert hits the unique order_id constraint.
	// By then the buyer debit and the artist credits have already been
	// applied inside the transaction, so this exercises the rollback of
	// money that moved.
	_, err := testDB.Exec(`
		INSERT INTO payments (order_id, method, provider, amount, created_at)
		VALUES ($1, 'wallet', 'wallet', 300, now())
	`, order.ID)
	require.NoError(t, err)

	_, err = r.Settle(ctx, SettleParams{
		OrderID: order.ID,
		BuyerID: 1,
		Total:   mustDec("300"),
		ArtistCredits: []ArtistCredit{
			{ArtistID: 2, Amount: mustDec("90")},
			{ArtistID: 3, Amount: mustDec("180")},
		},
		Provider: "wallet",
	})
	require.Error(t, err)

	unchanged, err := r.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, unchanged.Status)

	buyerBalance, err := walletRepo.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.True(t, buyerBalance.Equal(mustDec("500")), "buyer balance = %s", buyerBalance)

	artistBalance, err := walletRepo.GetBalance(ctx, 2)
	require.NoError(t, err)
	assert.True(t, artistBalance.IsZero(), "artist balance = %s", artistBalance)

	var entryCount int
	err = testDB.QueryRow(`SELECT count(*) FROM wallet_transactions WHERE type IN ('purchase', 'sale')`).Scan(&entryCount)
	require.NoError(t, err)
	assert.Zero(t, entryCount)
}

func TestOrderRepo_SettleWrongBuyer(t *testing.T) {
	r := NewOrderRepository(testDB)
	ctx := context.Background()

	setupTestUsers(t, testDB)
	seedWallet(t, 2, "500")
	order := createTestOrder(t, 1)

	_, err := r.Settle(ctx, SettleParams{
		OrderID:       order.ID,
		BuyerID:       2,
		Total:         mustDec("300"),
		ArtistCredits: []ArtistCredit{{ArtistID: 2, Amount: mustDec("270")}},
		Provider:      "wallet",
	})
	assert.ErrorIs(t, err, apperrors.ErrAlreadySettled)
}
