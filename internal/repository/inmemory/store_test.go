package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/artmarket/artledger/internal/apperrors"
	"github.com/artmarket/artledger/internal/models"
	"github.com/artmarket/artledger/internal/notifier"
	"github.com/artmarket/artledger/internal/provider"
	"github.com/artmarket/artledger/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// deposit seeds a wallet through the same path production uses: an intent
// confirmed by a paid callback.
func deposit(t *testing.T, store *Store, userID int64, amount string) {
	t.Helper()
	ctx := context.Background()
	intent := models.DepositIntent{
		ExternalRef: fmt.Sprintf("seed-%d-%s", userID, amount),
		UserID:      userID,
		Amount:      dec(amount),
		Status:      models.IntentStatusCreated,
	}
	require.NoError(t, store.CreateIntent(ctx, &intent))
	_, _, err := store.Confirm(ctx, intent.ExternalRef)
	require.NoError(t, err)
}

// assertLedgerConsistent checks the core invariant: the cached wallet
// balance equals the fold of its ledger entries and is never negative.
func assertLedgerConsistent(t *testing.T, store *Store, userIDs ...int64) {
	t.Helper()
	ctx := context.Background()
	for _, userID := range userIDs {
		wallet, err := store.GetWalletByUserID(ctx, userID)
		require.NoError(t, err)
		sum := store.SumEntries(wallet.ID)
		assert.True(t, wallet.Balance.Equal(sum),
			"user %d: balance %s != entry fold %s", userID, wallet.Balance, sum)
		assert.False(t, wallet.Balance.IsNegative(), "user %d: negative balance %s", userID, wallet.Balance)
	}
}

func TestStore_DepositConfirmIsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	intent := models.DepositIntent{
		ExternalRef: "ref-1",
		UserID:      1,
		Amount:      dec("500"),
		Status:      models.IntentStatusCreated,
	}
	require.NoError(t, store.CreateIntent(ctx, &intent))

	confirmed, balance, err := store.Confirm(ctx, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusPaid, confirmed.Status)
	assert.True(t, balance.Equal(dec("500")))

	// Provider retries the callback. The replay must not credit again.
	_, _, err = store.Confirm(ctx, "ref-1")
	assert.ErrorIs(t, err, apperrors.ErrDuplicateExternalRef)

	gotBalance, err := store.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.True(t, gotBalance.Equal(dec("500")))
	assertLedgerConsistent(t, store, 1)
}

func TestStore_ConfirmUnknownReference(t *testing.T) {
	store := NewStore()
	_, _, err := store.Confirm(context.Background(), "no-such-ref")
	assert.ErrorIs(t, err, apperrors.ErrUnknownReference)
}

func TestStore_LateConfirmAfterFailureCredits(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	intent := models.DepositIntent{ExternalRef: "ref-1", UserID: 1, Amount: dec("10"), Status: models.IntentStatusCreated}
	require.NoError(t, store.CreateIntent(ctx, &intent))
	require.NoError(t, store.MarkFailed(ctx, "ref-1"))

	// The provider collected the money, so a paid callback that arrives
	// after the intent was failed locally must still credit the wallet.
	confirmed, balance, err := store.Confirm(ctx, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusPaid, confirmed.Status)
	assert.True(t, balance.Equal(dec("10")))

	// Exactly once: the replay is still refused.
	_, _, err = store.Confirm(ctx, "ref-1")
	assert.ErrorIs(t, err, apperrors.ErrDuplicateExternalRef)

	got, err := store.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.True(t, got.Equal(dec("10")))
	assertLedgerConsistent(t, store, 1)
}

func TestSettlement_SplitsTotalBetweenArtists(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	settlements := service.NewSettlementService(store, notifier.NewNoop(), dec("0.10"))

	const (
		buyer   = int64(1)
		artistA = int64(2)
		artistB = int64(3)
	)
	deposit(t, store, buyer, "500")

	order, err := settlements.CreateOrder(ctx, buyer, []service.NewOrderLine{
		{ProductID: 10, ArtistID: artistA, Price: dec("100")},
		{ProductID: 11, ArtistID: artistB, Price: dec("200")},
	})
	require.NoError(t, err)

	result, err := settlements.SettleOrderWithWallet(ctx, order.ID, buyer)
	require.NoError(t, err)

	assert.True(t, result.BuyerBalance.Equal(dec("200")), "buyer balance = %s", result.BuyerBalance)
	assert.True(t, result.ArtistShares[artistA].Equal(dec("90")))
	assert.True(t, result.ArtistShares[artistB].Equal(dec("180")))

	balanceA, _ := store.GetBalance(ctx, artistA)
	balanceB, _ := store.GetBalance(ctx, artistB)
	assert.True(t, balanceA.Equal(dec("90")))
	assert.True(t, balanceB.Equal(dec("180")))

	settled, err := store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, settled.Status)

	payment, ok := store.GetPayment(order.ID)
	require.True(t, ok)
	assert.True(t, payment.Amount.Equal(dec("300")))
	assert.Equal(t, models.PaymentMethodWallet, payment.Method)

	// The 10% commission leaves user wallets and stays with the platform:
	// total user money dropped from 500 to 470.
	assert.True(t, result.BuyerBalance.Add(balanceA).Add(balanceB).Equal(dec("470")))
	assertLedgerConsistent(t, store, buyer, artistA, artistB)
}

func TestSettlement_SecondAttemptFails(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	settlements := service.NewSettlementService(store, notifier.NewNoop(), dec("0.10"))

	deposit(t, store, 1, "500")
	order, err := settlements.CreateOrder(ctx, 1, []service.NewOrderLine{
		{ProductID: 10, ArtistID: 2, Price: dec("100")},
	})
	require.NoError(t, err)

	_, err = settlements.SettleOrderWithWallet(ctx, order.ID, 1)
	require.NoError(t, err)

	_, err = settlements.SettleOrderWithWallet(ctx, order.ID, 1)
	assert.ErrorIs(t, err, apperrors.ErrAlreadySettled)

	balance, _ := store.GetBalance(ctx, 1)
	assert.True(t, balance.Equal(dec("400")), "second settlement must not debit again, balance = %s", balance)
}

func TestSettlement_InsufficientFundsLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	settlements := service.NewSettlementService(store, notifier.NewNoop(), dec("0.10"))

	deposit(t, store, 1, "100")
	order, err := settlements.CreateOrder(ctx, 1, []service.NewOrderLine{
		{ProductID: 10, ArtistID: 2, Price: dec("300")},
	})
	require.NoError(t, err)

	_, err = settlements.SettleOrderWithWallet(ctx, order.ID, 1)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)

	balance, _ := store.GetBalance(ctx, 1)
	assert.True(t, balance.Equal(dec("100")))

	unchanged, err := store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, unchanged.Status)

	_, ok := store.GetPayment(order.ID)
	assert.False(t, ok)

	// The artist never existed as a wallet, so nothing was credited.
	artistBalance, _ := store.GetBalance(ctx, 2)
	assert.True(t, artistBalance.IsZero())
	assertLedgerConsistent(t, store, 1)
}

func TestWithdrawal_RejectRestoresBalance(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	withdrawals := service.NewWithdrawalService(store, notifier.NewNoop())

	deposit(t, store, 1, "90")

	request, err := withdrawals.Request(ctx, 1, dec("50"))
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawStatusPending, request.Status)

	balance, _ := store.GetBalance(ctx, 1)
	assert.True(t, balance.Equal(dec("40")), "reservation must debit immediately, balance = %s", balance)

	rejected, err := withdrawals.Reject(ctx, request.ID, "bank details invalid")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawStatusRejected, rejected.Status)
	assert.Nil(t, rejected.Received)
	require.NotNil(t, rejected.Note)
	assert.Equal(t, "bank details invalid", *rejected.Note)

	balance, _ = store.GetBalance(ctx, 1)
	assert.True(t, balance.Equal(dec("90")))
	assertLedgerConsistent(t, store, 1)
}

func TestWithdrawal_ApproveKeepsReservation(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	withdrawals := service.NewWithdrawalService(store, notifier.NewNoop())

	deposit(t, store, 1, "90")
	request, err := withdrawals.Request(ctx, 1, dec("50"))
	require.NoError(t, err)

	approved, err := withdrawals.Approve(ctx, request.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawStatusApproved, approved.Status)
	require.NotNil(t, approved.Received)
	assert.True(t, approved.Received.Equal(dec("50")))
	assert.NotNil(t, approved.ProcessedAt)

	// The payout marker is a zero-amount entry: the money already left at
	// reservation time.
	balance, _ := store.GetBalance(ctx, 1)
	assert.True(t, balance.Equal(dec("40")))
	assertLedgerConsistent(t, store, 1)

	wallet, err := store.GetWalletByUserID(ctx, 1)
	require.NoError(t, err)
	transactions, err := store.GetTransactions(ctx, wallet.ID)
	require.NoError(t, err)
	var markers int
	for _, tx := range transactions {
		if tx.Type == models.TxTypeWithdrawSuccess {
			markers++
			assert.True(t, tx.Amount.IsZero())
		}
	}
	assert.Equal(t, 1, markers)

	// Terminal states never flip.
	_, err = withdrawals.Reject(ctx, request.ID, "")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyProcessed)
}

func TestWithdrawal_RequestBeyondBalance(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	withdrawals := service.NewWithdrawalService(store, notifier.NewNoop())

	deposit(t, store, 1, "30")
	_, err := withdrawals.Request(ctx, 1, dec("50"))
	assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)

	balance, _ := store.GetBalance(ctx, 1)
	assert.True(t, balance.Equal(dec("30")))
	requests, err := store.ListByUser(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, requests)
}

func TestStore_ConcurrentCallbackRepliesCreditOnce(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	intent := models.DepositIntent{ExternalRef: "ref-1", UserID: 1, Amount: dec("150"), Status: models.IntentStatusCreated}
	require.NoError(t, store.CreateIntent(ctx, &intent))

	const replays = 16
	var wg sync.WaitGroup
	results := make(chan error, replays)
	for i := 0; i < replays; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := store.Confirm(ctx, "ref-1")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, duplicates int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, apperrors.ErrDuplicateExternalRef):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, replays-1, duplicates)

	balance, err := store.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("150")))
	assertLedgerConsistent(t, store, 1)
}

func TestSettlement_ConcurrentOrdersSerialize(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	settlements := service.NewSettlementService(store, notifier.NewNoop(), dec("0.10"))

	const (
		buyer  = int64(1)
		artist = int64(2)
		orders = 20
	)
	deposit(t, store, buyer, "10000")

	orderIDs := make([]int64, 0, orders)
	for i := 0; i < orders; i++ {
		order, err := settlements.CreateOrder(ctx, buyer, []service.NewOrderLine{
			{ProductID: int64(100 + i), ArtistID: artist, Price: dec("100")},
		})
		require.NoError(t, err)
		orderIDs = append(orderIDs, order.ID)
	}

	var wg sync.WaitGroup
	errs := make(chan error, orders)
	for _, orderID := range orderIDs {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := settlements.SettleOrderWithWallet(ctx, id, buyer)
			errs <- err
		}(orderID)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	buyerBalance, _ := store.GetBalance(ctx, buyer)
	artistBalance, _ := store.GetBalance(ctx, artist)
	assert.True(t, buyerBalance.Equal(dec("8000")), "buyer balance = %s", buyerBalance)
	assert.True(t, artistBalance.Equal(dec("1800")), "artist balance = %s", artistBalance)
	assertLedgerConsistent(t, store, buyer, artist)
}

func TestStore_ExpireStale(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	stale := models.DepositIntent{ExternalRef: "ref-old", UserID: 1, Amount: dec("10"), Status: models.IntentStatusCreated}
	require.NoError(t, store.CreateIntent(ctx, &stale))

	n, err := store.ExpireStale(ctx, stale.CreatedAt.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	expired, err := store.GetIntentByRef(ctx, "ref-old")
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusFailed, expired.Status)

	// Expiry only touches unconfirmed intents.
	n, err = store.ExpireStale(ctx, stale.CreatedAt.Add(time.Second))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeposit_CallbackAfterExpiryCredits(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	deposits := service.NewDepositService(store, nil, notifier.NewNoop())

	intent := models.DepositIntent{ExternalRef: "ref-slow", UserID: 1, Amount: dec("250"), Status: models.IntentStatusCreated}
	require.NoError(t, store.CreateIntent(ctx, &intent))

	n, err := store.ExpireStale(ctx, intent.CreatedAt.Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	// The provider confirms after the janitor gave up on the intent. The
	// buyer paid, so the money must land.
	require.NoError(t, deposits.HandleCallback(ctx, "ref-slow", provider.StatusPaid))

	balance, err := store.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("250")), "balance = %s", balance)

	paid, err := store.GetIntentByRef(ctx, "ref-slow")
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusPaid, paid.Status)

	// The retry of that callback stays a no-op.
	require.NoError(t, deposits.HandleCallback(ctx, "ref-slow", provider.StatusPaid))
	balance, err = store.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("250")))
	assertLedgerConsistent(t, store, 1)
}

func TestStore_EntryOrderIsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	deposit(t, store, 1, "100")
	deposit(t, store, 1, "200")

	wallet, err := store.GetWalletByUserID(ctx, 1)
	require.NoError(t, err)
	transactions, err := store.GetTransactions(ctx, wallet.ID)
	require.NoError(t, err)
	require.Len(t, transactions, 2)
	assert.True(t, transactions[0].Amount.Equal(dec("200")))
	assert.True(t, transactions[1].Amount.Equal(dec("100")))

	// The repository interface contract: no wallet means a zero balance,
	// not an error.
	balance, err := store.GetBalance(ctx, 99)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}
