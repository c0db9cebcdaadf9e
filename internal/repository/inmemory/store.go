// Package inmemory implements the repository interfaces on plain maps.
// It mirrors the transactional discipline of the SQL store behind one
// mutex, which makes it the substitute of choice for property and
// concurrency tests that need a real store without a database.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/artmarket/artledger/internal/apperrors"
	"github.com/artmarket/artledger/internal/models"
	"github.com/artmarket/artledger/internal/repository"
	"github.com/shopspring/decimal"
)

type Store struct {
	mu sync.Mutex

	users    map[int64]*models.User
	wallets  map[int64]*models.Wallet // by wallet id
	byUser   map[int64]int64          // user id -> wallet id
	entries  []models.WalletTransaction
	orders   map[int64]*models.Order
	payments map[int64]*models.Payment // by order id
	intents  map[string]*models.DepositIntent
	requests map[int64]*models.WithdrawRequest

	nextUserID    int64
	nextWalletID  int64
	nextEntryID   int64
	nextOrderID   int64
	nextDetailID  int64
	nextPaymentID int64
	nextIntentID  int64
	nextRequestID int64
}

var (
	_ repository.WalletRepository   = (*Store)(nil)
	_ repository.OrderRepository    = (*Store)(nil)
	_ repository.DepositRepository  = (*Store)(nil)
	_ repository.WithdrawRepository = (*Store)(nil)
	_ repository.UserRepository     = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{
		users:    make(map[int64]*models.User),
		wallets:  make(map[int64]*models.Wallet),
		byUser:   make(map[int64]int64),
		orders:   make(map[int64]*models.Order),
		payments: make(map[int64]*models.Payment),
		intents:  make(map[string]*models.DepositIntent),
		requests: make(map[int64]*models.WithdrawRequest),
	}
}

func (s *Store) ensureWalletLocked(userID int64) *models.Wallet {
	if id, ok := s.byUser[userID]; ok {
		return s.wallets[id]
	}
	s.nextWalletID++
	w := &models.Wallet{
		ID:        s.nextWalletID,
		UserID:    userID,
		Balance:   decimal.Zero,
		CreatedAt: time.Now(),
	}
	s.wallets[w.ID] = w
	s.byUser[userID] = w.ID
	return w
}

func (s *Store) applyEntryLocked(w *models.Wallet, params repository.EntryParams) (models.WalletTransaction, error) {
	newBalance := w.Balance.Add(params.Amount)
	if newBalance.IsNegative() {
		return models.WalletTransaction{}, apperrors.ErrInsufficientFunds
	}
	if params.ExternalRef != nil && params.Type == models.TxTypeDeposit {
		for _, e := range s.entries {
			if e.Type == models.TxTypeDeposit && e.ExternalRef != nil && *e.ExternalRef == *params.ExternalRef {
				return models.WalletTransaction{}, apperrors.ErrDuplicateExternalRef
			}
		}
	}

	s.nextEntryID++
	entry := models.WalletTransaction{
		ID:          s.nextEntryID,
		WalletID:    w.ID,
		Amount:      params.Amount,
		Type:        params.Type,
		Description: params.Description,
		ExternalRef: params.ExternalRef,
		CreatedAt:   time.Now(),
	}
	s.entries = append(s.entries, entry)
	w.Balance = newBalance
	return entry, nil
}

// --- WalletRepository ---

func (s *Store) CreateWalletIfAbsent(_ context.Context, userID int64) (models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.ensureWalletLocked(userID), nil
}

func (s *Store) GetWalletByUserID(_ context.Context, userID int64) (models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byUser[userID]
	if !ok {
		return models.Wallet{}, apperrors.ErrNotFound
	}
	return *s.wallets[id], nil
}

func (s *Store) GetBalance(_ context.Context, userID int64) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byUser[userID]
	if !ok {
		return decimal.Zero, nil
	}
	return s.wallets[id].Balance, nil
}

func (s *Store) ApplyEntry(_ context.Context, params repository.EntryParams) (models.WalletTransaction, decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[params.WalletID]
	if !ok {
		return models.WalletTransaction{}, decimal.Zero, apperrors.ErrNotFound
	}
	entry, err := s.applyEntryLocked(w, params)
	if err != nil {
		return models.WalletTransaction{}, decimal.Zero, err
	}
	return entry, w.Balance, nil
}

func (s *Store) GetTransactions(_ context.Context, walletID int64) ([]models.WalletTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.WalletTransaction
	for _, e := range s.entries {
		if e.WalletID == walletID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// --- OrderRepository ---

func (s *Store) CreateOrder(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextOrderID++
	order.ID = s.nextOrderID
	order.CreatedAt = time.Now()
	for i := range order.Details {
		s.nextDetailID++
		order.Details[i].ID = s.nextDetailID
		order.Details[i].OrderID = order.ID
	}
	stored := *order
	stored.Details = append([]models.OrderDetail(nil), order.Details...)
	s.orders[order.ID] = &stored
	return nil
}

func (s *Store) GetOrder(_ context.Context, orderID int64) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return models.Order{}, apperrors.ErrNotFound
	}
	out := *order
	out.Details = append([]models.OrderDetail(nil), order.Details...)
	return out, nil
}

func (s *Store) GetOrdersByBuyer(_ context.Context, buyerID int64) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, order := range s.orders {
		if order.BuyerID == buyerID {
			out = append(out, *order)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) Settle(_ context.Context, params repository.SettleParams) (repository.SettleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[params.OrderID]
	if !ok || order.BuyerID != params.BuyerID {
		return repository.SettleResult{}, apperrors.ErrNotFound
	}
	if order.Status != models.OrderStatusPending {
		return repository.SettleResult{}, apperrors.ErrAlreadySettled
	}

	buyer := s.ensureWalletLocked(params.BuyerID)
	if buyer.Balance.LessThan(params.Total) {
		return repository.SettleResult{}, apperrors.ErrInsufficientFunds
	}

	if _, err := s.applyEntryLocked(buyer, repository.EntryParams{
		WalletID:    buyer.ID,
		Amount:      params.Total.Neg(),
		Type:        models.TxTypePurchase,
		Description: fmt.Sprintf("payment for order %d", params.OrderID),
	}); err != nil {
		return repository.SettleResult{}, err
	}

	result := repository.SettleResult{
		BuyerBalance:   buyer.Balance,
		ArtistBalances: make(map[int64]decimal.Decimal, len(params.ArtistCredits)),
	}
	for _, credit := range params.ArtistCredits {
		artist := s.ensureWalletLocked(credit.ArtistID)
		if _, err := s.applyEntryLocked(artist, repository.EntryParams{
			WalletID:    artist.ID,
			Amount:      credit.Amount,
			Type:        models.TxTypeSale,
			Description: fmt.Sprintf("sale proceeds for order %d", params.OrderID),
		}); err != nil {
			return repository.SettleResult{}, err
		}
		result.ArtistBalances[credit.ArtistID] = artist.Balance
	}

	order.Status = models.OrderStatusPaid
	s.nextPaymentID++
	s.payments[params.OrderID] = &models.Payment{
		ID:        s.nextPaymentID,
		OrderID:   params.OrderID,
		Method:    models.PaymentMethodWallet,
		Provider:  params.Provider,
		Amount:    params.Total,
		CreatedAt: time.Now(),
	}
	return result, nil
}

// GetPayment reads the receipt written by Settle. Test helper.
func (s *Store) GetPayment(orderID int64) (models.Payment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[orderID]
	if !ok {
		return models.Payment{}, false
	}
	return *p, true
}

// --- DepositRepository ---

func (s *Store) CreateIntent(_ context.Context, intent *models.DepositIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextIntentID++
	intent.ID = s.nextIntentID
	intent.CreatedAt = time.Now()
	stored := *intent
	s.intents[intent.ExternalRef] = &stored
	return nil
}

func (s *Store) SetCheckoutURL(_ context.Context, externalRef, checkoutURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	intent, ok := s.intents[externalRef]
	if !ok {
		return apperrors.ErrUnknownReference
	}
	intent.CheckoutURL = checkoutURL
	return nil
}

func (s *Store) GetIntentByRef(_ context.Context, externalRef string) (models.DepositIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	intent, ok := s.intents[externalRef]
	if !ok {
		return models.DepositIntent{}, apperrors.ErrUnknownReference
	}
	return *intent, nil
}

func (s *Store) Confirm(_ context.Context, externalRef string) (models.DepositIntent, decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.intents[externalRef]
	if !ok {
		return models.DepositIntent{}, decimal.Zero, apperrors.ErrUnknownReference
	}
	// A FAILED intent still confirms: the money was collected, expiry is
	// local bookkeeping only.
	if intent.Status == models.IntentStatusPaid {
		return models.DepositIntent{}, decimal.Zero, apperrors.ErrDuplicateExternalRef
	}

	w := s.ensureWalletLocked(intent.UserID)
	ref := intent.ExternalRef
	if _, err := s.applyEntryLocked(w, repository.EntryParams{
		WalletID:    w.ID,
		Amount:      intent.Amount,
		Type:        models.TxTypeDeposit,
		Description: fmt.Sprintf("deposit via provider, ref %s", ref),
		ExternalRef: &ref,
	}); err != nil {
		return models.DepositIntent{}, decimal.Zero, err
	}

	now := time.Now()
	intent.Status = models.IntentStatusPaid
	intent.CompletedAt = &now
	return *intent, w.Balance, nil
}

func (s *Store) MarkFailed(_ context.Context, externalRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	intent, ok := s.intents[externalRef]
	if !ok {
		return apperrors.ErrUnknownReference
	}
	if intent.Status == models.IntentStatusCreated {
		now := time.Now()
		intent.Status = models.IntentStatusFailed
		intent.CompletedAt = &now
	}
	return nil
}

func (s *Store) ExpireStale(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	now := time.Now()
	for _, intent := range s.intents {
		if intent.Status == models.IntentStatusCreated && intent.CreatedAt.Before(olderThan) {
			intent.Status = models.IntentStatusFailed
			intent.CompletedAt = &now
			n++
		}
	}
	return n, nil
}

// --- WithdrawRepository ---

func (s *Store) CreateWithReserve(_ context.Context, userID int64, amount decimal.Decimal) (models.WithdrawRequest, decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byUser[userID]
	if !ok {
		return models.WithdrawRequest{}, decimal.Zero, apperrors.ErrInsufficientFunds
	}
	w := s.wallets[id]

	s.nextRequestID++
	request := &models.WithdrawRequest{
		ID:          s.nextRequestID,
		UserID:      userID,
		Amount:      amount,
		Status:      models.WithdrawStatusPending,
		RequestedAt: time.Now(),
	}

	if _, err := s.applyEntryLocked(w, repository.EntryParams{
		WalletID:    w.ID,
		Amount:      amount.Neg(),
		Type:        models.TxTypeWithdrawReserve,
		Description: fmt.Sprintf("reserve for withdrawal request %d", request.ID),
	}); err != nil {
		s.nextRequestID--
		return models.WithdrawRequest{}, decimal.Zero, err
	}

	s.requests[request.ID] = request
	return *request, w.Balance, nil
}

func (s *Store) GetByID(_ context.Context, requestID int64) (models.WithdrawRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.requests[requestID]
	if !ok {
		return models.WithdrawRequest{}, apperrors.ErrNotFound
	}
	return *request, nil
}

func (s *Store) Resolve(_ context.Context, requestID int64, approve bool, note string) (models.WithdrawRequest, decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, ok := s.requests[requestID]
	if !ok {
		return models.WithdrawRequest{}, decimal.Zero, apperrors.ErrNotFound
	}
	if request.Status != models.WithdrawStatusPending {
		return models.WithdrawRequest{}, decimal.Zero, apperrors.ErrAlreadyProcessed
	}

	w := s.wallets[s.byUser[request.UserID]]
	now := time.Now()
	request.ProcessedAt = &now
	if note != "" {
		request.Note = &note
	}

	if approve {
		request.Status = models.WithdrawStatusApproved
		received := request.Amount
		request.Received = &received
		if _, err := s.applyEntryLocked(w, repository.EntryParams{
			WalletID:    w.ID,
			Amount:      decimal.Zero,
			Type:        models.TxTypeWithdrawSuccess,
			Description: fmt.Sprintf("payout of %s for withdrawal request %d", request.Amount.String(), request.ID),
		}); err != nil {
			return models.WithdrawRequest{}, decimal.Zero, err
		}
	} else {
		request.Status = models.WithdrawStatusRejected
		if _, err := s.applyEntryLocked(w, repository.EntryParams{
			WalletID:    w.ID,
			Amount:      request.Amount,
			Type:        models.TxTypeRefund,
			Description: fmt.Sprintf("refund of rejected withdrawal request %d", request.ID),
		}); err != nil {
			return models.WithdrawRequest{}, decimal.Zero, err
		}
	}
	return *request, w.Balance, nil
}

func (s *Store) ListByUser(_ context.Context, userID int64) ([]models.WithdrawRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.WithdrawRequest
	for _, request := range s.requests {
		if request.UserID == userID {
			out = append(out, *request)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) ListPending(_ context.Context) ([]models.WithdrawRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.WithdrawRequest
	for _, request := range s.requests {
		if request.Status == models.WithdrawStatusPending {
			out = append(out, *request)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- UserRepository ---

func (s *Store) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Login == user.Login {
			return apperrors.ErrUserAlreadyExists
		}
	}
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	s.nextUserID++
	user.ID = s.nextUserID
	stored := *user
	s.users[user.ID] = &stored
	return nil
}

func (s *Store) GetUserByLogin(_ context.Context, login string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Login == login {
			out := *u
			return &out, nil
		}
	}
	return nil, apperrors.ErrUserNotFound
}

func (s *Store) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	out := *u
	return &out, nil
}

// SumEntries folds every ledger entry of a wallet. Tests use it to assert
// the cached balance always equals the fold.
func (s *Store) SumEntries(walletID int64) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := decimal.Zero
	for _, e := range s.entries {
		if e.WalletID == walletID {
			sum = sum.Add(e.Amount)
		}
	}
	return sum
}
