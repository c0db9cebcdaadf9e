package service

import (
	"context"
	"errors"

	"github.com/artmarket/artledger/internal/apperrors"
	"github.com/artmarket/artledger/internal/logger"
	"github.com/artmarket/artledger/internal/models"
	"github.com/artmarket/artledger/internal/notifier"
	"github.com/artmarket/artledger/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// NewOrderLine is one priced product handed over by the catalog layer.
// The catalog guarantees the product was validated and priced.
type NewOrderLine struct {
	ProductID int64           `json:"product_id"`
	ArtistID  int64           `json:"artist_id"`
	Price     decimal.Decimal `json:"price"`
}

type SettlementResult struct {
	OrderID      int64
	BuyerBalance decimal.Decimal
	ArtistShares map[int64]decimal.Decimal
}

type SettlementService interface {
	CreateOrder(ctx context.Context, buyerID int64, lines []NewOrderLine) (models.Order, error)
	SettleOrderWithWallet(ctx context.Context, orderID, buyerID int64) (SettlementResult, error)
	GetUserOrders(ctx context.Context, buyerID int64) ([]models.Order, error)
}

type settlementService struct {
	orders         repository.OrderRepository
	events         notifier.Notifier
	commissionRate decimal.Decimal
}

func NewSettlementService(orders repository.OrderRepository, events notifier.Notifier, commissionRate decimal.Decimal) SettlementService {
	return &settlementService{
		orders:         orders,
		events:         events,
		commissionRate: commissionRate,
	}
}

// SplitLine computes the platform commission and the artist share for one
// order line. The commission is rounded half-up to the wallet's minor unit
// and the share is the remainder, so share + commission always equals the
// line price exactly.
func SplitLine(price, rate decimal.Decimal) (commission, share decimal.Decimal) {
	commission = price.Mul(rate).Round(2)
	share = price.Sub(commission)
	return commission, share
}

func (s *settlementService) CreateOrder(ctx context.Context, buyerID int64, lines []NewOrderLine) (models.Order, error) {
	if len(lines) == 0 {
		return models.Order{}, apperrors.ErrInvalidRequest
	}

	total := decimal.Zero
	details := make([]models.OrderDetail, 0, len(lines))
	for _, line := range lines {
		if !line.Price.IsPositive() || line.ProductID == 0 || line.ArtistID == 0 {
			return models.Order{}, apperrors.ErrInvalidRequest
		}
		total = total.Add(line.Price)
		details = append(details, models.OrderDetail{
			ProductID: line.ProductID,
			ArtistID:  line.ArtistID,
			Price:     line.Price,
		})
	}

	order := models.Order{
		BuyerID: buyerID,
		Total:   total,
		Status:  models.OrderStatusPending,
		Details: details,
	}
	if err := s.orders.CreateOrder(ctx, &order); err != nil {
		return models.Order{}, err
	}
	return order, nil
}

// SettleOrderWithWallet moves the order total from the buyer to the artists
// minus commission, as one all-or-nothing unit. The repository performs the
// atomic part; here the split is computed and validated.
func (s *settlementService) SettleOrderWithWallet(ctx context.Context, orderID, buyerID int64) (SettlementResult, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return SettlementResult{}, err
	}
	if order.BuyerID != buyerID {
		return SettlementResult{}, apperrors.ErrNotFound
	}
	if order.Status != models.OrderStatusPending {
		return SettlementResult{}, apperrors.ErrAlreadySettled
	}

	total := decimal.Zero
	shares := make(map[int64]decimal.Decimal)
	for _, line := range order.Details {
		_, share := SplitLine(line.Price, s.commissionRate)
		shares[line.ArtistID] = shares[line.ArtistID].Add(share)
		total = total.Add(line.Price)
	}

	credits := make([]repository.ArtistCredit, 0, len(shares))
	for artistID, share := range shares {
		credits = append(credits, repository.ArtistCredit{ArtistID: artistID, Amount: share})
	}

	settled, err := s.orders.Settle(ctx, repository.SettleParams{
		OrderID:       orderID,
		BuyerID:       buyerID,
		Total:         total,
		ArtistCredits: credits,
		Provider:      "wallet",
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrInsufficientFunds) || errors.Is(err, apperrors.ErrAlreadySettled) {
			return SettlementResult{}, err
		}
		logger.Log.Error("settlement failed",
			zap.Int64("order", orderID), zap.Int64("buyer", buyerID), zap.Error(err))
		return SettlementResult{}, err
	}

	logger.Log.Info("order settled",
		zap.Int64("order", orderID), zap.Int64("buyer", buyerID),
		zap.String("total", total.String()))

	s.events.OrderSettled(ctx, orderID, buyerID, shares)
	s.events.BalanceChanged(ctx, buyerID, settled.BuyerBalance)
	for artistID, balance := range settled.ArtistBalances {
		s.events.BalanceChanged(ctx, artistID, balance)
	}

	return SettlementResult{
		OrderID:      orderID,
		BuyerBalance: settled.BuyerBalance,
		ArtistShares: shares,
	}, nil
}

func (s *settlementService) GetUserOrders(ctx context.Context, buyerID int64) ([]models.Order, error) {
	return s.orders.GetOrdersByBuyer(ctx, buyerID)
}
