package service

import (
	"context"

	"github.com/artmarket/artledger/internal/apperrors"
	"github.com/artmarket/artledger/internal/logger"
	"github.com/artmarket/artledger/internal/models"
	"github.com/artmarket/artledger/internal/notifier"
	"github.com/artmarket/artledger/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type WithdrawalService interface {
	Request(ctx context.Context, userID int64, amount decimal.Decimal) (models.WithdrawRequest, error)
	Approve(ctx context.Context, requestID int64, note string) (models.WithdrawRequest, error)
	Reject(ctx context.Context, requestID int64, note string) (models.WithdrawRequest, error)
	ListByUser(ctx context.Context, userID int64) ([]models.WithdrawRequest, error)
	ListPending(ctx context.Context) ([]models.WithdrawRequest, error)
}

type withdrawalService struct {
	withdrawals repository.WithdrawRepository
	events      notifier.Notifier
}

func NewWithdrawalService(withdrawals repository.WithdrawRepository, events notifier.Notifier) WithdrawalService {
	return &withdrawalService{
		withdrawals: withdrawals,
		events:      events,
	}
}

// Request reserves the amount out of the wallet the moment the request is
// filed, so a pending withdrawal cannot be spent twice. The reservation is
// refunded in full if an admin rejects the request.
func (s *withdrawalService) Request(ctx context.Context, userID int64, amount decimal.Decimal) (models.WithdrawRequest, error) {
	if !amount.IsPositive() {
		return models.WithdrawRequest{}, apperrors.ErrInvalidAmount
	}

	request, newBalance, err := s.withdrawals.CreateWithReserve(ctx, userID, amount)
	if err != nil {
		return models.WithdrawRequest{}, err
	}

	logger.Log.Info("withdrawal requested",
		zap.Int64("request", request.ID), zap.Int64("user", userID),
		zap.String("amount", amount.String()))
	s.events.BalanceChanged(ctx, userID, newBalance)
	return request, nil
}

func (s *withdrawalService) Approve(ctx context.Context, requestID int64, note string) (models.WithdrawRequest, error) {
	request, _, err := s.withdrawals.Resolve(ctx, requestID, true, note)
	if err != nil {
		return models.WithdrawRequest{}, err
	}

	logger.Log.Info("withdrawal approved",
		zap.Int64("request", request.ID), zap.Int64("user", request.UserID))
	s.events.WithdrawalResolved(ctx, request.UserID, request.ID, request.Status)
	return request, nil
}

func (s *withdrawalService) Reject(ctx context.Context, requestID int64, note string) (models.WithdrawRequest, error) {
	request, newBalance, err := s.withdrawals.Resolve(ctx, requestID, false, note)
	if err != nil {
		return models.WithdrawRequest{}, err
	}

	logger.Log.Info("withdrawal rejected",
		zap.Int64("request", request.ID), zap.Int64("user", request.UserID))
	s.events.WithdrawalResolved(ctx, request.UserID, request.ID, request.Status)
	s.events.BalanceChanged(ctx, request.UserID, newBalance)
	return request, nil
}

func (s *withdrawalService) ListByUser(ctx context.Context, userID int64) ([]models.WithdrawRequest, error) {
	return s.withdrawals.ListByUser(ctx, userID)
}

func (s *withdrawalService) ListPending(ctx context.Context) ([]models.WithdrawRequest, error) {
	return s.withdrawals.ListPending(ctx)
}
