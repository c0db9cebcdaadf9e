package service

import (
	"context"
	"errors"

	"github.com/artmarket/artledger/internal/apperrors"
	"github.com/artmarket/artledger/internal/models"
	"github.com/artmarket/artledger/internal/repository"
	"github.com/shopspring/decimal"
)

type WalletService interface {
	GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error)
	GetTransactions(ctx context.Context, userID int64) ([]models.WalletTransaction, error)
}

type walletService struct {
	wallets repository.WalletRepository
}

func NewWalletService(wallets repository.WalletRepository) WalletService {
	return &walletService{wallets: wallets}
}

func (s *walletService) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	return s.wallets.GetBalance(ctx, userID)
}

func (s *walletService) GetTransactions(ctx context.Context, userID int64) ([]models.WalletTransaction, error) {
	wallet, err := s.wallets.GetWalletByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// No wallet yet: an empty history, not an error.
			return nil, nil
		}
		return nil, err
	}
	return s.wallets.GetTransactions(ctx, wallet.ID)
}
