package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/artmarket/artledger/internal/apperrors"
	"github.com/artmarket/artledger/internal/logger"
	"github.com/artmarket/artledger/internal/models"
	"github.com/artmarket/artledger/internal/notifier"
	"github.com/artmarket/artledger/internal/provider"
	"github.com/artmarket/artledger/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type DepositService interface {
	CreateIntent(ctx context.Context, userID int64, amount decimal.Decimal) (models.DepositIntent, error)
	HandleCallback(ctx context.Context, externalRef, status string) error
}

type depositService struct {
	deposits       repository.DepositRepository
	providerClient provider.ClientInterface
	events         notifier.Notifier
}

func NewDepositService(deposits repository.DepositRepository, providerClient provider.ClientInterface, events notifier.Notifier) DepositService {
	return &depositService{
		deposits:       deposits,
		providerClient: providerClient,
		events:         events,
	}
}

// CreateIntent registers a checkout with the provider and persists the
// correlation record. The wallet is deliberately untouched here: crediting
// before the provider confirms payment would create money that was never
// received. Provider failures are retryable because nothing has moved yet.
func (s *depositService) CreateIntent(ctx context.Context, userID int64, amount decimal.Decimal) (models.DepositIntent, error) {
	if !amount.IsPositive() {
		return models.DepositIntent{}, apperrors.ErrInvalidAmount
	}

	intent := models.DepositIntent{
		ExternalRef: uuid.NewString(),
		UserID:      userID,
		Amount:      amount,
		Status:      models.IntentStatusCreated,
	}
	if err := s.deposits.CreateIntent(ctx, &intent); err != nil {
		return models.DepositIntent{}, err
	}

	checkout, statusCode, err := s.providerClient.CreateCheckout(ctx, intent.ExternalRef, amount)
	if err != nil {
		logger.Log.Warn("provider checkout failed",
			zap.String("ref", intent.ExternalRef), zap.Int("statusCode", statusCode), zap.Error(err))
		if markErr := s.deposits.MarkFailed(ctx, intent.ExternalRef); markErr != nil {
			logger.Log.Error("failed to mark intent failed", zap.Error(markErr))
		}
		return models.DepositIntent{}, fmt.Errorf("%w: %v", apperrors.ErrProviderUnavailable, err)
	}

	intent.CheckoutURL = checkout.CheckoutURL
	if err := s.deposits.SetCheckoutURL(ctx, intent.ExternalRef, checkout.CheckoutURL); err != nil {
		return models.DepositIntent{}, err
	}
	return intent, nil
}

// HandleCallback applies a provider confirmation exactly once. Providers
// retry callbacks at least once, so a replay for an already-credited
// reference is acknowledged as a no-op rather than surfaced as an error.
func (s *depositService) HandleCallback(ctx context.Context, externalRef, status string) error {
	if status != provider.StatusPaid {
		intent, err := s.deposits.GetIntentByRef(ctx, externalRef)
		if err != nil {
			return err
		}
		if intent.Status != models.IntentStatusCreated {
			return nil
		}
		logger.Log.Info("deposit intent not paid",
			zap.String("ref", externalRef), zap.String("status", status))
		return s.deposits.MarkFailed(ctx, externalRef)
	}

	intent, newBalance, err := s.deposits.Confirm(ctx, externalRef)
	if err != nil {
		if errors.Is(err, apperrors.ErrDuplicateExternalRef) {
			logger.Log.Info("replayed deposit callback ignored", zap.String("ref", externalRef))
			return nil
		}
		return err
	}

	logger.Log.Info("deposit credited",
		zap.String("ref", externalRef), zap.Int64("user", intent.UserID),
		zap.String("amount", intent.Amount.String()))
	s.events.BalanceChanged(ctx, intent.UserID, newBalance)
	return nil
}
