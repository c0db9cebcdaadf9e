package service

import (
	"context"
	"time"

	"github.com/artmarket/artledger/internal/logger"
	"github.com/artmarket/artledger/internal/repository"
	"go.uber.org/zap"
)

// IntentJanitor periodically fails deposit intents the provider never
// confirmed, so abandoned checkouts don't linger as CREATED forever.
// Expiry is local bookkeeping only: a confirmation that arrives after the
// janitor flipped the intent to FAILED still credits the wallet, because
// the provider has the money either way.
type IntentJanitor struct {
	deposits     repository.DepositRepository
	pollInterval time.Duration
	maxAge       time.Duration
}

func NewIntentJanitor(deposits repository.DepositRepository, pollInterval, maxAge time.Duration) *IntentJanitor {
	return &IntentJanitor{
		deposits:     deposits,
		pollInterval: pollInterval,
		maxAge:       maxAge,
	}
}

func (j *IntentJanitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.expireStale(ctx)
		}
	}
}

func (j *IntentJanitor) expireStale(ctx context.Context) {
	expired, err := j.deposits.ExpireStale(ctx, time.Now().Add(-j.maxAge))
	if err != nil {
		logger.Log.Error("failed to expire stale deposit intents", zap.Error(err))
		return
	}
	if expired > 0 {
		logger.Log.Info("expired stale deposit intents", zap.Int64("count", expired))
	}
}
