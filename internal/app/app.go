package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/artmarket/artledger/internal/config"
	"github.com/artmarket/artledger/internal/database"
	"github.com/artmarket/artledger/internal/handlers"
	"github.com/artmarket/artledger/internal/logger"
	"github.com/artmarket/artledger/internal/notifier"
	"github.com/artmarket/artledger/internal/provider"
	"github.com/artmarket/artledger/internal/repository"
	"github.com/artmarket/artledger/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	intentJanitorInterval = time.Minute
	intentMaxAge          = 24 * time.Hour
)

type App struct {
	server  *http.Server
	db      *sql.DB
	janitor *service.IntentJanitor
	events  notifier.Notifier
}

func NewApp() (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ParseFlags()

	if err := logger.Initialize(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Log.Error("Database connection failed", zap.Error(err))
		return nil, err
	}

	var events notifier.Notifier = notifier.NewNoop()
	if cfg.RedisAddress != "" {
		events = notifier.NewRedisNotifier(cfg.RedisAddress)
	}

	userRepo := repository.NewUserRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	depositRepo := repository.NewDepositRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	withdrawRepo := repository.NewWithdrawRepository(db)

	providerClient := provider.NewClient(cfg.ProviderAddress)

	userService := service.NewUserService(userRepo)
	walletService := service.NewWalletService(walletRepo)
	depositService := service.NewDepositService(depositRepo, providerClient, events)
	settlementService := service.NewSettlementService(orderRepo, events,
		decimal.NewFromFloat(cfg.CommissionRate))
	withdrawalService := service.NewWithdrawalService(withdrawRepo, events)

	handler := handlers.NewHandler(userService, walletService, depositService,
		settlementService, withdrawalService, cfg.SecretKey, cfg.ProviderSecret)

	r := handlers.NewRouter(handler, cfg.SecretKey)

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	return &App{
		server:  server,
		db:      db,
		janitor: service.NewIntentJanitor(depositRepo, intentJanitorInterval, intentMaxAge),
		events:  events,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	go a.janitor.Run(ctx)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("server failed to start", zap.Error(err))
		}
	}()
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	logger.Log.Info("shutting down server...")
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("server shutdown failed", zap.Error(err))
		return err
	}

	if closer, ok := a.events.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Log.Error("failed to close notifier", zap.Error(err))
		}
	}

	logger.Log.Info("closing database connection...")
	if err := a.db.Close(); err != nil {
		logger.Log.Error("failed to close database", zap.Error(err))
		return err
	}

	return nil
}
