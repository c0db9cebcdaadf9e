package handlers

import (
	"net/http"

	"github.com/artmarket/artledger/internal/middleware"
	"github.com/artmarket/artledger/internal/service"
	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

type Handler struct {
	userService       service.UserService
	walletService     service.WalletService
	depositService    service.DepositService
	settlementService service.SettlementService
	withdrawalService service.WithdrawalService
	secretKey         string
	providerSecret    string
}

func NewHandler(
	userService service.UserService,
	walletService service.WalletService,
	depositService service.DepositService,
	settlementService service.SettlementService,
	withdrawalService service.WithdrawalService,
	secretKey string,
	providerSecret string,
) *Handler {
	return &Handler{
		userService:       userService,
		walletService:     walletService,
		depositService:    depositService,
		settlementService: settlementService,
		withdrawalService: withdrawalService,
		secretKey:         secretKey,
		providerSecret:    providerSecret,
	}
}

func NewRouter(handler *Handler, secretKey string) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.WithLogging())
	r.Use(middleware.WithGzip())
	// The provider's callback is exempt: its retries must never be shed.
	limiter := middleware.NewClientLimiter(rate.Limit(20), 40).
		Exempt("/api/payments/callback")
	r.Use(middleware.RateLimitMiddleware(limiter))

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Invalid URL format", http.StatusNotFound)
	})

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/register", handler.Register)
		r.Post("/login", handler.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTMiddleware(secretKey))
			r.Get("/balance", handler.GetBalance)
			r.Get("/transactions", handler.GetTransactions)
			r.Post("/deposit", handler.CreateDeposit)
			r.Post("/orders", handler.CreateOrder)
			r.Get("/orders", handler.GetOrders)
			r.Post("/orders/{orderID}/settle", handler.SettleOrder)
			r.Post("/withdrawals", handler.RequestWithdrawal)
			r.Get("/withdrawals", handler.GetWithdrawals)
		})
	})

	// Provider webhook; authenticated by payload signature, not by JWT.
	r.Post("/api/payments/callback", handler.DepositCallback)

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.JWTMiddleware(secretKey))
		r.Use(middleware.RequireAdmin())
		r.Get("/withdrawals", handler.GetPendingWithdrawals)
		r.Post("/withdrawals/{requestID}/decision", handler.DecideWithdrawal)
	})

	return r
}
