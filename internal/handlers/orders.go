package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/artmarket/artledger/internal/apperrors"
	"github.com/artmarket/artledger/internal/logger"
	"github.com/artmarket/artledger/internal/middleware"
	"github.com/artmarket/artledger/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type createOrderRequest struct {
	Lines []service.NewOrderLine `json:"lines"`
}

type settleResponse struct {
	Message      string          `json:"message"`
	BuyerBalance decimal.Decimal `json:"buyer_balance"`
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid input", http.StatusBadRequest)
		return
	}

	order, err := h.settlementService.CreateOrder(r.Context(), userID, req.Lines)
	switch {
	case err == nil:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(order)
	case errors.Is(err, apperrors.ErrInvalidRequest):
		http.Error(w, "invalid order lines", http.StatusBadRequest)
	default:
		http.Error(w, "internal server error", http.StatusInternalServerError)
		logger.Log.Error("create order error", zap.Error(err))
	}
}

func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	orders, err := h.settlementService.GetUserOrders(r.Context(), userID)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		logger.Log.Error("failed to get orders", zap.Error(err))
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(orders); err != nil {
		logger.Log.Error("failed to encode orders json", zap.Error(err))
	}
}

func (h *Handler) SettleOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}

	result, err := h.settlementService.SettleOrderWithWallet(r.Context(), orderID, userID)
	switch {
	case err == nil:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(settleResponse{
			Message:      "order paid",
			BuyerBalance: result.BuyerBalance,
		})
	case errors.Is(err, apperrors.ErrNotFound):
		http.Error(w, "order not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrAlreadySettled):
		http.Error(w, "order already settled", http.StatusConflict)
	case errors.Is(err, apperrors.ErrInsufficientFunds):
		http.Error(w, "insufficient funds", http.StatusPaymentRequired)
	case errors.Is(err, apperrors.ErrTransient):
		http.Error(w, "temporary failure, retry", http.StatusServiceUnavailable)
	default:
		http.Error(w, "internal server error", http.StatusInternalServerError)
		logger.Log.Error("settle order error", zap.Error(err))
	}
}
