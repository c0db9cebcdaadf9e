package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/artmarket/artledger/internal/apperrors"
	"github.com/artmarket/artledger/internal/hash"
	"github.com/artmarket/artledger/internal/logger"
	"github.com/artmarket/artledger/internal/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type balanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

type depositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type depositResponse struct {
	CheckoutURL string `json:"checkout_url"`
	ExternalRef string `json:"external_ref"`
}

type callbackRequest struct {
	ExternalRef string `json:"external_ref"`
	Status      string `json:"status"`
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	balance, err := h.walletService.GetBalance(r.Context(), userID)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		logger.Log.Error("failed to get user balance", zap.Error(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(balanceResponse{Balance: balance})
}

func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	entries, err := h.walletService.GetTransactions(r.Context(), userID)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		logger.Log.Error("failed to get transactions", zap.Error(err))
		return
	}

	if len(entries) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		logger.Log.Error("failed to encode transactions json", zap.Error(err))
	}
}

func (h *Handler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid input", http.StatusBadRequest)
		return
	}

	intent, err := h.depositService.CreateIntent(r.Context(), userID, req.Amount)
	switch {
	case err == nil:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(depositResponse{
			CheckoutURL: intent.CheckoutURL,
			ExternalRef: intent.ExternalRef,
		})
	case errors.Is(err, apperrors.ErrInvalidAmount):
		http.Error(w, "amount must be positive", http.StatusBadRequest)
	case errors.Is(err, apperrors.ErrProviderUnavailable):
		http.Error(w, "payment provider unavailable, try again", http.StatusServiceUnavailable)
	default:
		http.Error(w, "internal server error", http.StatusInternalServerError)
		logger.Log.Error("deposit intent error", zap.Error(err))
	}
}

// DepositCallback is the provider's webhook. It is idempotent: a replayed
// confirmation is acknowledged with 200 without crediting twice.
func (h *Handler) DepositCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid input", http.StatusBadRequest)
		return
	}

	if err := hash.VerifyHash(string(body), h.providerSecret, r.Header.Get("X-Provider-Signature")); err != nil {
		logger.Log.Warn("callback signature mismatch")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var req callbackRequest
	if err := json.Unmarshal(body, &req); err != nil || req.ExternalRef == "" || req.Status == "" {
		http.Error(w, "invalid input", http.StatusBadRequest)
		return
	}

	err = h.depositService.HandleCallback(r.Context(), req.ExternalRef, req.Status)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, apperrors.ErrUnknownReference):
		logger.Log.Warn("callback for unknown reference", zap.String("ref", req.ExternalRef))
		http.Error(w, "unknown reference", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrTransient):
		http.Error(w, "temporary failure, retry", http.StatusServiceUnavailable)
	case errors.Is(err, apperrors.ErrAlreadyProcessed):
		// Lost a race against a concurrent confirmation; the provider's
		// retry will hit the replay path and get a 200.
		http.Error(w, "reference already processed", http.StatusConflict)
	default:
		http.Error(w, "internal server error", http.StatusInternalServerError)
		logger.Log.Error("deposit callback error", zap.Error(err))
	}
}
