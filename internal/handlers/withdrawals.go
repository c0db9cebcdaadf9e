package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/artmarket/artledger/internal/apperrors"
	"github.com/artmarket/artledger/internal/logger"
	"github.com/artmarket/artledger/internal/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type withdrawalRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type withdrawalResponse struct {
	RequestID int64 `json:"request_id"`
}

type decisionRequest struct {
	Decision string `json:"decision"`
	Note     string `json:"note"`
}

func (h *Handler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req withdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid input", http.StatusBadRequest)
		return
	}

	request, err := h.withdrawalService.Request(r.Context(), userID, req.Amount)
	switch {
	case err == nil:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(withdrawalResponse{RequestID: request.ID})
	case errors.Is(err, apperrors.ErrInvalidAmount):
		http.Error(w, "amount must be positive", http.StatusBadRequest)
	case errors.Is(err, apperrors.ErrInsufficientFunds):
		http.Error(w, "insufficient funds", http.StatusPaymentRequired)
	default:
		http.Error(w, "internal server error", http.StatusInternalServerError)
		logger.Log.Error("withdrawal request error", zap.Error(err))
	}
}

func (h *Handler) GetWithdrawals(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	requests, err := h.withdrawalService.ListByUser(r.Context(), userID)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		logger.Log.Error("failed to get withdrawals", zap.Error(err))
		return
	}

	if len(requests) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(requests); err != nil {
		logger.Log.Error("failed to encode withdrawals json", zap.Error(err))
	}
}

func (h *Handler) GetPendingWithdrawals(w http.ResponseWriter, r *http.Request) {
	requests, err := h.withdrawalService.ListPending(r.Context())
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		logger.Log.Error("failed to list pending withdrawals", zap.Error(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(requests); err != nil {
		logger.Log.Error("failed to encode withdrawals json", zap.Error(err))
	}
}

func (h *Handler) DecideWithdrawal(w http.ResponseWriter, r *http.Request) {
	requestID, err := strconv.ParseInt(chi.URLParam(r, "requestID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid request id", http.StatusBadRequest)
		return
	}

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid input", http.StatusBadRequest)
		return
	}

	switch req.Decision {
	case "approve":
		_, err = h.withdrawalService.Approve(r.Context(), requestID, req.Note)
	case "reject":
		_, err = h.withdrawalService.Reject(r.Context(), requestID, req.Note)
	default:
		http.Error(w, "decision must be approve or reject", http.StatusBadRequest)
		return
	}

	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, apperrors.ErrNotFound):
		http.Error(w, "request not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrAlreadyProcessed):
		http.Error(w, "request already processed", http.StatusConflict)
	default:
		http.Error(w, "internal server error", http.StatusInternalServerError)
		logger.Log.Error("withdrawal decision error", zap.Error(err))
	}
}
