package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/artmarket/artledger/internal/apperrors"
	"github.com/artmarket/artledger/internal/mocks/service_mocks"
	"github.com/artmarket/artledger/internal/models"
	"github.com/artmarket/artledger/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestHandler_CreateOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	tests := []struct {
		name       string
		body       string
		mockSetup  func(m *service_mocks.MockSettlementService)
		wantStatus int
	}{
		{
			name: "order created",
			body: `{"lines":[{"product_id":10,"artist_id":2,"price":"100"},{"product_id":11,"artist_id":3,"price":"200"}]}`,
			mockSetup: func(m *service_mocks.MockSettlementService) {
				m.EXPECT().CreateOrder(gomock.Any(), int64(1), gomock.AssignableToTypeOf([]service.NewOrderLine{})).Return(models.Order{
					ID:      5,
					BuyerID: 1,
					Total:   dec("300"),
					Status:  models.OrderStatusPending,
				}, nil).Times(1)
			},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "malformed body",
			body:       `{"lines": `,
			mockSetup:  func(m *service_mocks.MockSettlementService) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "empty lines",
			body: `{"lines":[]}`,
			mockSetup: func(m *service_mocks.MockSettlementService) {
				m.EXPECT().CreateOrder(gomock.Any(), int64(1), gomock.Any()).
					Return(models.Order{}, apperrors.ErrInvalidRequest).Times(1)
			},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSettlement := service_mocks.NewMockSettlementService(ctrl)
			tt.mockSetup(mockSettlement)
			h := newTestHandler(nil, nil, nil, mockSettlement, nil)

			req := authed(httptest.NewRequest(http.MethodPost, "/api/user/orders", bytes.NewBufferString(tt.body)), 1)
			w := httptest.NewRecorder()

			h.CreateOrder(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusCreated {
				var order models.Order
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &order))
				assert.Equal(t, int64(5), order.ID)
				assert.Equal(t, models.OrderStatusPending, order.Status)
			}
		})
	}
}

func TestHandler_GetOrders(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	tests := []struct {
		name       string
		mockSetup  func(m *service_mocks.MockSettlementService)
		wantStatus int
	}{
		{
			name: "orders returned",
			mockSetup: func(m *service_mocks.MockSettlementService) {
				m.EXPECT().GetUserOrders(gomock.Any(), int64(1)).Return([]models.Order{
					{ID: 5, BuyerID: 1, Total: dec("300"), Status: models.OrderStatusPaid},
				}, nil).Times(1)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "no orders",
			mockSetup: func(m *service_mocks.MockSettlementService) {
				m.EXPECT().GetUserOrders(gomock.Any(), int64(1)).Return(nil, nil).Times(1)
			},
			wantStatus: http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSettlement := service_mocks.NewMockSettlementService(ctrl)
			tt.mockSetup(mockSettlement)
			h := newTestHandler(nil, nil, nil, mockSettlement, nil)

			req := authed(httptest.NewRequest(http.MethodGet, "/api/user/orders", nil), 1)
			w := httptest.NewRecorder()

			h.GetOrders(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestHandler_SettleOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	tests := []struct {
		name       string
		orderID    string
		mockSetup  func(m *service_mocks.MockSettlementService)
		wantStatus int
	}{
		{
			name:    "settled",
			orderID: "5",
			mockSetup: func(m *service_mocks.MockSettlementService) {
				m.EXPECT().SettleOrderWithWallet(gomock.Any(), int64(5), int64(1)).Return(service.SettlementResult{
					OrderID:      5,
					BuyerBalance: dec("200"),
					ArtistShares: map[int64]decimal.Decimal{2: dec("90")},
				}, nil).Times(1)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "bad order id",
			orderID:    "abc",
			mockSetup:  func(m *service_mocks.MockSettlementService) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:    "not found",
			orderID: "5",
			mockSetup: func(m *service_mocks.MockSettlementService) {
				m.EXPECT().SettleOrderWithWallet(gomock.Any(), int64(5), int64(1)).
					Return(service.SettlementResult{}, apperrors.ErrNotFound).Times(1)
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name:    "already settled",
			orderID: "5",
			mockSetup: func(m *service_mocks.MockSettlementService) {
				m.EXPECT().SettleOrderWithWallet(gomock.Any(), int64(5), int64(1)).
					Return(service.SettlementResult{}, apperrors.ErrAlreadySettled).Times(1)
			},
			wantStatus: http.StatusConflict,
		},
		{
			name:    "insufficient funds",
			orderID: "5",
			mockSetup: func(m *service_mocks.MockSettlementService) {
				m.EXPECT().SettleOrderWithWallet(gomock.Any(), int64(5), int64(1)).
					Return(service.SettlementResult{}, apperrors.ErrInsufficientFunds).Times(1)
			},
			wantStatus: http.StatusPaymentRequired,
		},
		{
			name:    "transient conflict",
			orderID: "5",
			mockSetup: func(m *service_mocks.MockSettlementService) {
				m.EXPECT().SettleOrderWithWallet(gomock.Any(), int64(5), int64(1)).
					Return(service.SettlementResult{}, apperrors.ErrTransient).Times(1)
			},
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSettlement := service_mocks.NewMockSettlementService(ctrl)
			tt.mockSetup(mockSettlement)
			h := newTestHandler(nil, nil, nil, mockSettlement, nil)

			req := authed(httptest.NewRequest(http.MethodPost, "/api/user/orders/"+tt.orderID+"/settle", nil), 1)
			req = withURLParam(req, "orderID", tt.orderID)
			w := httptest.NewRecorder()

			h.SettleOrder(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				var resp settleResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.True(t, resp.BuyerBalance.Equal(dec("200")))
			}
		})
	}
}
