package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/artmarket/artledger/internal/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Callback statuses the provider reports for a checkout.
const (
	StatusPaid      = "PAID"
	StatusCancelled = "CANCELLED"
	StatusFailed    = "FAILED"
)

type ClientInterface interface {
	CreateCheckout(ctx context.Context, externalRef string, amount decimal.Decimal) (*CheckoutResponse, int, error)
}

type CheckoutRequest struct {
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
}

type CheckoutResponse struct {
	Reference   string `json:"reference"`
	CheckoutURL string `json:"checkout_url"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// CreateCheckout registers a payment request with the provider and returns
// the URL the buyer is redirected to. No wallet is touched here; the money
// only moves when the provider confirms payment through the callback.
func (c *Client) CreateCheckout(ctx context.Context, externalRef string, amount decimal.Decimal) (*CheckoutResponse, int, error) {
	body, err := json.Marshal(CheckoutRequest{Reference: externalRef, Amount: amount})
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST",
		fmt.Sprintf("%s/api/v1/checkouts", c.baseURL), bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}

	defer func(Body io.ReadCloser) {
		err := Body.Close()
		if err != nil {
			logger.Log.Error("failed to close provider response body", zap.Error(err))
		}
	}(resp.Body)

	logger.Log.Info("provider checkout response", zap.Any("status", resp.StatusCode))

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, resp.StatusCode, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result CheckoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, resp.StatusCode, err
	}

	return &result, resp.StatusCode, nil
}
