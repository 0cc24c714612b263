package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"miprojet-payment-service/internal/config"
)

const defaultTimeoutMs = 10_000

// Client talks to the Money Fusion transaction-creation API. When no base
// URL or API key is configured the client reports itself unconfigured and
// the initiator falls back to simulated mode.
type Client struct {
	client      *http.Client
	baseURL     string
	apiKey      string
	callbackURL string
	logger      *slog.Logger
}

type TransactionRequest struct {
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Reference     string `json:"reference"`
	PaymentMethod string `json:"payment_method"`
	PhoneNumber   string `json:"phone_number,omitempty"`
	Description   string `json:"description,omitempty"`
	WebhookURL    string `json:"webhook_url"`
}

type TransactionResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	PaymentURL    string `json:"payment_url"`
}

func NewClient(cfg config.Gateway, logger *slog.Logger) *Client {
	timeoutMs := cfg.TimeoutMs
	if timeoutMs == 0 {
		timeoutMs = defaultTimeoutMs
	}
	return &Client{
		client:      &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		baseURL:     cfg.BaseURL,
		apiKey:      config.Get("MONEYFUSION_API_KEY", ""),
		callbackURL: cfg.CallbackURL,
		logger:      logger,
	}
}

func (c *Client) Configured() bool {
	return c.baseURL != "" && c.apiKey != ""
}

func (c *Client) CreateTransaction(ctx context.Context, req TransactionRequest) (*TransactionResponse, error) {
	if req.WebhookURL == "" {
		req.WebhookURL = c.callbackURL
	}

	bodyBytes, _ := json.Marshal(req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transactions", bytes.NewBuffer(bodyBytes))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.ErrorContext(ctx, "Error calling payment gateway", "error", err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		c.logger.ErrorContext(ctx, "Gateway returned error response", "status", resp.Status, "body", string(respBody))
		return nil, errors.Errorf("gateway error response: %s", resp.Status)
	}

	var result TransactionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "decoding gateway response")
	}

	c.logger.InfoContext(ctx, "Gateway transaction created", "transactionId", result.TransactionID, "reference", req.Reference)
	return &result, nil
}
