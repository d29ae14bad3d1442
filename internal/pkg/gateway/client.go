package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/creatorly/creatorpay/internal/pkg/env"
)

const defaultTransferTimeout = 10 * time.Second

// HTTPClient talks to the payout gateway's REST API. Transfers are created
// with an Idempotency-Key header; the gateway deduplicates on it.
type HTTPClient struct {
	APIBaseURL string
	APIKey     string

	// Timeout is the hard per-call budget. A timed-out call is an unknown
	// outcome and must be resolved via LookupTransfer, never assumed failed.
	Timeout time.Duration

	HTTPClient *http.Client
}

type transferRequest struct {
	Destination      string `json:"destination"`
	AmountMinorUnits int64  `json:"amount_minor_units"`
	IdempotencyKey   string `json:"idempotency_key"`
}

type gatewayErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewClientFromEnv builds a client from PAYOUT_GATEWAY_* environment keys.
func NewClientFromEnv() *HTTPClient {
	timeout := env.GetEnvDuration("PAYOUT_GATEWAY_TIMEOUT", defaultTransferTimeout)
	return &HTTPClient{
		APIBaseURL: strings.TrimRight(env.GetEnv("PAYOUT_GATEWAY_URL", ""), "/"),
		APIKey:     strings.TrimSpace(env.GetEnv("PAYOUT_GATEWAY_API_KEY", "")),
		Timeout:    timeout,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Transfer implements Client.
func (c *HTTPClient) Transfer(ctx context.Context, destination string, amountMinorUnits int64, idempotencyKey string) (*TransferResult, error) {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return nil, errors.New("PAYOUT_GATEWAY_URL is not configured")
	}
	if strings.TrimSpace(destination) == "" {
		return nil, &ValidationError{Code: "invalid_destination", Message: "destination is empty"}
	}
	if amountMinorUnits <= 0 {
		return nil, &ValidationError{Code: "invalid_amount", Message: fmt.Sprintf("amount %d is not positive", amountMinorUnits)}
	}
	if strings.TrimSpace(idempotencyKey) == "" {
		return nil, &ValidationError{Code: "invalid_idempotency_key", Message: "idempotency key is empty"}
	}

	body, err := json.Marshal(transferRequest{
		Destination:      destination,
		AmountMinorUnits: amountMinorUnits,
		IdempotencyKey:   idempotencyKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transfer request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+"/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)
	c.authorize(req)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		// Network errors and deadline expiry are unknown-outcome.
		return nil, &TransientError{Message: "transfer call failed", Err: err}
	}
	defer resp.Body.Close()

	return c.decodeTransferResponse(resp)
}

// LookupTransfer implements Client.
func (c *HTTPClient) LookupTransfer(ctx context.Context, idempotencyKey string) (*TransferResult, error) {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return nil, errors.New("PAYOUT_GATEWAY_URL is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	lookupURL := fmt.Sprintf("%s/v1/transfers?idempotency_key=%s", c.APIBaseURL, url.QueryEscape(idempotencyKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build lookup request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, &TransientError{Message: "lookup call failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrTransferNotFound
	}
	return c.decodeTransferResponse(resp)
}

func (c *HTTPClient) decodeTransferResponse(resp *http.Response) (*TransferResult, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &TransientError{Message: "failed to read gateway response", Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var result TransferResult
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("failed to decode gateway response: %w", err)
		}
		if result.TransferID == "" {
			return nil, fmt.Errorf("gateway response missing transfer_id")
		}
		return &result, nil

	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return nil, &TransientError{
			Message: fmt.Sprintf("gateway returned %d", resp.StatusCode),
		}

	default:
		var gwErr gatewayErrorResponse
		if err := json.Unmarshal(raw, &gwErr); err != nil || gwErr.Error == "" {
			return nil, &ValidationError{
				Code:    fmt.Sprintf("http_%d", resp.StatusCode),
				Message: strings.TrimSpace(string(raw)),
			}
		}
		return nil, &ValidationError{Code: gwErr.Error, Message: gwErr.Message}
	}
}

func (c *HTTPClient) authorize(req *http.Request) {
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
}

func (c *HTTPClient) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return defaultTransferTimeout
}

func (c *HTTPClient) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}
