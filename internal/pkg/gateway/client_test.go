package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &HTTPClient{
		APIBaseURL: server.URL,
		APIKey:     "test-key",
		Timeout:    2 * time.Second,
		HTTPClient: server.Client(),
	}
}

func TestTransferSuccess(t *testing.T) {
	var gotRequest transferRequest
	var gotIdempotencyHeader, gotAuthHeader string

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/transfers", r.URL.Path)
		gotIdempotencyHeader = r.Header.Get("Idempotency-Key")
		gotAuthHeader = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(TransferResult{
			TransferID: "tr_123",
			Status:     TransferStatusSucceeded,
		})
	})

	result, err := client.Transfer(context.Background(), "acct_alice", 12000, "key-1")
	require.NoError(t, err)
	assert.Equal(t, "tr_123", result.TransferID)
	assert.Equal(t, TransferStatusSucceeded, result.Status)

	assert.Equal(t, "key-1", gotIdempotencyHeader)
	assert.Equal(t, "Bearer test-key", gotAuthHeader)
	assert.Equal(t, "acct_alice", gotRequest.Destination)
	assert.Equal(t, int64(12000), gotRequest.AmountMinorUnits)
	assert.Equal(t, "key-1", gotRequest.IdempotencyKey)
}

func TestTransferRejectsInvalidInput(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := client.Transfer(context.Background(), "", 100, "key")
	assert.True(t, IsValidation(err))

	_, err = client.Transfer(context.Background(), "acct", 0, "key")
	assert.True(t, IsValidation(err))

	_, err = client.Transfer(context.Background(), "acct", 100, "")
	assert.True(t, IsValidation(err))
}

func TestTransferServerErrorIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.Transfer(context.Background(), "acct_alice", 100, "key-1")
	assert.True(t, IsTransient(err))
	assert.False(t, IsValidation(err))
}

func TestTransferRateLimitIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Transfer(context.Background(), "acct_alice", 100, "key-1")
	assert.True(t, IsTransient(err))
}

func TestTransferGatewayRejectionIsValidation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(gatewayErrorResponse{
			Error:   "account_closed",
			Message: "destination account is closed",
		})
	})

	_, err := client.Transfer(context.Background(), "acct_alice", 100, "key-1")
	require.True(t, IsValidation(err))

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "account_closed", vErr.Code)
	assert.Equal(t, "destination account is closed", vErr.Message)
}

func TestTransferNetworkErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	client := &HTTPClient{APIBaseURL: server.URL, Timeout: time.Second}
	_, err := client.Transfer(context.Background(), "acct_alice", 100, "key-1")
	assert.True(t, IsTransient(err))
}

func TestTransferMissingTransferID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"succeeded"}`))
	})

	_, err := client.Transfer(context.Background(), "acct_alice", 100, "key-1")
	require.Error(t, err)
	assert.False(t, IsTransient(err))
	assert.False(t, IsValidation(err))
}

func TestLookupTransferFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "key-1", r.URL.Query().Get("idempotency_key"))
		json.NewEncoder(w).Encode(TransferResult{
			TransferID:    "tr_123",
			Status:        TransferStatusFailed,
			FailureReason: "destination closed",
		})
	})

	result, err := client.LookupTransfer(context.Background(), "key-1")
	require.NoError(t, err)
	assert.Equal(t, "tr_123", result.TransferID)
	assert.Equal(t, TransferStatusFailed, result.Status)
	assert.Equal(t, "destination closed", result.FailureReason)
}

func TestLookupTransferNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.LookupTransfer(context.Background(), "key-missing")
	assert.ErrorIs(t, err, ErrTransferNotFound)
}

func TestIsTransientCoversDeadline(t *testing.T) {
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(&TransientError{Message: "gateway returned 503"}))
	assert.False(t, IsTransient(&ValidationError{Code: "x"}))
	assert.False(t, IsTransient(nil))
}
