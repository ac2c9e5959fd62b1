package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddress = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestBalance_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/balance/"+testAddress, r.URL.Path)
		writeJSON(t, w, http.StatusOK, Balance{Address: testAddress, Balance: 1.5, Lamports: 1_500_000_000})
	}))
	defer server.Close()

	c := NewClient(server.URL+"/", nil, nil)
	bal, err := c.Balance(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000_000), bal.Lamports)
	assert.InDelta(t, 1.5, bal.Balance, 1e-9)
}

func TestBalance_InvalidAddress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusBadRequest, map[string]string{
			"error":   "Invalid public key",
			"message": "Invalid public key: bogus",
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	_, err := c.Balance(context.Background(), "bogus")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Invalid public key", apiErr.Kind)
	assert.Contains(t, err.Error(), "Invalid public key: bogus")
}

func TestAccount_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusNotFound, map[string]string{
			"error":   "Wallet not found",
			"message": "Wallet not found: Account not found: " + testAddress,
		})
	}))
	defer server.Close()

	_, err := NewClient(server.URL, nil, nil).Account(context.Background(), testAddress)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestNonJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, nil, nil).Health(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "upstream exploded", apiErr.Message)
}

func TestTransfer_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transfer", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req TransferRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 0.25, req.Amount)
		assert.Equal(t, "secret", req.PrivateKey)
		assert.Equal(t, "invoice 7", req.Memo)

		writeJSON(t, w, http.StatusOK, TransferResponse{Signature: "sig", Success: true, Message: "Successfully transferred 0.25 SOL"})
	}))
	defer server.Close()

	resp, err := NewClient(server.URL, nil, nil).Transfer(context.Background(), TransferRequest{
		From:       testAddress,
		To:         testAddress,
		Amount:     0.25,
		PrivateKey: "secret",
		Memo:       "invoice 7",
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "sig", resp.Signature)
}

func TestTransfer_OmitsEmptyKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, ok := raw["private_key"]
		assert.False(t, ok)
		writeJSON(t, w, http.StatusBadRequest, map[string]string{
			"error":   "Bad request",
			"message": "Bad request: Private key is required for transfers",
		})
	}))
	defer server.Close()

	_, err := NewClient(server.URL, nil, nil).Transfer(context.Background(), TransferRequest{From: testAddress, To: testAddress, Amount: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Private key is required")
}

func TestTransaction_NullMeta(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/abc", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"signature":"abc","slot":9,"block_time":null,"success":false,"fee":null,"accounts":[]}`))
	}))
	defer server.Close()

	tx, err := NewClient(server.URL, nil, nil).Transaction(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, uint64(9), tx.Slot)
	assert.Nil(t, tx.Fee)
	assert.Nil(t, tx.BlockTime)
	assert.Empty(t, tx.Accounts)
}

func TestTransfers_Query(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transfers", r.URL.Path)
		assert.Equal(t, testAddress, r.URL.Query().Get("address"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Empty(t, r.URL.Query().Get("offset"))
		writeJSON(t, w, http.StatusOK, map[string]any{
			"transfers": []Transfer{{Signature: "a", Status: "finalized", Lamports: 5}},
			"count":     1,
		})
	}))
	defer server.Close()

	transfers, err := NewClient(server.URL, nil, nil).Transfers(context.Background(), ListTransfersOptions{Address: testAddress, Limit: 10})
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, "finalized", transfers[0].Status)
}

func TestInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/", r.URL.Path)
		writeJSON(t, w, http.StatusOK, map[string]any{"message": "Solana HTTP API Server", "version": "1.0.0"})
	}))
	defer server.Close()

	info, err := NewClient(server.URL, nil, nil).Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", info["version"])
}

func sseServer(t *testing.T, path string, frames ...string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, path, r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		rc := http.NewResponseController(w)
		for _, f := range frames {
			_, err := w.Write([]byte(f))
			require.NoError(t, err)
			require.NoError(t, rc.Flush())
		}
		<-r.Context().Done()
	}))
}

func eventFrame(t *testing.T, e TransferEvent) string {
	data, err := json.Marshal(e)
	require.NoError(t, err)
	return "event: transfer\ndata: " + string(data) + "\n\n"
}

func TestAwaitTransfer_Match(t *testing.T) {
	server := sseServer(t, "/stream/transfers/"+testAddress,
		"event: connected\ndata: {\"wallet\":\""+testAddress+"\"}\n\n",
		": keepalive\n\n",
		eventFrame(t, TransferEvent{Signature: "one", Status: "submitted"}),
		eventFrame(t, TransferEvent{Signature: "one", Status: "finalized", Slot: 4}),
	)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	e, err := NewClient(server.URL, nil, nil).AwaitTransfer(ctx, testAddress, func(e *TransferEvent) bool {
		return e.Status == "finalized"
	})
	require.NoError(t, err)
	assert.Equal(t, "one", e.Signature)
	assert.Equal(t, uint64(4), e.Slot)
}

func TestAwaitTransfer_IgnoresOtherEvents(t *testing.T) {
	server := sseServer(t, "/stream/transfers",
		"event: connected\ndata: {\"signature\":\"not-a-transfer\"}\n\n",
		eventFrame(t, TransferEvent{Signature: "two", Status: "confirmed"}),
	)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	e, err := NewClient(server.URL, nil, nil).AwaitTransfer(ctx, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "two", e.Signature)
}

func TestAwaitTransfer_ContextCancelled(t *testing.T) {
	server := sseServer(t, "/stream/transfers/"+testAddress,
		eventFrame(t, TransferEvent{Signature: "three", Status: "submitted"}),
	)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := NewClient(server.URL, nil, nil).AwaitTransfer(ctx, testAddress, func(*TransferEvent) bool { return false })
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAwaitTransfer_StreamingDisabled(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	_, err := NewClient(server.URL, nil, nil).AwaitTransfer(context.Background(), testAddress, nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}
