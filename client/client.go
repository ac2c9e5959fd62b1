package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Balance is the SOL balance of an address.
type Balance struct {
	Address  string  `json:"address"`
	Balance  float64 `json:"balance"`
	Lamports uint64  `json:"lamports"`
}

// Account is on-chain account metadata.
type Account struct {
	Address    string `json:"address"`
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rent_epoch"`
}

// TransferRequest asks the gateway to sign and submit a SOL transfer.
type TransferRequest struct {
	From       string  `json:"from"`
	To         string  `json:"to"`
	Amount     float64 `json:"amount"` // SOL
	PrivateKey string  `json:"private_key,omitempty"`
	Memo       string  `json:"memo,omitempty"`
}

// TransferResponse is returned for a confirmed transfer.
type TransferResponse struct {
	Signature string `json:"signature"`
	Success   bool   `json:"success"`
	Message   string `json:"message"`
}

// Transaction is a fetched transaction.
type Transaction struct {
	Signature string            `json:"signature"`
	Slot      uint64            `json:"slot"`
	BlockTime *int64            `json:"block_time"`
	Success   bool              `json:"success"`
	Fee       *uint64           `json:"fee"`
	Accounts  []string          `json:"accounts"`
	Error     *string           `json:"error,omitempty"`
	Memo      *string           `json:"memo,omitempty"`
	Transfers []json.RawMessage `json:"transfers,omitempty"`
}

// Transfer is a transfer recorded by the gateway.
type Transfer struct {
	Signature   string    `json:"signature"`
	FromAddress string    `json:"from_address"`
	ToAddress   string    `json:"to_address"`
	Lamports    uint64    `json:"lamports"`
	Amount      float64   `json:"amount"`
	Memo        *string   `json:"memo,omitempty"`
	Status      string    `json:"status"`
	Error       *string   `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TransferEvent is a status change streamed by the gateway.
type TransferEvent struct {
	Signature   string    `json:"signature"`
	FromAddress string    `json:"from_address"`
	ToAddress   string    `json:"to_address"`
	Lamports    uint64    `json:"lamports"`
	Memo        *string   `json:"memo,omitempty"`
	Status      string    `json:"status"`
	Error       *string   `json:"error,omitempty"`
	Slot        uint64    `json:"slot,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// ListTransfersOptions filters and paginates Transfers. Zero values use the
// server defaults.
type ListTransfersOptions struct {
	Address string
	Limit   int
	Offset  int
}

// APIError is a non-2xx response from the gateway.
type APIError struct {
	StatusCode int
	Kind       string // e.g. "Invalid public key"
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Kind)
}

// Client is the HTTP client for the solapi gateway.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new gateway client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Info returns the service description served at the root path.
func (c *Client) Info(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.get(ctx, "/", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Health returns the health document.
func (c *Client) Health(ctx context.Context) (map[string]string, error) {
	var out map[string]string
	if err := c.get(ctx, "/health", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Balance returns the balance of address.
func (c *Client) Balance(ctx context.Context, address string) (*Balance, error) {
	var out Balance
	if err := c.get(ctx, "/balance/"+url.PathEscape(address), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Account returns account metadata for address.
func (c *Client) Account(ctx context.Context, address string) (*Account, error) {
	var out Account
	if err := c.get(ctx, "/account/"+url.PathEscape(address), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Transaction returns the transaction with the given signature.
func (c *Client) Transaction(ctx context.Context, signature string) (*Transaction, error) {
	var out Transaction
	if err := c.get(ctx, "/transaction/"+url.PathEscape(signature), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Transfers lists transfers recorded by the gateway, newest first.
func (c *Client) Transfers(ctx context.Context, opts ListTransfersOptions) ([]*Transfer, error) {
	q := url.Values{}
	if opts.Address != "" {
		q.Set("address", opts.Address)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	path := "/transfers"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out struct {
		Transfers []*Transfer `json:"transfers"`
	}
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Transfers, nil
}

// Transfer submits a transfer and waits for the gateway's response, which
// arrives once the transaction is confirmed.
func (c *Client) Transfer(ctx context.Context, transfer TransferRequest) (*TransferResponse, error) {
	body, err := json.Marshal(transfer)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transfer", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out TransferResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}

	c.logger.Debug("transfer submitted", "signature", out.Signature, "from", transfer.From, "to", transfer.To)
	return &out, nil
}

// AwaitTransfer streams transfer events sent from address (every sender when
// empty) until matcher accepts one or ctx is done.
func (c *Client) AwaitTransfer(ctx context.Context, address string, matcher func(*TransferEvent) bool) (*TransferEvent, error) {
	path := "/stream/transfers"
	if address != "" {
		path += "/" + url.PathEscape(address)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// Streams outlive the client's request timeout.
	streamClient := *c.httpClient
	streamClient.Timeout = 0
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	event := ""
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if event != "transfer" {
				continue
			}
			var e TransferEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e); err != nil {
				c.logger.Warn("failed to decode transfer event", "error", err)
				continue
			}
			c.logger.Debug("received transfer event", "signature", e.Signature, "status", e.Status)
			if matcher == nil || matcher(&e) {
				return &e, nil
			}
		case line == "":
			event = ""
		}
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("stream failed: %w", err)
	}
	return nil, fmt.Errorf("stream closed before a matching transfer arrived")
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	return &APIError{StatusCode: resp.StatusCode, Kind: errResp.Error, Message: errResp.Message}
}
