// Package apiclient provides an HTTP client for the market daemon API.
package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Klingon-tech/klingnet-market/internal/api"
	"github.com/Klingon-tech/klingnet-market/internal/history"
	"github.com/Klingon-tech/klingnet-market/internal/ledger"
	"github.com/Klingon-tech/klingnet-market/internal/sale"
	"github.com/Klingon-tech/klingnet-market/internal/transfer"
)

// Client is a market API HTTP client.
type Client struct {
	endpoint string
	http     *http.Client
}

// New creates a new API client targeting the given base URL.
func New(endpoint string) *Client {
	return NewWithTimeout(endpoint, 30*time.Second)
}

// NewWithTimeout creates a new API client with a custom HTTP timeout.
// Confirmation may scan the explorer, so keep it above the daemon's chain
// timeout.
func NewWithTimeout(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// APIError is returned when the server responds with a non-2xx status.
type APIError struct {
	Status  int
	Reason  string
	Message string
}

func (e *APIError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Reason, e.Message)
}

// Health checks that the daemon is up.
func (c *Client) Health() (*api.HealthResponse, error) {
	var out api.HealthResponse
	if err := c.do(http.MethodGet, "/api/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Tokens lists all tokens, newest first. Tokens are decoded as raw maps
// since each type carries its own fields.
func (c *Client) Tokens() ([]map[string]any, error) {
	var out []map[string]any
	if err := c.do(http.MethodGet, "/api/tokens", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Token fetches one token.
func (c *Client) Token(id string) (map[string]any, error) {
	var out map[string]any
	if err := c.do(http.MethodGet, "/api/tokens/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateToken mints a new token and returns its id.
func (c *Client) CreateToken(req api.CreateTokenRequest) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(http.MethodPost, "/api/tokens/create", req, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// Buy requests a quote for amount tokens.
func (c *Client) Buy(tokenID, buyer string, amount float64) (*api.BuyResponse, error) {
	var out api.BuyResponse
	req := api.BuyRequest{Buyer: buyer, Amount: &amount}
	if err := c.do(http.MethodPost, "/api/tokens/"+url.PathEscape(tokenID)+"/buy", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sale fetches a sale.
func (c *Client) Sale(id string) (*sale.Sale, error) {
	var out sale.Sale
	if err := c.do(http.MethodGet, "/api/sales/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Confirm asks the daemon to confirm a sale. txHash may be empty.
func (c *Client) Confirm(saleID, txHash string) (*sale.Result, error) {
	var out sale.Result
	path := "/api/sales/" + url.PathEscape(saleID) + "/confirm"
	if err := c.do(http.MethodPost, path, api.ConfirmRequest{TxHash: txHash}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Transfer moves a balance between two addresses.
func (c *Client) Transfer(req transfer.Request) error {
	return c.do(http.MethodPost, "/api/transfer", req, nil)
}

// Balances lists balances held by address.
func (c *Client) Balances(address string) ([]ledger.Balance, error) {
	var out []ledger.Balance
	if err := c.do(http.MethodGet, "/api/balances/"+url.PathEscape(address), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// History lists history entries where address is the buyer.
func (c *Client) History(address string) ([]history.Entry, error) {
	var out []history.Entry
	if err := c.do(http.MethodGet, "/api/history/"+url.PathEscape(address), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// do sends a request and decodes the JSON response into result.
// If result is nil, the response body is discarded.
func (c *Client) do(method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var eb struct {
			Reason string `json:"reason"`
			Error  string `json:"error"`
		}
		if json.Unmarshal(data, &eb) == nil && (eb.Reason != "" || eb.Error != "") {
			apiErr.Reason, apiErr.Message = eb.Reason, eb.Error
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
