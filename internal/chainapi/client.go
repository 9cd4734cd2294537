// Package chainapi provides a read-only client for the blockchain
// transaction explorer used as payment evidence.
package chainapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	klog "github.com/Klingon-tech/klingnet-market/internal/log"
	"github.com/Klingon-tech/klingnet-market/internal/metrics"
	"github.com/patrickmn/go-cache"
)

// Explorer errors.
var (
	ErrUnavailable = errors.New("chain explorer unavailable")
	ErrTxNotFound  = errors.New("transaction not found")
)

// DefaultTimeout bounds every explorer call.
const DefaultTimeout = 10 * time.Second

// maxResponseSize caps explorer response bodies.
const maxResponseSize = 4 << 20

// Transaction is the part of an explorer transaction the market reads.
type Transaction struct {
	Hash string
	// Value is the incoming message value exactly as the explorer reports
	// it. It may be in standard units or in nano units.
	Value float64
	// Sender is empty when the explorer does not expose the source.
	Sender    string
	Timestamp time.Time
}

// Config holds client settings.
type Config struct {
	// Endpoint serves the address history method (getTransactions).
	Endpoint string
	// LookupEndpoint serves lookups by hash (transactions?hash=). Empty
	// means Endpoint.
	LookupEndpoint string
	APIKey         string
	Timeout  time.Duration
	// CacheTTL controls how long transactions fetched by hash are kept.
	// Zero disables the cache.
	CacheTTL time.Duration
}

// Client queries the explorer's HTTP API.
type Client struct {
	endpoint       string
	lookupEndpoint string
	apiKey         string
	http           *http.Client
	cache          *cache.Cache
}

// New creates an explorer client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		endpoint:       strings.TrimRight(cfg.Endpoint, "/"),
		lookupEndpoint: strings.TrimRight(cfg.LookupEndpoint, "/"),
		apiKey:         cfg.APIKey,
		http:           &http.Client{Timeout: timeout},
	}
	if c.lookupEndpoint == "" {
		c.lookupEndpoint = c.endpoint
	}
	if cfg.CacheTTL > 0 {
		c.cache = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	return c
}

// GetTransaction looks a transaction up by hash. It returns ErrTxNotFound
// when the explorer has no such transaction and ErrUnavailable when the
// explorer cannot be reached or answers with an error.
func (c *Client) GetTransaction(ctx context.Context, hash string) (*Transaction, error) {
	if c.cache != nil {
		if v, ok := c.cache.Get(hash); ok {
			tx := v.(Transaction)
			return &tx, nil
		}
	}

	start := time.Now()
	body, err := c.get(ctx, c.lookupEndpoint, "/transactions", url.Values{"hash": {hash}, "limit": {"1"}})
	if err != nil {
		metrics.RecordChainCall("get_transaction", "error", time.Since(start))
		return nil, err
	}

	txs, err := parseTransactions(body)
	if err != nil {
		metrics.RecordChainCall("get_transaction", "error", time.Since(start))
		return nil, err
	}
	// The explorer filters by hash; it may render the hash in another
	// encoding, so the first result is taken as is.
	if len(txs) == 0 {
		metrics.RecordChainCall("get_transaction", "not_found", time.Since(start))
		return nil, ErrTxNotFound
	}
	found := &txs[0]
	if found.Hash == "" {
		found.Hash = hash
	}
	metrics.RecordChainCall("get_transaction", "ok", time.Since(start))

	if c.cache != nil {
		c.cache.SetDefault(hash, *found)
	}
	return found, nil
}

// GetTransactionsForAddress returns up to limit recent transactions on
// address, in the order the explorer returns them.
func (c *Client) GetTransactionsForAddress(ctx context.Context, address string, limit int) ([]Transaction, error) {
	start := time.Now()
	body, err := c.get(ctx, c.endpoint, "/getTransactions", url.Values{
		"address": {address},
		"limit":   {strconv.Itoa(limit)},
	})
	if err != nil {
		metrics.RecordChainCall("get_transactions", "error", time.Since(start))
		return nil, err
	}
	txs, err := parseTransactions(body)
	if err != nil {
		metrics.RecordChainCall("get_transactions", "error", time.Since(start))
		return nil, err
	}
	metrics.RecordChainCall("get_transactions", "ok", time.Since(start))

	if limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

func (c *Client) get(ctx context.Context, base, path string, q url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		klog.Chain.Debug().Err(err).Str("path", path).Msg("Explorer request failed")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrTxNotFound
	case resp.StatusCode >= 300:
		klog.Chain.Debug().Int("status", resp.StatusCode).Str("path", path).Msg("Explorer error response")
		return nil, fmt.Errorf("%w: http status %d", ErrUnavailable, resp.StatusCode)
	}
	return data, nil
}
