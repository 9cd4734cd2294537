package api

import (
	"github.com/Klingon-tech/klingnet-market/internal/ledger"
)

// Reason codes returned in error bodies.
const (
	reasonMissingFields      = "missing_fields"
	reasonNotFound           = "not_found"
	reasonInvalidAmount      = "invalid_amount"
	reasonInsufficientSupply = "insufficient_supply"
	reasonInsufficient       = "insufficient"
	reasonRateLimited        = "rate_limited"
	reasonInternal           = "internal"
)

// errorBody is the JSON body of every failed request.
type errorBody struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason"`
	Error  string `json:"error"`
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	OK bool  `json:"ok"`
	TS int64 `json:"ts"` // Unix milliseconds.
}

// CreateTokenRequest is the body of POST /api/tokens/create.
type CreateTokenRequest struct {
	Type          ledger.TokenType `json:"type"`
	Name          string           `json:"name"`
	Ticker        string           `json:"ticker"`
	Owner         string           `json:"owner,omitempty"`
	TotalSupply   float64          `json:"totalSupply,omitempty"`
	PricePerToken float64          `json:"pricePerToken,omitempty"`
	DynamicPrice  float64          `json:"dynamicPrice,omitempty"`
}

// CreateTokenResponse is returned for a created token.
type CreateTokenResponse struct {
	OK    bool          `json:"ok"`
	ID    string        `json:"id"`
	Token *ledger.Token `json:"token"`
}

// BuyRequest is the body of POST /api/tokens/{id}/buy.
type BuyRequest struct {
	Buyer  string   `json:"buyer"`
	Amount *float64 `json:"amount"`
}

// BuyResponse carries the quote for a new sale.
type BuyResponse struct {
	OK       bool    `json:"ok"`
	SaleID   string  `json:"saleId"`
	Cost     float64 `json:"cost"`
	Receiver string  `json:"receiver"`
}

// ConfirmRequest is the optional body of POST /api/sales/{saleId}/confirm.
type ConfirmRequest struct {
	TxHash string `json:"txHash"`
}

// OKResponse is returned by operations with nothing else to report.
type OKResponse struct {
	OK bool `json:"ok"`
}
