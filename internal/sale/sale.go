// Package sale creates purchase quotes and confirms them against on-chain
// payment evidence.
package sale

import (
	"context"
	"errors"
	"time"

	"github.com/Klingon-tech/klingnet-market/internal/chainapi"
)

// Collection is the repository collection holding sales.
const Collection = "sales"

// ErrSaleNotFound is returned for unknown sale ids.
var ErrSaleNotFound = errors.New("sale not found")

// Status is the lifecycle state of a sale.
type Status string

const (
	StatusPending      Status = "pending"
	StatusPendingCheck Status = "pending_check"
	StatusConfirmed    Status = "confirmed"
)

// Sale is a quoted purchase awaiting or holding payment confirmation.
// Cost is fixed when the sale is created.
type Sale struct {
	ID           string     `json:"id"`
	TokenID      string     `json:"tokenId"`
	TokenTicker  string     `json:"tokenTicker"`
	Buyer        string     `json:"buyer"`
	Seller       string     `json:"seller"`
	AmountTokens float64    `json:"amountTokens"`
	Cost         float64    `json:"cost"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	TxHash       string     `json:"txHash,omitempty"`
	ConfirmedAt  *time.Time `json:"confirmedAt,omitempty"`

	LastCheckedAt   *time.Time `json:"lastCheckedAt,omitempty"`
	LastCheckReason Reason     `json:"lastCheckReason,omitempty"`
}

// Quote is returned to the buyer when a sale is created.
type Quote struct {
	SaleID   string  `json:"saleId"`
	Cost     float64 `json:"cost"`
	Receiver string  `json:"receiver"`
}

// Reason explains an unsuccessful confirmation attempt.
type Reason string

const (
	ReasonTxMismatch     Reason = "tx_mismatch"
	ReasonTxsUnavailable Reason = "txs_unavailable"
	ReasonNotFound       Reason = "not_found"
)

// Confirmation messages.
const (
	MessageConfirmed        = "confirmed"
	MessageAlreadyConfirmed = "already confirmed"
)

// Result is the outcome of a confirmation attempt. Chain-side problems are
// reported here with OK=false rather than as errors.
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Reason  Reason `json:"reason,omitempty"`
	TxHash  string `json:"txHash,omitempty"`

	// Set on tx_mismatch: the observed amount and sender and the cost
	// the transaction had to cover.
	Amount   *float64 `json:"amount,omitempty"`
	Sender   string   `json:"sender,omitempty"`
	Expected *float64 `json:"expected,omitempty"`

	// SenderUnverified is set when the matching transaction did not
	// expose its sender.
	SenderUnverified bool `json:"senderUnverified,omitempty"`
}

// ChainQuerier is the read-only view of the transaction explorer the
// engine needs.
type ChainQuerier interface {
	GetTransaction(ctx context.Context, hash string) (*chainapi.Transaction, error)
	GetTransactionsForAddress(ctx context.Context, address string, limit int) ([]chainapi.Transaction, error)
}
