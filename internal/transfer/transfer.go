// Package transfer moves token balances directly between addresses.
//
// The sending address is trusted as given by the caller; no proof of
// control over it is required.
package transfer

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/Klingon-tech/klingnet-market/internal/history"
	"github.com/Klingon-tech/klingnet-market/internal/ledger"
	klog "github.com/Klingon-tech/klingnet-market/internal/log"
)

// Request describes a balance move.
type Request struct {
	TokenID string  `json:"tokenId"`
	From    string  `json:"from"`
	To      string  `json:"to"`
	Amount  float64 `json:"amount"`
}

// Validate checks that every field is present and the amount positive.
func (r *Request) Validate() error {
	var missing []string
	if strings.TrimSpace(r.TokenID) == "" {
		missing = append(missing, "tokenId")
	}
	if strings.TrimSpace(r.From) == "" {
		missing = append(missing, "from")
	}
	if strings.TrimSpace(r.To) == "" {
		missing = append(missing, "to")
	}
	if r.Amount == 0 {
		missing = append(missing, "amount")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s required", ledger.ErrValidation, strings.Join(missing, ", "))
	}
	if r.Amount < 0 || math.IsNaN(r.Amount) || math.IsInf(r.Amount, 0) {
		return ledger.ErrInvalidAmount
	}
	return nil
}

// Handler performs transfers.
type Handler struct {
	ledger  *ledger.Ledger
	history *history.Log
}

// New creates a transfer handler.
func New(l *ledger.Ledger, h *history.Log) *Handler {
	return &Handler{ledger: l, history: h}
}

// Transfer moves req.Amount of req.TokenID from req.From to req.To and
// records it. Both balances are unchanged when From holds too little.
func (h *Handler) Transfer(ctx context.Context, req Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if err := h.ledger.Move(ctx, req.TokenID, req.From, req.To, req.Amount); err != nil {
		return err
	}

	if _, err := h.history.Record(ctx, history.Entry{
		Type:    history.Transfer,
		TokenID: req.TokenID,
		From:    req.From,
		To:      req.To,
		Amount:  req.Amount,
	}); err != nil {
		return fmt.Errorf("record transfer: %w", err)
	}

	klog.Ledger.Info().
		Str("token", req.TokenID).
		Str("from", req.From).
		Str("to", req.To).
		Float64("amount", req.Amount).
		Msg("Transfer")
	return nil
}
