// Package history keeps the append-only log of marketplace events.
package history

import (
	"context"
	"fmt"
	"time"

	klog "github.com/Klingon-tech/klingnet-market/internal/log"
	"github.com/Klingon-tech/klingnet-market/internal/storage"
	"github.com/google/uuid"
)

// Collection is the repository collection holding history entries.
const Collection = "history"

// QueryLimit caps the entries returned for one address.
const QueryLimit = 100

// EventType identifies what an entry records.
type EventType string

const (
	SaleCreated  EventType = "sale_created"
	BuyConfirmed EventType = "buy_confirmed"
	Transfer     EventType = "transfer"
)

// Entry is one history record. Only the fields relevant to Type are set.
type Entry struct {
	ID   string    `json:"id"`
	When time.Time `json:"when"`
	Type EventType `json:"type"`

	SaleID      string  `json:"saleId,omitempty"`
	TokenID     string  `json:"tokenId,omitempty"`
	TokenTicker string  `json:"tokenTicker,omitempty"`
	Buyer       string  `json:"buyer,omitempty"`
	Seller      string  `json:"seller,omitempty"`
	From        string  `json:"from,omitempty"`
	To          string  `json:"to,omitempty"`
	Amount      float64 `json:"amount,omitempty"`
	Cost        float64 `json:"cost,omitempty"`
	TxHash      string  `json:"txHash,omitempty"`
}

// Log appends and reads history entries.
type Log struct {
	repo storage.Repository
	now  func() time.Time
}

// New creates a history log over repo.
func New(repo storage.Repository) *Log {
	return &Log{repo: repo, now: time.Now}
}

// Record appends e with a fresh id. When is set to now if unset.
func (l *Log) Record(ctx context.Context, e Entry) (*Entry, error) {
	e.ID = uuid.NewString()
	if e.When.IsZero() {
		e.When = l.now().UTC()
	}
	if err := l.repo.Set(ctx, Collection, e.ID, &e); err != nil {
		return nil, fmt.Errorf("record %s: %w", e.Type, err)
	}
	return &e, nil
}

// QueryByBuyer returns up to QueryLimit entries whose buyer is address,
// in the store's natural order. Store failures yield an empty result.
func (l *Log) QueryByBuyer(ctx context.Context, address string) []*Entry {
	entries, err := storage.LoadAll[Entry](ctx, l.repo, Collection, storage.Query{
		Where: []storage.Filter{storage.Eq("buyer", address)},
		Limit: QueryLimit,
	})
	if err != nil {
		klog.Storage.Warn().Err(err).Str("address", address).Msg("History query failed")
		return []*Entry{}
	}
	return entries
}
