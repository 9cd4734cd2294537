package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// Repository is a keyed store of JSON documents grouped into named
// collections. There are no cross-document transactions.
type Repository interface {
	// Get returns the raw JSON of a document, or ErrNotFound.
	Get(ctx context.Context, collection, id string) ([]byte, error)
	// Set creates or replaces a document.
	Set(ctx context.Context, collection, id string, doc any) error
	// Update merges top-level fields into an existing document.
	// Returns ErrNotFound when the document does not exist.
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	// Query returns the raw JSON of every matching document.
	Query(ctx context.Context, collection string, q Query) ([][]byte, error)
	Close() error
}

// Filter is an equality condition on a top-level document field.
type Filter struct {
	Field string
	Value any
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// Query selects documents from a collection.
// A zero Query returns the whole collection in the store's natural order.
type Query struct {
	Where   []Filter
	OrderBy string
	Desc    bool
	Limit   int // 0 = unlimited
}

// Load fetches a document and decodes it into out.
func Load(ctx context.Context, repo Repository, collection, id string, out any) error {
	data, err := repo.Get(ctx, collection, id)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return nil
}

// LoadAll runs q and decodes every result as a T. Corrupt documents are skipped.
func LoadAll[T any](ctx context.Context, repo Repository, collection string, q Query) ([]*T, error) {
	raws, err := repo.Query(ctx, collection, q)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(raws))
	for _, raw := range raws {
		v := new(T)
		if err := json.Unmarshal(raw, v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}
