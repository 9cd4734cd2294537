package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// KVRepository implements Repository on top of a key-value DB.
// Collection "tokens" is stored under the key prefix "tokens/".
type KVRepository struct {
	db DB

	mu          sync.Mutex
	collections map[string]*PrefixDB
}

// NewKVRepository creates a document repository backed by db.
func NewKVRepository(db DB) *KVRepository {
	return &KVRepository{
		db:          db,
		collections: make(map[string]*PrefixDB),
	}
}

func (r *KVRepository) collection(name string) *PrefixDB {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.collections[name]
	if !ok {
		c = NewPrefixDB(r.db, []byte(name+"/"))
		r.collections[name] = c
	}
	return c
}

// Get returns the raw JSON of a document.
func (r *KVRepository) Get(_ context.Context, collection, id string) ([]byte, error) {
	data, err := r.collection(collection).Get([]byte(id))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return data, nil
}

// Set creates or replaces a document.
func (r *KVRepository) Set(_ context.Context, collection, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}
	if err := r.collection(collection).Put([]byte(id), data); err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

// Update merges fields into an existing document.
func (r *KVRepository) Update(_ context.Context, collection, id string, fields map[string]any) error {
	encoded := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal field %q: %w", k, err)
		}
		encoded[k] = b
	}

	err := r.collection(collection).UpdateKey([]byte(id), func(old []byte) ([]byte, error) {
		doc := make(map[string]json.RawMessage)
		if err := json.Unmarshal(old, &doc); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		for k, v := range encoded {
			doc[k] = v
		}
		return json.Marshal(doc)
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return nil
}

// Query scans the collection, applying filters, ordering and limit in memory.
func (r *KVRepository) Query(_ context.Context, collection string, q Query) ([][]byte, error) {
	var out [][]byte
	err := r.collection(collection).ForEach(nil, func(_, value []byte) error {
		if !gjson.ValidBytes(value) {
			return nil // Skip corrupt entries.
		}
		for _, f := range q.Where {
			if !matches(gjson.GetBytes(value, f.Field), f.Value) {
				return nil
			}
		}
		out = append(out, value)
		// Without ordering the first Limit matches are the answer.
		if q.OrderBy == "" && q.Limit > 0 && len(out) >= q.Limit {
			return errStopIteration
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}

	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			c := compareResults(gjson.GetBytes(out[i], q.OrderBy), gjson.GetBytes(out[j], q.OrderBy))
			if q.Desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	if out == nil {
		out = [][]byte{}
	}
	return out, nil
}

// Close closes the underlying database.
func (r *KVRepository) Close() error {
	return r.db.Close()
}

var errStopIteration = errors.New("stop iteration")

// matches reports whether a JSON field equals a Go value.
func matches(res gjson.Result, want any) bool {
	switch v := want.(type) {
	case nil:
		return !res.Exists() || res.Type == gjson.Null
	case string:
		return res.Type == gjson.String && res.Str == v
	case bool:
		return (v && res.Type == gjson.True) || (!v && res.Type == gjson.False)
	case float64:
		return res.Type == gjson.Number && res.Num == v
	case float32:
		return res.Type == gjson.Number && res.Num == float64(v)
	case int:
		return res.Type == gjson.Number && res.Num == float64(v)
	case int64:
		return res.Type == gjson.Number && res.Num == float64(v)
	case fmt.Stringer:
		return res.Type == gjson.String && res.Str == v.String()
	default:
		return false
	}
}

// compareResults orders two JSON values: missing < present, numbers
// numerically, RFC 3339 timestamps chronologically, other strings lexically.
func compareResults(a, b gjson.Result) int {
	switch {
	case !a.Exists() && !b.Exists():
		return 0
	case !a.Exists():
		return -1
	case !b.Exists():
		return 1
	}

	if a.Type == gjson.Number && b.Type == gjson.Number {
		switch {
		case a.Num < b.Num:
			return -1
		case a.Num > b.Num:
			return 1
		}
		return 0
	}

	if a.Type == gjson.String && b.Type == gjson.String {
		ta, errA := time.Parse(time.RFC3339Nano, a.Str)
		tb, errB := time.Parse(time.RFC3339Nano, b.Str)
		if errA == nil && errB == nil {
			return ta.Compare(tb)
		}
	}
	return strings.Compare(a.String(), b.String())
}
