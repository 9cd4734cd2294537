package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

type testDoc struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Amount    float64   `json:"amount"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// testRepository runs the shared suite against a Repository implementation.
func testRepository(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("GetMissing", func(t *testing.T) {
		_, err := repo.Get(ctx, "docs", "nope")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("Get() = %v, want ErrNotFound", err)
		}
	})

	t.Run("SetAndLoad", func(t *testing.T) {
		in := testDoc{ID: "a", Owner: "alice", Amount: 1.5, Active: true, CreatedAt: base}
		if err := repo.Set(ctx, "docs", in.ID, in); err != nil {
			t.Fatalf("Set() error: %v", err)
		}
		var out testDoc
		if err := Load(ctx, repo, "docs", "a", &out); err != nil {
			t.Fatalf("Load() error: %v", err)
		}
		if out.Owner != "alice" || out.Amount != 1.5 || !out.Active || !out.CreatedAt.Equal(base) {
			t.Errorf("Load() = %+v", out)
		}
	})

	t.Run("CollectionsIsolated", func(t *testing.T) {
		if err := repo.Set(ctx, "other", "a", testDoc{ID: "a", Owner: "bob"}); err != nil {
			t.Fatalf("Set() error: %v", err)
		}
		var out testDoc
		if err := Load(ctx, repo, "docs", "a", &out); err != nil {
			t.Fatalf("Load() error: %v", err)
		}
		if out.Owner != "alice" {
			t.Errorf("docs/a owner = %q, want alice", out.Owner)
		}
	})

	t.Run("UpdateMerges", func(t *testing.T) {
		if err := repo.Update(ctx, "docs", "a", map[string]any{"amount": 3.0}); err != nil {
			t.Fatalf("Update() error: %v", err)
		}
		var out testDoc
		Load(ctx, repo, "docs", "a", &out)
		if out.Amount != 3 {
			t.Errorf("Amount = %v, want 3", out.Amount)
		}
		if out.Owner != "alice" {
			t.Errorf("Owner = %q, untouched field changed", out.Owner)
		}
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		err := repo.Update(ctx, "docs", "ghost", map[string]any{"amount": 1})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("Update() = %v, want ErrNotFound", err)
		}
	})

	t.Run("QueryFilterOrderLimit", func(t *testing.T) {
		docs := []testDoc{
			{ID: "q1", Owner: "carol", Amount: 1, CreatedAt: base.Add(1 * time.Second)},
			{ID: "q2", Owner: "carol", Amount: 2, CreatedAt: base.Add(3 * time.Second)},
			{ID: "q3", Owner: "carol", Amount: 3, CreatedAt: base.Add(2500 * time.Millisecond)},
			{ID: "q4", Owner: "dave", Amount: 4, CreatedAt: base.Add(4 * time.Second)},
		}
		for _, d := range docs {
			if err := repo.Set(ctx, "query", d.ID, d); err != nil {
				t.Fatalf("Set(%s) error: %v", d.ID, err)
			}
		}

		got, err := LoadAll[testDoc](ctx, repo, "query", Query{
			Where:   []Filter{Eq("owner", "carol")},
			OrderBy: "createdAt",
			Desc:    true,
		})
		if err != nil {
			t.Fatalf("Query() error: %v", err)
		}
		wantOrder := []string{"q2", "q3", "q1"}
		if len(got) != len(wantOrder) {
			t.Fatalf("Query() returned %d docs, want %d", len(got), len(wantOrder))
		}
		for i, id := range wantOrder {
			if got[i].ID != id {
				t.Errorf("result[%d] = %s, want %s", i, got[i].ID, id)
			}
		}

		limited, err := repo.Query(ctx, "query", Query{Where: []Filter{Eq("owner", "carol")}, Limit: 2})
		if err != nil {
			t.Fatalf("Query() error: %v", err)
		}
		if len(limited) != 2 {
			t.Errorf("limited Query() returned %d docs, want 2", len(limited))
		}

		byAmount, _ := LoadAll[testDoc](ctx, repo, "query", Query{Where: []Filter{Eq("amount", 4.0)}})
		if len(byAmount) != 1 || byAmount[0].ID != "q4" {
			t.Errorf("numeric filter returned %+v", byAmount)
		}
	})

	t.Run("QueryEmpty", func(t *testing.T) {
		got, err := repo.Query(ctx, "nothing-here", Query{})
		if err != nil {
			t.Fatalf("Query() error: %v", err)
		}
		if got == nil || len(got) != 0 {
			t.Errorf("Query() = %v, want empty non-nil slice", got)
		}
	})
}

func TestKVRepository_Memory(t *testing.T) {
	repo := NewKVRepository(NewMemory())
	defer repo.Close()
	testRepository(t, repo)
}

func TestKVRepository_Badger(t *testing.T) {
	db, err := NewBadger(t.TempDir())
	if err != nil {
		t.Fatalf("NewBadger() error: %v", err)
	}
	repo := NewKVRepository(db)
	defer repo.Close()
	testRepository(t, repo)
}

func TestKVRepository_BadgerInMemory(t *testing.T) {
	db, err := NewBadgerInMemory()
	if err != nil {
		t.Fatalf("NewBadgerInMemory() error: %v", err)
	}
	repo := NewKVRepository(db)
	defer repo.Close()
	testRepository(t, repo)
}

func TestKVRepository_SkipsCorruptDocuments(t *testing.T) {
	db := NewMemory()
	repo := NewKVRepository(db)
	ctx := context.Background()

	db.Put([]byte("docs/bad"), []byte("{not json"))
	repo.Set(ctx, "docs", "good", testDoc{ID: "good"})

	got, err := repo.Query(ctx, "docs", Query{})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Query() returned %d docs, want 1", len(got))
	}
}

func TestKVRepository_ConcurrentUpdates(t *testing.T) {
	repo := NewKVRepository(NewMemory())
	ctx := context.Background()
	repo.Set(ctx, "docs", "c", map[string]any{"a": 0})

	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func(i int) {
			defer func() { done <- struct{}{} }()
			repo.Update(ctx, "docs", "c", map[string]any{"f" + string(rune('a'+i)): i})
		}(i)
	}
	for i := 0; i < 20; i++ {
		<-done
	}

	raw, err := repo.Get(ctx, "docs", "c")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	for i := 0; i < 20; i++ {
		field := "f" + string(rune('a'+i))
		if !containsField(raw, field) {
			t.Errorf("field %s lost under concurrent updates", field)
		}
	}
}

func containsField(raw []byte, field string) bool {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return false
	}
	_, ok := m[field]
	return ok
}
