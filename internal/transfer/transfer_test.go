package transfer

import (
	"context"
	"errors"
	"testing"

	"github.com/Klingon-tech/klingnet-market/internal/history"
	"github.com/Klingon-tech/klingnet-market/internal/ledger"
	"github.com/Klingon-tech/klingnet-market/internal/storage"
)

func setup(t *testing.T) (*Handler, *ledger.Ledger, storage.Repository) {
	t.Helper()
	repo := storage.NewKVRepository(storage.NewMemory())
	t.Cleanup(func() { repo.Close() })
	l := ledger.New(repo, ledger.Options{})
	return New(l, history.New(repo)), l, repo
}

func TestTransfer_Validation(t *testing.T) {
	h, _, _ := setup(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"missing token", Request{From: "a", To: "b", Amount: 1}, ledger.ErrValidation},
		{"missing from", Request{TokenID: "t", To: "b", Amount: 1}, ledger.ErrValidation},
		{"missing to", Request{TokenID: "t", From: "a", Amount: 1}, ledger.ErrValidation},
		{"missing amount", Request{TokenID: "t", From: "a", To: "b"}, ledger.ErrValidation},
		{"negative amount", Request{TokenID: "t", From: "a", To: "b", Amount: -1}, ledger.ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := h.Transfer(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTransfer_Insufficient(t *testing.T) {
	h, l, _ := setup(t)
	ctx := context.Background()
	l.Credit(ctx, "t1", "alice", 5)
	l.Credit(ctx, "t1", "bob", 1)

	err := h.Transfer(ctx, Request{TokenID: "t1", From: "alice", To: "bob", Amount: 6})
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	a, _ := l.Balance(ctx, "t1", "alice")
	b, _ := l.Balance(ctx, "t1", "bob")
	if a != 5 || b != 1 {
		t.Errorf("balances changed: alice=%v bob=%v", a, b)
	}
}

func TestTransfer_MovesAndRecords(t *testing.T) {
	h, l, repo := setup(t)
	ctx := context.Background()
	l.Credit(ctx, "t1", "alice", 5)

	if err := h.Transfer(ctx, Request{TokenID: "t1", From: "alice", To: "carol", Amount: 2}); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	a, _ := l.Balance(ctx, "t1", "alice")
	c, _ := l.Balance(ctx, "t1", "carol")
	if a != 3 || c != 2 {
		t.Errorf("alice=%v carol=%v, want 3/2", a, c)
	}

	entries, err := storage.LoadAll[history.Entry](ctx, repo, history.Collection, storage.Query{
		Where: []storage.Filter{storage.Eq("type", string(history.Transfer))},
	})
	if err != nil {
		t.Fatalf("load history: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d transfer entries, want 1", len(entries))
	}
	if e := entries[0]; e.From != "alice" || e.To != "carol" || e.Amount != 2 || e.TokenID != "t1" {
		t.Errorf("entry = %+v", e)
	}
}
