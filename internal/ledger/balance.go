package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	klog "github.com/Klingon-tech/klingnet-market/internal/log"
	"github.com/Klingon-tech/klingnet-market/internal/storage"
)

// Balance is the amount of one token held by one address.
// A missing balance document means zero.
type Balance struct {
	TokenID   string    `json:"tokenId"`
	Address   string    `json:"address"`
	Amount    float64   `json:"amount"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BalanceID returns the document id of the (token, address) balance.
func BalanceID(tokenID, address string) string {
	return tokenID + "_" + address
}

// Balance returns the amount of tokenID held by address.
func (l *Ledger) Balance(ctx context.Context, tokenID, address string) (float64, error) {
	b, err := l.loadBalance(ctx, tokenID, address)
	if err != nil {
		return 0, err
	}
	return b.Amount, nil
}

// Credit adds amount to the balance of address, creating it if needed.
func (l *Ledger) Credit(ctx context.Context, tokenID, address string, amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	unlock := l.locks.Lock(BalanceID(tokenID, address))
	defer unlock()
	return l.adjust(ctx, tokenID, address, amount)
}

// Debit subtracts amount from the balance of address. It fails with
// ErrInsufficientBalance and leaves the balance untouched when the
// address holds less than amount.
func (l *Ledger) Debit(ctx context.Context, tokenID, address string, amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	unlock := l.locks.Lock(BalanceID(tokenID, address))
	defer unlock()

	have, err := l.Balance(ctx, tokenID, address)
	if err != nil {
		return err
	}
	if have < amount {
		return ErrInsufficientBalance
	}
	return l.adjust(ctx, tokenID, address, -amount)
}

// Move transfers amount of tokenID from one address to another. Both
// balances are locked for the duration of the move.
func (l *Ledger) Move(ctx context.Context, tokenID, from, to string, amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	unlock := l.locks.Lock(BalanceID(tokenID, from), BalanceID(tokenID, to))
	defer unlock()

	have, err := l.Balance(ctx, tokenID, from)
	if err != nil {
		return err
	}
	if have < amount {
		return ErrInsufficientBalance
	}
	if from == to {
		return nil
	}

	if err := l.adjust(ctx, tokenID, from, -amount); err != nil {
		return err
	}
	if err := l.adjust(ctx, tokenID, to, amount); err != nil {
		// The debit is already written; nothing to roll back to.
		klog.Ledger.Error().Err(err).
			Str("token", tokenID).
			Str("from", from).
			Str("to", to).
			Float64("amount", amount).
			Msg("Credit failed after debit")
		return err
	}
	return nil
}

// BalancesFor returns every balance document held by address.
func (l *Ledger) BalancesFor(ctx context.Context, address string) ([]*Balance, error) {
	out, err := storage.LoadAll[Balance](ctx, l.repo, BalancesCollection, storage.Query{
		Where: []storage.Filter{storage.Eq("address", address)},
	})
	if err != nil {
		return nil, fmt.Errorf("balances for %s: %w", address, err)
	}
	return out, nil
}

func (l *Ledger) loadBalance(ctx context.Context, tokenID, address string) (*Balance, error) {
	b := &Balance{TokenID: tokenID, Address: address}
	err := storage.Load(ctx, l.repo, BalancesCollection, BalanceID(tokenID, address), b)
	if errors.Is(err, storage.ErrNotFound) {
		return &Balance{TokenID: tokenID, Address: address}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load balance: %w", err)
	}
	return b, nil
}

// adjust writes balance + delta. Callers hold the balance lock.
func (l *Ledger) adjust(ctx context.Context, tokenID, address string, delta float64) error {
	b, err := l.loadBalance(ctx, tokenID, address)
	if err != nil {
		return err
	}
	b.Amount += delta
	if b.Amount < 0 {
		b.Amount = 0
	}
	b.UpdatedAt = l.now().UTC()
	if err := l.repo.Set(ctx, BalancesCollection, BalanceID(tokenID, address), b); err != nil {
		return fmt.Errorf("store balance: %w", err)
	}
	return nil
}
