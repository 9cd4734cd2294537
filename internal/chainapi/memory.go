package chainapi

import (
	"context"
	"sync"
)

// Memory is an in-memory explorer for tests and local runs.
type Memory struct {
	mu          sync.RWMutex
	byHash      map[string]Transaction
	byAddress   map[string][]Transaction
	unavailable bool
}

// NewMemory creates an empty in-memory explorer.
func NewMemory() *Memory {
	return &Memory{
		byHash:    make(map[string]Transaction),
		byAddress: make(map[string][]Transaction),
	}
}

// AddTransaction records tx as received by address. Transactions are
// returned by GetTransactionsForAddress in insertion order.
func (m *Memory) AddTransaction(address string, tx Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx.Hash != "" {
		m.byHash[tx.Hash] = tx
	}
	m.byAddress[address] = append(m.byAddress[address], tx)
}

// SetUnavailable makes every subsequent call fail with ErrUnavailable.
func (m *Memory) SetUnavailable(v bool) {
	m.mu.Lock()
	m.unavailable = v
	m.mu.Unlock()
}

// GetTransaction implements the explorer lookup by hash.
func (m *Memory) GetTransaction(_ context.Context, hash string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.unavailable {
		return nil, ErrUnavailable
	}
	tx, ok := m.byHash[hash]
	if !ok {
		return nil, ErrTxNotFound
	}
	return &tx, nil
}

// GetTransactionsForAddress implements the explorer address history.
func (m *Memory) GetTransactionsForAddress(_ context.Context, address string, limit int) ([]Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.unavailable {
		return nil, ErrUnavailable
	}
	txs := m.byAddress[address]
	if limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	out := make([]Transaction, len(txs))
	copy(out, txs)
	return out, nil
}
