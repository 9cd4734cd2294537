// Package storage provides the key-value and document storage layers.
package storage

import "errors"

// ErrNotFound is returned when a key or document does not exist.
var ErrNotFound = errors.New("not found")

// DB is the interface for key-value storage.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix in key order.
	// The callback receives a copy of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// Updater is implemented by databases that can apply a read-modify-write
// to a single key atomically. fn receives the current value and returns the
// replacement; ErrNotFound is returned without calling fn when the key is absent.
type Updater interface {
	UpdateKey(key []byte, fn func(old []byte) ([]byte, error)) error
}
