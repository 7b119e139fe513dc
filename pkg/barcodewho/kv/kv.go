// Package kv is a small path-keyed key-value store. It backs the name
// history, which is persisted apart from the main database.
package kv

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/internalerr"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = fmt.Errorf("kv: %w", internalerr.ErrNotFound)

// sep joins key segments. Handles and display names never contain it.
const sep = "\x1f"

// Key is a hierarchical key such as {"names", "2-S2-1-1234"}.
type Key []string

// String renders the key for logs.
func (k Key) String() string {
	return strings.Join(k, "/")
}

func (k Key) encode() string {
	return strings.Join(k, sep)
}

func decode(s string) Key {
	return Key(strings.Split(s, sep))
}

// prefix returns the encoded form that every key below k starts with.
func (k Key) prefix() string {
	if len(k) == 0 {
		return ""
	}
	return k.encode() + sep
}

// Entry is one key-value pair.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is a key-value store.
type Store interface {
	// Get returns ErrNotFound when the key is absent.
	Get(ctx context.Context, key Key) ([]byte, error)
	Set(ctx context.Context, key Key, value []byte) error
	// Delete is a no-op for absent keys.
	Delete(ctx context.Context, key Key) error
	// List yields the entries below prefix in lexicographic key order.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]
	// BatchSet writes all entries in one transaction.
	BatchSet(ctx context.Context, entries []Entry) error
	Close() error
}
