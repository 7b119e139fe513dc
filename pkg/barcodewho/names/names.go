// Package names keeps the display names ever seen for each handle. A handle
// whose every known name is a barcode is treated as a barcode identity by
// the classifiers.
package names

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/identity"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/internalerr"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/kv"
)

const prefix = "names"

// record is the persisted value for one handle.
type record struct {
	Names []string `msgpack:"names"`
}

// Book maps handles to their name history. Names are kept in the order they
// were first seen and never removed.
type Book struct {
	mu      sync.RWMutex
	history map[string][]string
	dirty   map[string]struct{}
}

// NewBook returns an empty book.
func NewBook() *Book {
	return &Book{history: make(map[string][]string), dirty: make(map[string]struct{})}
}

// Add records name for handle. It reports whether the name was new.
func (b *Book) Add(handle, name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if slices.Contains(b.history[handle], name) {
		return false
	}
	b.history[handle] = append(b.history[handle], name)
	b.dirty[handle] = struct{}{}
	return true
}

// Names returns a copy of the handle's history.
func (b *Book) Names(handle string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.history[handle])
}

// Known reports whether any name was recorded for handle.
func (b *Book) Known(handle string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.history[handle]) > 0
}

// IsBarcodeHandle reports whether handle has at least one name and all of
// them are barcodes.
func (b *Book) IsBarcodeHandle(handle string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	hist := b.history[handle]
	if len(hist) == 0 {
		return false
	}
	for _, n := range hist {
		if !identity.IsBarcode(n) {
			return false
		}
	}
	return true
}

// Handles returns all handles in sorted order.
func (b *Book) Handles() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.history))
	for h := range b.history {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// Save writes the handles changed since the last Save or LoadBook.
func (b *Book) Save(ctx context.Context, store kv.Store) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.dirty) == 0 {
		return nil
	}
	entries := make([]kv.Entry, 0, len(b.dirty))
	for h := range b.dirty {
		data, err := msgpack.Marshal(record{Names: b.history[h]})
		if err != nil {
			return fmt.Errorf("names: encode %q: %w", h, err)
		}
		entries = append(entries, kv.Entry{Key: kv.Key{prefix, h}, Value: data})
	}
	if err := store.BatchSet(ctx, entries); err != nil {
		return fmt.Errorf("names: save: %w", err)
	}
	b.dirty = make(map[string]struct{})
	return nil
}

// LoadBook reads every handle's history from store.
func LoadBook(ctx context.Context, store kv.Store) (*Book, error) {
	b := NewBook()
	for e, err := range store.List(ctx, kv.Key{prefix}) {
		if err != nil {
			return nil, fmt.Errorf("names: load: %w", err)
		}
		if len(e.Key) != 2 {
			return nil, fmt.Errorf("names: key %s: %w", e.Key, internalerr.ErrCorrupt)
		}
		var rec record
		if err := msgpack.Unmarshal(e.Value, &rec); err != nil {
			return nil, fmt.Errorf("names: decode %s: %w", e.Key, errors.Join(internalerr.ErrCorrupt, err))
		}
		b.history[e.Key[1]] = rec.Names
	}
	return b, nil
}

// Clear deletes every stored history.
func Clear(ctx context.Context, store kv.Store) error {
	var keys []kv.Key
	for e, err := range store.List(ctx, kv.Key{prefix}) {
		if err != nil {
			return fmt.Errorf("names: clear: %w", err)
		}
		keys = append(keys, e.Key)
	}
	for _, k := range keys {
		if err := store.Delete(ctx, k); err != nil {
			return fmt.Errorf("names: clear %s: %w", k, err)
		}
	}
	return nil
}
