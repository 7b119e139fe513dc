package memstore

import (
	"context"
	"sync"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/store"
)

// Store keeps the saved snapshot in memory. It is meant for tests.
type Store struct {
	mu    sync.RWMutex
	snap  store.Snapshot
	saves int
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{}
}

var _ store.Store = (*Store)(nil)

func (s *Store) Close() error { return nil }

func (s *Store) Load(_ context.Context) (store.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone(), nil
}

func (s *Store) Save(_ context.Context, snap store.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap.Clone()
	s.saves++
	return nil
}

func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = store.Snapshot{}
	return nil
}

// Saves returns how many times Save was called.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
