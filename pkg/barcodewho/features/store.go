// Package features holds the per-identity table of scalar feature
// observations and the mean/std/general aggregates derived from it.
//
// Aggregates are recomputed lazily: Enter and Remove only mark the identity
// dirty, and every accessor that returns aggregate data first recomputes the
// dirty identities. Callers never see the cached tables directly, only
// copies.
package features

import (
	"fmt"
	"math"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/identity"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/internalerr"
)

// Row is one observation: its key (the recording hash) and the feature
// values ordered by the schema.
type Row struct {
	ID     string
	Values []float64
}

// General is the non-numeric part of an identity's aggregate.
type General struct {
	Handle   string
	Category string
	Count    int
}

// Snapshot is an immutable copy of the aggregate tables.
type Snapshot struct {
	Columns []string
	Mean    map[identity.Key][]float64
	Std     map[identity.Key][]float64
	General map[identity.Key]General
}

// Identities returns the identities present in the snapshot, sorted.
func (s Snapshot) Identities() []identity.Key {
	keys := make([]identity.Key, 0, len(s.Mean))
	for k := range s.Mean {
		keys = append(keys, k)
	}
	identity.Sort(keys)
	return keys
}

// Drop returns a snapshot without the named columns.
func (s Snapshot) Drop(names ...string) (Snapshot, error) {
	schema, err := NewSchema(s.Columns...)
	if err != nil {
		return Snapshot{}, err
	}
	ns, keep, err := schema.Without(names...)
	if err != nil {
		return Snapshot{}, err
	}
	out := newSnapshot(ns.Columns(), len(s.Mean))
	for k, m := range s.Mean {
		out.Mean[k] = Project(m, keep)
		out.Std[k] = Project(s.Std[k], keep)
		out.General[k] = s.General[k]
	}
	return out, nil
}

// Store is the feature aggregate store.
type Store struct {
	schema  Schema
	rows    map[identity.Key][]Row
	mean    map[identity.Key][]float64
	std     map[identity.Key][]float64
	general map[identity.Key]General
	dirty   map[identity.Key]struct{}
}

// New creates an empty store for schema.
func New(schema Schema) *Store {
	return &Store{
		schema:  schema,
		rows:    make(map[identity.Key][]Row),
		mean:    make(map[identity.Key][]float64),
		std:     make(map[identity.Key][]float64),
		general: make(map[identity.Key]General),
		dirty:   make(map[identity.Key]struct{}),
	}
}

// Schema returns the store's current schema.
func (s *Store) Schema() Schema {
	return s.schema
}

// Enter appends an observation for id and marks it dirty.
func (s *Store) Enter(id identity.Key, obsID string, values map[string]float64) error {
	vec, err := s.schema.Vector(values)
	if err != nil {
		return err
	}
	return s.EnterVector(id, obsID, vec)
}

// EnterVector is Enter with values already ordered by the schema.
func (s *Store) EnterVector(id identity.Key, obsID string, values []float64) error {
	if len(values) != s.schema.Len() {
		return fmt.Errorf("features: %d values for %d columns: %w", len(values), s.schema.Len(), internalerr.ErrInvalidInput)
	}
	for _, r := range s.rows[id] {
		if r.ID == obsID {
			return fmt.Errorf("features: %v/%s: %w", id, obsID, internalerr.ErrDuplicate)
		}
	}
	s.rows[id] = append(s.rows[id], Row{ID: obsID, Values: append([]float64(nil), values...)})
	s.dirty[id] = struct{}{}
	return nil
}

// Remove deletes one observation. The key must exist.
func (s *Store) Remove(id identity.Key, obsID string) error {
	rows := s.rows[id]
	idx := indexOf(rows, obsID)
	if idx < 0 {
		return fmt.Errorf("features: remove %v/%s: %w", id, obsID, internalerr.ErrPrecondition)
	}
	s.rows[id] = append(rows[:idx:idx], rows[idx+1:]...)
	if len(s.rows[id]) == 0 {
		delete(s.rows, id)
	}
	s.dirty[id] = struct{}{}
	return nil
}

// Aggregates recomputes dirty identities and returns a copy of all tables.
func (s *Store) Aggregates() (Snapshot, error) {
	if err := s.recomputeChanged(); err != nil {
		return Snapshot{}, err
	}
	return s.snapshot(func(identity.Key) bool { return true }), nil
}

// CategoryFiltered returns the aggregates of identities in one category.
func (s *Store) CategoryFiltered(category string) (Snapshot, error) {
	if err := s.recomputeChanged(); err != nil {
		return Snapshot{}, err
	}
	return s.snapshot(func(k identity.Key) bool { return k.Category == category }), nil
}

// RecomputeAll rebuilds every aggregate from scratch.
func (s *Store) RecomputeAll() error {
	s.mean = make(map[identity.Key][]float64)
	s.std = make(map[identity.Key][]float64)
	s.general = make(map[identity.Key]General)
	for id := range s.rows {
		s.dirty[id] = struct{}{}
	}
	return s.recomputeChanged()
}

// DropFeatures removes columns from the raw rows and the cached aggregates.
// This is a pure projection, so nothing becomes dirty.
func (s *Store) DropFeatures(names ...string) error {
	ns, keep, err := s.schema.Without(names...)
	if err != nil {
		return err
	}
	for id, rows := range s.rows {
		for i := range rows {
			rows[i].Values = Project(rows[i].Values, keep)
		}
		s.rows[id] = rows
	}
	for id, m := range s.mean {
		s.mean[id] = Project(m, keep)
		s.std[id] = Project(s.std[id], keep)
	}
	s.schema = ns
	return nil
}

// Identities returns every identity with at least one observation.
func (s *Store) Identities() []identity.Key {
	keys := make([]identity.Key, 0, len(s.rows))
	for k := range s.rows {
		keys = append(keys, k)
	}
	identity.Sort(keys)
	return keys
}

// Count returns the number of observations of id.
func (s *Store) Count(id identity.Key) int {
	return len(s.rows[id])
}

// Rows returns a copy of id's observations in insertion order.
func (s *Store) Rows(id identity.Key) []Row {
	return copyRows(s.rows[id])
}

// Observation returns one observation's values.
func (s *Store) Observation(id identity.Key, obsID string) ([]float64, bool) {
	rows := s.rows[id]
	if i := indexOf(rows, obsID); i >= 0 {
		return append([]float64(nil), rows[i].Values...), true
	}
	return nil, false
}

// AllRows returns every identity's raw value vectors.
func (s *Store) AllRows() map[identity.Key][][]float64 {
	out := make(map[identity.Key][][]float64, len(s.rows))
	for id, rows := range s.rows {
		out[id] = values(rows, "")
	}
	return out
}

// Dirty returns the identities awaiting recomputation.
func (s *Store) Dirty() []identity.Key {
	keys := make([]identity.Key, 0, len(s.dirty))
	for k := range s.dirty {
		keys = append(keys, k)
	}
	identity.Sort(keys)
	return keys
}

// Clone returns a deep, fully independent copy.
func (s *Store) Clone() *Store {
	c := New(s.schema)
	for id, rows := range s.rows {
		c.rows[id] = copyRows(rows)
	}
	for id, m := range s.mean {
		c.mean[id] = append([]float64(nil), m...)
		c.std[id] = append([]float64(nil), s.std[id]...)
		c.general[id] = s.general[id]
	}
	for id := range s.dirty {
		c.dirty[id] = struct{}{}
	}
	return c
}

// Restore loads persisted rows and cached aggregates. Identities whose cached
// aggregate is missing, has the wrong width or a stale count are marked dirty,
// as are cached identities that no longer have rows.
func (s *Store) Restore(rows map[identity.Key][]Row, cached Snapshot) error {
	for id, rs := range rows {
		for _, r := range rs {
			if err := s.EnterVector(id, r.ID, r.Values); err != nil {
				return err
			}
		}
	}
	s.dirty = make(map[identity.Key]struct{})
	width := s.schema.Len()
	for id, m := range cached.Mean {
		sd, ok := cached.Std[id]
		g := cached.General[id]
		if !ok || len(m) != width || len(sd) != width || g.Count != len(s.rows[id]) {
			s.dirty[id] = struct{}{}
			continue
		}
		s.mean[id] = append([]float64(nil), m...)
		s.std[id] = append([]float64(nil), sd...)
		s.general[id] = g
	}
	for id := range s.rows {
		if _, ok := s.mean[id]; !ok {
			s.dirty[id] = struct{}{}
		}
	}
	return nil
}

func (s *Store) recomputeChanged() error {
	if len(s.dirty) == 0 {
		return nil
	}
	for id := range s.dirty {
		s.recompute(id)
		delete(s.dirty, id)
	}
	if len(s.dirty) != 0 {
		return fmt.Errorf("features: %d identities still dirty after recompute: %w", len(s.dirty), internalerr.ErrCorrupt)
	}
	return nil
}

func (s *Store) recompute(id identity.Key) {
	rows := s.rows[id]
	if len(rows) == 0 {
		delete(s.mean, id)
		delete(s.std, id)
		delete(s.general, id)
		return
	}
	mean, std := meanStd(values(rows, ""), s.schema.Len())
	s.mean[id] = mean
	s.std[id] = std
	s.general[id] = General{Handle: id.Handle, Category: id.Category, Count: len(rows)}
}

func (s *Store) snapshot(keep func(identity.Key) bool) Snapshot {
	out := newSnapshot(s.schema.Columns(), len(s.mean))
	for id, m := range s.mean {
		if !keep(id) {
			continue
		}
		out.Mean[id] = append([]float64(nil), m...)
		out.Std[id] = append([]float64(nil), s.std[id]...)
		out.General[id] = s.general[id]
	}
	return out
}

// meanStd returns the column means and population standard deviations.
// The deviation is 0 when there are fewer than two rows.
func meanStd(rows [][]float64, width int) ([]float64, []float64) {
	mean := make([]float64, width)
	std := make([]float64, width)
	n := float64(len(rows))
	if n == 0 {
		return mean, std
	}
	for _, r := range rows {
		for j := 0; j < width; j++ {
			mean[j] += r[j]
		}
	}
	for j := range mean {
		mean[j] /= n
	}
	if len(rows) < 2 {
		return mean, std
	}
	for _, r := range rows {
		for j := 0; j < width; j++ {
			d := r[j] - mean[j]
			std[j] += d * d
		}
	}
	for j := range std {
		std[j] = math.Sqrt(std[j] / n)
	}
	return mean, std
}

func newSnapshot(cols []string, size int) Snapshot {
	return Snapshot{
		Columns: cols,
		Mean:    make(map[identity.Key][]float64, size),
		Std:     make(map[identity.Key][]float64, size),
		General: make(map[identity.Key]General, size),
	}
}

func indexOf(rows []Row, obsID string) int {
	for i, r := range rows {
		if r.ID == obsID {
			return i
		}
	}
	return -1
}

// values copies the value vectors of rows, skipping the row with ID skip.
func values(rows []Row, skip string) [][]float64 {
	out := make([][]float64, 0, len(rows))
	for _, r := range rows {
		if skip != "" && r.ID == skip {
			continue
		}
		out = append(out, append([]float64(nil), r.Values...))
	}
	return out
}

func copyRows(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = Row{ID: r.ID, Values: append([]float64(nil), r.Values...)}
	}
	return out
}
