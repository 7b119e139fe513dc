// Package ngram stores per-identity token-sequence histograms for every
// sequence length 1..MaxN and the normalized sums derived from them.
//
// It follows the same dirty/clean discipline as the feature store: mutations
// mark identities dirty and every read recomputes them first.
package ngram

import (
	"fmt"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/identity"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/internalerr"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/sparse"
)

// Row is one stored histogram.
type Row struct {
	ID   string
	Key  identity.Key
	Hist sparse.Vector
}

// Store is the n-gram aggregate store.
type Store struct {
	maxN     int
	base     int
	dims     []int
	rows     [][]Row // rows[n-1]
	means    []map[identity.Key]sparse.Vector
	dirty    map[identity.Key]struct{}
	maxGames int
}

// New creates a store for sequence lengths 1..maxN over an alphabet of base
// tokens.
func New(maxN, base int) (*Store, error) {
	if _, err := Dim(maxN, base); err != nil {
		return nil, err
	}
	s := &Store{
		maxN:  maxN,
		base:  base,
		dims:  make([]int, maxN),
		rows:  make([][]Row, maxN),
		means: make([]map[identity.Key]sparse.Vector, maxN),
		dirty: make(map[identity.Key]struct{}),
	}
	d := 1
	for n := 1; n <= maxN; n++ {
		d *= base
		s.dims[n-1] = d
		s.means[n-1] = make(map[identity.Key]sparse.Vector)
	}
	return s, nil
}

// MaxN returns the longest stored sequence length.
func (s *Store) MaxN() int { return s.maxN }

// Base returns the alphabet size.
func (s *Store) Base() int { return s.base }

// Dim returns the histogram dimension for length n.
func (s *Store) Dim(n int) int { return s.dims[n-1] }

// Enter appends one histogram per sequence length for an observation.
func (s *Store) Enter(id identity.Key, obsID string, hists []sparse.Vector) error {
	if len(hists) != s.maxN {
		return fmt.Errorf("ngram: %d histograms, want %d: %w", len(hists), s.maxN, internalerr.ErrInvalidInput)
	}
	for i, h := range hists {
		if h.Dim != s.dims[i] {
			return fmt.Errorf("ngram: n=%d histogram dim %d, want %d: %w", i+1, h.Dim, s.dims[i], internalerr.ErrInvalidInput)
		}
	}
	if s.find(id, obsID) >= 0 {
		return fmt.Errorf("ngram: %v/%s: %w", id, obsID, internalerr.ErrDuplicate)
	}
	for i, h := range hists {
		s.rows[i] = append(s.rows[i], Row{ID: obsID, Key: id, Hist: h.Clone()})
	}
	s.dirty[id] = struct{}{}
	return nil
}

// Remove deletes the observation's row at every length and compacts the
// tables. Exactly one row per length must match.
func (s *Store) Remove(id identity.Key, obsID string) error {
	if s.find(id, obsID) < 0 {
		return fmt.Errorf("ngram: remove %v/%s: %w", id, obsID, internalerr.ErrPrecondition)
	}
	for i, rows := range s.rows {
		kept := rows[:0:0]
		for _, r := range rows {
			if r.Key == id && r.ID == obsID {
				continue
			}
			kept = append(kept, r)
		}
		if deleted := len(rows) - len(kept); deleted != 1 {
			return fmt.Errorf("ngram: n=%d removed %d rows for %v/%s: %w", i+1, deleted, id, obsID, internalerr.ErrCorrupt)
		}
		s.rows[i] = kept
	}
	s.dirty[id] = struct{}{}
	return nil
}

// SetMaxGames caps how many observations (in insertion order) feed each
// identity's aggregate. k <= 0 removes the cap. Every identity is marked
// dirty so cached aggregates match the new cap.
func (s *Store) SetMaxGames(k int) {
	if k < 0 {
		k = 0
	}
	if k == s.maxGames {
		return
	}
	s.maxGames = k
	for _, r := range s.rows[0] {
		s.dirty[r.Key] = struct{}{}
	}
	for n := range s.means {
		for id := range s.means[n] {
			s.dirty[id] = struct{}{}
		}
	}
}

// MaxGames returns the current cap, 0 meaning none.
func (s *Store) MaxGames() int { return s.maxGames }

// Means returns the normalized aggregate of every identity for length n.
func (s *Store) Means(n int) (map[identity.Key]sparse.Vector, error) {
	return s.CategoryFiltered("", n)
}

// CategoryFiltered returns the aggregates for length n restricted to one
// category. An empty category returns all identities.
func (s *Store) CategoryFiltered(category string, n int) (map[identity.Key]sparse.Vector, error) {
	if err := s.checkN(n); err != nil {
		return nil, err
	}
	if err := s.recomputeChanged(); err != nil {
		return nil, err
	}
	out := make(map[identity.Key]sparse.Vector, len(s.means[n-1]))
	for id, v := range s.means[n-1] {
		if category == "" || id.Category == category {
			out[id] = v.Clone()
		}
	}
	return out, nil
}

// AllMeans returns the aggregates for every length, indexed by n-1.
func (s *Store) AllMeans() ([]map[identity.Key]sparse.Vector, error) {
	out := make([]map[identity.Key]sparse.Vector, s.maxN)
	for n := 1; n <= s.maxN; n++ {
		m, err := s.Means(n)
		if err != nil {
			return nil, err
		}
		out[n-1] = m
	}
	return out, nil
}

// RecomputeAll rebuilds every aggregate from scratch.
func (s *Store) RecomputeAll() error {
	for n := range s.means {
		for id := range s.means[n] {
			s.dirty[id] = struct{}{}
		}
		s.means[n] = make(map[identity.Key]sparse.Vector)
	}
	for _, r := range s.rows[0] {
		s.dirty[r.Key] = struct{}{}
	}
	return s.recomputeChanged()
}

// Histograms returns one observation's histograms, indexed by n-1.
func (s *Store) Histograms(id identity.Key, obsID string) ([]sparse.Vector, bool) {
	if s.find(id, obsID) < 0 {
		return nil, false
	}
	out := make([]sparse.Vector, s.maxN)
	for i, rows := range s.rows {
		for _, r := range rows {
			if r.Key == id && r.ID == obsID {
				out[i] = r.Hist.Clone()
				break
			}
		}
	}
	return out, true
}

// Rows returns a copy of the table for length n.
func (s *Store) Rows(n int) []Row {
	if s.checkN(n) != nil {
		return nil
	}
	out := make([]Row, len(s.rows[n-1]))
	for i, r := range s.rows[n-1] {
		out[i] = Row{ID: r.ID, Key: r.Key, Hist: r.Hist.Clone()}
	}
	return out
}

// Count returns the number of observations of id.
func (s *Store) Count(id identity.Key) int {
	c := 0
	for _, r := range s.rows[0] {
		if r.Key == id {
			c++
		}
	}
	return c
}

// Identities returns every identity with at least one observation.
func (s *Store) Identities() []identity.Key {
	seen := make(map[identity.Key]struct{})
	var keys []identity.Key
	for _, r := range s.rows[0] {
		if _, ok := seen[r.Key]; !ok {
			seen[r.Key] = struct{}{}
			keys = append(keys, r.Key)
		}
	}
	identity.Sort(keys)
	return keys
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
	c, _ := New(s.maxN, s.base)
	c.maxGames = s.maxGames
	for n := 1; n <= s.maxN; n++ {
		c.rows[n-1] = s.Rows(n)
		for id, v := range s.means[n-1] {
			c.means[n-1][id] = v.Clone()
		}
	}
	for id := range s.dirty {
		c.dirty[id] = struct{}{}
	}
	return c
}

// Restore loads persisted rows (indexed by n-1) and cached aggregates.
// Identities with a missing or malformed cached aggregate at any length are
// marked dirty. Cached aggregates of identities without rows are dropped.
func (s *Store) Restore(rows [][]Row, cached []map[identity.Key]sparse.Vector) error {
	if len(rows) != s.maxN {
		return fmt.Errorf("ngram: restore %d tables, want %d: %w", len(rows), s.maxN, internalerr.ErrCorrupt)
	}
	for i, table := range rows {
		for _, r := range table {
			if r.Hist.Dim != s.dims[i] {
				return fmt.Errorf("ngram: restore n=%d dim %d: %w", i+1, r.Hist.Dim, internalerr.ErrCorrupt)
			}
			s.rows[i] = append(s.rows[i], Row{ID: r.ID, Key: r.Key, Hist: r.Hist.Clone()})
		}
		if len(s.rows[i]) != len(s.rows[0]) {
			return fmt.Errorf("ngram: restore n=%d has %d rows, n=1 has %d: %w", i+1, len(s.rows[i]), len(s.rows[0]), internalerr.ErrCorrupt)
		}
	}
	present := make(map[identity.Key]struct{})
	for _, r := range s.rows[0] {
		present[r.Key] = struct{}{}
	}
	for id := range present {
		for n := 0; n < s.maxN; n++ {
			var v sparse.Vector
			ok := n < len(cached)
			if ok {
				v, ok = cached[n][id]
			}
			if !ok || v.Dim != s.dims[n] {
				s.dirty[id] = struct{}{}
				break
			}
			s.means[n][id] = v.Clone()
		}
	}
	return nil
}

func (s *Store) recomputeChanged() error {
	if len(s.dirty) == 0 {
		return nil
	}
	for n := 1; n <= s.maxN; n++ {
		groups := make(map[identity.Key][]sparse.Vector, len(s.dirty))
		for _, r := range s.rows[n-1] {
			if _, ok := s.dirty[r.Key]; ok {
				groups[r.Key] = append(groups[r.Key], r.Hist)
			}
		}
		for id := range s.dirty {
			hists := groups[id]
			if len(hists) == 0 {
				delete(s.means[n-1], id)
				continue
			}
			mean, err := normalizedSum(hists, s.maxGames, s.dims[n-1])
			if err != nil {
				return err
			}
			s.means[n-1][id] = mean
		}
	}
	for id := range s.dirty {
		delete(s.dirty, id)
	}
	if len(s.dirty) != 0 {
		return fmt.Errorf("ngram: %d identities still dirty after recompute: %w", len(s.dirty), internalerr.ErrCorrupt)
	}
	return nil
}

// normalizedSum sums the first maxGames histograms (all when maxGames is 0)
// and L1-normalizes the result.
func normalizedSum(hists []sparse.Vector, maxGames, dim int) (sparse.Vector, error) {
	if maxGames > 0 && len(hists) > maxGames {
		hists = hists[:maxGames]
	}
	if len(hists) == 0 {
		return sparse.Zero(dim), nil
	}
	sum, err := sparse.Add(hists...)
	if err != nil {
		return sparse.Vector{}, err
	}
	return sum.Normalize(), nil
}

func (s *Store) find(id identity.Key, obsID string) int {
	for i, r := range s.rows[0] {
		if r.Key == id && r.ID == obsID {
			return i
		}
	}
	return -1
}

func (s *Store) checkN(n int) error {
	if n < 1 || n > s.maxN {
		return fmt.Errorf("ngram: length %d outside 1..%d: %w", n, s.maxN, internalerr.ErrInvalidInput)
	}
	return nil
}
