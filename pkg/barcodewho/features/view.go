package features

import (
	"fmt"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/identity"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/internalerr"
)

// View is a read-only overlay that hides one observation of a store.
// The base store must not be mutated while a view is in use.
type View struct {
	base  *Store
	id    identity.Key
	obsID string

	// aggregate of id without the hidden row; ok is false when none remain.
	mean, std []float64
	general   General
	ok        bool
}

// Without returns a view of s with one observation removed. The key must
// exist.
func (s *Store) Without(id identity.Key, obsID string) (*View, error) {
	if indexOf(s.rows[id], obsID) < 0 {
		return nil, fmt.Errorf("features: hide %v/%s: %w", id, obsID, internalerr.ErrPrecondition)
	}
	if err := s.recomputeChanged(); err != nil {
		return nil, err
	}
	v := &View{base: s, id: id, obsID: obsID}
	rest := values(s.rows[id], obsID)
	if len(rest) > 0 {
		v.mean, v.std = meanStd(rest, s.schema.Len())
		v.general = General{Handle: id.Handle, Category: id.Category, Count: len(rest)}
		v.ok = true
	}
	return v, nil
}

// Hidden returns the identity and key of the hidden observation.
func (v *View) Hidden() (identity.Key, string) {
	return v.id, v.obsID
}

// Count returns the number of visible observations of id.
func (v *View) Count(id identity.Key) int {
	n := v.base.Count(id)
	if id == v.id {
		n--
	}
	return n
}

// Columns returns the schema columns.
func (v *View) Columns() []string {
	return v.base.schema.Columns()
}

// Aggregates returns all aggregates as seen through the view.
func (v *View) Aggregates() Snapshot {
	return v.overlay(v.base.snapshot(func(identity.Key) bool { return true }))
}

// CategoryFiltered returns the view's aggregates for one category.
func (v *View) CategoryFiltered(category string) Snapshot {
	snap := v.base.snapshot(func(k identity.Key) bool { return k.Category == category })
	if v.id.Category != category {
		return snap
	}
	return v.overlay(snap)
}

// AllRows returns the visible raw rows of every identity.
func (v *View) AllRows() map[identity.Key][][]float64 {
	out := make(map[identity.Key][][]float64, len(v.base.rows))
	for id, rows := range v.base.rows {
		skip := ""
		if id == v.id {
			skip = v.obsID
		}
		vals := values(rows, skip)
		if len(vals) > 0 {
			out[id] = vals
		}
	}
	return out
}

func (v *View) overlay(snap Snapshot) Snapshot {
	if !v.ok {
		delete(snap.Mean, v.id)
		delete(snap.Std, v.id)
		delete(snap.General, v.id)
		return snap
	}
	snap.Mean[v.id] = append([]float64(nil), v.mean...)
	snap.Std[v.id] = append([]float64(nil), v.std...)
	snap.General[v.id] = v.general
	return snap
}
