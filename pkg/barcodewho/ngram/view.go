package ngram

import (
	"fmt"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/identity"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/internalerr"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/sparse"
)

// View is a read-only overlay that hides one observation of a store. The
// base store must not be mutated while a view is in use.
type View struct {
	base  *Store
	id    identity.Key
	obsID string
	means []sparse.Vector // aggregate of id without the hidden row, nil when none remain
}

// Without returns a view of s with one observation removed. The key must
// exist.
func (s *Store) Without(id identity.Key, obsID string) (*View, error) {
	if s.find(id, obsID) < 0 {
		return nil, fmt.Errorf("ngram: hide %v/%s: %w", id, obsID, internalerr.ErrPrecondition)
	}
	if err := s.recomputeChanged(); err != nil {
		return nil, err
	}
	v := &View{base: s, id: id, obsID: obsID}
	for n := 1; n <= s.maxN; n++ {
		var hists []sparse.Vector
		for _, r := range s.rows[n-1] {
			if r.Key == id && r.ID != obsID {
				hists = append(hists, r.Hist)
			}
		}
		if len(hists) == 0 {
			v.means = nil
			break
		}
		mean, err := normalizedSum(hists, s.maxGames, s.dims[n-1])
		if err != nil {
			return nil, err
		}
		v.means = append(v.means, mean)
	}
	return v, nil
}

// Count returns the number of visible observations of id.
func (v *View) Count(id identity.Key) int {
	n := v.base.Count(id)
	if id == v.id {
		n--
	}
	return n
}

// CategoryFiltered returns the view's aggregates for length n restricted to
// one category. An empty category returns all identities.
func (v *View) CategoryFiltered(category string, n int) (map[identity.Key]sparse.Vector, error) {
	out, err := v.base.CategoryFiltered(category, n)
	if err != nil {
		return nil, err
	}
	if category != "" && v.id.Category != category {
		return out, nil
	}
	if v.means == nil {
		delete(out, v.id)
	} else {
		out[v.id] = v.means[n-1].Clone()
	}
	return out, nil
}

// Means returns the view's aggregates for length n.
func (v *View) Means(n int) (map[identity.Key]sparse.Vector, error) {
	return v.CategoryFiltered("", n)
}
