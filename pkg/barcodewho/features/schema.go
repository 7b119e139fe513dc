package features

import (
	"fmt"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/internalerr"
)

// Schema is the declared, ordered set of numeric feature columns.
type Schema struct {
	cols []string
	pos  map[string]int
}

// NewSchema validates and builds a schema. Column names must be unique and
// non-empty.
func NewSchema(cols ...string) (Schema, error) {
	s := Schema{cols: make([]string, len(cols)), pos: make(map[string]int, len(cols))}
	for i, c := range cols {
		if c == "" {
			return Schema{}, fmt.Errorf("features: empty column name: %w", internalerr.ErrInvalidInput)
		}
		if _, dup := s.pos[c]; dup {
			return Schema{}, fmt.Errorf("features: column %q declared twice: %w", c, internalerr.ErrDuplicate)
		}
		s.cols[i] = c
		s.pos[c] = i
	}
	return s, nil
}

// Columns returns a copy of the column names.
func (s Schema) Columns() []string {
	return append([]string(nil), s.cols...)
}

// Len returns the number of columns.
func (s Schema) Len() int {
	return len(s.cols)
}

// Index returns the position of a column.
func (s Schema) Index(name string) (int, bool) {
	i, ok := s.pos[name]
	return i, ok
}

// Vector orders values by the schema. Missing and undeclared columns are
// rejected.
func (s Schema) Vector(values map[string]float64) ([]float64, error) {
	out := make([]float64, len(s.cols))
	for i, c := range s.cols {
		v, ok := values[c]
		if !ok {
			return nil, fmt.Errorf("features: missing column %q: %w", c, internalerr.ErrInvalidInput)
		}
		out[i] = v
	}
	if len(values) != len(s.cols) {
		for name := range values {
			if _, ok := s.pos[name]; !ok {
				return nil, fmt.Errorf("features: undeclared column %q: %w", name, internalerr.ErrInvalidInput)
			}
		}
	}
	return out, nil
}

// Named turns a schema-ordered vector back into a map.
func (s Schema) Named(values []float64) map[string]float64 {
	out := make(map[string]float64, len(s.cols))
	for i, c := range s.cols {
		if i < len(values) {
			out[c] = values[i]
		}
	}
	return out
}

// Without returns the schema minus names together with the positions of the
// kept columns in the original schema.
func (s Schema) Without(names ...string) (Schema, []int, error) {
	drop := make(map[int]bool, len(names))
	for _, n := range names {
		i, ok := s.pos[n]
		if !ok {
			return Schema{}, nil, fmt.Errorf("features: drop unknown column %q: %w", n, internalerr.ErrInvalidInput)
		}
		drop[i] = true
	}
	var kept []string
	var keep []int
	for i, c := range s.cols {
		if !drop[i] {
			kept = append(kept, c)
			keep = append(keep, i)
		}
	}
	ns, err := NewSchema(kept...)
	return ns, keep, err
}

// Project keeps the values at the given positions.
func Project(values []float64, keep []int) []float64 {
	out := make([]float64, len(keep))
	for k, i := range keep {
		out[k] = values[i]
	}
	return out
}
