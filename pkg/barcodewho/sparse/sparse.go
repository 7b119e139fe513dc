// Package sparse implements the sparse float vectors used for token-sequence
// histograms. Histograms live in a space of base^n dimensions of which only
// a handful are ever non-zero, so vectors store sorted (index, value) pairs.
package sparse

import (
	"fmt"
	"math"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/internalerr"
)

// Vector is a sparse vector of dimension Dim. Index is strictly increasing
// and Value never holds an explicit zero.
type Vector struct {
	Dim   int       `msgpack:"dim"`
	Index []int     `msgpack:"idx"`
	Value []float64 `msgpack:"val"`
}

// Zero returns an empty vector of dimension dim.
func Zero(dim int) Vector {
	return Vector{Dim: dim}
}

// FromMap builds a vector from index → value pairs. Zero values are dropped.
func FromMap(dim int, m map[int]float64) Vector {
	idx := make([]int, 0, len(m))
	for i, v := range m {
		if v != 0 {
			idx = append(idx, i)
		}
	}
	sort.Ints(idx)
	val := make([]float64, len(idx))
	for k, i := range idx {
		val[k] = m[i]
	}
	return Vector{Dim: dim, Index: idx, Value: val}
}

// FromDense builds a vector from a dense slice.
func FromDense(d []float64) Vector {
	v := Vector{Dim: len(d)}
	for i, x := range d {
		if x != 0 {
			v.Index = append(v.Index, i)
			v.Value = append(v.Value, x)
		}
	}
	return v
}

// Nnz returns the number of stored entries.
func (v Vector) Nnz() int {
	return len(v.Index)
}

// Get returns the value at index i.
func (v Vector) Get(i int) float64 {
	k := sort.SearchInts(v.Index, i)
	if k < len(v.Index) && v.Index[k] == i {
		return v.Value[k]
	}
	return 0
}

// Sum returns the sum of all entries.
func (v Vector) Sum() float64 {
	var s float64
	for _, x := range v.Value {
		s += x
	}
	return s
}

// Dense expands the vector. Only sensible for small dimensions.
func (v Vector) Dense() []float64 {
	d := make([]float64, v.Dim)
	for k, i := range v.Index {
		d[i] = v.Value[k]
	}
	return d
}

// Clone returns a deep copy.
func (v Vector) Clone() Vector {
	c := Vector{Dim: v.Dim}
	if len(v.Index) > 0 {
		c.Index = append([]int(nil), v.Index...)
		c.Value = append([]float64(nil), v.Value...)
	}
	return c
}

// Normalize returns v scaled so that its absolute values sum to 1.
// A zero vector is returned unchanged.
func (v Vector) Normalize() Vector {
	var s float64
	for _, x := range v.Value {
		s += math.Abs(x)
	}
	c := v.Clone()
	if s == 0 {
		return c
	}
	for k := range c.Value {
		c.Value[k] /= s
	}
	return c
}

// Add returns the element-wise sum of vs. All vectors must share a dimension.
func Add(vs ...Vector) (Vector, error) {
	if len(vs) == 0 {
		return Vector{}, nil
	}
	dim := vs[0].Dim
	acc := make(map[int]float64)
	for _, v := range vs {
		if v.Dim != dim {
			return Vector{}, fmt.Errorf("sparse: add dim %d to dim %d: %w", v.Dim, dim, internalerr.ErrInvalidInput)
		}
		for k, i := range v.Index {
			acc[i] += v.Value[k]
		}
	}
	return FromMap(dim, acc), nil
}

// Equal reports whether a and b have the same dimension and entries within tol.
func Equal(a, b Vector, tol float64) bool {
	if a.Dim != b.Dim {
		return false
	}
	i, j := 0, 0
	for i < len(a.Index) || j < len(b.Index) {
		switch {
		case j >= len(b.Index) || (i < len(a.Index) && a.Index[i] < b.Index[j]):
			if math.Abs(a.Value[i]) > tol {
				return false
			}
			i++
		case i >= len(a.Index) || b.Index[j] < a.Index[i]:
			if math.Abs(b.Value[j]) > tol {
				return false
			}
			j++
		default:
			if math.Abs(a.Value[i]-b.Value[j]) > tol {
				return false
			}
			i++
			j++
		}
	}
	return true
}

// wire has Vector's layout without its methods, so msgpack does not route
// back through MarshalBinary.
type wire Vector

// Encode serializes v with msgpack.
func Encode(v Vector) ([]byte, error) {
	return msgpack.Marshal(wire(v))
}

// Decode parses a vector produced by Encode and checks its invariants.
func Decode(data []byte) (Vector, error) {
	var w wire
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return Vector{}, fmt.Errorf("sparse: decode: %w", err)
	}
	v := Vector(w)
	if len(v.Index) != len(v.Value) {
		return Vector{}, fmt.Errorf("sparse: %d indices for %d values: %w", len(v.Index), len(v.Value), internalerr.ErrCorrupt)
	}
	for k, i := range v.Index {
		if i < 0 || i >= v.Dim || (k > 0 && v.Index[k-1] >= i) {
			return Vector{}, fmt.Errorf("sparse: bad index %d: %w", i, internalerr.ErrCorrupt)
		}
	}
	return v, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (v Vector) MarshalBinary() ([]byte, error) {
	return Encode(v)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (v *Vector) UnmarshalBinary(data []byte) error {
	d, err := Decode(data)
	if err != nil {
		return err
	}
	*v = d
	return nil
}
