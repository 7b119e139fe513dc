package ngram

import (
	"fmt"
	"math"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/internalerr"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/sparse"
)

// MaxDim bounds the histogram dimension base^n.
const MaxDim = math.MaxInt32

// Dim returns base^n, or an error when it exceeds MaxDim.
func Dim(n, base int) (int, error) {
	if n < 1 || base < 2 {
		return 0, fmt.Errorf("ngram: n %d base %d: %w", n, base, internalerr.ErrInvalidInput)
	}
	d := 1
	for i := 0; i < n; i++ {
		if d > MaxDim/base {
			return 0, fmt.Errorf("ngram: %d^%d exceeds %d: %w", base, n, MaxDim, internalerr.ErrInvalidInput)
		}
		d *= base
	}
	return d, nil
}

// Index encodes a window of tokens as Σ t_i·base^i.
func Index(window []int, base int) int {
	idx, mul := 0, 1
	for _, t := range window {
		idx += t * mul
		mul *= base
	}
	return idx
}

// Histogram counts every length-n window of tokens. Tokens must lie in
// [0, base). A sequence shorter than n gives an empty histogram.
func Histogram(tokens []int, n, base int) (sparse.Vector, error) {
	dim, err := Dim(n, base)
	if err != nil {
		return sparse.Vector{}, err
	}
	for i, t := range tokens {
		if t < 0 || t >= base {
			return sparse.Vector{}, fmt.Errorf("ngram: token %d at %d outside alphabet of %d: %w", t, i, base, internalerr.ErrInvalidInput)
		}
	}
	counts := make(map[int]float64)
	for i := 0; i+n <= len(tokens); i++ {
		counts[Index(tokens[i:i+n], base)]++
	}
	return sparse.FromMap(dim, counts), nil
}

// Histograms builds the histograms for every length 1..maxN.
func Histograms(tokens []int, maxN, base int) ([]sparse.Vector, error) {
	out := make([]sparse.Vector, maxN)
	for n := 1; n <= maxN; n++ {
		h, err := Histogram(tokens, n, base)
		if err != nil {
			return nil, err
		}
		out[n-1] = h
	}
	return out, nil
}
