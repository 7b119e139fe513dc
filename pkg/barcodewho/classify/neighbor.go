package classify

import (
	"math"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/identity"
)

// Defaults for the nearest-neighbor scaler.
const (
	DefaultClipLow     = -0.2
	DefaultClipHigh    = 1.2
	DefaultWeightFloor = 0.001
)

// Table maps each candidate identity to its mean feature vector.
type Table map[identity.Key][]float64

// NearestNeighbor ranks candidates by weighted squared Euclidean distance in
// a min-max scaled feature space.
type NearestNeighbor struct {
	// ClipLow and ClipHigh bound the scaled test vector. An empty range
	// selects the defaults.
	ClipLow, ClipHigh float64
	// WeightFloor replaces relevance weights below it. NaN and infinite
	// weights remove the column instead.
	WeightFloor float64
	Barcodes    BarcodeChecker
}

// NewNearestNeighbor returns a classifier with the default clip range and
// weight floor.
func NewNearestNeighbor(barcodes BarcodeChecker) NearestNeighbor {
	return NearestNeighbor{
		ClipLow:     DefaultClipLow,
		ClipHigh:    DefaultClipHigh,
		WeightFloor: DefaultWeightFloor,
		Barcodes:    barcodes,
	}
}

// Classify ranks the table against test. weights holds one relevance value
// per column; nil means uniform weights.
func (c NearestNeighbor) Classify(q Query, test []float64, table Table, weights []float64) Result {
	if len(table) < 2 {
		return Result{Reason: ReasonTooFewCandidates}
	}
	clipLow, clipHigh := c.ClipLow, c.ClipHigh
	if clipHigh <= clipLow {
		clipLow, clipHigh = DefaultClipLow, DefaultClipHigh
	}
	cols := len(test)
	lo := make([]float64, cols)
	hi := make([]float64, cols)
	for j := range lo {
		lo[j], hi[j] = math.Inf(1), math.Inf(-1)
	}
	for _, row := range table {
		for j := 0; j < cols; j++ {
			lo[j] = math.Min(lo[j], row[j])
			hi[j] = math.Max(hi[j], row[j])
		}
	}

	// inv[j] is 1/sqrt(weight), or 0 for columns that do not take part.
	inv := make([]float64, cols)
	for j := 0; j < cols; j++ {
		if hi[j] == lo[j] {
			continue
		}
		w := 1.0
		if weights != nil {
			w = weights[j]
		}
		if math.IsNaN(w) || math.IsInf(w, 0) {
			continue
		}
		if w < c.WeightFloor {
			w = c.WeightFloor
		}
		if w <= 0 {
			continue
		}
		inv[j] = 1 / math.Sqrt(w)
	}
	minmax := func(v float64, j int) float64 {
		return (v - lo[j]) / (hi[j] - lo[j])
	}

	x := make([]float64, cols)
	for j := 0; j < cols; j++ {
		if inv[j] == 0 {
			continue
		}
		v := math.Min(math.Max(minmax(test[j], j), clipLow), clipHigh)
		x[j] = v * inv[j]
	}

	scored := make([]Estimate, 0, len(table))
	for id, row := range table {
		var d float64
		for j := 0; j < cols; j++ {
			if inv[j] == 0 {
				continue
			}
			diff := minmax(row[j], j)*inv[j] - x[j]
			d += diff * diff
		}
		scored = append(scored, Estimate{Key: id, Distance: d})
	}
	return finish(q, scored, c.Barcodes)
}
