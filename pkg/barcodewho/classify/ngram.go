package classify

import (
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/identity"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/sparse"
)

// NGram scores a token histogram against each candidate's normalized
// aggregate histogram. Distance is the negated floored log-probability.
type NGram struct {
	Floor    float64
	Barcodes BarcodeChecker
}

// Classify ranks candidates for one test histogram of a single sequence
// length. The test histogram is L1-normalized first.
func (c NGram) Classify(q Query, test sparse.Vector, candidates map[identity.Key]sparse.Vector) Result {
	floor := c.Floor
	if floor <= 0 {
		floor = DefaultFloor
	}
	y := test.Normalize()
	scored := make([]Estimate, 0, len(candidates))
	for id, x := range candidates {
		scored = append(scored, Estimate{Key: id, Distance: -LogProb(x, y, floor)})
	}
	return finish(q, scored, c.Barcodes)
}
