package classify

import (
	"math"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/sparse"
)

// DefaultFloor is the probability floor added to every population entry.
const DefaultFloor = 0.001

// LogProb returns the floored log-probability of occurrences y under the
// distribution x without materializing the dense sum:
//
//	Σ log(x_i + c)·y_i = log(c)·(ΣY − ΣY∩X) + Σ_{i∈X∩Y} log(x_i + c)·y_i
//
// Indices outside x's support contribute log(c) per unit of y; only the
// intersection of both supports is visited explicitly.
func LogProb(x, y sparse.Vector, c float64) float64 {
	var dot, sumInter float64
	i, j := 0, 0
	for i < len(x.Index) && j < len(y.Index) {
		switch {
		case x.Index[i] < y.Index[j]:
			i++
		case x.Index[i] > y.Index[j]:
			j++
		default:
			dot += math.Log(x.Value[i]+c) * y.Value[j]
			sumInter += y.Value[j]
			i++
			j++
		}
	}
	return math.Log(c)*(y.Sum()-sumInter) + dot
}
