package relevance

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/identity"
)

func key(h string) identity.Key {
	return identity.Key{Handle: h, Category: "Terran"}
}

func TestEstimateRatio(t *testing.T) {
	// Column 0 varies little inside an identity and a lot between them.
	rows := map[identity.Key][][]float64{
		key("a"): {{0, 1}, {1, 5}},
		key("b"): {{10, 1}, {11, 5}},
	}
	w := Estimate(rows, 2, rand.New(rand.NewPCG(1, 1)))

	// within variance per identity: col0 0.5, col1 8
	// population (all four rows): col0 var of {0,1,10,11} = 101/3, col1 var of {1,5,1,5} = 16/3
	if math.Abs(w[0]-0.5/(101.0/3)) > 1e-12 {
		t.Errorf("w[0] = %v", w[0])
	}
	if math.Abs(w[1]-8/(16.0/3)) > 1e-12 {
		t.Errorf("w[1] = %v", w[1])
	}
	if w[0] >= w[1] {
		t.Error("the separating column should have the lower ratio")
	}
}

func TestEstimateZeroPopulationVarianceIsNaN(t *testing.T) {
	rows := map[identity.Key][][]float64{
		key("a"): {{3, 1}, {3, 2}},
		key("b"): {{3, 7}, {3, 9}},
	}
	w := Estimate(rows, 2, rand.New(rand.NewPCG(1, 1)))
	if !math.IsNaN(w[0]) {
		t.Errorf("constant column relevance = %v, want NaN", w[0])
	}
	if math.IsNaN(w[1]) {
		t.Error("varying column should have a defined relevance")
	}
}

func TestEstimateIgnoresSingleObservationIdentities(t *testing.T) {
	rows := map[identity.Key][][]float64{
		key("a"): {{1}},
		key("b"): {{100}},
	}
	w := Estimate(rows, 1, rand.New(rand.NewPCG(1, 1)))
	if !math.IsNaN(w[0]) {
		t.Errorf("no identity with two rows: got %v, want NaN", w[0])
	}
}

func TestEstimateCapsSamples(t *testing.T) {
	rows := map[identity.Key][][]float64{key("a"): {}, key("b"): {{10}, {12}}}
	for i := 0; i < 50; i++ {
		rows[key("a")] = append(rows[key("a")], []float64{float64(i % 2)})
	}
	e := Estimator{SamplesPerIdentity: 1}
	w := e.Estimate(rows, 1, rand.New(rand.NewPCG(7, 7)))
	if math.IsNaN(w[0]) || w[0] <= 0 {
		t.Errorf("w = %v", w)
	}
}

func TestEstimateIsReproducible(t *testing.T) {
	rows := map[identity.Key][][]float64{}
	r := rand.New(rand.NewPCG(9, 9))
	for _, h := range []string{"a", "b", "c", "d"} {
		for i := 0; i < 8; i++ {
			rows[key(h)] = append(rows[key(h)], []float64{r.Float64(), r.NormFloat64()})
		}
	}
	a := Estimate(rows, 2, rand.New(rand.NewPCG(5, 5)))
	b := Estimate(rows, 2, rand.New(rand.NewPCG(5, 5)))
	for j := range a {
		if a[j] != b[j] {
			t.Fatalf("same seed gave %v and %v", a, b)
		}
	}
}

func TestNamed(t *testing.T) {
	got := Weights{0.5, 2}.Named([]string{"apm", "gap"})
	if got["apm"] != 0.5 || got["gap"] != 2 {
		t.Errorf("Named = %v", got)
	}
}
