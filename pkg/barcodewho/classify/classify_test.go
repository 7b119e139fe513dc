package classify

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/identity"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/sparse"
)

var (
	keyA = identity.Key{Handle: "A", Category: "Terran"}
	keyB = identity.Key{Handle: "B", Category: "Terran"}
	keyC = identity.Key{Handle: "C", Category: "Terran"}
)

func barcodeSet(handles ...string) BarcodeFunc {
	set := make(map[string]bool, len(handles))
	for _, h := range handles {
		set[h] = true
	}
	return func(h string) bool { return set[h] }
}

func denseLogProb(x, y sparse.Vector, c float64) float64 {
	xd, yd := x.Dense(), y.Dense()
	var s float64
	for i := range xd {
		s += math.Log(xd[i]+c) * yd[i]
	}
	return s
}

func randomSparse(rng *rand.Rand, dim, nnz int) sparse.Vector {
	m := make(map[int]float64, nnz)
	for k := 0; k < nnz; k++ {
		m[rng.IntN(dim)] = rng.Float64()
	}
	return sparse.FromMap(dim, m).Normalize()
}

func TestLogProbMatchesDense(t *testing.T) {
	const dim = 300
	rng := rand.New(rand.NewPCG(11, 12))

	tests := []struct {
		name string
		x, y sparse.Vector
	}{
		{"x all zero", sparse.Zero(dim), randomSparse(rng, dim, 20)},
		{"y all zero", randomSparse(rng, dim, 20), sparse.Zero(dim)},
		{"both zero", sparse.Zero(dim), sparse.Zero(dim)},
		{
			"disjoint supports",
			sparse.FromMap(dim, map[int]float64{1: 0.5, 3: 0.5}),
			sparse.FromMap(dim, map[int]float64{2: 0.25, 4: 0.75}),
		},
		{
			"identical supports",
			sparse.FromMap(dim, map[int]float64{7: 0.2, 9: 0.8}),
			sparse.FromMap(dim, map[int]float64{7: 0.6, 9: 0.4}),
		},
	}
	for i := 0; i < 50; i++ {
		tests = append(tests, struct {
			name string
			x, y sparse.Vector
		}{"random", randomSparse(rng, dim, 1+rng.IntN(40)), randomSparse(rng, dim, 1+rng.IntN(40))})
	}

	for _, tt := range tests {
		got := LogProb(tt.x, tt.y, DefaultFloor)
		want := denseLogProb(tt.x, tt.y, DefaultFloor)
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("%s: LogProb = %v, dense = %v", tt.name, got, want)
		}
	}
}

func TestNGramRanksAndExcludesOwner(t *testing.T) {
	test := sparse.FromMap(10, map[int]float64{1: 4, 2: 1})
	candidates := map[identity.Key]sparse.Vector{
		keyA: sparse.FromMap(10, map[int]float64{1: 0.8, 2: 0.2}),
		keyB: sparse.FromMap(10, map[int]float64{1: 0.5, 2: 0.5}),
		keyC: sparse.FromMap(10, map[int]float64{5: 1}),
	}

	res := NGram{}.Classify(Query{}, test, candidates)
	if res.Best == nil || res.Best.Key != keyA {
		t.Fatalf("Best = %+v, want A", res.Best)
	}
	if res.Ranked[2].Key != keyC {
		t.Errorf("C has no overlap and should rank last, got %+v", res.Ranked)
	}

	owned := NGram{}.Classify(Query{Owner: &keyA}, test, candidates)
	for _, e := range owned.Ranked {
		if e.Key == keyA {
			t.Fatal("owner must be excluded from the ranking")
		}
	}
	if owned.Best.Key != keyB {
		t.Errorf("Best = %v, want B", owned.Best.Key)
	}
}

func TestNGramBarcodeFiltering(t *testing.T) {
	test := sparse.FromMap(10, map[int]float64{1: 1})
	candidates := map[identity.Key]sparse.Vector{
		keyA: sparse.FromMap(10, map[int]float64{1: 1}),
		keyB: sparse.FromMap(10, map[int]float64{2: 1}),
	}

	res := NGram{Barcodes: barcodeSet("A")}.Classify(Query{}, test, candidates)
	if res.Best.Key != keyA {
		t.Errorf("Best = %v, barcodes still count for the best pick", res.Best.Key)
	}
	if res.NonBarcode == nil || res.NonBarcode.Key != keyB {
		t.Errorf("NonBarcode = %+v, want B", res.NonBarcode)
	}

	only := NGram{Barcodes: barcodeSet("A", "B")}.Classify(Query{}, test, candidates)
	if only.Best == nil || only.NonBarcode != nil || only.Reason != ReasonOnlyBarcodes {
		t.Errorf("only barcodes: %+v", only)
	}
	if only.OK() {
		t.Error("OK should be false without a non-barcode estimate")
	}
}

func TestNGramNoCandidates(t *testing.T) {
	res := NGram{}.Classify(Query{}, sparse.Zero(4), nil)
	if res.Best != nil || res.Reason != ReasonNoCandidates {
		t.Errorf("got %+v", res)
	}

	solo := map[identity.Key]sparse.Vector{keyA: sparse.Zero(4)}
	res = NGram{}.Classify(Query{Owner: &keyA}, sparse.Zero(4), solo)
	if res.Best != nil || res.Reason != ReasonNoCandidates {
		t.Errorf("only the owner: got %+v", res)
	}
}

func TestNearestNeighborScenario(t *testing.T) {
	table := Table{
		keyA: {10, 0},
		keyB: {10.5, 0},
		keyC: {1, 0},
	}
	// The test observation is one of A's, so A is excluded and C is a
	// barcode identity.
	nn := NewNearestNeighbor(barcodeSet("C"))
	res := nn.Classify(Query{Owner: &keyA}, []float64{10.2, 0}, table, []float64{1, 1})

	if res.Best == nil || res.Best.Key != keyB {
		t.Fatalf("Best = %+v, want B", res.Best)
	}
	if res.NonBarcode == nil || res.NonBarcode.Key != keyB {
		t.Fatalf("NonBarcode = %+v, want B", res.NonBarcode)
	}
	for _, e := range res.Top(10, false) {
		if e.Key == keyC {
			t.Error("barcode identity in non-barcode output")
		}
	}
}

func TestNearestNeighborBarcodeNeverNonBarcode(t *testing.T) {
	table := Table{keyA: {0}, keyB: {5}, keyC: {10}}
	nn := NewNearestNeighbor(barcodeSet("A"))
	res := nn.Classify(Query{}, []float64{0}, table, nil)

	if res.Best.Key != keyA {
		t.Errorf("Best = %v, want A", res.Best.Key)
	}
	if res.NonBarcode.Key != keyB {
		t.Errorf("NonBarcode = %v, want B", res.NonBarcode.Key)
	}
}

func TestNearestNeighborTooFewCandidates(t *testing.T) {
	nn := NewNearestNeighbor(nil)
	res := nn.Classify(Query{}, []float64{1}, Table{keyA: {1}}, nil)
	if res.Reason != ReasonTooFewCandidates || res.Best != nil {
		t.Errorf("got %+v", res)
	}
}

func TestNearestNeighborUndefinedWeights(t *testing.T) {
	table := Table{keyA: {0, 0, 0}, keyB: {1, 10, 5}}
	nn := NewNearestNeighbor(nil)
	weights := []float64{math.NaN(), 0, math.Inf(1)}

	res := nn.Classify(Query{}, []float64{0.9, 1, 4}, table, weights)
	if res.Best == nil {
		t.Fatalf("no estimate: %+v", res)
	}
	for _, e := range res.Ranked {
		if math.IsNaN(e.Distance) || math.IsInf(e.Distance, 0) {
			t.Fatalf("distance for %v is %v", e.Key, e.Distance)
		}
	}
	// Only the floored middle column takes part: 0.1 is closer to 0.
	if res.Best.Key != keyA {
		t.Errorf("Best = %v, want A", res.Best.Key)
	}
}

func TestNearestNeighborClipsTest(t *testing.T) {
	table := Table{keyA: {0}, keyB: {1}, keyC: {1.3}}
	nn := NewNearestNeighbor(nil)
	res := nn.Classify(Query{}, []float64{1000}, table, nil)

	// 1000 scales far above the range and is clipped to 1.2.
	want := math.Pow(1.2-1, 2)
	if res.Best.Key != keyC || math.Abs(res.Best.Distance-want) > 1e-9 {
		t.Errorf("Best = %+v, want C at %v", res.Best, want)
	}
}

func TestTiesBreakByKey(t *testing.T) {
	candidates := map[identity.Key]sparse.Vector{
		keyB: sparse.FromMap(4, map[int]float64{1: 1}),
		keyA: sparse.FromMap(4, map[int]float64{1: 1}),
	}
	res := NGram{}.Classify(Query{}, sparse.FromMap(4, map[int]float64{1: 1}), candidates)
	if res.Ranked[0].Key != keyA || res.Ranked[1].Key != keyB {
		t.Errorf("tie order = %v", res.Ranked)
	}
}
