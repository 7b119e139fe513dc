package sparse

import (
	"errors"
	"math"
	"testing"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/internalerr"
)

func TestFromMapDropsZerosAndSorts(t *testing.T) {
	v := FromMap(10, map[int]float64{7: 2, 1: 1, 4: 0})

	if v.Nnz() != 2 {
		t.Fatalf("Nnz = %d, want 2", v.Nnz())
	}
	if v.Index[0] != 1 || v.Index[1] != 7 {
		t.Errorf("Index = %v, want [1 7]", v.Index)
	}
	if v.Get(7) != 2 || v.Get(4) != 0 {
		t.Errorf("Get returned wrong values")
	}
}

func TestAdd(t *testing.T) {
	a := FromMap(5, map[int]float64{0: 1, 2: 3})
	b := FromMap(5, map[int]float64{2: 1, 4: 5})

	sum, err := Add(a, b)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	want := []float64{1, 0, 4, 0, 5}
	got := sum.Dense()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Dense = %v, want %v", got, want)
		}
	}

	if _, err := Add(a, Zero(6)); !errors.Is(err, internalerr.ErrInvalidInput) {
		t.Errorf("expected dimension mismatch error, got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	v := FromMap(4, map[int]float64{0: 1, 3: 3})
	n := v.Normalize()

	if math.Abs(n.Sum()-1) > 1e-12 {
		t.Errorf("normalized sum = %f, want 1", n.Sum())
	}
	if v.Get(3) != 3 {
		t.Error("Normalize must not mutate its receiver")
	}

	z := Zero(4).Normalize()
	if z.Nnz() != 0 {
		t.Error("normalizing a zero vector should keep it zero")
	}
}

func TestEqual(t *testing.T) {
	a := FromMap(4, map[int]float64{1: 0.5, 2: 0.5})
	b := FromMap(4, map[int]float64{1: 0.5, 2: 0.5 + 1e-13})
	c := FromMap(4, map[int]float64{1: 0.5})

	if !Equal(a, b, 1e-9) {
		t.Error("a and b should be equal within tolerance")
	}
	if Equal(a, c, 1e-9) {
		t.Error("a and c differ at index 2")
	}
	if Equal(a, Zero(5), 1e-9) {
		t.Error("different dimensions are never equal")
	}
}

func TestEncodeDecode(t *testing.T) {
	v := FromMap(83521, map[int]float64{12: 3, 4000: 1, 83520: 2})

	data, err := Encode(v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !Equal(v, got, 0) {
		t.Errorf("decoded %+v, want %+v", got, v)
	}
}

func TestDecodeRejectsBrokenVectors(t *testing.T) {
	broken := Vector{Dim: 3, Index: []int{2, 1}, Value: []float64{1, 1}}
	data, err := Encode(broken)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(data); !errors.Is(err, internalerr.ErrCorrupt) {
		t.Errorf("expected ErrCorrupt for unsorted indices, got %v", err)
	}
}
