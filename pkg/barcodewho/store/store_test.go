package store

import (
	"testing"
	"time"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/features"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/identity"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/ngram"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/sparse"
)

func TestSnapshotCloneIsDeep(t *testing.T) {
	id := identity.Key{Handle: "h", Category: "Zerg"}
	s := Snapshot{
		Hashes:      []string{"a"},
		Columns:     []string{"apm"},
		FeatureRows: map[identity.Key][]features.Row{id: {{ID: "a", Values: []float64{1}}}},
		Features: features.Snapshot{
			Columns: []string{"apm"},
			Mean:    map[identity.Key][]float64{id: {1}},
			Std:     map[identity.Key][]float64{id: {0}},
			General: map[identity.Key]features.General{id: {Handle: "h", Category: "Zerg", Count: 1}},
		},
		MaxN:       1,
		NGramRows:  [][]ngram.Row{{{ID: "a", Key: id, Hist: sparse.FromMap(3, map[int]float64{1: 1})}}},
		NGramMeans: []map[identity.Key]sparse.Vector{{id: sparse.FromMap(3, map[int]float64{1: 1})}},
		Watermark:  time.Unix(100, 0),
	}

	c := s.Clone()
	c.Hashes[0] = "z"
	c.FeatureRows[id][0].Values[0] = 9
	c.Features.Mean[id][0] = 9
	c.NGramRows[0][0].Hist.Value[0] = 9
	c.NGramMeans[0][id].Value[0] = 9

	if s.Hashes[0] != "a" || s.FeatureRows[id][0].Values[0] != 1 || s.Features.Mean[id][0] != 1 {
		t.Error("clone shares feature data with the original")
	}
	if s.NGramRows[0][0].Hist.Value[0] != 1 || s.NGramMeans[0][id].Value[0] != 1 {
		t.Error("clone shares n-gram data with the original")
	}
	if s.Empty() || !(Snapshot{}).Empty() {
		t.Error("Empty is wrong")
	}
}
