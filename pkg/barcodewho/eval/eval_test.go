package eval

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/classify"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/features"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/identity"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/internalerr"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/ngram"
)

var (
	alice = identity.Key{Handle: "alice", Category: "Terran"}
	bob   = identity.Key{Handle: "bob", Category: "Terran"}
	carol = identity.Key{Handle: "carol", Category: "Terran"}
)

// newHarness builds three identities with three observations each. carol
// plays like alice but is a barcode identity.
func newHarness(t *testing.T) *Harness {
	t.Helper()
	schema, err := features.NewSchema("x")
	require.NoError(t, err)
	fs := features.New(schema)
	ns, err := ngram.New(2, 5)
	require.NoError(t, err)

	add := func(id identity.Key, token int, x float64) {
		for i := 0; i < 3; i++ {
			obs := fmt.Sprintf("%s-%d", id.Handle, i)
			require.NoError(t, fs.EnterVector(id, obs, []float64{x + float64(i)/2}))
			hists, err := ngram.Histograms([]int{token, token, token, 0}, 2, 5)
			require.NoError(t, err)
			require.NoError(t, ns.Enter(id, obs, hists))
		}
	}
	add(alice, 1, 10)
	add(bob, 2, 20)
	add(carol, 1, 10)

	return &Harness{
		Features:  fs,
		NGrams:    ns,
		Barcodes:  classify.BarcodeFunc(func(h string) bool { return h == "carol" }),
		ClassifyN: 2,
		Neighbor:  classify.NewNearestNeighbor(nil),
	}
}

func TestTrialsDoNotLeak(t *testing.T) {
	h := newHarness(t)

	var n int
	for trial, err := range h.Trials(2) {
		require.NoError(t, err)
		n++
		require.NotEqual(t, carol, trial.Key, "barcode identities are not held out")
		require.Equal(t, h.Features.Count(trial.Key)-1, trial.Features.Count(trial.Key))
		require.Equal(t, h.NGrams.Count(trial.Key)-1, trial.NGrams.Count(trial.Key))

		for _, row := range trial.Features.AllRows()[trial.Key] {
			require.NotEqual(t, trial.Values, row, "held-out row visible in view")
		}
		snap := trial.Features.Aggregates()
		require.Equal(t, 2, snap.General[trial.Key].Count)
	}
	require.Equal(t, 4, n)
}

func TestTrialsStopEarly(t *testing.T) {
	h := newHarness(t)
	var n int
	for range h.Trials(1) {
		n++
		break
	}
	require.Equal(t, 1, n)
}

func TestEvaluateNGram(t *testing.T) {
	h := newHarness(t)

	rep, err := h.Evaluate(context.Background(), Options{SampleSize: 2})
	require.NoError(t, err)
	require.Equal(t, MethodNGram, rep.Method)
	require.Equal(t, 4, rep.Trials)
	require.Equal(t, 4, rep.Correct)
	require.InDelta(t, 1.0, rep.Accuracy, 1e-12)
	require.NotZero(t, rep.RunID.Time())
}

func TestEvaluateFeatures(t *testing.T) {
	h := newHarness(t)

	rep, err := h.Evaluate(context.Background(), Options{SampleSize: 3, Method: MethodFeatures, Seed: 42})
	require.NoError(t, err)
	require.Equal(t, 6, rep.Trials)
	require.Equal(t, 6, rep.Correct)
}

func TestEvaluateLeavesStoresUntouched(t *testing.T) {
	h := newHarness(t)

	_, err := h.Evaluate(context.Background(), Options{SampleSize: 2, DropFeatures: []string{"x"}, MaxTrainingGames: 1})
	require.NoError(t, err)
	require.Equal(t, 1, h.Features.Schema().Len())
	require.Equal(t, 0, h.NGrams.MaxGames())
}

func TestEvaluateErrors(t *testing.T) {
	h := newHarness(t)

	_, err := h.Evaluate(context.Background(), Options{SampleSize: 4})
	require.True(t, errors.Is(err, internalerr.ErrInsufficientData), "got %v", err)

	_, err = h.Evaluate(context.Background(), Options{SampleSize: 2, Method: "svm"})
	require.True(t, errors.Is(err, internalerr.ErrInvalidInput), "got %v", err)

	_, err = h.Evaluate(context.Background(), Options{SampleSize: 2, DropFeatures: []string{"nope"}})
	require.True(t, errors.Is(err, internalerr.ErrInvalidInput), "got %v", err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.Evaluate(ctx, Options{SampleSize: 2})
	require.ErrorIs(t, err, context.Canceled)
}
