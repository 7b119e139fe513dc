// Package eval measures classifier accuracy by leave-one-out: each trial
// hides one observation from the database, classifies it anonymously and
// checks whether the closest non-barcode identity is its true owner.
package eval

import (
	"context"
	"crypto/rand"
	"fmt"
	"iter"
	"log/slog"
	mrand "math/rand/v2"

	"github.com/oklog/ulid/v2"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/classify"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/features"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/identity"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/internalerr"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/ngram"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/relevance"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/sparse"
)

// Method selects the classifier under evaluation.
type Method string

const (
	MethodNGram    Method = "ngram"
	MethodFeatures Method = "features"
)

// ParseMethod validates a method name. The empty string selects n-grams.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case "", MethodNGram:
		return MethodNGram, nil
	case MethodFeatures:
		return MethodFeatures, nil
	}
	return "", fmt.Errorf("eval: unknown method %q: %w", s, internalerr.ErrInvalidInput)
}

// Options configures one evaluation run.
type Options struct {
	// SampleSize is how many observations per identity are held out.
	// Identities with fewer observations (or fewer than two) are skipped.
	SampleSize int
	// DropFeatures removes feature columns before classifying.
	DropFeatures []string
	// MaxTrainingGames caps how many observations feed each n-gram
	// aggregate. 0 means no cap.
	MaxTrainingGames int
	Method           Method
	// Seed drives relevance sampling for MethodFeatures.
	Seed uint64
}

// Report summarizes one evaluation run.
type Report struct {
	RunID      ulid.ULID
	Method     Method
	Accuracy   float64
	Trials     int
	Correct    int
	NoEstimate int
}

// Trial is one held-out observation and the database as seen without it.
type Trial struct {
	Key      identity.Key
	ObsID    string
	Values   []float64
	Hists    []sparse.Vector
	Features *features.View
	NGrams   *ngram.View
}

// Harness runs leave-one-out trials over a feature store and an n-gram
// store holding the same observations.
type Harness struct {
	Features *features.Store
	NGrams   *ngram.Store
	Barcodes classify.BarcodeChecker

	// ClassifyN is the sequence length the n-gram classifier compares.
	ClassifyN int
	NGram     classify.NGram
	Neighbor  classify.NearestNeighbor
	Relevance relevance.Estimator
	Logger    *slog.Logger
}

// Trials yields one trial for each of the first sampleSize observations of
// every non-barcode identity that has at least max(sampleSize, 2)
// observations. Views are only valid until the stores are mutated.
func (h *Harness) Trials(sampleSize int) iter.Seq2[Trial, error] {
	return func(yield func(Trial, error) bool) {
		need := max(sampleSize, 2)
		for _, id := range h.Features.Identities() {
			if h.isBarcode(id) {
				continue
			}
			rows := h.Features.Rows(id)
			if len(rows) < need {
				continue
			}
			for _, row := range rows[:sampleSize] {
				t, err := h.trial(id, row)
				if !yield(t, err) || err != nil {
					return
				}
			}
		}
	}
}

func (h *Harness) trial(id identity.Key, row features.Row) (Trial, error) {
	hists, ok := h.NGrams.Histograms(id, row.ID)
	if !ok {
		return Trial{}, fmt.Errorf("eval: %v/%s has features but no n-grams: %w", id, row.ID, internalerr.ErrCorrupt)
	}
	fv, err := h.Features.Without(id, row.ID)
	if err != nil {
		return Trial{}, err
	}
	nv, err := h.NGrams.Without(id, row.ID)
	if err != nil {
		return Trial{}, err
	}
	return Trial{Key: id, ObsID: row.ID, Values: row.Values, Hists: hists, Features: fv, NGrams: nv}, nil
}

// Evaluate classifies every trial and reports the share of trials whose
// non-barcode estimate is the true identity. The harness stores are left
// untouched: column drops and the training cap apply to private copies.
func (h *Harness) Evaluate(ctx context.Context, opts Options) (Report, error) {
	method, err := ParseMethod(string(opts.Method))
	if err != nil {
		return Report{}, err
	}
	if opts.SampleSize < 1 {
		return Report{}, fmt.Errorf("eval: sample size %d: %w", opts.SampleSize, internalerr.ErrInvalidInput)
	}
	log := h.Logger
	if log == nil {
		log = slog.Default()
	}

	work := *h
	work.Features = h.Features.Clone()
	work.NGrams = h.NGrams.Clone()
	if len(opts.DropFeatures) > 0 {
		if err := work.Features.DropFeatures(opts.DropFeatures...); err != nil {
			return Report{}, err
		}
	}
	work.NGrams.SetMaxGames(opts.MaxTrainingGames)

	rep := Report{RunID: ulid.MustNew(ulid.Now(), rand.Reader), Method: method}
	rng := mrand.New(mrand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	for t, err := range work.Trials(opts.SampleSize) {
		if err != nil {
			return rep, err
		}
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		res, err := work.classify(t, method, rng)
		if err != nil {
			return rep, err
		}
		rep.Trials++
		switch {
		case res.NonBarcode == nil:
			rep.NoEstimate++
			log.Debug("trial without estimate", "identity", t.Key.String(), "obs", t.ObsID, "reason", string(res.Reason))
		case res.NonBarcode.Key == t.Key:
			rep.Correct++
		}
	}
	if rep.Trials == 0 {
		return rep, fmt.Errorf("eval: no identity has %d observations: %w", max(opts.SampleSize, 2), internalerr.ErrInsufficientData)
	}
	rep.Accuracy = float64(rep.Correct) / float64(rep.Trials)
	log.Info("evaluation finished",
		"run", rep.RunID.String(),
		"method", string(method),
		"trials", rep.Trials,
		"correct", rep.Correct,
		"accuracy", rep.Accuracy)
	return rep, nil
}

func (h *Harness) classify(t Trial, method Method, rng *mrand.Rand) (classify.Result, error) {
	q := classify.Query{}
	switch method {
	case MethodFeatures:
		snap := t.Features.CategoryFiltered(t.Key.Category)
		weights := h.Relevance.Estimate(t.Features.AllRows(), len(snap.Columns), rng)
		nn := h.Neighbor
		nn.Barcodes = h.Barcodes
		return nn.Classify(q, t.Values, classify.Table(snap.Mean), weights), nil
	default:
		n := h.ClassifyN
		if n < 1 || n > len(t.Hists) {
			return classify.Result{}, fmt.Errorf("eval: classify length %d outside 1..%d: %w", n, len(t.Hists), internalerr.ErrInvalidConfig)
		}
		candidates, err := t.NGrams.CategoryFiltered(t.Key.Category, n)
		if err != nil {
			return classify.Result{}, err
		}
		ng := h.NGram
		ng.Barcodes = h.Barcodes
		return ng.Classify(q, t.Hists[n-1], candidates), nil
	}
}

func (h *Harness) isBarcode(id identity.Key) bool {
	return h.Barcodes != nil && h.Barcodes.IsBarcodeHandle(id.Handle)
}
