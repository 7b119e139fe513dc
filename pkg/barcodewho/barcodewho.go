// Package barcodewho guesses which known player hides behind a "barcode"
// account by comparing how they play against a database of past games.
package barcodewho

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/classify"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/config"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/eval"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/features"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/identity"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/ingest"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/internalerr"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/kv"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/ledger"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/names"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/ngram"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/relevance"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/report"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/store"
)

// DB is the behavioral database: the hash ledger, both aggregate stores and
// the name history. All methods are safe for concurrent use; one ingestion
// pass runs at a time.
type DB struct {
	mu sync.Mutex

	store store.Store
	kv    kv.Store
	comp  *config.Components
	log   *slog.Logger
	rng   *rand.Rand
	cards *report.Builder

	ledger    *ledger.Ledger
	features  *features.Store
	ngrams    *ngram.Store
	book      *names.Book
	watermark time.Time
}

// Options configures Open.
type Options struct {
	// Store persists the database. Required.
	Store store.Store
	// Names holds name histories. Nil keeps them in memory.
	Names kv.Store
	// Components come from config.Loader. Nil uses the defaults.
	Components *config.Components
	Logger     *slog.Logger
	// Seed drives relevance sampling.
	Seed uint64
}

// Open loads the saved database, or starts an empty one.
func Open(ctx context.Context, opts Options) (*DB, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("open: store is required: %w", internalerr.ErrInvalidConfig)
	}
	comp := opts.Components
	if comp == nil {
		var err error
		if comp, err = config.Build(config.Default(), opts.Logger); err != nil {
			return nil, err
		}
	}
	db := &DB{
		store: opts.Store,
		kv:    opts.Names,
		comp:  comp,
		log:   opts.Logger,
		rng:   rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x5851f42d4c957f2d)),
		cards: report.New(),
	}
	if db.kv == nil {
		db.kv = kv.NewMemory()
	}
	if db.log == nil {
		db.log = slog.Default()
	}

	snap, err := db.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	if err := db.restore(snap); err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	if db.book, err = names.LoadBook(ctx, db.kv); err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	db.log.Info("database opened",
		"hashes", db.ledger.Len(),
		"identities", len(db.features.Identities()),
		"watermark", db.watermark)
	return db, nil
}

func (db *DB) restore(snap store.Snapshot) error {
	if err := db.empty(); err != nil {
		return err
	}
	if snap.Empty() {
		return nil
	}
	if !slices.Equal(snap.Columns, db.features.Schema().Columns()) {
		return fmt.Errorf("saved features %v differ from configured %v, reset the database: %w",
			snap.Columns, db.features.Schema().Columns(), internalerr.ErrInvalidConfig)
	}
	if snap.MaxN != db.ngrams.MaxN() {
		return fmt.Errorf("saved highest n %d differs from configured %d, reset the database: %w",
			snap.MaxN, db.ngrams.MaxN(), internalerr.ErrInvalidConfig)
	}
	if err := db.features.Restore(snap.FeatureRows, snap.Features); err != nil {
		return err
	}
	if err := db.ngrams.Restore(snap.NGramRows, snap.NGramMeans); err != nil {
		return err
	}
	db.ledger = ledger.FromHashes(snap.Hashes)
	db.watermark = snap.Watermark
	return nil
}

func (db *DB) empty() error {
	schema, err := features.NewSchema(db.comp.Extractor.Columns()...)
	if err != nil {
		return err
	}
	ns, err := ngram.New(db.comp.Tokenizer.MaxN(), db.comp.Tokenizer.Base())
	if err != nil {
		return err
	}
	db.ledger = ledger.New()
	db.features = features.New(schema)
	db.ngrams = ns
	db.watermark = time.Time{}
	return nil
}

// Close closes the underlying stores without saving.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return errors.Join(db.store.Close(), db.kv.Close())
}

// Save writes the whole database, aggregates included.
func (db *DB) Save(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	agg, err := db.features.Aggregates()
	if err != nil {
		return err
	}
	means, err := db.ngrams.AllMeans()
	if err != nil {
		return err
	}
	rows := make([][]ngram.Row, db.ngrams.MaxN())
	for n := 1; n <= db.ngrams.MaxN(); n++ {
		rows[n-1] = db.ngrams.Rows(n)
	}
	featureRows := make(map[identity.Key][]features.Row)
	for _, id := range db.features.Identities() {
		featureRows[id] = db.features.Rows(id)
	}
	snap := store.Snapshot{
		Hashes:      db.ledger.Hashes(),
		Columns:     db.features.Schema().Columns(),
		FeatureRows: featureRows,
		Features:    agg,
		MaxN:        db.ngrams.MaxN(),
		NGramRows:   rows,
		NGramMeans:  means,
		Watermark:   db.watermark,
	}
	if err := db.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	if err := db.book.Save(ctx, db.kv); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

// Reset deletes everything, in memory and on disk.
func (db *DB) Reset(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := Wipe(ctx, db.store, db.kv); err != nil {
		return err
	}
	db.book = names.NewBook()
	return db.empty()
}

// Wipe deletes a saved database and its name history without loading them,
// so it also works when the saved data no longer matches the configuration.
func Wipe(ctx context.Context, st store.Store, nameStore kv.Store) error {
	if err := st.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if err := names.Clear(ctx, nameStore); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

// Watermark is the modification time of the newest recording processed.
func (db *DB) Watermark() time.Time {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.watermark
}

// Summary describes the database contents.
type Summary struct {
	Hashes       int
	Identities   int
	Observations int
	Handles      int
	Watermark    time.Time
}

// Summary returns counts over the database.
func (db *DB) Summary() Summary {
	db.mu.Lock()
	defer db.mu.Unlock()
	s := Summary{
		Hashes:    db.ledger.Len(),
		Handles:   len(db.book.Handles()),
		Watermark: db.watermark,
	}
	for _, id := range db.features.Identities() {
		s.Identities++
		s.Observations += db.features.Count(id)
	}
	return s
}

// EnterObservation adds one participant's observation to both stores and
// records its hash.
func (db *DB) EnterObservation(obs ingest.Observation) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.enter(obs); err != nil {
		return err
	}
	db.ledger.Add(obs.ObsID)
	return nil
}

func (db *DB) enter(obs ingest.Observation) error {
	if err := db.features.Enter(obs.Key, obs.ObsID, obs.Features); err != nil {
		return err
	}
	if err := db.ngrams.Enter(obs.Key, obs.ObsID, obs.Hists); err != nil {
		if rerr := db.features.Remove(obs.Key, obs.ObsID); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	return nil
}

// RemoveObservation deletes one identity's observation from both stores.
// The hash stays in the ledger, so the recording is not ingested again.
// Hashes never seen are ignored.
func (db *DB) RemoveObservation(id identity.Key, hash string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.ledger.InDB(hash) {
		return nil
	}
	if err := db.features.Remove(id, hash); err != nil {
		return err
	}
	return db.ngrams.Remove(id, hash)
}

// sink feeds a pipeline run into the database. The caller holds db.mu.
type sink struct{ db *DB }

func (s sink) Admit(hash string) bool {
	if s.db.ledger.InDB(hash) {
		return false
	}
	s.db.ledger.Add(hash)
	return true
}

func (s sink) RecordName(handle, name string) { s.db.book.Add(handle, name) }

func (s sink) Enter(obs ingest.Observation) error { return s.db.enter(obs) }

// Ingest runs the configured pipeline over recordings newer than the
// watermark. Whatever was entered before an error or cancellation stays
// entered, and the watermark advances accordingly. Nothing is saved.
func (db *DB) Ingest(ctx context.Context) (ingest.Stats, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	stats, err := db.comp.Pipeline.Run(ctx, db.watermark, sink{db})
	if stats.Watermark.After(db.watermark) {
		db.watermark = stats.Watermark
	}
	db.log.Info("ingestion finished",
		"seen", stats.Seen,
		"ingested", stats.Ingested,
		"known", stats.Known,
		"parse_failures", stats.ParseFailures,
		"observations", stats.Observations)
	return stats, err
}

// Classification holds both classifiers' answers for one observation.
type Classification struct {
	Key      identity.Key
	NGram    classify.Result
	Features classify.Result
	Cards    []report.Card
}

// Classify runs both classifiers. The observation's own identity is never
// an estimate.
func (db *DB) Classify(obs ingest.Observation) (Classification, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.classify(obs)
}

func (db *DB) classify(obs ingest.Observation) (Classification, error) {
	ng, err := db.classifyNGram(obs)
	if err != nil {
		return Classification{}, err
	}
	fs, err := db.classifyFeatures(obs)
	if err != nil {
		return Classification{}, err
	}
	k := db.comp.Config.Options.NeighboursToPrint
	return Classification{
		Key:      obs.Key,
		NGram:    ng,
		Features: fs,
		Cards: []report.Card{
			db.cards.Build(string(eval.MethodNGram), obs.Key, ng, k, db.book),
			db.cards.Build(string(eval.MethodFeatures), obs.Key, fs, k, db.book),
		},
	}, nil
}

// ClassifyNGram returns the closest identity and the closest non-barcode
// identity by n-gram distance. Either may be nil.
func (db *DB) ClassifyNGram(obs ingest.Observation) (best, nonBarcode *classify.Estimate, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	res, err := db.classifyNGram(obs)
	return res.Best, res.NonBarcode, err
}

// ClassifyFeatures is ClassifyNGram for the feature-space classifier.
func (db *DB) ClassifyFeatures(obs ingest.Observation) (best, nonBarcode *classify.Estimate, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	res, err := db.classifyFeatures(obs)
	return res.Best, res.NonBarcode, err
}

func (db *DB) classifyNGram(obs ingest.Observation) (classify.Result, error) {
	n := db.comp.Config.Hyperparams.ClassifyN
	if n < 1 || n > len(obs.Hists) {
		return classify.Result{}, fmt.Errorf("classify: observation has %d histograms, need %d: %w", len(obs.Hists), n, internalerr.ErrInvalidInput)
	}
	candidates, err := db.ngrams.CategoryFiltered(obs.Key.Category, n)
	if err != nil {
		return classify.Result{}, err
	}
	c := db.comp.NGram
	c.Barcodes = db.book
	return c.Classify(query(obs), obs.Hists[n-1], candidates), nil
}

func (db *DB) classifyFeatures(obs ingest.Observation) (classify.Result, error) {
	test, err := db.features.Schema().Vector(obs.Features)
	if err != nil {
		return classify.Result{}, err
	}
	snap, err := db.features.CategoryFiltered(obs.Key.Category)
	if err != nil {
		return classify.Result{}, err
	}
	weights := db.comp.Relevance.Estimate(db.features.AllRows(), len(snap.Columns), db.rng)
	nn := db.comp.Neighbor
	nn.Barcodes = db.book
	return nn.Classify(query(obs), test, classify.Table(snap.Mean), weights), nil
}

func query(obs ingest.Observation) classify.Query {
	if obs.Key.IsZero() {
		return classify.Query{}
	}
	key := obs.Key
	return classify.Query{Owner: &key}
}

// ClassifyRecording parses one recording and classifies every participant.
// Recordings the relevance rules refuse fail with ErrIrrelevant. With options.update_db_after_classifying the recording is then entered
// like an ingested one.
func (db *DB) ClassifyRecording(ctx context.Context, path string) ([]Classification, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	hash, err := ledger.HashFile(path)
	if err != nil {
		return nil, err
	}
	p := db.comp.Pipeline
	session, err := p.Parser.Parse(ctx, path)
	if err != nil {
		return nil, err
	}
	if reason := p.Rules.Check(session); reason != ingest.SkipNone {
		db.log.Info("recording skipped", "path", path, "hash", hash, "reason", reason)
		return nil, fmt.Errorf("classify %s: %s: %w", path, reason, internalerr.ErrIrrelevant)
	}
	obs, err := p.Observations(hash, session)
	if err != nil {
		return nil, err
	}

	out := make([]Classification, 0, len(obs))
	for _, o := range obs {
		c, err := db.classify(o)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}

	if db.comp.Config.Options.UpdateDBAfterClassifying && !db.ledger.InDB(hash) {
		s := sink{db}
		s.Admit(hash)
		for _, part := range session.Participants {
			if part.Name != "" {
				s.RecordName(part.Handle, part.Name)
			}
		}
		for _, o := range obs {
			if err := s.Enter(o); err != nil {
				return out, err
			}
		}
	}
	return out, nil
}

// Relevance estimates the weight of every feature column.
func (db *DB) Relevance() (relevance.Weights, []string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	cols := db.features.Schema().Columns()
	return db.comp.Relevance.Estimate(db.features.AllRows(), len(cols), db.rng), cols
}

// EvaluateAccuracy runs leave-one-out trials over the database.
func (db *DB) EvaluateAccuracy(ctx context.Context, opts eval.Options) (eval.Report, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	h := eval.Harness{
		Features:  db.features,
		NGrams:    db.ngrams,
		Barcodes:  db.book,
		ClassifyN: db.comp.Config.Hyperparams.ClassifyN,
		NGram:     db.comp.NGram,
		Neighbor:  db.comp.Neighbor,
		Relevance: db.comp.Relevance,
		Logger:    db.log,
	}
	return h.Evaluate(ctx, opts)
}

// Names returns the name history of a handle.
func (db *DB) Names(handle string) []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.book.Names(handle)
}
