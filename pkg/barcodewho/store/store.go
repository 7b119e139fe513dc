package store

import (
	"context"
	"time"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/features"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/identity"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/ngram"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/sparse"
)

// SchemaVersion is bumped whenever the persisted layout changes.
const SchemaVersion = 1

// Store persists the behavioral database as one unit.
type Store interface {
	Close() error

	// Load returns the saved database. An empty store yields a zero Snapshot.
	Load(ctx context.Context) (Snapshot, error)
	// Save replaces the saved database atomically.
	Save(ctx context.Context, snap Snapshot) error
	// Reset deletes everything.
	Reset(ctx context.Context) error
}

// Snapshot is everything persisted for one database: the hash ledger, raw
// observations of both stores, their cached aggregates and the ingestion
// watermark.
type Snapshot struct {
	Hashes []string

	Columns     []string
	FeatureRows map[identity.Key][]features.Row
	Features    features.Snapshot

	MaxN       int
	NGramRows  [][]ngram.Row // indexed by n-1
	NGramMeans []map[identity.Key]sparse.Vector

	Watermark time.Time
}

// Empty reports whether nothing was ever saved.
func (s Snapshot) Empty() bool {
	return len(s.Hashes) == 0 && len(s.FeatureRows) == 0 && len(s.NGramRows) == 0 && s.Watermark.IsZero()
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	c := Snapshot{
		Hashes:    append([]string(nil), s.Hashes...),
		Columns:   append([]string(nil), s.Columns...),
		MaxN:      s.MaxN,
		Watermark: s.Watermark,
	}
	if s.FeatureRows != nil {
		c.FeatureRows = make(map[identity.Key][]features.Row, len(s.FeatureRows))
		for id, rows := range s.FeatureRows {
			cp := make([]features.Row, len(rows))
			for i, r := range rows {
				cp[i] = features.Row{ID: r.ID, Values: append([]float64(nil), r.Values...)}
			}
			c.FeatureRows[id] = cp
		}
	}
	c.Features = features.Snapshot{Columns: append([]string(nil), s.Features.Columns...)}
	if s.Features.Mean != nil {
		c.Features.Mean = make(map[identity.Key][]float64, len(s.Features.Mean))
		c.Features.Std = make(map[identity.Key][]float64, len(s.Features.Std))
		c.Features.General = make(map[identity.Key]features.General, len(s.Features.General))
		for id, m := range s.Features.Mean {
			c.Features.Mean[id] = append([]float64(nil), m...)
		}
		for id, sd := range s.Features.Std {
			c.Features.Std[id] = append([]float64(nil), sd...)
		}
		for id, g := range s.Features.General {
			c.Features.General[id] = g
		}
	}
	for _, table := range s.NGramRows {
		cp := make([]ngram.Row, len(table))
		for i, r := range table {
			cp[i] = ngram.Row{ID: r.ID, Key: r.Key, Hist: r.Hist.Clone()}
		}
		c.NGramRows = append(c.NGramRows, cp)
	}
	for _, m := range s.NGramMeans {
		cp := make(map[identity.Key]sparse.Vector, len(m))
		for id, v := range m {
			cp[id] = v.Clone()
		}
		c.NGramMeans = append(c.NGramMeans, cp)
	}
	return c
}
