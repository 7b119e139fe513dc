package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/identity"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/internalerr"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/ledger"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/sparse"
)

// Observation is what one participant of one recording contributes.
type Observation struct {
	Key      identity.Key
	ObsID    string
	Name     string
	Features map[string]float64
	Hists    []sparse.Vector
}

// Sink receives the output of a pipeline run.
type Sink interface {
	// Admit reports whether the hash is new and records it. Check and
	// record happen atomically.
	Admit(hash string) bool
	RecordName(handle, name string)
	Enter(obs Observation) error
}

// Stats counts what a run did.
type Stats struct {
	Seen          int
	Ingested      int
	Known         int
	ParseFailures int
	Skipped       map[SkipReason]int
	Observations  int
	// Watermark is the modification time of the last recording fully
	// processed, or the starting watermark if none was.
	Watermark time.Time
}

// Pipeline orchestrates the ingestion flow:
// list → hash → admit → parse → rules → names → extract → enter
type Pipeline struct {
	Source    Source
	Parser    Parser
	Rules     Rules
	Mapper    *identity.CategoryMapper
	Features  FeatureExtractor
	Sequences SequenceExtractor
	Logger    *slog.Logger

	// Hash fingerprints a recording. Nil means ledger.HashFile.
	Hash func(path string) (string, error)
}

func (p *Pipeline) log() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// Run ingests every recording listed after since. On cancellation the
// recordings already entered stay entered and the returned stats say how
// far the run got.
func (p *Pipeline) Run(ctx context.Context, since time.Time, sink Sink) (Stats, error) {
	stats := Stats{Skipped: map[SkipReason]int{}, Watermark: since}
	recs, err := p.Source.List(ctx, since)
	if err != nil {
		return stats, err
	}
	hash := p.Hash
	if hash == nil {
		hash = ledger.HashFile
	}
	log := p.log()

	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Seen++

		h, err := hash(rec.Path)
		if err != nil {
			return stats, fmt.Errorf("hash %s: %w", rec.Path, err)
		}
		if !sink.Admit(h) {
			stats.Known++
			stats.Watermark = later(stats.Watermark, rec.ModTime)
			continue
		}

		session, err := p.Parser.Parse(ctx, rec.Path)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.ParseFailures++
			log.Warn("recording could not be parsed", "path", rec.Path, "hash", h, "err", err)
			stats.Watermark = later(stats.Watermark, rec.ModTime)
			continue
		}

		if reason := p.Rules.Check(session); reason != SkipNone {
			stats.Skipped[reason]++
			log.Info("recording skipped", "path", rec.Path, "hash", h, "reason", string(reason))
			stats.Watermark = later(stats.Watermark, rec.ModTime)
			continue
		}

		for _, part := range session.Participants {
			if part.Name != "" {
				sink.RecordName(part.Handle, part.Name)
			}
		}

		obs, err := p.Observations(h, session)
		if err != nil {
			if identity.IsUnknownCategory(err) {
				stats.Skipped[SkipCategory]++
				log.Info("recording skipped", "path", rec.Path, "hash", h, "reason", string(SkipCategory), "err", err)
			} else {
				stats.ParseFailures++
				log.Warn("recording could not be extracted", "path", rec.Path, "hash", h, "err", err)
			}
			stats.Watermark = later(stats.Watermark, rec.ModTime)
			continue
		}
		for _, o := range obs {
			if err := sink.Enter(o); err != nil {
				return stats, fmt.Errorf("enter %v from %s: %w", o.Key, rec.Path, err)
			}
			stats.Observations++
		}
		stats.Ingested++
		stats.Watermark = later(stats.Watermark, rec.ModTime)
		log.Debug("recording ingested", "path", rec.Path, "hash", h, "observations", len(obs))
	}
	return stats, nil
}

// Observations extracts one observation per participant. Nothing is
// returned unless every participant could be extracted.
func (p *Pipeline) Observations(hash string, s Session) ([]Observation, error) {
	out := make([]Observation, 0, len(s.Participants))
	for _, part := range s.Participants {
		if part.Handle == "" {
			return nil, fmt.Errorf("participant without handle: %w", internalerr.ErrInvalidInput)
		}
		category := part.Category
		if p.Mapper != nil {
			c, _, err := p.Mapper.Canonical(part.Category)
			if err != nil {
				return nil, err
			}
			category = c
		}
		values, err := p.Features.Extract(s, part)
		if err != nil {
			return nil, fmt.Errorf("features of %s: %w", part.Handle, err)
		}
		hists, err := p.Sequences.Extract(part)
		if err != nil {
			return nil, fmt.Errorf("sequences of %s: %w", part.Handle, err)
		}
		out = append(out, Observation{
			Key:      identity.Key{Handle: part.Handle, Category: category},
			ObsID:    hash,
			Name:     part.Name,
			Features: values,
			Hists:    hists,
		})
	}
	return out, nil
}

func later(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
