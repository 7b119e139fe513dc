package ingest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/internalerr"
)

// FeatureExtractor computes the named feature values of one participant.
type FeatureExtractor interface {
	Columns() []string
	Extract(s Session, p Participant) (map[string]float64, error)
}

// Column names produced by RateExtractor besides the per-type rates, which
// are named "<event type>" + RateSuffix.
const (
	ColumnAPM       = "apm"
	ColumnEvents    = "events_per_minute"
	ColumnMeanGap   = "mean_gap_frames"
	ColumnBreaks    = "breaks_per_minute"
	ColumnFirstMove = "first_action_seconds"
	RateSuffix      = "_per_minute"
)

// DefaultColumns is the feature schema used when none is configured.
func DefaultColumns() []string {
	return []string{
		ColumnAPM,
		"selection" + RateSuffix,
		"command" + RateSuffix,
		"control_group" + RateSuffix,
		"camera" + RateSuffix,
		ColumnMeanGap,
		ColumnBreaks,
		ColumnFirstMove,
	}
}

// RateExtractor is the default FeatureExtractor. It measures how often a
// participant issues each kind of input over the whole game.
type RateExtractor struct {
	columns     []string
	startup     map[string]bool
	breakFrames int
}

// NewRateExtractor checks that every column is one it can produce.
func NewRateExtractor(columns, startup []string, breakFrames int) (*RateExtractor, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("rate extractor: no columns: %w", internalerr.ErrInvalidConfig)
	}
	for _, c := range columns {
		if !producible(c) {
			return nil, fmt.Errorf("rate extractor: cannot produce column %q: %w", c, internalerr.ErrInvalidConfig)
		}
	}
	skip := make(map[string]bool, len(startup))
	for _, t := range startup {
		skip[t] = true
	}
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &RateExtractor{columns: cols, startup: skip, breakFrames: breakFrames}, nil
}

func producible(c string) bool {
	switch c {
	case ColumnAPM, ColumnEvents, ColumnMeanGap, ColumnBreaks, ColumnFirstMove:
		return true
	}
	return strings.HasSuffix(c, RateSuffix) && len(c) > len(RateSuffix)
}

// Columns implements FeatureExtractor.
func (r *RateExtractor) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// Extract implements FeatureExtractor.
func (r *RateExtractor) Extract(s Session, p Participant) (map[string]float64, error) {
	if s.DurationSeconds <= 0 {
		return nil, fmt.Errorf("rate extractor: duration %v: %w", s.DurationSeconds, internalerr.ErrInvalidInput)
	}
	minutes := s.DurationSeconds / 60

	frames := make([]int, 0, len(p.Events))
	perType := map[string]int{}
	for _, e := range p.Events {
		if r.startup[e.Type] {
			continue
		}
		frames = append(frames, e.Frame)
		perType[e.Type]++
	}
	sort.Ints(frames)

	var gapSum float64
	var breaks int
	for i := 1; i < len(frames); i++ {
		gap := frames[i] - frames[i-1]
		gapSum += float64(gap)
		if r.breakFrames > 0 && gap >= r.breakFrames {
			breaks++
		}
	}

	out := make(map[string]float64, len(r.columns))
	for _, c := range r.columns {
		switch c {
		case ColumnAPM:
			out[c] = p.APM
		case ColumnEvents:
			out[c] = float64(len(frames)) / minutes
		case ColumnMeanGap:
			if len(frames) > 1 {
				out[c] = gapSum / float64(len(frames)-1)
			} else {
				out[c] = s.DurationSeconds * FramesPerSecond
			}
		case ColumnBreaks:
			out[c] = float64(breaks) / minutes
		case ColumnFirstMove:
			if len(frames) > 0 {
				out[c] = float64(frames[0]) / FramesPerSecond
			} else {
				out[c] = s.DurationSeconds
			}
		default:
			out[c] = float64(perType[strings.TrimSuffix(c, RateSuffix)]) / minutes
		}
	}
	return out, nil
}
