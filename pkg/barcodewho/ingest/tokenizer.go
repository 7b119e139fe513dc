package ingest

import (
	"fmt"
	"sort"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/internalerr"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/ngram"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/sparse"
)

// BreakToken separates bursts of events. It is never assigned to an event.
const BreakToken = 0

// OtherType is the alphabet entry used for event types not listed.
const OtherType = "other"

// TokenRange is the block of token ids an event type maps to. An event's
// Sub value selects the id inside the block, clamped to the last one.
type TokenRange struct {
	Start int `yaml:"start"`
	Size  int `yaml:"size"`
}

// Alphabet maps event types to token ranges.
type Alphabet map[string]TokenRange

// DefaultAlphabet covers the input event types of a game recording.
func DefaultAlphabet() Alphabet {
	return Alphabet{
		"selection":       {Start: 1, Size: 4},
		"command_manager": {Start: 5, Size: 1},
		"command":         {Start: 6, Size: 1},
		"control_group":   {Start: 7, Size: 5},
		"camera":          {Start: 12, Size: 4},
		OtherType:         {Start: 16, Size: 1},
	}
}

// DefaultStartupTypes are emitted while a game loads and say nothing about
// the player.
func DefaultStartupTypes() []string {
	return []string{"chat", "progress", "user_options"}
}

// Base returns the number of distinct tokens, break included.
func (a Alphabet) Base() int {
	base := BreakToken + 1
	for _, r := range a {
		base = max(base, r.Start+r.Size)
	}
	return base
}

// Validate checks that ranges are non-empty, avoid the break token and do
// not overlap.
func (a Alphabet) Validate() error {
	if _, ok := a[OtherType]; !ok {
		return fmt.Errorf("alphabet: missing %q entry: %w", OtherType, internalerr.ErrInvalidConfig)
	}
	types := make([]string, 0, len(a))
	for t := range a {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return a[types[i]].Start < a[types[j]].Start })

	next := BreakToken + 1
	for _, t := range types {
		r := a[t]
		if r.Size < 1 {
			return fmt.Errorf("alphabet: %q has size %d: %w", t, r.Size, internalerr.ErrInvalidConfig)
		}
		if r.Start < next {
			return fmt.Errorf("alphabet: %q starts at %d, overlapping: %w", t, r.Start, internalerr.ErrInvalidConfig)
		}
		next = r.Start + r.Size
	}
	return nil
}

// SequenceExtractor turns a participant's events into histograms.
type SequenceExtractor interface {
	Extract(p Participant) ([]sparse.Vector, error)
}

// EventTokenizer is the default SequenceExtractor.
type EventTokenizer struct {
	alphabet    Alphabet
	startup     map[string]bool
	base        int
	maxN        int
	breakFrames int
	cutFrames   float64
}

// NewEventTokenizer validates the alphabet. A break token is inserted
// between events at least breakFrames apart (0 disables breaks); only
// events in the first cutSeconds are kept (0 keeps all).
func NewEventTokenizer(alphabet Alphabet, startup []string, maxN, breakFrames int, cutSeconds float64) (*EventTokenizer, error) {
	if err := alphabet.Validate(); err != nil {
		return nil, err
	}
	if maxN < 1 {
		return nil, fmt.Errorf("tokenizer: highest n %d: %w", maxN, internalerr.ErrInvalidConfig)
	}
	if breakFrames < 0 || cutSeconds < 0 {
		return nil, fmt.Errorf("tokenizer: negative break or cut: %w", internalerr.ErrInvalidConfig)
	}
	skip := make(map[string]bool, len(startup))
	for _, t := range startup {
		skip[t] = true
	}
	return &EventTokenizer{
		alphabet:    alphabet,
		startup:     skip,
		base:        alphabet.Base(),
		maxN:        maxN,
		breakFrames: breakFrames,
		cutFrames:   cutSeconds * FramesPerSecond,
	}, nil
}

// Base returns the alphabet size histograms are indexed with.
func (t *EventTokenizer) Base() int { return t.base }

// MaxN returns the longest sequence length produced.
func (t *EventTokenizer) MaxN() int { return t.maxN }

// Tokens maps events to token ids. Startup events are dropped; the sequence
// never starts with a break.
func (t *EventTokenizer) Tokens(events []Event) []int {
	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Frame < sorted[j].Frame })

	tokens := make([]int, 0, len(sorted))
	prev := -1
	for _, e := range sorted {
		if t.startup[e.Type] {
			continue
		}
		if t.cutFrames > 0 && float64(e.Frame) >= t.cutFrames {
			break
		}
		if prev >= 0 && t.breakFrames > 0 && e.Frame-prev >= t.breakFrames {
			tokens = append(tokens, BreakToken)
		}
		tokens = append(tokens, t.token(e))
		prev = e.Frame
	}
	return tokens
}

func (t *EventTokenizer) token(e Event) int {
	r, ok := t.alphabet[e.Type]
	if !ok {
		r = t.alphabet[OtherType]
	}
	sub := min(max(e.Sub, 0), r.Size-1)
	return r.Start + sub
}

// Extract implements SequenceExtractor.
func (t *EventTokenizer) Extract(p Participant) ([]sparse.Vector, error) {
	return ngram.Histograms(t.Tokens(p.Events), t.maxN, t.base)
}
