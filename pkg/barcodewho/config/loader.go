package config

import (
	"fmt"
	"log/slog"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/classify"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/identity"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/ingest"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/relevance"
)

// Loader loads the configuration file and constructs components
type Loader struct {
	ConfigPath string
	// ReplayFolder overrides options.replay_folder when set.
	ReplayFolder string
	Logger       *slog.Logger
}

// Components holds all loaded configuration components
type Components struct {
	Config    *Config
	Mapper    *identity.CategoryMapper
	Tokenizer *ingest.EventTokenizer
	Extractor *ingest.RateExtractor
	Pipeline  *ingest.Pipeline
	NGram     classify.NGram
	Neighbor  classify.NearestNeighbor
	Relevance relevance.Estimator
}

// Load reads the configuration file (or the defaults when no path is set)
// and returns initialized components
func (l *Loader) Load() (*Components, error) {
	cfg := Default()
	if l.ConfigPath != "" {
		loaded, err := Load(l.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if l.ReplayFolder != "" {
		cfg.Options.ReplayFolder = l.ReplayFolder
	}
	return Build(cfg, l.Logger)
}

// Build constructs components from an already loaded configuration.
func Build(cfg *Config, logger *slog.Logger) (*Components, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	h := cfg.Hyperparams
	comp := &Components{Config: cfg}

	comp.Mapper = identity.NewCategoryMapper(cfg.Locales, cfg.Options.StrictLocales)

	tok, err := ingest.NewEventTokenizer(cfg.Tokens, cfg.StartupEvents, h.HighestN, h.BreakFrames, h.CutSeconds)
	if err != nil {
		return nil, fmt.Errorf("build tokenizer: %w", err)
	}
	comp.Tokenizer = tok

	fx, err := ingest.NewRateExtractor(cfg.Features, cfg.StartupEvents, h.BreakFrames)
	if err != nil {
		return nil, fmt.Errorf("build feature extractor: %w", err)
	}
	comp.Extractor = fx

	comp.Pipeline = &ingest.Pipeline{
		Source: ingest.FolderSource{
			Root:    cfg.Options.ReplayFolder,
			Ext:     cfg.Options.ReplayExtension,
			LoadOld: cfg.Options.LoadOldReplays,
		},
		Parser:    ingest.DumpParser{Suffix: cfg.Options.DumpSuffix},
		Rules:     cfg.RelevanceRules,
		Mapper:    comp.Mapper,
		Features:  fx,
		Sequences: tok,
		Logger:    logger,
	}

	comp.NGram = classify.NGram{Floor: h.ProbFloor}
	comp.Neighbor = classify.NearestNeighbor{
		ClipLow:     h.ClipLow,
		ClipHigh:    h.ClipHigh,
		WeightFloor: h.RelevanceFloor,
	}
	comp.Relevance = relevance.Estimator{SamplesPerIdentity: h.RelevanceSamples}

	return comp, nil
}
