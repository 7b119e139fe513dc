package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/classify"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/identity"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/ingest"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/internalerr"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/ngram"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/relevance"
)

// Hyperparams tune ingestion and classification.
type Hyperparams struct {
	HighestN  int     `yaml:"highest_n"`
	ClassifyN int     `yaml:"classify_n"`
	ProbFloor float64 `yaml:"prob_floor"`
	ClipLow   float64 `yaml:"clip_low"`
	ClipHigh  float64 `yaml:"clip_high"`
	// RelevanceFloor is the smallest relevance weight a column can get.
	RelevanceFloor   float64 `yaml:"relevance_floor"`
	RelevanceSamples int     `yaml:"relevance_samples"`
	BreakFrames      int     `yaml:"break_frames"`
	CutSeconds       float64 `yaml:"cut_seconds"`
}

// Options are the user-facing switches.
type Options struct {
	ReplayFolder             string `yaml:"replay_folder"`
	ReplayExtension          string `yaml:"replay_extension"`
	DumpSuffix               string `yaml:"dump_suffix"`
	LoadOldReplays           bool   `yaml:"load_old_replays"`
	NeighboursToPrint        int    `yaml:"neighbours_to_print"`
	UpdateDBAfterClassifying bool   `yaml:"update_db_after_classifying"`
	StrictLocales            bool   `yaml:"strict_locales"`
	DatabasePath             string `yaml:"database_path"`
	NamesPath                string `yaml:"names_path"`
}

// Config is the whole configuration file.
type Config struct {
	Hyperparams    Hyperparams       `yaml:"hyperparams"`
	Options        Options           `yaml:"options"`
	RelevanceRules ingest.Rules      `yaml:"relevance_rules"`
	Features       []string          `yaml:"features"`
	Tokens         ingest.Alphabet   `yaml:"tokens"`
	StartupEvents  []string          `yaml:"startup_events"`
	Locales        map[string]string `yaml:"locales"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Hyperparams: Hyperparams{
			HighestN:         4,
			ClassifyN:        4,
			ProbFloor:        classify.DefaultFloor,
			ClipLow:          classify.DefaultClipLow,
			ClipHigh:         classify.DefaultClipHigh,
			RelevanceFloor:   classify.DefaultWeightFloor,
			RelevanceSamples: relevance.DefaultSamples,
			BreakFrames:      22,
			CutSeconds:       30,
		},
		Options: Options{
			ReplayExtension:   ingest.DefaultExtension,
			DumpSuffix:        ingest.DefaultDumpSuffix,
			NeighboursToPrint: 5,
			DatabasePath:      "barcodewho.db",
			NamesPath:         "names",
		},
		RelevanceRules: ingest.DefaultRules(),
		Features:       ingest.DefaultColumns(),
		Tokens:         ingest.DefaultAlphabet(),
		StartupEvents:  ingest.DefaultStartupTypes(),
		Locales:        identity.DefaultLocales(),
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file keep
// their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	// Maps merge key by key in yaml.v3; start the user's maps empty so a
	// file that lists tokens or locales replaces the defaults.
	var present struct {
		Tokens  yaml.Node `yaml:"tokens"`
		Locales yaml.Node `yaml:"locales"`
	}
	if err := yaml.Unmarshal(data, &present); err != nil {
		return nil, fmt.Errorf("parse %s: %w: %w", path, internalerr.ErrInvalidConfig, err)
	}
	if !present.Tokens.IsZero() {
		cfg.Tokens = nil
	}
	if !present.Locales.IsZero() {
		cfg.Locales = nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w: %w", path, internalerr.ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate reports every problem in the configuration.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	h := c.Hyperparams
	if h.HighestN < 1 {
		bad("hyperparams.highest_n must be at least 1, got %d", h.HighestN)
	}
	if h.ClassifyN < 1 || h.ClassifyN > h.HighestN {
		bad("hyperparams.classify_n must be in 1..%d, got %d", h.HighestN, h.ClassifyN)
	}
	if h.ProbFloor <= 0 {
		bad("hyperparams.prob_floor must be positive, got %v", h.ProbFloor)
	}
	if h.ClipHigh <= h.ClipLow {
		bad("hyperparams.clip_high %v must exceed clip_low %v", h.ClipHigh, h.ClipLow)
	}
	if h.RelevanceFloor <= 0 {
		bad("hyperparams.relevance_floor must be positive, got %v", h.RelevanceFloor)
	}
	if h.RelevanceSamples < 1 {
		bad("hyperparams.relevance_samples must be at least 1, got %d", h.RelevanceSamples)
	}
	if h.BreakFrames < 0 || h.CutSeconds < 0 {
		bad("hyperparams.break_frames and cut_seconds must not be negative")
	}
	if c.Options.NeighboursToPrint < 0 {
		bad("options.neighbours_to_print must not be negative, got %d", c.Options.NeighboursToPrint)
	}
	if len(c.Features) == 0 {
		bad("features must list at least one column")
	}
	seen := make(map[string]bool, len(c.Features))
	for _, f := range c.Features {
		if seen[f] {
			bad("features lists %q twice", f)
		}
		seen[f] = true
	}
	if err := c.Tokens.Validate(); err != nil {
		errs = append(errs, err)
	} else if h.HighestN >= 1 {
		if _, err := ngram.Dim(h.HighestN, c.Tokens.Base()); err != nil {
			bad("hyperparams.highest_n %d is too large for %d tokens: %w", h.HighestN, c.Tokens.Base(), err)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", internalerr.ErrInvalidConfig, errors.Join(errs...))
}
