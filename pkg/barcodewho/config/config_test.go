package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/internalerr"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	content := `hyperparams:
  highest_n: 3
  classify_n: 2
options:
  replay_folder: /games
  load_old_replays: true
features:
  - apm
  - camera_per_minute
locales:
  Terraner: Terran
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Hyperparams.HighestN != 3 || cfg.Hyperparams.ClassifyN != 2 {
		t.Errorf("hyperparams = %+v", cfg.Hyperparams)
	}
	if cfg.Hyperparams.CutSeconds != 30 {
		t.Errorf("unset keys should keep defaults, cut_seconds = %v", cfg.Hyperparams.CutSeconds)
	}
	if cfg.Options.ReplayFolder != "/games" || !cfg.Options.LoadOldReplays {
		t.Errorf("options = %+v", cfg.Options)
	}
	if len(cfg.Features) != 2 {
		t.Errorf("features = %v", cfg.Features)
	}
	if len(cfg.Locales) != 1 || cfg.Locales["Terraner"] != "Terran" {
		t.Errorf("locales should replace the defaults, got %v", cfg.Locales)
	}
	if cfg.RelevanceRules.MinSeconds != 180 {
		t.Errorf("relevance rules = %+v", cfg.RelevanceRules)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	content := `hyperparams:
  highest_n: 2
  classify_n: 5
  prob_floor: 0
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Fatalf("got %v, want ErrInvalidConfig", err)
	}
	for _, want := range []string{"classify_n", "prob_floor"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %s", err, want)
		}
	}
}

func TestLoadMalformed(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(path, []byte("hyperparams: [1, 2"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Errorf("got %v", err)
	}
	if _, err := Load(filepath.Join(tmpDir, "missing.yaml")); err == nil {
		t.Error("Should error on nonexistent file")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Default()
	cfg.Options.NeighboursToPrint = 9

	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	back, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if back.Options.NeighboursToPrint != 9 {
		t.Errorf("neighbours_to_print = %d", back.Options.NeighboursToPrint)
	}
	if len(back.Tokens) != len(cfg.Tokens) {
		t.Errorf("tokens = %v", back.Tokens)
	}
}

func TestLoaderDefaults(t *testing.T) {
	loader := Loader{ReplayFolder: "/games"}

	comp, err := loader.Load()
	if err != nil {
		t.Fatalf("Empty loader should succeed: %v", err)
	}
	if comp.Pipeline == nil || comp.Tokenizer == nil || comp.Extractor == nil || comp.Mapper == nil {
		t.Fatalf("missing components: %+v", comp)
	}
	if comp.Tokenizer.Base() != 17 || comp.Tokenizer.MaxN() != 4 {
		t.Errorf("tokenizer base %d maxN %d", comp.Tokenizer.Base(), comp.Tokenizer.MaxN())
	}
	if comp.Config.Options.ReplayFolder != "/games" {
		t.Errorf("replay folder = %q", comp.Config.Options.ReplayFolder)
	}
	if got := comp.Extractor.Columns(); len(got) != len(Default().Features) {
		t.Errorf("columns = %v", got)
	}
}

func TestLoaderNonExistentConfig(t *testing.T) {
	loader := Loader{ConfigPath: "/nonexistent/config.yaml"}
	if _, err := loader.Load(); err == nil {
		t.Error("Should error on nonexistent config")
	}
}

func TestBuildRejectsUnknownFeature(t *testing.T) {
	cfg := Default()
	cfg.Features = []string{"apm", "luck"}
	if _, err := Build(cfg, nil); !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Errorf("got %v", err)
	}
}

func TestValidateBoundsHighestN(t *testing.T) {
	cfg := Default()
	cfg.Hyperparams.HighestN = 16
	err := cfg.Validate()
	if !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Fatalf("got %v, want ErrInvalidConfig", err)
	}
	if !strings.Contains(err.Error(), "highest_n") {
		t.Errorf("error %q should mention highest_n", err)
	}

	cfg.Hyperparams.HighestN = 7
	if err := cfg.Validate(); err != nil {
		t.Errorf("17^7 fits: %v", err)
	}
}
