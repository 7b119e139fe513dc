package commands

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/config"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/kv"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/store"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/store/sqlite"
)

var (
	// Global flags
	configPath   string
	databasePath string
	namesDir     string
	replayFolder string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "barcodewho",
	Short: "Find out who plays behind barcode accounts",
	Long: `barcodewho learns how players play from recorded games and guesses
which known player hides behind a "barcode" account, a name made only of
the letters I and l.

Recordings are read from session dumps exported next to each .SC2Replay
file. Configuration is a YAML file; run 'barcodewho init' to write the
defaults.

Examples:
  # Add every new recording in the replay folder
  barcodewho ingest --replays ~/replays

  # Classify the players of one recording
  barcodewho classify ~/replays/game.SC2Replay

  # How often is the n-gram classifier right?
  barcodewho evaluate --sample-size 2`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file (defaults when empty)")
	rootCmd.PersistentFlags().StringVar(&databasePath, "db", "", "database file (overrides options.database_path)")
	rootCmd.PersistentFlags().StringVar(&namesDir, "names", "", "name history directory (overrides options.names_path)")
	rootCmd.PersistentFlags().StringVar(&replayFolder, "replays", "", "replay folder (overrides options.replay_folder)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

func logger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func loadComponents(log *slog.Logger) (*config.Components, error) {
	loader := config.Loader{ConfigPath: configPath, ReplayFolder: replayFolder, Logger: log}
	return loader.Load()
}

// openStores opens the configured sqlite database and name history without
// loading them. The caller closes both.
func openStores(ctx context.Context, log *slog.Logger, comp *config.Components) (store.Store, kv.Store, error) {
	dbPath := comp.Config.Options.DatabasePath
	if databasePath != "" {
		dbPath = databasePath
	}
	nDir := comp.Config.Options.NamesPath
	if namesDir != "" {
		nDir = namesDir
	}

	st, err := sqlite.OpenSQLite(ctx, dbPath)
	if err != nil {
		return nil, nil, err
	}
	names, err := kv.OpenBadger(kv.BadgerOptions{Dir: nDir, Logger: log})
	if err != nil {
		return nil, nil, errors.Join(err, st.Close())
	}
	return st, names, nil
}

// openDB opens the database with the configured stores. The caller closes it.
func openDB(ctx context.Context) (*barcodewho.DB, *config.Components, error) {
	log := logger()
	comp, err := loadComponents(log)
	if err != nil {
		return nil, nil, err
	}
	st, names, err := openStores(ctx, log, comp)
	if err != nil {
		return nil, nil, err
	}
	db, err := barcodewho.Open(ctx, barcodewho.Options{
		Store:      st,
		Names:      names,
		Components: comp,
		Logger:     log,
	})
	if err != nil {
		return nil, nil, errors.Join(err, st.Close(), names.Close())
	}
	return db, comp, nil
}
