package commands

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Add new recordings from the replay folder",
	Long: `Add every recording newer than the last ingestion to the database.

Interrupting with Ctrl-C keeps the recordings processed so far; they are
saved before exiting.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		db, _, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		stats, runErr := db.Ingest(ctx)
		// Partial progress is saved even when the run was interrupted.
		if err := db.Save(cmd.Context()); err != nil {
			return errors.Join(runErr, err)
		}
		printStats(cmd, stats)
		return runErr
	},
}

func printStats(cmd *cobra.Command, s ingest.Stats) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "seen %d, ingested %d, already known %d, unparsable %d, observations %d\n",
		s.Seen, s.Ingested, s.Known, s.ParseFailures, s.Observations)
	reasons := make([]string, 0, len(s.Skipped))
	for r := range s.Skipped {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Fprintf(out, "skipped (%s): %d\n", r, s.Skipped[ingest.SkipReason(r)])
	}
	if !s.Watermark.IsZero() {
		fmt.Fprintf(out, "watermark: %s\n", s.Watermark.Format("2006-01-02 15:04:05"))
	}
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
