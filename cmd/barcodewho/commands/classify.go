package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/internalerr"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <recording>...",
	Short: "Guess who plays behind each account of a recording",
	Long: `Classify every participant of the given recordings with both the
n-gram and the feature classifier, listing the closest known players.

With options.update_db_after_classifying the recordings are also added to
the database.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, comp, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		for _, path := range args {
			results, err := db.ClassifyRecording(ctx, path)
			if errors.Is(err, internalerr.ErrIrrelevant) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n  skipped: %v\n", path, err)
				continue
			}
			if err != nil {
				return fmt.Errorf("classify %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", path)
			for _, c := range results {
				for _, card := range c.Cards {
					if err := card.Render(cmd.OutOrStdout()); err != nil {
						return err
					}
				}
			}
		}

		if comp.Config.Options.UpdateDBAfterClassifying {
			return db.Save(ctx)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}
