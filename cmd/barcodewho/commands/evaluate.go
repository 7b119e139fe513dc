package commands

import (
	"fmt"
	"math"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/eval"
)

var (
	evalSampleSize int
	evalMethod     string
	evalDrop       []string
	evalMaxGames   int
	evalSeed       uint64
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Measure classifier accuracy by leave-one-out",
	Long: `Hide one game at a time from the database, classify it and count how
often the closest non-barcode player is the true one.

Examples:
  barcodewho evaluate --sample-size 2
  barcodewho evaluate --method features --drop apm --seed 3`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		method, err := eval.ParseMethod(evalMethod)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		db, _, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		rep, err := db.EvaluateAccuracy(ctx, eval.Options{
			SampleSize:       evalSampleSize,
			DropFeatures:     evalDrop,
			MaxTrainingGames: evalMaxGames,
			Method:           method,
			Seed:             evalSeed,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "run %s (%s): %d/%d correct, accuracy %.3f, %d without estimate\n",
			rep.RunID, rep.Method, rep.Correct, rep.Trials, rep.Accuracy, rep.NoEstimate)
		return nil
	},
}

var relevanceCmd = &cobra.Command{
	Use:   "relevance",
	Short: "Show how well each feature separates players",
	Long: `Estimate, for every feature column, the spread within players relative
to the spread across players. Lower is more telling; "undefined" columns
carry no information and are ignored by the feature classifier.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, _, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		weights, cols := db.Relevance()
		order := make([]int, len(cols))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			wa, wb := weights[order[a]], weights[order[b]]
			if math.IsNaN(wb) {
				return !math.IsNaN(wa)
			}
			return wa < wb
		})
		for _, i := range order {
			if math.IsNaN(weights[i]) {
				fmt.Fprintf(cmd.OutOrStdout(), "%-28s undefined\n", cols[i])
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-28s %.4f\n", cols[i], weights[i])
		}
		return nil
	},
}

func init() {
	evaluateCmd.Flags().IntVarP(&evalSampleSize, "sample-size", "n", 2, "games held out per player")
	evaluateCmd.Flags().StringVarP(&evalMethod, "method", "m", string(eval.MethodNGram), "classifier: ngram or features")
	evaluateCmd.Flags().StringSliceVar(&evalDrop, "drop", nil, "feature columns to ignore")
	evaluateCmd.Flags().IntVar(&evalMaxGames, "max-games", 0, "games per player used for n-gram training (0 = all)")
	evaluateCmd.Flags().Uint64Var(&evalSeed, "seed", 0, "seed for relevance sampling")

	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(relevanceCmd)
}
