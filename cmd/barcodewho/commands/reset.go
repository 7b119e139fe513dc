package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho"
	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/config"
)

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the database and name history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetYes {
			return errors.New("reset deletes every ingested game; pass --yes to confirm")
		}
		ctx := cmd.Context()
		log := logger()
		comp, err := loadComponents(log)
		if err != nil {
			return err
		}
		// The saved data is not loaded, so a database built under another
		// configuration can still be reset.
		st, names, err := openStores(ctx, log, comp)
		if err != nil {
			return err
		}
		if err := barcodewho.Wipe(ctx, st, names); err != nil {
			return errors.Join(err, st.Close(), names.Close())
		}
		if err := errors.Join(st.Close(), names.Close()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "database reset")
		return nil
	},
}

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init <config.yaml>",
	Short: "Write the default configuration file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("%s exists; pass --force to overwrite", path)
		}
		if err := config.Default().Save(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetYes, "yes", false, "confirm deletion")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing file")

	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(initCmd)
}
