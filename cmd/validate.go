package cmd

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/spacedata/sdchain/validator"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check every stored block and report each broken one",
	RunE: func(cmd *cobra.Command, args []string) error {
		setup, err := loadSetup()
		if err != nil {
			return err
		}
		// The store is read directly: loading it into a chain would stop at
		// the first failure.
		bs, err := setup.openStore()
		if err != nil {
			return err
		}
		defer bs.MustClose()

		blocks, err := bs.LoadAll()
		if err != nil {
			return err
		}
		err = validator.ValidateAll(blocks, setup.pow.Difficulty)
		if err == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "chain valid: %d blocks\n", len(blocks))
			return nil
		}
		if merr, ok := err.(*multierror.Error); ok {
			for _, e := range merr.Errors {
				fmt.Fprintln(cmd.OutOrStdout(), e)
			}
		}
		return fmt.Errorf("chain invalid: %w", err)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
