package cmd

import (
	"fmt"

	"github.com/spacedata/sdchain/jsonx"
	"github.com/spf13/cobra"
)

var printCmd = &cobra.Command{
	Use:   "print",
	Short: "Print the whole chain as indented JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		setup, err := loadSetup()
		if err != nil {
			return err
		}
		c, bs, err := setup.openChain(nil)
		if err != nil {
			return err
		}
		defer bs.MustClose()

		b, err := jsonx.MarshalIndent(c.Blocks(), "", "    ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(b))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(printCmd)
}
