package cmd

import (
	"fmt"
	"io"

	"github.com/spacedata/sdchain/block"
	"github.com/spacedata/sdchain/chain"
	"github.com/spacedata/sdchain/jsonx"
	"github.com/spacedata/sdchain/types"
	"github.com/spf13/cobra"
)

var (
	mineCount  int
	mineSample bool
)

// sampleRecords is the demo payload staged by mine --sample.
var sampleRecords = []string{
	"Satellite telemetry data",
	"Astronomical observations",
	"Spacecraft sensor readings",
}

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Mine blocks on top of the stored chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		var entries []types.Entry
		if mineSample {
			for _, r := range sampleRecords {
				entries = append(entries, types.MustEntry(r))
			}
		}
		return stageAndMine(cmd.OutOrStdout(), entries, mineCount)
	},
}

var addCmd = &cobra.Command{
	Use:   "add <json>...",
	Short: "Commit JSON entries into a newly mined block",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries := make([]types.Entry, 0, len(args))
		for _, arg := range args {
			e, err := types.CanonicalEntry([]byte(arg))
			if err != nil {
				return fmt.Errorf("entry %q: %w", arg, err)
			}
			entries = append(entries, e)
		}
		return stageAndMine(cmd.OutOrStdout(), entries, 1)
	},
}

func init() {
	rootCmd.AddCommand(mineCmd)
	rootCmd.AddCommand(addCmd)
	mineCmd.Flags().IntVar(&mineCount, "count", 1, "Number of blocks to mine")
	mineCmd.Flags().BoolVar(&mineSample, "sample", false, "Stage the sample space-data records first")
}

// stageAndMine loads the chain, stages entries and mines count blocks; the
// first block carries the entries.
func stageAndMine(out io.Writer, entries []types.Entry, count int) error {
	setup, err := loadSetup()
	if err != nil {
		return err
	}
	c, bs, err := setup.openChain(nil)
	if err != nil {
		return err
	}
	defer bs.MustClose()

	for _, e := range entries {
		if err := c.AddEntry(e); err != nil {
			return err
		}
	}

	ctx, stop := signalContext()
	defer stop()
	for i := 0; i < count; i++ {
		blk, err := c.Mine(ctx)
		if err != nil {
			return err
		}
		if err := printBlock(out, c, blk); err != nil {
			return err
		}
	}
	return nil
}

func printBlock(out io.Writer, c *chain.Chain, blk *block.Block) error {
	h, err := c.Hash(blk)
	if err != nil {
		return err
	}
	b, err := jsonx.MarshalIndent(blk, "", "    ")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "mined block %d hash %s\n%s\n", blk.Index, h, b)
	return nil
}
