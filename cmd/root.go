package cmd

import (
	"os"

	"github.com/spacedata/sdchain/logx"
	"github.com/spf13/cobra"
)

var (
	nodeConfigPath string
	tuningPath     string
	dataDir        string
)

var rootCmd = &cobra.Command{
	Use:          "sdchain",
	Short:        "sdchain proof-of-work log CLI",
	Long:         "Command line interface for running and inspecting an sdchain proof-of-work log.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&nodeConfigPath, "config", "config/node.yml", "Path to node configuration file")
	rootCmd.PersistentFlags().StringVar(&tuningPath, "tuning", "config/sdchain.ini", "Path to pow/mempool/miner tuning file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Override the LevelDB store directory")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logx.Error("CMD", "Command execution failed: ", err)
		os.Exit(1)
	}
}
