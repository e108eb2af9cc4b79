package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "regdelta",
	Short: "Regulatory change analysis with auditable control mapping",
	Long: `RegDelta compares two versions of a regulatory document, extracts the
obligations introduced by the changes, maps them to your control catalog,
and plans remediation actions. Every step is recorded in an append-only
hash-chained audit log.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".regdelta.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
