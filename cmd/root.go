package cmd

import (
	"github.com/abhisek/quandary/internal/store"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "quandary",
	Short: "Resolve question graphs with an LLM",
	Long: "Quandary resolves directed graphs of questions: sub-questions and\n" +
		"prerequisites are answered first, every answer feeds the questions\n" +
		"that depend on it, and the root's answer comes out last.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides QUANDARY_DB env var)")

	rootCmd.AddCommand(solveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(updateCmd)
}

// resolveDBPath returns the database path using --db flag (highest priority),
// then QUANDARY_DB env var, then the default XDG path.
func resolveDBPath(cmd *cobra.Command) (string, error) {
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		return p, store.EnsureDir(p)
	}
	return store.DefaultDBPath()
}
