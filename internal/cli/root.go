// Package cli implements the Study Addict command-line interface using Cobra.
// Each subcommand runs one progression operation against the local session.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "studyaddict",
	Short: "Study Addict: turn study time into XP",
	Long: `Study Addict records study sessions and turns them into XP, levels,
streaks, badges, missions and shop rewards.

Progress is kept on this machine and, for a configured user, synced to the
remote progress document.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at the configured level instead of warnings only")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
