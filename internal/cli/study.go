package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/studyaddict/studyaddict/internal/app/progression"
	"github.com/studyaddict/studyaddict/internal/domain"
	"github.com/studyaddict/studyaddict/internal/infra/metrics"
)

func init() {
	rootCmd.AddCommand(studyCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(prestigeCmd)
	resetCmd.Flags().BoolVar(&resetYes, "yes", false, "Confirm wiping all progress")
	rootCmd.AddCommand(resetCmd)
}

var studyCmd = &cobra.Command{
	Use:   "study MINUTES",
	Short: "Record a study session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		minutes, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("minutes must be a whole number: %w", err)
		}
		return mutation(cmd, func(e *progression.Engine) (domain.State, error) {
			st, err := e.AddMinutes(minutes)
			if err == nil {
				metrics.StudyMinutes.Add(float64(minutes))
			}
			return st, err
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show level, XP and streak",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(s *cliSession) error {
			renderStatus(cmd.OutOrStdout(), s.session, s.engine.Snapshot())
			return nil
		})
	},
}

var prestigeCmd = &cobra.Command{
	Use:   "prestige",
	Short: "Reset your level for a permanent XP multiplier",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutation(cmd, (*progression.Engine).TryPrestige)
	},
}

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset --yes",
	Short: "Wipe all progress",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutation(cmd, func(e *progression.Engine) (domain.State, error) {
			return e.HardReset(resetYes)
		})
	},
}
