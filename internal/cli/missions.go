package cli

import (
	"github.com/spf13/cobra"

	"github.com/studyaddict/studyaddict/internal/app/progression"
	"github.com/studyaddict/studyaddict/internal/domain"
)

func init() {
	missionsCmd.AddCommand(missionsResetCmd)
	rootCmd.AddCommand(missionsCmd)
	rootCmd.AddCommand(claimCmd)
	rootCmd.AddCommand(badgesCmd)
}

var missionsCmd = &cobra.Command{
	Use:   "missions",
	Short: "Show daily and weekly missions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(s *cliSession) error {
			return renderMissions(cmd.OutOrStdout(), s.engine.MissionProgress())
		})
	},
}

var missionsResetCmd = &cobra.Command{
	Use:    "reset",
	Short:  "Clear mission counters and flags (development)",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(s *cliSession) error {
			if _, err := s.engine.ResetMissions(); err != nil {
				return err
			}
			return renderMissions(cmd.OutOrStdout(), s.engine.MissionProgress())
		})
	},
}

var claimCmd = &cobra.Command{
	Use:   "claim MISSION",
	Short: "Collect a completed mission's XP",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutation(cmd, func(e *progression.Engine) (domain.State, error) {
			return e.ClaimMission(args[0])
		})
	},
}

var badgesCmd = &cobra.Command{
	Use:   "badges",
	Short: "List badges and which are unlocked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(s *cliSession) error {
			return renderBadges(cmd.OutOrStdout(), s.engine.Badges())
		})
	},
}
