package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/studyaddict/studyaddict/internal/app/progression"
	"github.com/studyaddict/studyaddict/internal/domain"
)

func init() {
	rootCmd.AddCommand(rewardsCmd)
	rootCmd.AddCommand(buyCmd)
	syncCmd.AddCommand(syncSaveCmd)
	syncCmd.AddCommand(syncLoadCmd)
	rootCmd.AddCommand(syncCmd)
}

var rewardsCmd = &cobra.Command{
	Use:   "rewards",
	Short: "Show the reward shop",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(s *cliSession) error {
			return renderRewards(cmd.OutOrStdout(), s.engine.Snapshot().XP, s.engine.Rewards())
		})
	},
}

var buyCmd = &cobra.Command{
	Use:   "buy REWARD",
	Short: "Spend XP on a reward",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutation(cmd, func(e *progression.Engine) (domain.State, error) {
			st, err := e.BuyReward(args[0])
			if err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Bought %s\n", args[0])
			}
			return st, err
		})
	},
}

// ─── Sync ───────────────────────────────────────────────────────────────────

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push or pull the remote progress document",
}

var syncSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Write local progress to the remote document",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(s *cliSession) error {
			if !s.session.Authenticated() {
				fmt.Fprintln(cmd.OutOrStdout(), "Guest session: progress stays on this machine. Set [identity] user_id to sync.")
				return nil
			}
			if err := s.engine.SaveState(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Saved.")
			return nil
		})
	},
}

var syncLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Merge the remote document into local progress",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(s *cliSession) error {
			if err := s.engine.LoadState(cmd.Context()); err != nil {
				return err
			}
			renderStatus(cmd.OutOrStdout(), s.session, s.engine.Snapshot())
			return nil
		})
	},
}
