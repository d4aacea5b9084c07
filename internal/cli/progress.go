package cli

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/studyaddict/studyaddict/internal/app/progression"
	"github.com/studyaddict/studyaddict/internal/domain"
)

// ─── Progress Bar ───────────────────────────────────────────────────────────
// Renders level and mission progress:
//   Level 7  [===========>..................]  38%  230 / 605 XP

const barWidth = 30 // Characters for the progress bar

// renderBar draws a bar for pct in [0, 100] at the given width.
func renderBar(pct float64, width int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	filled := int(pct / 100 * float64(width))
	if filled > width {
		filled = width
	}
	empty := width - filled

	switch {
	case filled == width:
		return "[" + strings.Repeat("=", filled) + "]"
	case filled > 0:
		return "[" + strings.Repeat("=", filled-1) + ">" + strings.Repeat(".", empty) + "]"
	default:
		return "[" + strings.Repeat(".", width) + "]"
	}
}

// ─── Views ──────────────────────────────────────────────────────────────────

func renderStatus(w io.Writer, session domain.Session, st domain.State) {
	who := "guest"
	if session.Authenticated() {
		who = session.UserID
	}
	pct := progression.ProgressPct(st)
	fmt.Fprintf(w, "Level %d  %s %3.0f%%  %d / %d XP\n",
		st.Level, renderBar(pct, barWidth), pct, st.LevelXP, st.XPNeeded)
	fmt.Fprintf(w, "  XP %d (total %d)  ·  %d min studied  ·  streak %d\n",
		st.XP, st.TotalXP, st.Minutes, st.Streak)
	fmt.Fprintf(w, "  prestige %d (x%.2f)  ·  %s\n", st.Prestige, st.XPMultiplier, who)
}

func renderMissions(w io.Writer, missions []domain.MissionProgress) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMISSION\tPROGRESS\tXP\tSTATE")
	for _, p := range missions {
		fmt.Fprintf(tw, "%s\t%s\t%s %d/%d\t%d\t%s\n",
			p.Mission.ID,
			p.Mission.Title,
			renderBar(float64(p.Percent), 10),
			p.Value, p.Mission.Need,
			p.Mission.Payout,
			missionState(p.Mission),
		)
	}
	return tw.Flush()
}

func missionState(m domain.Mission) string {
	switch {
	case m.Claimed:
		return "claimed"
	case m.Done:
		return "ready"
	default:
		return "open"
	}
}

func renderBadges(w io.Writer, badges []domain.BadgeStatus) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tBADGE\tDESCRIPTION\tUNLOCKED")
	unlocked := 0
	for _, b := range badges {
		mark := "-"
		if b.Unlocked {
			mark = "yes"
			unlocked++
		}
		fmt.Fprintf(tw, "%s\t%s %s\t%s\t%s\n", b.Badge.ID, b.Badge.Icon, b.Badge.Name, b.Badge.Description, mark)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d / %d unlocked\n", unlocked, len(badges))
	return nil
}

func renderRewards(w io.Writer, xp int64, rewards []domain.Reward) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tREWARD\tCOST\tTYPE\tSTATE")
	for _, r := range rewards {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", r.ID, r.Name, r.Cost, r.Kind, rewardState(r, xp))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d XP available\n", xp)
	return nil
}

func rewardState(r domain.Reward, xp int64) string {
	switch {
	case r.Active:
		return "active"
	case r.Unlocked && r.Kind != domain.RewardConsumable:
		return "owned"
	case r.Uses > 0:
		return fmt.Sprintf("used %dx", r.Uses)
	case xp >= r.Cost:
		return "affordable"
	default:
		return fmt.Sprintf("need %d", r.Cost-xp)
	}
}

// renderChange summarizes what an operation did.
func renderChange(w io.Writer, badges *progression.BadgeCatalog, before, after domain.State) {
	if gain := after.TotalXP - before.TotalXP; gain > 0 {
		fmt.Fprintf(w, "+%d XP\n", gain)
	}
	if after.Level > before.Level {
		fmt.Fprintf(w, "Level up! Now level %d\n", after.Level)
	}
	if after.Streak > before.Streak {
		fmt.Fprintf(w, "Streak: %d days\n", after.Streak)
	}
	for _, id := range slices.Sorted(maps.Keys(after.BadgesUnlocked)) {
		if !after.BadgesUnlocked[id] || before.BadgesUnlocked[id] {
			continue
		}
		if b, ok := badges.Lookup(id); ok {
			fmt.Fprintf(w, "Badge unlocked: %s %s (%s)\n", b.Icon, b.Name, b.Description)
		} else {
			fmt.Fprintf(w, "Badge unlocked: %s\n", id)
		}
	}
}
