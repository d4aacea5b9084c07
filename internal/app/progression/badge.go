package progression

import (
	"slices"

	"github.com/studyaddict/studyaddict/internal/domain"
)

// LegendBadgeID is the badge granted by the Legendary Badge reward.
const LegendBadgeID = "LEGEND"

// DefaultBadges returns the shipped badge definitions in display order.
func DefaultBadges() []domain.Badge {
	return []domain.Badge{
		{ID: "L5", Name: "Beginner’s Mark", Description: "Reach Level 5", Icon: "⬆️", Condition: domain.LevelAtLeast(5)},
		{ID: "L20", Name: "Rising Force", Description: "Reach Level 20", Icon: "🔷", Condition: domain.LevelAtLeast(20)},
		{ID: "L50", Name: "Elite Grinder", Description: "Reach Level 50", Icon: "💠", Condition: domain.LevelAtLeast(50)},
		{ID: "L100", Name: "Master’s Path", Description: "Reach Level 100", Icon: "🏆", Condition: domain.LevelAtLeast(100)},

		{ID: "P1", Name: "Prestiged I", Description: "Prestige once", Icon: "🔁", Condition: domain.PrestigeAtLeast(1)},
		{ID: "P5", Name: "Prestiged V", Description: "Prestige 5 times", Icon: "🔄", Condition: domain.PrestigeAtLeast(5)},

		{ID: "T10", Name: "Active", Description: "Study 10 minutes", Icon: "⏱️", Condition: domain.MinutesAtLeast(10)},
		{ID: "T60", Name: "Grinder", Description: "Study 1 hour", Icon: "⌛", Condition: domain.MinutesAtLeast(60)},

		{ID: "S3", Name: "On a Roll", Description: "3-day streak", Icon: "🔥", Condition: domain.StreakAtLeast(3)},
		{ID: "S7", Name: "One Week", Description: "7-day streak", Icon: "💥", Condition: domain.StreakAtLeast(7)},

		{ID: "XP10K", Name: "XP Hunter", Description: "10k XP", Icon: "💎", Condition: domain.TotalXPAtLeast(10000)},

		{ID: LegendBadgeID, Name: "Legend", Description: "Buy the Legendary Badge", Icon: "👑", Condition: domain.Granted()},

		{ID: "GOD", Name: "Ascendant", Description: "Unlock all badges", Icon: "🌈", Condition: domain.AllOthersUnlocked()},
	}
}

// BadgeCatalog is an immutable set of badge definitions, partitioned at
// construction into stat, granted and aggregate badges. Aggregate badges
// depend on the stat and granted badges, never on an aggregate, so they
// never depend on themselves.
type BadgeCatalog struct {
	all        []domain.Badge
	individual []domain.Badge
	granted    []domain.Badge
	aggregate  []domain.Badge
}

// NewBadgeCatalog builds a catalog from definitions.
func NewBadgeCatalog(defs []domain.Badge) *BadgeCatalog {
	c := &BadgeCatalog{all: slices.Clone(defs)}
	for _, b := range c.all {
		switch b.Condition.Kind {
		case domain.CondAllOthersUnlocked:
			c.aggregate = append(c.aggregate, b)
		case domain.CondGranted:
			c.granted = append(c.granted, b)
		default:
			c.individual = append(c.individual, b)
		}
	}
	return c
}

var defaultCatalog = NewBadgeCatalog(DefaultBadges())

// DefaultBadgeCatalog returns the shared catalog of DefaultBadges.
func DefaultBadgeCatalog() *BadgeCatalog { return defaultCatalog }

// Lookup finds a badge by ID.
func (c *BadgeCatalog) Lookup(id string) (domain.Badge, bool) {
	for _, b := range c.all {
		if b.ID == id {
			return b, true
		}
	}
	return domain.Badge{}, false
}

// Statuses pairs every definition with its unlock flag in s.
func (c *BadgeCatalog) Statuses(s domain.State) []domain.BadgeStatus {
	out := make([]domain.BadgeStatus, 0, len(c.all))
	for _, b := range c.all {
		out = append(out, domain.BadgeStatus{Badge: b, Unlocked: s.BadgesUnlocked[b.ID]})
	}
	return out
}

// Satisfied evaluates a stat condition against s. Granted and aggregate
// conditions are never satisfied by stats alone.
func Satisfied(cond domain.Condition, s domain.State) bool {
	switch cond.Kind {
	case domain.CondLevelAtLeast:
		return int64(s.Level) >= cond.Threshold
	case domain.CondPrestigeAtLeast:
		return int64(s.Prestige) >= cond.Threshold
	case domain.CondMinutesAtLeast:
		return s.Minutes >= cond.Threshold
	case domain.CondStreakAtLeast:
		return int64(s.Streak) >= cond.Threshold
	case domain.CondTotalXPAtLeast:
		return s.TotalXP >= cond.Threshold
	default:
		return false
	}
}

// unlock runs the two evaluation passes and returns newly unlocked IDs.
// Badges are only ever added.
func (c *BadgeCatalog) unlock(s *domain.State) []string {
	if s.BadgesUnlocked == nil {
		s.BadgesUnlocked = make(map[string]bool)
	}

	var unlocked []string
	for _, b := range c.individual {
		if !s.BadgesUnlocked[b.ID] && Satisfied(b.Condition, *s) {
			s.BadgesUnlocked[b.ID] = true
			unlocked = append(unlocked, b.ID)
		}
	}

	for _, agg := range c.aggregate {
		if s.BadgesUnlocked[agg.ID] {
			continue
		}
		all := func(bs []domain.Badge) bool {
			return !slices.ContainsFunc(bs, func(b domain.Badge) bool { return !s.BadgesUnlocked[b.ID] })
		}
		if all(c.individual) && all(c.granted) {
			s.BadgesUnlocked[agg.ID] = true
			unlocked = append(unlocked, agg.ID)
		}
	}
	return unlocked
}

// CheckBadges unlocks every badge whose condition now holds.
func CheckBadges(s domain.State, env Env) (domain.State, []domain.Event) {
	t := begin(s, env)
	t.checkBadges()
	return t.finish()
}

func (t *step) checkBadges() {
	for _, id := range t.env.Badges.unlock(&t.s) {
		t.emit(domain.Event{Kind: domain.EventBadgeUnlocked, BadgeID: id})
	}
}

func (t *step) grantBadge(id string) {
	if id == "" || t.s.BadgesUnlocked[id] {
		return
	}
	t.s.BadgesUnlocked[id] = true
	t.emit(domain.Event{Kind: domain.EventBadgeUnlocked, BadgeID: id})
}
