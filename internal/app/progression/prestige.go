package progression

import (
	"fmt"

	"github.com/studyaddict/studyaddict/internal/domain"
)

// TryPrestige prestiges when the unlock level is reached.
// The identity check belongs to the caller; see Engine.TryPrestige.
func TryPrestige(s domain.State, env Env) (domain.State, []domain.Event, error) {
	unlock := env.Rules.PrestigeUnlockLevel
	if env.Rules.BaseXPNeeded <= 0 {
		unlock = DefaultRules().PrestigeUnlockLevel
	}
	if s.Level < unlock {
		return s, nil, fmt.Errorf("reach level %d to prestige: %w", unlock, domain.ErrPrestigeLocked)
	}
	next, events := DoPrestige(s, env)
	return next, events, nil
}

// DoPrestige trades level progress for one more multiplier tier.
// Totals, minutes, streak, badges, rewards and missions are kept.
func DoPrestige(s domain.State, env Env) (domain.State, []domain.Event) {
	t := begin(s, env)
	r := t.env.Rules

	t.s.Prestige++
	t.s.XPMultiplier = r.Multiplier(t.s.Prestige)
	t.s.XP = 0
	t.s.XPBase = 0
	t.s.LevelXP = 0
	t.s.XPNeeded = r.BaseXPNeeded
	t.s.Level = 1

	t.emit(domain.Event{
		Kind:       domain.EventPrestige,
		Prestige:   t.s.Prestige,
		Multiplier: t.s.XPMultiplier,
	})
	t.checkBadges()
	return t.finish()
}
