// Package progression implements the study progression engine: XP and
// levels, streaks, prestige, badges, missions and the reward shop.
//
// Every rule is a pure transition over domain.State: it receives a state,
// returns the next state plus the events it produced, and never touches
// storage. Engine wraps the transitions in a single-actor session and hands
// the results to persistence and event collaborators.
package progression

import (
	"math"
	"time"

	"github.com/studyaddict/studyaddict/internal/domain"
)

// Rules holds the tunable constants of the progression curve.
type Rules struct {
	BaseXPNeeded        int64   // threshold of level 1
	LevelGrowth         float64 // threshold multiplier per level-up
	MinuteScale         float64 // minutes are scaled before the XP curve
	PrestigeUnlockLevel int
	PrestigeStep        float64 // multiplier bonus per prestige
}

// DefaultRules returns the shipped progression constants.
func DefaultRules() Rules {
	return Rules{
		BaseXPNeeded:        500,
		LevelGrowth:         1.10,
		MinuteScale:         1.5,
		PrestigeUnlockLevel: 20,
		PrestigeStep:        0.25,
	}
}

// Multiplier returns the XP multiplier for a prestige count.
func (r Rules) Multiplier(prestige int) float64 {
	return 1 + r.PrestigeStep*float64(prestige)
}

// Curve converts study minutes into raw XP.
// Scaled minutes earn 1 XP each up to 20, 2 up to 60, and 3 beyond.
func (r Rules) Curve(minutes int64) float64 {
	m := float64(minutes) * r.MinuteScale
	switch {
	case m <= 20:
		return m
	case m <= 60:
		return 20 + (m-20)*2
	default:
		return 60 + (m-60)*3
	}
}

// nextThreshold grows a level threshold, floored.
func (r Rules) nextThreshold(needed int64) int64 {
	return int64(math.Floor(float64(needed) * r.LevelGrowth))
}

// Curve applies the default rules' curve.
func Curve(minutes int64) float64 {
	return DefaultRules().Curve(minutes)
}

// Env is everything a transition needs besides the state.
type Env struct {
	Rules  Rules
	Badges *BadgeCatalog
	Now    time.Time
}

// DefaultEnv returns an environment with default rules and badges at now.
func DefaultEnv(now time.Time) Env {
	return Env{Rules: DefaultRules(), Badges: DefaultBadgeCatalog(), Now: now}
}

// NewState returns a zeroed state with the default reward and mission catalogs.
func NewState(r Rules) domain.State {
	return domain.State{
		Level:          1,
		XPNeeded:       r.BaseXPNeeded,
		XPMultiplier:   r.Multiplier(0),
		BadgesUnlocked: make(map[string]bool),
		Rewards:        DefaultRewards(),
		Missions:       DefaultMissions(),
	}
}

// step accumulates the changes and events of one transition.
type step struct {
	s      domain.State
	env    Env
	events []domain.Event
}

func begin(s domain.State, env Env) *step {
	if env.Badges == nil {
		env.Badges = DefaultBadgeCatalog()
	}
	if env.Rules.BaseXPNeeded <= 0 {
		env.Rules = DefaultRules()
	}
	return &step{s: s.Clone(), env: env}
}

func (t *step) emit(ev domain.Event) {
	ev.At = t.env.Now
	t.events = append(t.events, ev)
}

func (t *step) finish() (domain.State, []domain.Event) {
	return t.s, t.events
}

// Normalize repairs derived fields of a state restored from storage:
// multiplier, LevelXP, and thresholds left unsettled by a partial document.
// It emits no events.
func Normalize(s domain.State, env Env) domain.State {
	t := begin(s, env)
	r := t.env.Rules
	if t.s.Level < 1 {
		t.s.Level = 1
	}
	if t.s.XPNeeded < 1 {
		t.s.XPNeeded = r.BaseXPNeeded
	}
	if t.s.Prestige < 0 {
		t.s.Prestige = 0
	}
	t.s.XPMultiplier = r.Multiplier(t.s.Prestige)
	t.s.LevelXP = t.s.XP - t.s.XPBase
	if t.s.LevelXP < 0 {
		t.s.XPBase = t.s.XP
		t.s.LevelXP = 0
	}
	t.settleLevels()
	t.events = nil
	return t.s
}
