package progression

import (
	"fmt"
	"math"

	"github.com/studyaddict/studyaddict/internal/domain"
)

// MaxSessionMinutes is the longest study session one event may record.
const MaxSessionMinutes = 24 * 60

// maxGain bounds one XP gain to the range float64 represents exactly.
const maxGain = 1 << 52

// AddMinutes records a study session: lifetime minutes, mission counters,
// curve XP, the day's streak credit, badges and mission completion.
func AddMinutes(s domain.State, minutes int64, env Env) (domain.State, []domain.Event, error) {
	if minutes <= 0 || minutes > MaxSessionMinutes {
		return s, nil, fmt.Errorf("add %d minutes, want 1..%d: %w", minutes, MaxSessionMinutes, domain.ErrInvalidMinutes)
	}

	t := begin(s, env)
	t.checkMissionResets()

	t.s.Minutes += minutes
	t.trackMinutes(minutes)
	t.addXP(t.env.Rules.Curve(minutes))
	t.updateStreak()
	t.checkBadges()
	t.updateMissionProgress()

	next, events := t.finish()
	return next, events, nil
}

// AddXP grants amount XP scaled by the prestige multiplier, levelling up as
// many times as the gain covers.
func AddXP(s domain.State, amount float64, env Env) (domain.State, []domain.Event) {
	t := begin(s, env)
	t.checkMissionResets()
	t.addXP(amount)
	t.checkBadges()
	t.updateMissionProgress()
	return t.finish()
}

func (t *step) addXP(amount float64) {
	v := math.Floor(amount * t.s.XPMultiplier)
	if !(v > 0) {
		return
	}
	gain := int64(min(v, maxGain))

	t.s.XP += gain
	t.s.TotalXP += gain
	t.s.LevelXP = t.s.XP - t.s.XPBase
	t.trackXP(gain)
	t.emit(domain.Event{Kind: domain.EventXPGained, Amount: gain})

	t.settleLevels()
}

// settleLevels consumes whole thresholds until LevelXP < XPNeeded.
func (t *step) settleLevels() {
	if t.s.XPNeeded < 1 {
		t.s.XPNeeded = t.env.Rules.BaseXPNeeded
	}
	for t.s.LevelXP >= t.s.XPNeeded {
		t.s.LevelXP -= t.s.XPNeeded
		t.s.XPBase += t.s.XPNeeded
		t.s.Level++
		t.s.XPNeeded = max(1, t.env.Rules.nextThreshold(t.s.XPNeeded))
		t.emit(domain.Event{
			Kind:     domain.EventLevelUp,
			Level:    t.s.Level,
			XPNeeded: t.s.XPNeeded,
		})
	}
}

// ProgressPct returns progress toward the next level (0.0–100.0).
func ProgressPct(s domain.State) float64 {
	if s.XPNeeded <= 0 {
		return 100.0
	}
	pct := float64(s.XP-s.XPBase) / float64(s.XPNeeded) * 100.0
	return math.Min(100, math.Max(0, pct))
}
