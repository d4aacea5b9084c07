package progression

import (
	"fmt"

	"github.com/studyaddict/studyaddict/internal/domain"
)

// DefaultMissions returns the shipped mission catalog with cleared flags.
func DefaultMissions() []domain.Mission {
	return []domain.Mission{
		{ID: "d1", Title: "Study 20 minutes", Scope: domain.ScopeDaily, Quantity: domain.QuantityMinutes, Need: 20, Payout: 80},
		{ID: "d2", Title: "Study 1 hour", Scope: domain.ScopeDaily, Quantity: domain.QuantityMinutes, Need: 60, Payout: 200},
		{ID: "d3", Title: "Earn 150 XP", Scope: domain.ScopeDaily, Quantity: domain.QuantityXP, Need: 150, Payout: 150},

		{ID: "w1", Title: "Study 3 hours", Scope: domain.ScopeWeekly, Quantity: domain.QuantityMinutes, Need: 180, Payout: 350},
		{ID: "w2", Title: "Earn 1000 XP", Scope: domain.ScopeWeekly, Quantity: domain.QuantityXP, Need: 1000, Payout: 500},
		{ID: "w3", Title: "7-day streak", Scope: domain.ScopeWeekly, Quantity: domain.QuantityStreak, Need: 7, Payout: 800},
		{ID: "w4", Title: "Study 6 hours", Scope: domain.ScopeWeekly, Quantity: domain.QuantityMinutes, Need: 360, Payout: 1200},
	}
}

// CheckMissionResets rolls the daily and weekly counters over when the
// current period key differs from the stored one.
func CheckMissionResets(s domain.State, env Env) (domain.State, []domain.Event) {
	t := begin(s, env)
	t.checkMissionResets()
	return t.finish()
}

func (t *step) checkMissionResets() {
	c := &t.s.Counters

	if day := domain.DayKey(t.env.Now); c.LastDaily != day {
		c.DailyMin = 0
		c.DailyXP = 0
		c.LastDaily = day
		t.clearMissions(domain.ScopeDaily)
	}
	if week := domain.WeekKey(t.env.Now); c.LastWeekly != week {
		c.WeeklyMin = 0
		c.WeeklyXP = 0
		c.LastWeekly = week
		t.clearMissions(domain.ScopeWeekly)
	}
}

func (t *step) clearMissions(scope domain.MissionScope) {
	for i := range t.s.Missions {
		if t.s.Missions[i].Scope == scope {
			t.s.Missions[i].Done = false
			t.s.Missions[i].Claimed = false
		}
	}
}

func (t *step) trackMinutes(m int64) {
	t.s.Counters.DailyMin += m
	t.s.Counters.WeeklyMin += m
}

func (t *step) trackXP(x int64) {
	t.s.Counters.DailyXP += x
	t.s.Counters.WeeklyXP += x
}

// missionValue reads the counter a mission measures.
func missionValue(s domain.State, m domain.Mission) int64 {
	switch m.Quantity {
	case domain.QuantityStreak:
		return int64(s.Streak)
	case domain.QuantityXP:
		if m.Scope == domain.ScopeWeekly {
			return s.Counters.WeeklyXP
		}
		return s.Counters.DailyXP
	default:
		if m.Scope == domain.ScopeWeekly {
			return s.Counters.WeeklyMin
		}
		return s.Counters.DailyMin
	}
}

// Progress renders one mission against s. Percent is floored and capped at 100.
func Progress(s domain.State, m domain.Mission) domain.MissionProgress {
	value := missionValue(s, m)
	pct := 100
	if m.Need > 0 {
		pct = int(min(100, value*100/m.Need))
	}
	return domain.MissionProgress{Mission: m, Value: value, Percent: max(0, pct)}
}

// ProgressAll renders every mission in catalog order.
func ProgressAll(s domain.State) []domain.MissionProgress {
	out := make([]domain.MissionProgress, 0, len(s.Missions))
	for _, m := range s.Missions {
		out = append(out, Progress(s, m))
	}
	return out
}

// UpdateMissionProgress marks every mission whose value reached its need as done.
func UpdateMissionProgress(s domain.State, env Env) (domain.State, []domain.Event) {
	t := begin(s, env)
	t.checkMissionResets()
	t.updateMissionProgress()
	return t.finish()
}

func (t *step) updateMissionProgress() {
	for i := range t.s.Missions {
		m := &t.s.Missions[i]
		if m.Done || missionValue(t.s, *m) < m.Need {
			continue
		}
		m.Done = true
		t.emit(domain.Event{Kind: domain.EventMissionCompleted, MissionID: m.ID})
	}
}

// ClaimMission pays out a completed mission once per period. The payout
// goes through the multiplier, and the XP counters receive both the
// multiplied gain and the raw payout.
func ClaimMission(s domain.State, id string, env Env) (domain.State, []domain.Event, error) {
	t := begin(s, env)
	t.checkMissionResets()
	t.updateMissionProgress()

	m := t.s.Mission(id)
	switch {
	case m == nil:
		return s, nil, fmt.Errorf("claim %q: %w", id, domain.ErrMissionNotFound)
	case !m.Done:
		return s, nil, fmt.Errorf("claim %q: %w", id, domain.ErrMissionNotDone)
	case m.Claimed:
		return s, nil, fmt.Errorf("claim %q: %w", id, domain.ErrMissionAlreadyClaimed)
	}

	m.Claimed = true
	payout := m.Payout
	t.emit(domain.Event{Kind: domain.EventMissionClaimed, MissionID: id, Amount: payout})

	t.addXP(float64(payout))
	t.trackXP(payout)
	t.checkBadges()
	t.updateMissionProgress()

	next, events := t.finish()
	return next, events, nil
}

// ResetMissions clears the period counters and every mission flag, then
// re-evaluates completion for the current periods.
func ResetMissions(s domain.State, env Env) (domain.State, []domain.Event) {
	t := begin(s, env)
	t.s.Counters = domain.Counters{}
	t.checkMissionResets()
	t.updateMissionProgress()
	return t.finish()
}
