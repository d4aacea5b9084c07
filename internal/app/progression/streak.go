package progression

import "github.com/studyaddict/studyaddict/internal/domain"

// UpdateStreak credits the current calendar day to the streak.
// A day counts once no matter how many study events it holds. Missed days
// never break the streak.
func UpdateStreak(s domain.State, env Env) (domain.State, []domain.Event) {
	t := begin(s, env)
	t.updateStreak()
	return t.finish()
}

func (t *step) updateStreak() {
	today := domain.DayKey(t.env.Now)
	if t.s.LastStudyDay == today {
		return
	}
	t.s.Streak++
	t.s.LastStudyDay = today
	t.emit(domain.Event{Kind: domain.EventStreakIncremented, Streak: t.s.Streak})
}
