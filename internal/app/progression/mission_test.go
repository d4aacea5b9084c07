package progression_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyaddict/studyaddict/internal/app/progression"
	"github.com/studyaddict/studyaddict/internal/domain"
)

// ═══════════════════════════════════════════════════════════════════════════
// Mission rollover
// ═══════════════════════════════════════════════════════════════════════════

func TestCheckMissionResets_DailyRollover(t *testing.T) {
	s := fresh()
	s.Counters = domain.Counters{
		DailyMin:   30,
		DailyXP:    90,
		LastDaily:  domain.DayKey(today.AddDate(0, 0, -1)),
		WeeklyMin:  30,
		WeeklyXP:   90,
		LastWeekly: domain.WeekKey(today),
	}
	s.Mission("d1").Done = true
	s.Mission("d1").Claimed = true
	s.Mission("w1").Done = true

	s, _ = progression.CheckMissionResets(s, testEnv())

	assert.Zero(t, s.Counters.DailyMin)
	assert.Zero(t, s.Counters.DailyXP)
	assert.Equal(t, domain.DayKey(today), s.Counters.LastDaily)
	assert.False(t, s.Mission("d1").Done)
	assert.False(t, s.Mission("d1").Claimed)

	assert.Equal(t, int64(30), s.Counters.WeeklyMin)
	assert.Equal(t, int64(90), s.Counters.WeeklyXP)
	assert.True(t, s.Mission("w1").Done, "weekly missions are untouched by a daily rollover")
}

func TestCheckMissionResets_WeeklyRollover(t *testing.T) {
	s := fresh()
	s.Counters = domain.Counters{
		DailyMin:   10,
		LastDaily:  domain.DayKey(today),
		WeeklyMin:  200,
		WeeklyXP:   700,
		LastWeekly: "2026-W2",
	}
	s.Mission("w1").Done = true
	s.Mission("w1").Claimed = true

	s, _ = progression.CheckMissionResets(s, testEnv())

	assert.Equal(t, int64(10), s.Counters.DailyMin)
	assert.Zero(t, s.Counters.WeeklyMin)
	assert.Zero(t, s.Counters.WeeklyXP)
	assert.Equal(t, "2026-W3", s.Counters.LastWeekly)
	assert.False(t, s.Mission("w1").Done)
	assert.False(t, s.Mission("w1").Claimed)
}

func TestProgress_FlooredAndCapped(t *testing.T) {
	s, _, err := progression.AddMinutes(fresh(), 10, testEnv())
	require.NoError(t, err)

	byID := map[string]domain.MissionProgress{}
	for _, p := range progression.ProgressAll(s) {
		byID[p.Mission.ID] = p
	}
	assert.Equal(t, 50, byID["d1"].Percent)
	assert.Equal(t, 16, byID["d2"].Percent)
	assert.Equal(t, 14, byID["w3"].Percent)
	assert.Equal(t, int64(1), byID["w3"].Value)

	s, _, err = progression.AddMinutes(s, 60, testEnv())
	require.NoError(t, err)
	assert.Equal(t, 100, progression.Progress(s, *s.Mission("d1")).Percent)
}

// ═══════════════════════════════════════════════════════════════════════════
// Claims
// ═══════════════════════════════════════════════════════════════════════════

func TestClaimMission_Once(t *testing.T) {
	s, _, err := progression.AddMinutes(fresh(), 20, testEnv())
	require.NoError(t, err)
	require.True(t, s.Mission("d1").Done)

	s, events, err := progression.ClaimMission(s, "d1", testEnv())
	require.NoError(t, err)
	assert.Equal(t, int64(120), s.XP)
	assert.True(t, s.Mission("d1").Claimed)
	require.NotEmpty(t, events)
	assert.Equal(t, domain.EventMissionClaimed, events[0].Kind)
	assert.Equal(t, int64(80), events[0].Amount)

	again, events, err := progression.ClaimMission(s, "d1", testEnv())
	assert.ErrorIs(t, err, domain.ErrMissionAlreadyClaimed)
	assert.Empty(t, events)
	assert.Equal(t, s, again)
}

func TestClaimMission_Rejections(t *testing.T) {
	s := fresh()

	_, _, err := progression.ClaimMission(s, "nope", testEnv())
	assert.ErrorIs(t, err, domain.ErrMissionNotFound)

	_, _, err = progression.ClaimMission(s, "d1", testEnv())
	assert.ErrorIs(t, err, domain.ErrMissionNotDone)
}

func TestClaimMission_PayoutCountsTowardCounters(t *testing.T) {
	s, _, err := progression.AddMinutes(fresh(), 40, testEnv())
	require.NoError(t, err)
	require.Equal(t, int64(100), s.Counters.DailyXP)
	require.False(t, s.Mission("d3").Done)

	s, events, err := progression.ClaimMission(s, "d1", testEnv())
	require.NoError(t, err)

	assert.Equal(t, int64(260), s.Counters.DailyXP, "study 100, multiplied payout 80, raw payout 80")
	assert.Equal(t, int64(260), s.Counters.WeeklyXP)
	assert.Equal(t, int64(180), s.TotalXP, "the payout is granted once")
	assert.True(t, s.Mission("d3").Done, "claimed XP can complete another mission of the period")

	var completed []string
	for _, ev := range events {
		if ev.Kind == domain.EventMissionCompleted {
			completed = append(completed, ev.MissionID)
		}
	}
	assert.Equal(t, []string{"d3"}, completed)
}

func TestResetMissions(t *testing.T) {
	s, _, err := progression.AddMinutes(fresh(), 20, testEnv())
	require.NoError(t, err)
	s, _, err = progression.ClaimMission(s, "d1", testEnv())
	require.NoError(t, err)

	s, _ = progression.ResetMissions(s, testEnv())

	assert.Zero(t, s.Counters.DailyMin)
	assert.Zero(t, s.Counters.WeeklyXP)
	assert.Equal(t, domain.DayKey(today), s.Counters.LastDaily)
	for _, m := range s.Missions {
		assert.False(t, m.Done, m.ID)
		assert.False(t, m.Claimed, m.ID)
	}
	assert.Equal(t, int64(20), s.Minutes, "lifetime minutes survive a mission reset")
}
