// Package cloudsync persists progression state to a per-user remote
// document with field-level merge semantics, and restores it at session
// start with per-field fallback to the in-memory state.
package cloudsync

import (
	"time"

	"github.com/studyaddict/studyaddict/internal/domain"
)

// Document is the remote representation of a State. Every field is
// optional: a nil field was never written (older clients, partial writes)
// and is left untouched by a merge and ignored by a load.
type Document struct {
	XP           *int64  `json:"xp,omitempty"`
	TotalXP      *int64  `json:"totalXP,omitempty"`
	XPBase       *int64  `json:"xpBase,omitempty"`
	LevelXP      *int64  `json:"levelXP,omitempty"`
	Level        *int    `json:"level,omitempty"`
	XPNeeded     *int64  `json:"xpNeeded,omitempty"`
	Minutes      *int64  `json:"minutes,omitempty"`
	Streak       *int    `json:"streak,omitempty"`
	LastStudyDay *string `json:"lastStudyDay,omitempty"`
	Prestige     *int    `json:"prestige,omitempty"`

	BadgesUnlocked map[string]bool         `json:"badgesUnlocked,omitzero"`
	MissionLocal   *Counters               `json:"missionLocal,omitempty"`
	Rewards        []domain.Reward         `json:"rewards,omitzero"`
	MissionFlags   map[string]MissionFlags `json:"missionFlags,omitzero"`
	UpdatedAt      *time.Time              `json:"updatedAt,omitempty"`
}

// Counters is the remote form of domain.Counters. Each counter merges on
// its own, so a partial missionLocal keeps the local values it lacks.
type Counters struct {
	DailyMin   *int64  `json:"dailyMin,omitempty"`
	DailyXP    *int64  `json:"dailyXP,omitempty"`
	LastDaily  *string `json:"lastDaily,omitempty"`
	WeeklyMin  *int64  `json:"weeklyMin,omitempty"`
	WeeklyXP   *int64  `json:"weeklyXP,omitempty"`
	LastWeekly *string `json:"lastWeekly,omitempty"`
}

func countersFrom(c domain.Counters) *Counters {
	return &Counters{
		DailyMin:   ptr(c.DailyMin),
		DailyXP:    ptr(c.DailyXP),
		LastDaily:  ptr(c.LastDaily),
		WeeklyMin:  ptr(c.WeeklyMin),
		WeeklyXP:   ptr(c.WeeklyXP),
		LastWeekly: ptr(c.LastWeekly),
	}
}

// applyTo merges c over local counter by counter.
func (c *Counters) applyTo(local domain.Counters) domain.Counters {
	if c == nil {
		return local
	}
	return domain.Counters{
		DailyMin:   merge(c.DailyMin, local.DailyMin),
		DailyXP:    merge(c.DailyXP, local.DailyXP),
		LastDaily:  merge(c.LastDaily, local.LastDaily),
		WeeklyMin:  merge(c.WeeklyMin, local.WeeklyMin),
		WeeklyXP:   merge(c.WeeklyXP, local.WeeklyXP),
		LastWeekly: merge(c.LastWeekly, local.LastWeekly),
	}
}

// MissionFlags is the persisted completion state of one mission.
type MissionFlags struct {
	Done    bool `json:"done"`
	Claimed bool `json:"claimed"`
}

func ptr[T any](v T) *T { return &v }

// FromState builds a full snapshot document of st stamped with now.
func FromState(st domain.State, now time.Time) Document {
	badges := make(map[string]bool, len(st.BadgesUnlocked))
	for id, ok := range st.BadgesUnlocked {
		if ok {
			badges[id] = true
		}
	}
	flags := make(map[string]MissionFlags, len(st.Missions))
	for _, m := range st.Missions {
		flags[m.ID] = MissionFlags{Done: m.Done, Claimed: m.Claimed}
	}
	rewards := append([]domain.Reward{}, st.Rewards...)

	return Document{
		XP:             ptr(st.XP),
		TotalXP:        ptr(st.TotalXP),
		XPBase:         ptr(st.XPBase),
		LevelXP:        ptr(st.LevelXP),
		Level:          ptr(st.Level),
		XPNeeded:       ptr(st.XPNeeded),
		Minutes:        ptr(st.Minutes),
		Streak:         ptr(st.Streak),
		LastStudyDay:   ptr(st.LastStudyDay),
		Prestige:       ptr(st.Prestige),
		BadgesUnlocked: badges,
		MissionLocal:   countersFrom(st.Counters),
		Rewards:        rewards,
		MissionFlags:   flags,
		UpdatedAt:      ptr(now.UTC()),
	}
}

// merge returns the remote value when present, the local one otherwise.
func merge[T any](remote *T, local T) T {
	if remote == nil {
		return local
	}
	return *remote
}

// ApplyTo merges d over local field by field and returns the result.
// Rewards and mission flags are matched by ID onto local definitions;
// remote entries without a local definition are ignored. Derived fields
// (multiplier, LevelXP) are left for the engine to recompute.
func (d Document) ApplyTo(local domain.State) domain.State {
	out := local.Clone()

	out.XP = merge(d.XP, out.XP)
	out.TotalXP = merge(d.TotalXP, out.TotalXP)
	out.XPBase = merge(d.XPBase, out.XPBase)
	out.LevelXP = merge(d.LevelXP, out.LevelXP)
	out.Level = merge(d.Level, out.Level)
	out.XPNeeded = merge(d.XPNeeded, out.XPNeeded)
	out.Minutes = merge(d.Minutes, out.Minutes)
	out.Streak = merge(d.Streak, out.Streak)
	out.LastStudyDay = merge(d.LastStudyDay, out.LastStudyDay)
	out.Prestige = merge(d.Prestige, out.Prestige)
	out.Counters = d.MissionLocal.applyTo(out.Counters)

	if d.BadgesUnlocked != nil {
		out.BadgesUnlocked = make(map[string]bool, len(d.BadgesUnlocked))
		for id, ok := range d.BadgesUnlocked {
			if ok {
				out.BadgesUnlocked[id] = true
			}
		}
	}

	if d.Rewards != nil {
		remote := make(map[string]domain.Reward, len(d.Rewards))
		for _, r := range d.Rewards {
			remote[r.ID] = r
		}
		for i := range out.Rewards {
			r, ok := remote[out.Rewards[i].ID]
			if !ok {
				continue
			}
			out.Rewards[i].Uses = r.Uses
			out.Rewards[i].Active = r.Active
			out.Rewards[i].Unlocked = r.Unlocked
		}
	}

	if d.MissionFlags != nil {
		for i := range out.Missions {
			if f, ok := d.MissionFlags[out.Missions[i].ID]; ok {
				out.Missions[i].Done = f.Done
				out.Missions[i].Claimed = f.Claimed && f.Done
			}
		}
	}

	return out
}
