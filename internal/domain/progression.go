// Package domain holds the progression data model shared by the engine,
// the sync layer and the storage adapters. Types here are plain data: no
// infrastructure dependency, no hidden global state.
package domain

import "maps"

// ─── Progression State ──────────────────────────────────────────────────────

// State is the full mutable record of a learner's progress.
// LevelXP is always XP − XPBase and stays in [0, XPNeeded) between operations.
type State struct {
	XP           int64   `json:"xp"`
	TotalXP      int64   `json:"totalXP"`
	XPBase       int64   `json:"xpBase"`
	LevelXP      int64   `json:"levelXP"`
	Level        int     `json:"level"`
	XPNeeded     int64   `json:"xpNeeded"`
	Minutes      int64   `json:"minutes"`
	Streak       int     `json:"streak"`
	LastStudyDay string  `json:"lastStudyDay"` // "" until the first study day
	Prestige     int     `json:"prestige"`
	XPMultiplier float64 `json:"xpMultiplier"`

	BadgesUnlocked map[string]bool `json:"badgesUnlocked"`
	Counters       Counters        `json:"missionLocal"`
	Rewards        []Reward        `json:"rewards"`
	Missions       []Mission       `json:"missions"`
}

// Clone returns a deep copy so transitions never alias the caller's maps or slices.
func (s State) Clone() State {
	out := s
	out.BadgesUnlocked = maps.Clone(s.BadgesUnlocked)
	if out.BadgesUnlocked == nil {
		out.BadgesUnlocked = make(map[string]bool)
	}
	out.Rewards = append([]Reward(nil), s.Rewards...)
	out.Missions = append([]Mission(nil), s.Missions...)
	return out
}

// Reward returns a pointer to the reward with the given ID, or nil.
func (s *State) Reward(id string) *Reward {
	for i := range s.Rewards {
		if s.Rewards[i].ID == id {
			return &s.Rewards[i]
		}
	}
	return nil
}

// Mission returns a pointer to the mission with the given ID, or nil.
func (s *State) Mission(id string) *Mission {
	for i := range s.Missions {
		if s.Missions[i].ID == id {
			return &s.Missions[i]
		}
	}
	return nil
}

// Counters are the rolling mission accumulators, reset at period boundaries.
type Counters struct {
	DailyMin   int64  `json:"dailyMin"`
	DailyXP    int64  `json:"dailyXP"`
	LastDaily  string `json:"lastDaily"`
	WeeklyMin  int64  `json:"weeklyMin"`
	WeeklyXP   int64  `json:"weeklyXP"`
	LastWeekly string `json:"lastWeekly"`
}

// ─── Rewards ────────────────────────────────────────────────────────────────

// RewardKind decides what a purchase does to a reward.
type RewardKind string

const (
	RewardConsumable RewardKind = "consumable" // rebuyable, counts Uses
	RewardSession    RewardKind = "session"    // Active until the session ends
	RewardPermanent  RewardKind = "permanent"
	RewardBadge      RewardKind = "badge" // grants GrantsBadge on purchase
)

// Reward is a shop item bought with current XP.
type Reward struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Cost        int64      `json:"cost"`
	Kind        RewardKind `json:"type"`
	Uses        int        `json:"uses,omitempty"`
	Active      bool       `json:"active,omitempty"`
	Unlocked    bool       `json:"unlocked"`
	GrantsBadge string     `json:"grantsBadge,omitempty"`
}

// ─── Missions ───────────────────────────────────────────────────────────────

// MissionScope is the rollover period of a mission.
type MissionScope string

const (
	ScopeDaily  MissionScope = "daily"
	ScopeWeekly MissionScope = "weekly"
)

// Quantity is what a mission measures.
type Quantity string

const (
	QuantityMinutes Quantity = "minutes"
	QuantityXP      Quantity = "xp"
	QuantityStreak  Quantity = "streak"
)

// Mission is a time-boxed objective. Claimed implies Done.
type Mission struct {
	ID       string       `json:"id"`
	Title    string       `json:"title"`
	Scope    MissionScope `json:"scope"`
	Quantity Quantity     `json:"quantity"`
	Need     int64        `json:"need"`
	Payout   int64        `json:"xp"`
	Done     bool         `json:"done"`
	Claimed  bool         `json:"claimed"`
}

// MissionProgress is the rendered progress of one mission.
type MissionProgress struct {
	Mission Mission `json:"mission"`
	Value   int64   `json:"value"`
	Percent int     `json:"percent"` // 0-100
}

// ─── Badges ─────────────────────────────────────────────────────────────────

// ConditionKind tags a badge unlock predicate.
type ConditionKind string

const (
	CondLevelAtLeast      ConditionKind = "level_at_least"
	CondPrestigeAtLeast   ConditionKind = "prestige_at_least"
	CondMinutesAtLeast    ConditionKind = "minutes_at_least"
	CondStreakAtLeast     ConditionKind = "streak_at_least"
	CondTotalXPAtLeast    ConditionKind = "total_xp_at_least"
	CondGranted           ConditionKind = "granted"
	CondAllOthersUnlocked ConditionKind = "all_others_unlocked"
)

// Condition is a serializable unlock predicate evaluated by the badge evaluator.
type Condition struct {
	Kind      ConditionKind `json:"kind"`
	Threshold int64         `json:"threshold,omitempty"`
}

// LevelAtLeast and friends build the stat conditions.
func LevelAtLeast(n int64) Condition    { return Condition{Kind: CondLevelAtLeast, Threshold: n} }
func PrestigeAtLeast(n int64) Condition { return Condition{Kind: CondPrestigeAtLeast, Threshold: n} }
func MinutesAtLeast(n int64) Condition  { return Condition{Kind: CondMinutesAtLeast, Threshold: n} }
func StreakAtLeast(n int64) Condition   { return Condition{Kind: CondStreakAtLeast, Threshold: n} }
func TotalXPAtLeast(n int64) Condition  { return Condition{Kind: CondTotalXPAtLeast, Threshold: n} }

// Granted marks a badge that only a reward purchase can unlock.
func Granted() Condition { return Condition{Kind: CondGranted} }

// AllOthersUnlocked is the aggregate condition over every stat badge.
func AllOthersUnlocked() Condition { return Condition{Kind: CondAllOthersUnlocked} }

// Badge is an achievement definition. Its unlocked flag lives in State.BadgesUnlocked.
type Badge struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"desc"`
	Icon        string    `json:"icon"`
	Condition   Condition `json:"condition"`
}

// BadgeStatus pairs a definition with its unlock flag for display.
type BadgeStatus struct {
	Badge    Badge `json:"badge"`
	Unlocked bool  `json:"unlocked"`
}

// ─── Sessions ───────────────────────────────────────────────────────────────

// Session identifies the actor an engine serves. Guests have no UserID and
// never write to the remote store.
type Session struct {
	Key    string `json:"key"`
	UserID string `json:"user_id,omitempty"`
}

// Authenticated reports whether the session belongs to a signed-in user.
func (s Session) Authenticated() bool { return s.UserID != "" }

// GuestSession returns a session for an anonymous client.
func GuestSession(id string) Session { return Session{Key: "guest:" + id} }

// UserSession returns a session bound to a remote document.
func UserSession(userID string) Session { return Session{Key: "user:" + userID, UserID: userID} }
