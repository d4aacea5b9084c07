package domain

import "time"

// EventKind categorizes outbound progression events.
type EventKind string

const (
	EventLevelUp           EventKind = "level_up"
	EventXPGained          EventKind = "xp_gained"
	EventStreakIncremented EventKind = "streak_incremented"
	EventBadgeUnlocked     EventKind = "badge_unlocked"
	EventMissionCompleted  EventKind = "mission_completed"
	EventMissionClaimed    EventKind = "mission_claimed"
	EventRewardPurchased   EventKind = "reward_purchased"
	EventPrestige          EventKind = "prestige"
	EventReset             EventKind = "reset"
	EventSyncStatus        EventKind = "sync_status"
)

// SyncStatus is the state reported by a sync_status event.
type SyncStatus string

const (
	SyncOK    SyncStatus = "ok"
	SyncGuest SyncStatus = "guest"
	SyncError SyncStatus = "error"
)

// Event is emitted to presentation collaborators. Only the fields relevant
// to Kind are set.
type Event struct {
	ID      string    `json:"id"`
	Kind    EventKind `json:"kind"`
	Session string    `json:"session,omitempty"`
	At      time.Time `json:"at"`

	Level      int        `json:"level,omitempty"`
	XPNeeded   int64      `json:"xp_needed,omitempty"`
	Amount     int64      `json:"amount,omitempty"` // XP gained or mission payout
	Streak     int        `json:"streak,omitempty"`
	Prestige   int        `json:"prestige,omitempty"`
	Multiplier float64    `json:"multiplier,omitempty"`
	BadgeID    string     `json:"badge_id,omitempty"`
	MissionID  string     `json:"mission_id,omitempty"`
	RewardID   string     `json:"reward_id,omitempty"`
	Status     SyncStatus `json:"status,omitempty"`
	Error      string     `json:"error,omitempty"`
}
