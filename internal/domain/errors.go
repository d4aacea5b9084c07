package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency. None of them is
// fatal: the state is left unchanged when one is returned.

var (
	// Identity
	ErrLoginRequired = errors.New("login required")

	// Leveling
	ErrInvalidMinutes = errors.New("study minutes out of range")
	ErrPrestigeLocked = errors.New("prestige level not reached")

	// Missions
	ErrMissionNotFound       = errors.New("mission not found")
	ErrMissionNotDone        = errors.New("mission not completed")
	ErrMissionAlreadyClaimed = errors.New("mission already claimed")

	// Rewards
	ErrRewardNotFound = errors.New("reward not found")
	ErrInsufficientXP = errors.New("not enough XP")
	ErrRewardOwned    = errors.New("reward already unlocked")

	// Reset
	ErrResetNotConfirmed = errors.New("hard reset requires confirmation")

	// Sync
	ErrDocumentNotFound = errors.New("progress document not found")
)
