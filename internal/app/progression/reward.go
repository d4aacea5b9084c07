package progression

import (
	"fmt"

	"github.com/studyaddict/studyaddict/internal/domain"
)

// DefaultRewards returns the shipped shop catalog with nothing owned.
func DefaultRewards() []domain.Reward {
	return []domain.Reward{
		{ID: "r1", Name: "1 Hour Break Pass", Cost: 300, Kind: domain.RewardConsumable},
		{ID: "r2", Name: "Double XP (1 Session)", Cost: 500, Kind: domain.RewardSession},
		{ID: "r3", Name: "Skip Mission", Cost: 700, Kind: domain.RewardConsumable},
		{ID: "r4", Name: "Epic Theme Color", Cost: 1000, Kind: domain.RewardPermanent},
		{ID: "r5", Name: "Legendary Badge", Cost: 2000, Kind: domain.RewardBadge, GrantsBadge: LegendBadgeID},
	}
}

// BuyReward spends current XP on a reward. Owned permanent and badge rewards,
// and session rewards already active, cannot be bought again.
func BuyReward(s domain.State, id string, env Env) (domain.State, []domain.Event, error) {
	t := begin(s, env)
	t.checkMissionResets()

	r := t.s.Reward(id)
	if r == nil {
		return s, nil, fmt.Errorf("buy %q: %w", id, domain.ErrRewardNotFound)
	}
	switch r.Kind {
	case domain.RewardPermanent, domain.RewardBadge:
		if r.Unlocked {
			return s, nil, fmt.Errorf("buy %q: %w", id, domain.ErrRewardOwned)
		}
	case domain.RewardSession:
		if r.Active {
			return s, nil, fmt.Errorf("buy %q: %w", id, domain.ErrRewardOwned)
		}
	}
	if t.s.XP < r.Cost {
		return s, nil, fmt.Errorf("buy %q: costs %d XP, have %d: %w", id, r.Cost, t.s.XP, domain.ErrInsufficientXP)
	}

	cost, grants := r.Cost, ""
	r.Unlocked = true
	switch r.Kind {
	case domain.RewardConsumable:
		r.Uses++
	case domain.RewardSession:
		r.Active = true
	case domain.RewardBadge:
		grants = r.GrantsBadge
	}
	t.spend(cost)
	t.emit(domain.Event{Kind: domain.EventRewardPurchased, RewardID: id, Amount: cost})

	t.grantBadge(grants)
	t.checkBadges()

	next, events := t.finish()
	return next, events, nil
}

// spend removes cost from current XP. Consumed level thresholds absorb the
// cost first, so LevelXP only drops once XPBase is exhausted.
func (t *step) spend(cost int64) {
	t.s.XP -= cost
	t.s.XPBase -= min(cost, t.s.XPBase)
	t.s.LevelXP = t.s.XP - t.s.XPBase
}

// DeactivateSessionRewards ends every active session reward.
// It runs when a session starts.
func DeactivateSessionRewards(s domain.State) domain.State {
	out := s.Clone()
	for i := range out.Rewards {
		if out.Rewards[i].Kind == domain.RewardSession {
			out.Rewards[i].Active = false
		}
	}
	return out
}

// HardReset returns the state to its initial values while keeping the
// reward and mission definitions.
func HardReset(s domain.State, env Env) (domain.State, []domain.Event) {
	t := begin(s, env)
	r := t.env.Rules

	rewards := t.s.Rewards
	missions := t.s.Missions
	t.s = domain.State{
		Level:          1,
		XPNeeded:       r.BaseXPNeeded,
		XPMultiplier:   r.Multiplier(0),
		BadgesUnlocked: make(map[string]bool),
		Rewards:        rewards,
		Missions:       missions,
	}
	for i := range t.s.Rewards {
		t.s.Rewards[i].Unlocked = false
		t.s.Rewards[i].Active = false
		t.s.Rewards[i].Uses = 0
	}
	for i := range t.s.Missions {
		t.s.Missions[i].Done = false
		t.s.Missions[i].Claimed = false
	}
	t.checkMissionResets()

	t.emit(domain.Event{Kind: domain.EventReset})
	return t.finish()
}
