// Package events fans progression events out to their consumers: the log,
// metrics, the local event log, live websocket clients and NATS.
package events

import (
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/studyaddict/studyaddict/internal/domain"
)

// Handler consumes one event. Handlers run on the emitting goroutine and
// must return quickly.
type Handler func(ev domain.Event)

type subscriber struct {
	name  string
	kinds []domain.EventKind // empty means all
	fn    Handler
}

func (s subscriber) wants(k domain.EventKind) bool {
	return len(s.kinds) == 0 || slices.Contains(s.kinds, k)
}

// Bus delivers every emitted event to every matching subscriber, in
// subscription order. A panicking handler is logged and skipped.
type Bus struct {
	log *zap.Logger

	mu   sync.RWMutex
	subs []subscriber
}

// NewBus creates a bus with no subscribers.
func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{log: log}
}

// Subscribe registers fn for the given kinds, or for all kinds when none
// are given.
func (b *Bus) Subscribe(name string, fn Handler, kinds ...domain.EventKind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscriber{name: name, kinds: kinds, fn: fn})
}

// Subscribers returns subscriber names in delivery order.
func (b *Bus) Subscribers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.subs))
	for _, s := range b.subs {
		names = append(names, s.name)
	}
	return names
}

// Emit delivers ev. It satisfies progression.Emitter.
func (b *Bus) Emit(ev domain.Event) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, s := range subs {
		if s.wants(ev.Kind) {
			b.deliver(s, ev)
		}
	}
}

func (b *Bus) deliver(s subscriber, ev domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked",
				zap.String("subscriber", s.name),
				zap.String("kind", string(ev.Kind)),
				zap.Any("panic", r))
		}
	}()
	s.fn(ev)
}

// LogHandler writes events to log: sync errors at warn, the rest at debug.
func LogHandler(log *zap.Logger) Handler {
	return func(ev domain.Event) {
		fields := []zap.Field{
			zap.String("kind", string(ev.Kind)),
			zap.String("session", ev.Session),
		}
		switch ev.Kind {
		case domain.EventLevelUp:
			fields = append(fields, zap.Int("level", ev.Level), zap.Int64("xp_needed", ev.XPNeeded))
		case domain.EventBadgeUnlocked:
			fields = append(fields, zap.String("badge", ev.BadgeID))
		case domain.EventMissionClaimed, domain.EventMissionCompleted:
			fields = append(fields, zap.String("mission", ev.MissionID), zap.Int64("payout", ev.Amount))
		case domain.EventRewardPurchased:
			fields = append(fields, zap.String("reward", ev.RewardID), zap.Int64("cost", ev.Amount))
		case domain.EventStreakIncremented:
			fields = append(fields, zap.Int("streak", ev.Streak))
		case domain.EventPrestige:
			fields = append(fields, zap.Int("prestige", ev.Prestige), zap.Float64("multiplier", ev.Multiplier))
		case domain.EventXPGained:
			fields = append(fields, zap.Int64("gain", ev.Amount))
		case domain.EventSyncStatus:
			fields = append(fields, zap.String("status", string(ev.Status)))
			if ev.Status == domain.SyncError {
				log.Warn("sync", append(fields, zap.String("error", ev.Error))...)
				return
			}
		}
		log.Debug("event", fields...)
	}
}
