package events_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/studyaddict/studyaddict/internal/app/events"
	"github.com/studyaddict/studyaddict/internal/domain"
)

func TestBus_FanOutInOrder(t *testing.T) {
	bus := events.NewBus(nil)
	var got []string
	bus.Subscribe("first", func(ev domain.Event) { got = append(got, "first:"+string(ev.Kind)) })
	bus.Subscribe("second", func(ev domain.Event) { got = append(got, "second:"+string(ev.Kind)) })

	bus.Emit(domain.Event{Kind: domain.EventLevelUp})

	assert.Equal(t, []string{"first:level_up", "second:level_up"}, got)
	assert.Equal(t, []string{"first", "second"}, bus.Subscribers())
}

func TestBus_KindFilter(t *testing.T) {
	bus := events.NewBus(nil)
	var badges []string
	bus.Subscribe("badges", func(ev domain.Event) { badges = append(badges, ev.BadgeID) }, domain.EventBadgeUnlocked)

	bus.Emit(domain.Event{Kind: domain.EventLevelUp})
	bus.Emit(domain.Event{Kind: domain.EventBadgeUnlocked, BadgeID: "L5"})

	assert.Equal(t, []string{"L5"}, badges)
}

func TestBus_PanickingHandlerIsolated(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	bus := events.NewBus(zap.New(core))

	delivered := false
	bus.Subscribe("broken", func(domain.Event) { panic("boom") })
	bus.Subscribe("ok", func(domain.Event) { delivered = true })

	assert.NotPanics(t, func() { bus.Emit(domain.Event{Kind: domain.EventReset}) })
	assert.True(t, delivered)
	assert.Equal(t, 1, logs.FilterMessage("event handler panicked").Len())
}

func TestLogHandler_SyncErrorsAtWarn(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := events.LogHandler(zap.New(core))

	h(domain.Event{Kind: domain.EventSyncStatus, Status: domain.SyncError, Error: "timeout"})
	h(domain.Event{Kind: domain.EventBadgeUnlocked, BadgeID: "T10"})

	entries := logs.All()
	assert.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "timeout", entries[0].ContextMap()["error"])
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
	assert.Equal(t, "T10", entries[1].ContextMap()["badge"])
}
