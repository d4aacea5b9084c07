package natsbus_test

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyaddict/studyaddict/internal/domain"
	"github.com/studyaddict/studyaddict/internal/infra/natsbus"
)

func TestSubject(t *testing.T) {
	tests := []struct {
		name string
		ev   domain.Event
		want string
	}{
		{"user", domain.Event{Session: "user:u1", Kind: domain.EventLevelUp}, "sa.user:u1.level_up"},
		{"dots escaped", domain.Event{Session: "user:a.b", Kind: domain.EventReset}, "sa.user:a_b.reset"},
		{"wildcards escaped", domain.Event{Session: "guest:*>", Kind: domain.EventPrestige}, "sa.guest:__.prestige"},
		{"no session", domain.Event{Kind: domain.EventSyncStatus}, "sa._.sync_status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, natsbus.Subject("sa", tt.ev))
		})
	}
}

// TestPublisher_Live runs against a real server when STUDYADDICT_NATS_URL is set.
func TestPublisher_Live(t *testing.T) {
	url := os.Getenv("STUDYADDICT_NATS_URL")
	if url == "" {
		t.Skip("STUDYADDICT_NATS_URL not set")
	}
	cfg := natsbus.DefaultConfig()
	cfg.URL = url
	cfg.SubjectPrefix = "studyaddict.test"

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	defer sub.Close()
	msgs := make(chan *nats.Msg, 1)
	s, err := sub.ChanSubscribe("studyaddict.test.>", msgs)
	require.NoError(t, err)
	defer s.Unsubscribe()
	require.NoError(t, sub.Flush())

	pub, err := natsbus.Connect(cfg, nil)
	require.NoError(t, err)
	defer pub.Close()

	pub.Handle(domain.Event{ID: "e1", Session: "user:u1", Kind: domain.EventBadgeUnlocked, BadgeID: "T10"})

	select {
	case m := <-msgs:
		assert.Equal(t, "studyaddict.test.user:u1.badge_unlocked", m.Subject)
		var ev domain.Event
		require.NoError(t, json.Unmarshal(m.Data, &ev))
		assert.Equal(t, "T10", ev.BadgeID)
	case <-time.After(3 * time.Second):
		t.Fatal("no message received")
	}
}
