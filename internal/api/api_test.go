package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyaddict/studyaddict/internal/app/cloudsync"
	"github.com/studyaddict/studyaddict/internal/app/events"
	"github.com/studyaddict/studyaddict/internal/app/progression"
	"github.com/studyaddict/studyaddict/internal/domain"
	"github.com/studyaddict/studyaddict/internal/health"
	"github.com/studyaddict/studyaddict/internal/infra/sqlite"
)

const testSecret = "test-secret"

var testNow = time.Date(2026, 10, 14, 15, 0, 0, 0, time.UTC)

type testEnv struct {
	srv   *httptest.Server
	store *cloudsync.MemoryStore
	queue *cloudsync.Queue
	db    *sqlite.DB
	hub   *Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)

	clock := domain.ClockFunc(func() time.Time { return testNow })
	store := cloudsync.NewMemoryStore()
	queue := cloudsync.NewQueue(store, cloudsync.DefaultPolicy(), nil)
	svc := cloudsync.NewService(store, queue, clock, nil)

	hub := NewHub(nil)
	bus := events.NewBus(nil)
	bus.Subscribe("eventlog", func(ev domain.Event) { _ = db.AppendEvent(ev) })
	bus.Subscribe("stream", hub.Broadcast)

	reg := progression.NewRegistry(func(s domain.Session) *progression.Engine {
		return progression.NewEngine(progression.Config{
			Session: s,
			Clock:   clock,
			Sync:    svc,
			Local:   db,
			Emitter: bus,
		})
	}, nil)

	checker := health.NewChecker(0, nil, health.LocalStoreCheck(db.PingContext), health.RemoteStoreCheck(store.Ping))
	checker.RunOnce(context.Background())

	srv := NewServer(Options{
		Registry:  reg,
		Events:    db,
		Health:    checker,
		Hub:       hub,
		SyncStats: svc.Stats,
		JWTSecret: testSecret,
		Metrics:   true,
	})
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		ts.Close()
		hub.Close()
		queue.Close()
		db.Close()
	})
	return &testEnv{srv: ts, store: store, queue: queue, db: db, hub: hub}
}

// call performs a request. who is a guest session ID, a "Bearer ..." value,
// or empty.
func (e *testEnv) call(t *testing.T, method, path, who string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	switch {
	case strings.HasPrefix(who, "Bearer "):
		req.Header.Set("Authorization", who)
	case who != "":
		req.Header.Set(SessionHeader, who)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func bearer(t *testing.T, user string) string {
	t.Helper()
	tok, err := SignToken(testSecret, user, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

const guestID = "7f1c2d4e-8a9b-4c3d-9e2f-0a1b2c3d4e5f"

// ═══════════════════════════════════════════════════════════════════════════
// Health & Metrics
// ═══════════════════════════════════════════════════════════════════════════

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp := env.call(t, "GET", "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[healthResponse](t, resp)
	assert.Equal(t, "ok", body.Status)
	assert.Len(t, body.Checks, 2)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.call(t, "POST", "/api/study", guestID, studyRequest{Minutes: 10})

	resp := env.call(t, "GET", "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "studyaddict_http_request_duration_seconds")
	assert.Contains(t, buf.String(), "studyaddict_study_minutes_total")
}

// ═══════════════════════════════════════════════════════════════════════════
// Identity
// ═══════════════════════════════════════════════════════════════════════════

func TestIdentity_GuestIDGeneratedAndEchoed(t *testing.T) {
	env := newTestEnv(t)

	resp := env.call(t, "GET", "/api/progress", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	id := resp.Header.Get(SessionHeader)
	require.NotEmpty(t, id)

	view := decode[ProgressView](t, resp)
	assert.True(t, view.Guest)
	assert.Equal(t, "guest:"+id, view.Session)

	resp = env.call(t, "GET", "/api/progress", guestID, nil)
	assert.Equal(t, guestID, resp.Header.Get(SessionHeader))
}

func TestIdentity_BearerUser(t *testing.T) {
	env := newTestEnv(t)
	resp := env.call(t, "GET", "/api/progress", bearer(t, "u1"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	view := decode[ProgressView](t, resp)
	assert.False(t, view.Guest)
	assert.Equal(t, "user:u1", view.Session)
	assert.Empty(t, resp.Header.Get(SessionHeader))
}

func TestIdentity_BadTokenRejected(t *testing.T) {
	env := newTestEnv(t)

	resp := env.call(t, "GET", "/api/progress", "Bearer not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	forged, err := SignToken("other-secret", "u1", time.Hour)
	require.NoError(t, err)
	resp = env.call(t, "GET", "/api/progress", "Bearer "+forged, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	expired, err := SignToken(testSecret, "u1", -time.Minute)
	require.NoError(t, err)
	resp = env.call(t, "GET", "/api/progress", "Bearer "+expired, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestParseToken_NoSecret(t *testing.T) {
	tok, err := SignToken(testSecret, "u1", time.Hour)
	require.NoError(t, err)
	_, err = ParseToken(tok, "")
	assert.ErrorIs(t, err, errNoSecret)
}

// ═══════════════════════════════════════════════════════════════════════════
// Progression
// ═══════════════════════════════════════════════════════════════════════════

func TestStudy_GuestEarnsXP(t *testing.T) {
	env := newTestEnv(t)

	resp := env.call(t, "POST", "/api/study", guestID, studyRequest{Minutes: 20})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	view := decode[ProgressView](t, resp)
	assert.Equal(t, int64(40), view.State.XP)
	assert.Equal(t, int64(20), view.State.Minutes)
	assert.Equal(t, 1, view.State.Streak)
	assert.InDelta(t, 8.0, view.Progress, 0.001)
}

func TestStudy_InvalidInput(t *testing.T) {
	env := newTestEnv(t)

	resp := env.call(t, "POST", "/api/study", guestID, studyRequest{Minutes: 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.call(t, "POST", "/api/study", guestID, studyRequest{Minutes: 1 << 62})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, err := http.NewRequest("POST", env.srv.URL+"/api/study", strings.NewReader("{"))
	require.NoError(t, err)
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestMissions_ClaimOnce(t *testing.T) {
	env := newTestEnv(t)

	resp := env.call(t, "POST", "/api/missions/d1/claim", guestID, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "not done yet")

	env.call(t, "POST", "/api/study", guestID, studyRequest{Minutes: 20})

	missions := decode[struct {
		Missions []domain.MissionProgress `json:"missions"`
	}](t, env.call(t, "GET", "/api/missions", guestID, nil))
	require.NotEmpty(t, missions.Missions)
	assert.Equal(t, "d1", missions.Missions[0].Mission.ID)
	assert.True(t, missions.Missions[0].Mission.Done)
	assert.Equal(t, 100, missions.Missions[0].Percent)

	resp = env.call(t, "POST", "/api/missions/d1/claim", guestID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decode[ProgressView](t, resp)
	assert.Equal(t, int64(120), view.State.XP)

	resp = env.call(t, "POST", "/api/missions/d1/claim", guestID, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.call(t, "POST", "/api/missions/nope/claim", guestID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMissions_Reset(t *testing.T) {
	env := newTestEnv(t)
	env.call(t, "POST", "/api/study", guestID, studyRequest{Minutes: 20})

	resp := env.call(t, "POST", "/api/missions/reset", guestID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decode[ProgressView](t, resp)
	assert.Zero(t, view.State.Counters.DailyMin)
	assert.Equal(t, int64(40), view.State.XP, "mission reset keeps XP")
}

func TestRewards_GuestNeedsLogin(t *testing.T) {
	env := newTestEnv(t)

	resp := env.call(t, "POST", "/api/rewards/r1/buy", guestID, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.call(t, "POST", "/api/prestige", guestID, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRewards_Buy(t *testing.T) {
	env := newTestEnv(t)
	user := bearer(t, "u1")

	resp := env.call(t, "POST", "/api/rewards/r1/buy", user, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "insufficient XP")

	resp = env.call(t, "POST", "/api/rewards/zz/buy", user, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	env.call(t, "POST", "/api/study", user, studyRequest{Minutes: 600})
	before := decode[ProgressView](t, env.call(t, "GET", "/api/progress", user, nil)).State.XP

	resp = env.call(t, "POST", "/api/rewards/r4/buy", user, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decode[ProgressView](t, resp)
	assert.Equal(t, before-1000, view.State.XP)
	assert.True(t, view.State.Reward("r4").Unlocked)

	resp = env.call(t, "POST", "/api/rewards/r4/buy", user, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "permanent reward owned")

	rewards := decode[struct {
		XP      int64           `json:"xp"`
		Rewards []domain.Reward `json:"rewards"`
	}](t, env.call(t, "GET", "/api/rewards", user, nil))
	assert.Equal(t, view.State.XP, rewards.XP)
	assert.Len(t, rewards.Rewards, 5)
}

func TestPrestige_Locked(t *testing.T) {
	env := newTestEnv(t)
	resp := env.call(t, "POST", "/api/prestige", bearer(t, "u1"), nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestReset_NeedsConfirm(t *testing.T) {
	env := newTestEnv(t)
	env.call(t, "POST", "/api/study", guestID, studyRequest{Minutes: 20})

	resp := env.call(t, "POST", "/api/reset", guestID, resetRequest{Confirm: false})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.call(t, "POST", "/api/reset", guestID, resetRequest{Confirm: true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decode[ProgressView](t, resp)
	assert.Zero(t, view.State.XP)
	assert.Equal(t, 1, view.State.Level)
}

func TestBadges_List(t *testing.T) {
	env := newTestEnv(t)
	env.call(t, "POST", "/api/study", guestID, studyRequest{Minutes: 10})

	body := decode[struct {
		Badges []domain.BadgeStatus `json:"badges"`
	}](t, env.call(t, "GET", "/api/badges", guestID, nil))
	require.Len(t, body.Badges, 13)

	unlocked := map[string]bool{}
	for _, b := range body.Badges {
		unlocked[b.Badge.ID] = b.Unlocked
	}
	assert.True(t, unlocked["T10"])
	assert.False(t, unlocked["T60"])
}

// ═══════════════════════════════════════════════════════════════════════════
// Sync
// ═══════════════════════════════════════════════════════════════════════════

func TestSync_SaveAndLoad(t *testing.T) {
	env := newTestEnv(t)
	user := bearer(t, "u1")

	env.call(t, "POST", "/api/study", user, studyRequest{Minutes: 20})
	resp := env.call(t, "POST", "/api/sync/save", user, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[map[string]string](t, resp)["status"])

	doc, err := env.store.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, int64(40), *doc.XP)

	resp = env.call(t, "POST", "/api/sync/load", user, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(40), decode[ProgressView](t, resp).State.XP)

	require.NoError(t, env.queue.Flush(context.Background()))
	stats := decode[cloudsync.QueueStats](t, env.call(t, "GET", "/api/sync/stats", user, nil))
	assert.GreaterOrEqual(t, stats.Enqueued, uint64(1))
}

func TestSync_GuestIsLocal(t *testing.T) {
	env := newTestEnv(t)
	resp := env.call(t, "POST", "/api/sync/save", guestID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "guest", decode[map[string]string](t, resp)["status"])
}

// ═══════════════════════════════════════════════════════════════════════════
// Events
// ═══════════════════════════════════════════════════════════════════════════

func TestEvents_Log(t *testing.T) {
	env := newTestEnv(t)
	env.call(t, "POST", "/api/study", guestID, studyRequest{Minutes: 20})

	body := decode[struct {
		Events []domain.Event            `json:"events"`
		Counts map[domain.EventKind]int `json:"counts"`
	}](t, env.call(t, "GET", "/api/events?limit=100", guestID, nil))
	require.NotEmpty(t, body.Events)
	assert.Equal(t, 1, body.Counts[domain.EventXPGained])

	kinds := map[domain.EventKind]bool{}
	for _, ev := range body.Events {
		assert.Equal(t, "guest:"+guestID, ev.Session)
		kinds[ev.Kind] = true
	}
	assert.True(t, kinds[domain.EventXPGained])
	assert.True(t, kinds[domain.EventSyncStatus])

	resp := env.call(t, "GET", "/api/events?limit=-1", guestID, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEvents_Stream(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/events/ws?session_id=" + guestID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	// Another session's events are not delivered.
	env.call(t, "POST", "/api/study", "0b6c1f9e-3d2a-4b5c-8e7f-112233445566", studyRequest{Minutes: 5})
	env.call(t, "POST", "/api/study", guestID, studyRequest{Minutes: 5})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var ev domain.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "guest:"+guestID, ev.Session)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrLoginRequired, http.StatusUnauthorized},
		{domain.ErrInvalidMinutes, http.StatusBadRequest},
		{domain.ErrMissionNotFound, http.StatusNotFound},
		{domain.ErrRewardNotFound, http.StatusNotFound},
		{domain.ErrPrestigeLocked, http.StatusConflict},
		{domain.ErrMissionNotDone, http.StatusConflict},
		{domain.ErrMissionAlreadyClaimed, http.StatusConflict},
		{domain.ErrInsufficientXP, http.StatusConflict},
		{domain.ErrRewardOwned, http.StatusConflict},
		{domain.ErrResetNotConfirmed, http.StatusConflict},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
