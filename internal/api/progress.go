package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/studyaddict/studyaddict/internal/app/progression"
	"github.com/studyaddict/studyaddict/internal/domain"
	"github.com/studyaddict/studyaddict/internal/infra/metrics"
)

// ─── Views ──────────────────────────────────────────────────────────────────

// ProgressView is the rendered progression of one session.
type ProgressView struct {
	Session  string       `json:"session"`
	Guest    bool         `json:"guest"`
	Progress float64      `json:"progressPct"`
	State    domain.State `json:"state"`
}

func progressView(session domain.Session, st domain.State) ProgressView {
	return ProgressView{
		Session:  session.Key,
		Guest:    !session.Authenticated(),
		Progress: progression.ProgressPct(st),
		State:    st,
	}
}

type studyRequest struct {
	Minutes int64 `json:"minutes"`
}

type resetRequest struct {
	Confirm bool `json:"confirm"`
}

// engine returns the caller's session engine, starting it on first use.
func (s *Server) engine(r *http.Request) (*progression.Engine, domain.Session) {
	session, _ := SessionFrom(r.Context())
	return s.opts.Registry.Get(r.Context(), session), session
}

// mutate runs op and writes the resulting progress or the mapped error.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, op func(*progression.Engine) (domain.State, error)) {
	eng, session := s.engine(r)
	st, err := op(eng)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progressView(session, st))
}

// ─── Handlers ───────────────────────────────────────────────────────────────

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	eng, session := s.engine(r)
	writeJSON(w, http.StatusOK, progressView(session, eng.Snapshot()))
}

func (s *Server) handleStudy(w http.ResponseWriter, r *http.Request) {
	var req studyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	s.mutate(w, r, func(e *progression.Engine) (domain.State, error) {
		st, err := e.AddMinutes(req.Minutes)
		if err == nil {
			metrics.StudyMinutes.Add(float64(req.Minutes))
		}
		return st, err
	})
}

func (s *Server) handleMissions(w http.ResponseWriter, r *http.Request) {
	eng, _ := s.engine(r)
	writeJSON(w, http.StatusOK, map[string]any{"missions": eng.MissionProgress()})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mutate(w, r, func(e *progression.Engine) (domain.State, error) {
		return e.ClaimMission(id)
	})
}

func (s *Server) handleResetMissions(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, (*progression.Engine).ResetMissions)
}

func (s *Server) handleBadges(w http.ResponseWriter, r *http.Request) {
	eng, _ := s.engine(r)
	writeJSON(w, http.StatusOK, map[string]any{"badges": eng.Badges()})
}

func (s *Server) handleRewards(w http.ResponseWriter, r *http.Request) {
	eng, _ := s.engine(r)
	writeJSON(w, http.StatusOK, map[string]any{"xp": eng.Snapshot().XP, "rewards": eng.Rewards()})
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mutate(w, r, func(e *progression.Engine) (domain.State, error) {
		return e.BuyReward(id)
	})
}

func (s *Server) handlePrestige(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, (*progression.Engine).TryPrestige)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	s.mutate(w, r, func(e *progression.Engine) (domain.State, error) {
		return e.HardReset(req.Confirm)
	})
}

// ─── Sync ───────────────────────────────────────────────────────────────────

func (s *Server) handleSyncSave(w http.ResponseWriter, r *http.Request) {
	eng, session := s.engine(r)
	if err := eng.SaveState(r.Context()); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, syncResult(session))
}

func (s *Server) handleSyncLoad(w http.ResponseWriter, r *http.Request) {
	eng, session := s.engine(r)
	if err := eng.LoadState(r.Context()); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progressView(session, eng.Snapshot()))
}

func syncResult(session domain.Session) map[string]string {
	status := domain.SyncOK
	if !session.Authenticated() {
		status = domain.SyncGuest
	}
	return map[string]string{"session": session.Key, "status": string(status)}
}

func (s *Server) handleSyncStats(w http.ResponseWriter, r *http.Request) {
	if s.opts.SyncStats == nil {
		writeError(w, http.StatusNotFound, "sync queue not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.opts.SyncStats())
}

// ─── Event Log ──────────────────────────────────────────────────────────────

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxEventLimit)
	}

	session, _ := SessionFrom(r.Context())
	evs, err := s.opts.Events.RecentEvents(session.Key, limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if evs == nil {
		evs = []domain.Event{}
	}
	counts, err := s.opts.Events.EventCount(session.Key)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evs, "counts": counts})
}
