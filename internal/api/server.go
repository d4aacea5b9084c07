// Package api provides the HTTP server for Study Addict: the progression
// operations of one session per caller, the event log, a live event stream,
// health and metrics.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/studyaddict/studyaddict/internal/app/cloudsync"
	"github.com/studyaddict/studyaddict/internal/app/progression"
	"github.com/studyaddict/studyaddict/internal/domain"
	"github.com/studyaddict/studyaddict/internal/health"
	"github.com/studyaddict/studyaddict/internal/infra/metrics"
)

// EventLog reads the persisted event history of a session.
type EventLog interface {
	RecentEvents(session string, limit int) ([]domain.Event, error)
	EventCount(session string) (map[domain.EventKind]int, error)
}

// Options wires a Server. Only Registry is required.
type Options struct {
	Registry    *progression.Registry
	Events      EventLog        // nil disables GET /api/events
	Health      *health.Checker // nil reports only liveness
	Hub         *Hub            // nil disables the websocket stream
	SyncStats   func() cloudsync.QueueStats
	JWTSecret   string // empty rejects every bearer token
	CORSOrigins []string
	Metrics     bool
	Logger      *zap.Logger
}

// Server is the Study Addict HTTP API server.
type Server struct {
	opts Options
	log  *zap.Logger
}

// NewServer creates a new API server.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &Server{opts: opts, log: opts.Logger}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", SessionHeader},
		ExposedHeaders:   []string{SessionHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	if s.opts.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.identity)

		// The stream stays open; only the request handlers get a timeout.
		if s.opts.Hub != nil {
			r.Get("/events/ws", s.handleStream)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Get("/progress", s.handleProgress)
			r.Post("/study", s.handleStudy)
			r.Get("/missions", s.handleMissions)
			r.Post("/missions/{id}/claim", s.handleClaim)
			r.Post("/missions/reset", s.handleResetMissions)
			r.Get("/badges", s.handleBadges)
			r.Get("/rewards", s.handleRewards)
			r.Post("/rewards/{id}/buy", s.handleBuy)
			r.Post("/prestige", s.handlePrestige)
			r.Post("/reset", s.handleReset)
			r.Post("/sync/save", s.handleSyncSave)
			r.Post("/sync/load", s.handleSyncLoad)
			r.Get("/sync/stats", s.handleSyncStats)
			if s.opts.Events != nil {
				r.Get("/events", s.handleEvents)
			}
		})
	})

	return r
}

// ─── Health ─────────────────────────────────────────────────────────────────

type healthResponse struct {
	Status   string          `json:"status"`
	Sessions int             `json:"sessions"`
	Checks   []health.Status `json:"checks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Sessions: s.opts.Registry.Len()}
	status := http.StatusOK
	if s.opts.Health != nil {
		resp.Checks = s.opts.Health.Statuses()
		if !s.opts.Health.IsHealthy() {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// instrument records request latency per route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		metrics.HTTPRequestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(code)).
			Observe(time.Since(start).Seconds())
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errorType(status),
		},
	})
}

func errorType(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusBadRequest:
		return "invalid_request"
	default:
		return "error"
	}
}

// statusFor maps a domain error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrLoginRequired):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrInvalidMinutes):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrMissionNotFound),
		errors.Is(err, domain.ErrRewardNotFound),
		errors.Is(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPrestigeLocked),
		errors.Is(err, domain.ErrMissionNotDone),
		errors.Is(err, domain.ErrMissionAlreadyClaimed),
		errors.Is(err, domain.ErrInsufficientXP),
		errors.Is(err, domain.ErrRewardOwned),
		errors.Is(err, domain.ErrResetNotConfirmed):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

// writeDomainError writes err with the status its sentinel maps to.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusBadGateway {
		s.log.Warn("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
	}
	writeError(w, status, err.Error())
}
