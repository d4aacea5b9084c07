package progression

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studyaddict/studyaddict/internal/domain"
)

// ─── Collaborators ──────────────────────────────────────────────────────────

// Emitter receives the events of every applied operation, in order.
// Implementations must be safe for concurrent use and must not block.
type Emitter interface {
	Emit(ev domain.Event)
}

// Syncer persists state to the remote document of an authenticated session.
type Syncer interface {
	Save(ctx context.Context, session domain.Session, st domain.State) error
	// SaveAsync enqueues a save; done runs on completion, possibly on another goroutine.
	SaveAsync(session domain.Session, st domain.State, done func(error))
	// Load merges the remote document over local. A missing document yields
	// local unchanged after an initial save.
	Load(ctx context.Context, session domain.Session, local domain.State) (domain.State, error)
}

// LocalStore keeps per-session snapshots on the device.
type LocalStore interface {
	LoadSnapshot(key string) (*domain.State, error)
	SaveSnapshot(key string, st domain.State) error
}

// ─── Engine ─────────────────────────────────────────────────────────────────

// Config wires an Engine. Only Session is required.
type Config struct {
	Session domain.Session
	Rules   Rules
	Badges  *BadgeCatalog
	Clock   domain.Clock
	Sync    Syncer     // nil keeps the session local
	Local   LocalStore // nil keeps state in memory only
	Emitter Emitter    // nil drops events
	Logger  *zap.Logger
}

// Engine owns one session's state. Operations are serialized: each runs to
// completion, persistence included, before the next starts.
type Engine struct {
	mu    sync.Mutex
	cfg   Config
	log   *zap.Logger
	state domain.State

	restored bool // local snapshot applied
	loaded   bool // remote document merged; remote writes allowed
}

// errNotLoaded reports a remote save withheld because the remote document
// was never read. Writing it would overwrite remote progress.
var errNotLoaded = errors.New("remote document not loaded yet")

// NewEngine creates an engine holding a fresh state.
func NewEngine(cfg Config) *Engine {
	if cfg.Rules.BaseXPNeeded <= 0 {
		cfg.Rules = DefaultRules()
	}
	if cfg.Badges == nil {
		cfg.Badges = DefaultBadgeCatalog()
	}
	if cfg.Clock == nil {
		cfg.Clock = domain.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Engine{
		cfg:   cfg,
		log:   cfg.Logger.With(zap.String("session", cfg.Session.Key)),
		state: NewState(cfg.Rules),
	}
}

// Session returns the session the engine serves.
func (e *Engine) Session() domain.Session { return e.cfg.Session }

// Catalog returns the badge catalog in use.
func (e *Engine) Catalog() *BadgeCatalog { return e.cfg.Badges }

// Start restores the local snapshot, ends session rewards from the previous
// session and loads the remote document. A remote failure leaves the engine
// usable on local state and is returned for the caller to report; remote
// writes stay off until a later Start or LoadState succeeds. The local
// restore happens on the first call only.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if !e.restored {
		e.restore()
		e.restored = true
	}
	e.mu.Unlock()

	return e.LoadState(ctx)
}

func (e *Engine) restore() {
	if e.cfg.Local != nil {
		snap, err := e.cfg.Local.LoadSnapshot(e.cfg.Session.Key)
		if err != nil {
			e.log.Warn("local snapshot unreadable, starting fresh", zap.Error(err))
		} else if snap != nil {
			e.state = Normalize(*snap, e.env())
		}
	}
	e.state = DeactivateSessionRewards(e.state)
}

// Loaded reports whether the engine may write the remote document: the
// session is local-only, or its remote document has been merged in.
func (e *Engine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded || !e.remote()
}

func (e *Engine) remote() bool {
	return e.cfg.Session.Authenticated() && e.cfg.Sync != nil
}

func (e *Engine) env() Env {
	return Env{Rules: e.cfg.Rules, Badges: e.cfg.Badges, Now: e.cfg.Clock.Now()}
}

type transition func(s domain.State, env Env) (domain.State, []domain.Event, error)

// apply runs fn against the current state, commits the result, dispatches
// events and persists. On error the state is left untouched.
func (e *Engine) apply(fn transition) (domain.State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, events, err := fn(e.state, e.env())
	if err != nil {
		return e.state.Clone(), err
	}
	e.state = next
	e.dispatch(events)
	e.persist(next.Clone())
	return next.Clone(), nil
}

func (e *Engine) dispatch(events []domain.Event) {
	if e.cfg.Emitter == nil {
		return
	}
	for _, ev := range events {
		ev.ID = uuid.NewString()
		ev.Session = e.cfg.Session.Key
		e.cfg.Emitter.Emit(ev)
	}
}

func (e *Engine) emitStatus(status domain.SyncStatus, err error) {
	ev := domain.Event{Kind: domain.EventSyncStatus, Status: status, At: e.cfg.Clock.Now()}
	if err != nil {
		ev.Error = err.Error()
	}
	e.dispatch([]domain.Event{ev})
}

// persist writes the local snapshot and schedules the remote save.
func (e *Engine) persist(st domain.State) {
	if e.cfg.Local != nil {
		if err := e.cfg.Local.SaveSnapshot(e.cfg.Session.Key, st); err != nil {
			e.log.Warn("local snapshot failed", zap.Error(err))
		}
	}
	if !e.remote() {
		e.emitStatus(domain.SyncGuest, nil)
		return
	}
	if !e.loaded {
		e.emitStatus(domain.SyncError, errNotLoaded)
		return
	}
	e.cfg.Sync.SaveAsync(e.cfg.Session, st, func(err error) {
		if err != nil {
			e.log.Warn("cloud save failed", zap.Error(err))
			e.emitStatus(domain.SyncError, err)
			return
		}
		e.emitStatus(domain.SyncOK, nil)
	})
}

// ─── Operations ─────────────────────────────────────────────────────────────

// AddMinutes records a study session.
func (e *Engine) AddMinutes(minutes int64) (domain.State, error) {
	return e.apply(func(s domain.State, env Env) (domain.State, []domain.Event, error) {
		return AddMinutes(s, minutes, env)
	})
}

// AddXP grants raw XP through the multiplier.
func (e *Engine) AddXP(amount float64) (domain.State, error) {
	return e.apply(func(s domain.State, env Env) (domain.State, []domain.Event, error) {
		next, events := AddXP(s, amount, env)
		return next, events, nil
	})
}

// BuyReward purchases a shop item. Guests cannot buy.
func (e *Engine) BuyReward(id string) (domain.State, error) {
	if !e.cfg.Session.Authenticated() {
		return e.Snapshot(), fmt.Errorf("buy %q: %w", id, domain.ErrLoginRequired)
	}
	return e.apply(func(s domain.State, env Env) (domain.State, []domain.Event, error) {
		return BuyReward(s, id, env)
	})
}

// TryPrestige prestiges an authenticated session at the unlock level.
func (e *Engine) TryPrestige() (domain.State, error) {
	if !e.cfg.Session.Authenticated() {
		return e.Snapshot(), fmt.Errorf("prestige: %w", domain.ErrLoginRequired)
	}
	return e.apply(TryPrestige)
}

// ClaimMission collects a completed mission's payout.
func (e *Engine) ClaimMission(id string) (domain.State, error) {
	return e.apply(func(s domain.State, env Env) (domain.State, []domain.Event, error) {
		return ClaimMission(s, id, env)
	})
}

// HardReset wipes progress. confirm must be true.
func (e *Engine) HardReset(confirm bool) (domain.State, error) {
	if !confirm {
		return e.Snapshot(), fmt.Errorf("reset: %w", domain.ErrResetNotConfirmed)
	}
	return e.apply(func(s domain.State, env Env) (domain.State, []domain.Event, error) {
		next, events := HardReset(s, env)
		return next, events, nil
	})
}

// ResetMissions clears mission counters and flags.
func (e *Engine) ResetMissions() (domain.State, error) {
	return e.apply(func(s domain.State, env Env) (domain.State, []domain.Event, error) {
		next, events := ResetMissions(s, env)
		return next, events, nil
	})
}

// SaveState writes the current state to the remote document and waits.
// Guests get a local-only status and no network write. A session whose
// remote document was never read loads it first.
func (e *Engine) SaveState(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.remote() {
		e.emitStatus(domain.SyncGuest, nil)
		return nil
	}
	if !e.loaded {
		if err := e.load(ctx); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
	}
	if err := e.cfg.Sync.Save(ctx, e.cfg.Session, e.state.Clone()); err != nil {
		e.emitStatus(domain.SyncError, err)
		return fmt.Errorf("save state: %w", err)
	}
	e.emitStatus(domain.SyncOK, nil)
	return nil
}

// LoadState merges the remote document into the current state, then
// re-evaluates period rollover, mission completion and badges.
func (e *Engine) LoadState(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.remote() {
		e.emitStatus(domain.SyncGuest, nil)
		return nil
	}
	return e.load(ctx)
}

func (e *Engine) load(ctx context.Context) error {
	merged, err := e.cfg.Sync.Load(ctx, e.cfg.Session, e.state.Clone())
	if err != nil {
		e.emitStatus(domain.SyncError, err)
		return fmt.Errorf("load state: %w", err)
	}

	next, events := Reconcile(merged, e.env())
	e.state = next
	e.dispatch(events)
	if e.cfg.Local != nil {
		if err := e.cfg.Local.SaveSnapshot(e.cfg.Session.Key, next.Clone()); err != nil {
			e.log.Warn("local snapshot failed", zap.Error(err))
		}
	}
	e.loaded = true
	e.emitStatus(domain.SyncOK, nil)
	return nil
}

// Reconcile normalizes a freshly loaded state and applies the rules that
// depend on the current time and stats.
func Reconcile(s domain.State, env Env) (domain.State, []domain.Event) {
	t := begin(Normalize(s, env), env)
	t.checkMissionResets()
	t.checkBadges()
	t.updateMissionProgress()
	return t.finish()
}

// ─── Queries ────────────────────────────────────────────────────────────────

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() domain.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// MissionProgress renders every mission for the current periods.
func (e *Engine) MissionProgress() []domain.MissionProgress {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, _ := UpdateMissionProgress(e.state, e.env())
	return ProgressAll(s)
}

// Badges returns every badge with its unlock flag.
func (e *Engine) Badges() []domain.BadgeStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Badges.Statuses(e.state)
}

// Rewards returns the shop catalog with ownership flags.
func (e *Engine) Rewards() []domain.Reward {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.Reward(nil), e.state.Rewards...)
}
