package progression

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/studyaddict/studyaddict/internal/domain"
)

// Factory builds the engine for a session that has none yet.
type Factory func(session domain.Session) *Engine

const (
	// DefaultStartTimeout bounds one remote load at session start.
	DefaultStartTimeout = 15 * time.Second
	// DefaultRetryInterval spaces remote load retries of a degraded session.
	DefaultRetryInterval = 30 * time.Second
)

// Registry maps session keys to their engines, starting each on first use.
// A session whose remote load failed is retried on a later Get.
type Registry struct {
	factory Factory
	log     *zap.Logger

	StartTimeout  time.Duration
	RetryInterval time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	engine *Engine

	mu      sync.Mutex
	started bool
	tried   time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(factory Factory, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		factory:       factory,
		log:           log,
		StartTimeout:  DefaultStartTimeout,
		RetryInterval: DefaultRetryInterval,
		entries:       make(map[string]*entry),
	}
}

// Get returns the session's engine, creating and starting it if needed.
// Concurrent first calls for one session start it once. The start runs
// detached from ctx's cancellation so an abandoned request cannot leave
// the session unloaded.
func (r *Registry) Get(ctx context.Context, session domain.Session) *Engine {
	r.mu.Lock()
	en, ok := r.entries[session.Key]
	if !ok {
		en = &entry{engine: r.factory(session)}
		r.entries[session.Key] = en
	}
	r.mu.Unlock()

	en.mu.Lock()
	defer en.mu.Unlock()
	if en.started {
		return en.engine
	}
	if !en.tried.IsZero() && time.Since(en.tried) < r.RetryInterval {
		return en.engine
	}
	en.tried = time.Now()

	startCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.StartTimeout)
	defer cancel()
	if err := en.engine.Start(startCtx); err != nil {
		r.log.Warn("session start degraded to local state",
			zap.String("session", session.Key), zap.Error(err))
		return en.engine
	}
	en.started = true
	return en.engine
}

// Sessions returns the keys of every live session, sorted.
func (r *Registry) Sessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
