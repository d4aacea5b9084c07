// Package health runs periodic checks against the stores the progression
// engine depends on and attempts recovery when one fails.
package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/studyaddict/studyaddict/internal/infra/metrics"
)

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// checkTimeout bounds a single CheckFn call.
const checkTimeout = 5 * time.Second

// Checker runs periodic health checks with auto-recovery.
type Checker struct {
	log      *zap.Logger
	interval time.Duration

	mu       sync.RWMutex
	checks   []Check
	statuses []Status
}

// NewChecker creates a checker that runs checks every interval
// (60s when interval is zero).
func NewChecker(interval time.Duration, log *zap.Logger, checks ...Check) *Checker {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Checker{log: log, interval: interval, checks: checks}
}

// Add registers another check. It is picked up on the next run.
func (c *Checker) Add(check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, check)
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	c.RunOnce(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce runs every check now and records the results.
func (c *Checker) RunOnce(ctx context.Context) {
	c.mu.RLock()
	checks := append([]Check(nil), c.checks...)
	c.mu.RUnlock()

	statuses := make([]Status, len(checks))
	for i, check := range checks {
		s := Status{Name: check.Name, CheckedAt: time.Now()}
		if err := c.run(ctx, check); err != nil {
			s.Error = err.Error()
			c.log.Warn("health check failed", zap.String("check", check.Name), zap.Error(err))
			if check.RecoverFn != nil {
				metrics.HealthRecoveries.WithLabelValues(check.Name).Inc()
				if rerr := check.RecoverFn(ctx); rerr != nil {
					c.log.Error("recovery failed", zap.String("check", check.Name), zap.Error(rerr))
				}
			}
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(0)
		} else {
			s.Healthy = true
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(1)
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

func (c *Checker) run(ctx context.Context, check Check) (err error) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("check panicked: %v", r)
		}
	}()
	return check.CheckFn(ctx)
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// ─── Check Implementations ──────────────────────────────────────────────────

// LocalStoreCheck pings the local sqlite store.
func LocalStoreCheck(ping func(ctx context.Context) error) Check {
	return Check{
		Name:    "local_store",
		CheckFn: ping,
		// SQLite recovers on its own via WAL; nothing to do.
	}
}

// RemoteStoreCheck pings the remote document store. The redis and postgres
// clients reconnect on their own, so there is no recovery step.
func RemoteStoreCheck(ping func(ctx context.Context) error) Check {
	return Check{
		Name:    "remote_store",
		CheckFn: ping,
	}
}

// ErrDisconnected is reported by ConnectionCheck while a link is down.
var ErrDisconnected = errors.New("disconnected")

// ConnectionCheck reports a named link as unhealthy while connected is false.
func ConnectionCheck(name string, connected func() bool) Check {
	return Check{
		Name: name,
		CheckFn: func(ctx context.Context) error {
			if !connected() {
				return ErrDisconnected
			}
			return nil
		},
	}
}
