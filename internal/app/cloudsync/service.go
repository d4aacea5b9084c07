package cloudsync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/studyaddict/studyaddict/internal/domain"
)

// Service saves and loads session state against a RemoteStore.
// It satisfies progression.Syncer.
type Service struct {
	store RemoteStore
	queue *Queue
	clock domain.Clock
	log   *zap.Logger
}

// NewService creates a sync service. A nil queue makes SaveAsync write
// on its own goroutine without ordering.
func NewService(store RemoteStore, queue *Queue, clock domain.Clock, log *zap.Logger) *Service {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, queue: queue, clock: clock, log: log}
}

// Save merge-writes a full snapshot of st and waits for the store.
func (s *Service) Save(ctx context.Context, session domain.Session, st domain.State) error {
	if !session.Authenticated() {
		return fmt.Errorf("save %s: %w", session.Key, domain.ErrLoginRequired)
	}
	if err := s.store.Merge(ctx, session.UserID, FromState(st, s.clock.Now())); err != nil {
		return fmt.Errorf("save %s: %w", session.UserID, err)
	}
	return nil
}

// SaveAsync schedules a snapshot write and returns immediately.
func (s *Service) SaveAsync(session domain.Session, st domain.State, done func(error)) {
	if !session.Authenticated() {
		call(done, fmt.Errorf("save %s: %w", session.Key, domain.ErrLoginRequired))
		return
	}
	doc := FromState(st, s.clock.Now())
	if s.queue != nil {
		s.queue.Enqueue(session.UserID, doc, done)
		return
	}
	go func() {
		call(done, s.store.Merge(context.Background(), session.UserID, doc))
	}()
}

// Load reads the session's document and merges it over local. When no
// document exists yet, local is written as the initial document.
func (s *Service) Load(ctx context.Context, session domain.Session, local domain.State) (domain.State, error) {
	if !session.Authenticated() {
		return local, fmt.Errorf("load %s: %w", session.Key, domain.ErrLoginRequired)
	}

	doc, err := s.store.Get(ctx, session.UserID)
	if err != nil {
		return local, fmt.Errorf("load %s: %w", session.UserID, err)
	}
	if doc == nil {
		s.log.Info("no remote document, creating", zap.String("user", session.UserID))
		if err := s.Save(ctx, session, local); err != nil {
			return local, err
		}
		return local, nil
	}
	return doc.ApplyTo(local), nil
}

// Ping checks the remote store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Stats returns save queue counters, zero without a queue.
func (s *Service) Stats() QueueStats {
	if s.queue == nil {
		return QueueStats{}
	}
	return s.queue.Stats()
}
