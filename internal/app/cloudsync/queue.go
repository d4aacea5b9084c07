package cloudsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrQueueClosed is reported for saves enqueued after, or pending at, Close.
	ErrQueueClosed = errors.New("save queue closed")
	// ErrSaveDropped is reported for a save evicted by a full queue.
	ErrSaveDropped = errors.New("save dropped: queue full")
)

// Writer is the write half of a RemoteStore.
type Writer interface {
	Merge(ctx context.Context, id string, doc Document) error
}

// Policy controls ordering and backpressure of background saves.
type Policy struct {
	// Coalesce keeps only the newest pending snapshot per document.
	Coalesce bool
	// Capacity bounds the pending jobs; the oldest is dropped when full.
	// Zero means unbounded.
	Capacity int
	// MinInterval paces writes to at most one per interval. Zero disables pacing.
	MinInterval time.Duration
	// WriteTimeout bounds each write. Zero means no timeout.
	WriteTimeout time.Duration
}

// DefaultPolicy coalesces and bounds the queue at 64 jobs.
func DefaultPolicy() Policy {
	return Policy{
		Coalesce:     true,
		Capacity:     64,
		WriteTimeout: 10 * time.Second,
	}
}

// QueueStats counts queue outcomes since creation.
type QueueStats struct {
	Enqueued  uint64 `json:"enqueued"`
	Coalesced uint64 `json:"coalesced"`
	Dropped   uint64 `json:"dropped"`
	Written   uint64 `json:"written"`
	Failed    uint64 `json:"failed"`
	Pending   int    `json:"pending"`
}

type job struct {
	id   string
	doc  Document
	done []func(error)
}

// Queue writes documents in the background with a single worker, so writes
// for one document land in enqueue order.
type Queue struct {
	w       Writer
	policy  Policy
	limiter *rate.Limiter
	log     *zap.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}

	mu      sync.Mutex
	cond    *sync.Cond
	pending []*job
	byID    map[string]*job
	busy    bool
	closed  bool
	stats   QueueStats
}

// NewQueue starts a queue writing to w.
func NewQueue(w Writer, policy Policy, log *zap.Logger) *Queue {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		w:       w,
		policy:  policy,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
		byID:    make(map[string]*job),
	}
	if policy.MinInterval > 0 {
		q.limiter = rate.NewLimiter(rate.Every(policy.MinInterval), 1)
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// Enqueue schedules a write of doc to id. done, if non-nil, runs once with
// the outcome on the worker goroutine. Enqueue never blocks on I/O.
func (q *Queue) Enqueue(id string, doc Document, done func(error)) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		call(done, ErrQueueClosed)
		return
	}
	q.stats.Enqueued++

	if q.policy.Coalesce {
		if j, ok := q.byID[id]; ok {
			j.doc = doc
			j.done = appendDone(j.done, done)
			q.stats.Coalesced++
			q.mu.Unlock()
			return
		}
	}

	var evicted *job
	if q.policy.Capacity > 0 && len(q.pending) >= q.policy.Capacity {
		evicted = q.pending[0]
		q.pending = q.pending[1:]
		if q.byID[evicted.id] == evicted {
			delete(q.byID, evicted.id)
		}
		q.stats.Dropped++
	}

	j := &job{id: id, doc: doc, done: appendDone(nil, done)}
	q.pending = append(q.pending, j)
	q.byID[id] = j
	q.cond.Broadcast()
	q.mu.Unlock()

	if evicted != nil {
		q.log.Warn("save dropped", zap.String("doc", evicted.id))
		finish(evicted, ErrSaveDropped)
	}
}

// Flush waits until every pending write has completed or ctx ends.
func (q *Queue) Flush(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.pending) > 0 || q.busy {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.cond.Wait()
	}
	return nil
}

// Close cancels the in-flight write, fails pending jobs with
// ErrQueueClosed and stops the worker.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.stopped
		return
	}
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()

	q.cancel()
	<-q.stopped
}

// Stats returns a snapshot of the counters.
func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := q.stats
	st.Pending = len(q.pending)
	return st
}

func (q *Queue) run() {
	defer close(q.stopped)
	for {
		j, ok := q.next()
		if !ok {
			return
		}
		err := q.write(j)

		q.mu.Lock()
		if err != nil {
			q.stats.Failed++
		} else {
			q.stats.Written++
		}
		q.mu.Unlock()

		if err != nil {
			q.log.Warn("save failed", zap.String("doc", j.id), zap.Error(err))
		}
		finish(j, err)

		// busy clears after the callbacks so Flush returns with them done.
		q.mu.Lock()
		q.busy = false
		q.cond.Broadcast()
		q.mu.Unlock()
	}
}

// next blocks for the oldest pending job. After Close it fails the
// remaining jobs and reports false.
func (q *Queue) next() (*job, bool) {
	q.mu.Lock()
	for len(q.pending) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		rest := q.pending
		q.pending = nil
		q.byID = make(map[string]*job)
		q.cond.Broadcast()
		q.mu.Unlock()
		for _, j := range rest {
			finish(j, ErrQueueClosed)
		}
		return nil, false
	}

	j := q.pending[0]
	q.pending = q.pending[1:]
	if q.byID[j.id] == j {
		delete(q.byID, j.id)
	}
	q.busy = true
	q.mu.Unlock()
	return j, true
}

func (q *Queue) write(j *job) error {
	if q.limiter != nil {
		if err := q.limiter.Wait(q.ctx); err != nil {
			return err
		}
	}
	ctx := q.ctx
	if q.policy.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.policy.WriteTimeout)
		defer cancel()
	}
	return q.w.Merge(ctx, j.id, j.doc)
}

func appendDone(list []func(error), done func(error)) []func(error) {
	if done == nil {
		return list
	}
	return append(list, done)
}

func finish(j *job, err error) {
	for _, done := range j.done {
		done(err)
	}
}

func call(done func(error), err error) {
	if done != nil {
		done(err)
	}
}
