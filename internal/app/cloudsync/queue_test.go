package cloudsync_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyaddict/studyaddict/internal/app/cloudsync"
)

// gateWriter records writes and can hold them until the gate closes.
type gateWriter struct {
	mu      sync.Mutex
	writes  []string
	started chan string
	gate    chan struct{}
}

func newGateWriter() *gateWriter {
	return &gateWriter{started: make(chan string, 64), gate: make(chan struct{})}
}

func (w *gateWriter) Merge(ctx context.Context, id string, doc cloudsync.Document) error {
	w.started <- id
	select {
	case <-w.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	xp := int64(-1)
	if doc.XP != nil {
		xp = *doc.XP
	}
	w.writes = append(w.writes, fmt.Sprintf("%s:%d", id, xp))
	return nil
}

func (w *gateWriter) recorded() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.writes...)
}

func xpDoc(xp int64) cloudsync.Document {
	return cloudsync.Document{XP: &xp}
}

type outcomes struct {
	mu   sync.Mutex
	errs []error
}

func (o *outcomes) done(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs = append(o.errs, err)
}

func (o *outcomes) all() []error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]error(nil), o.errs...)
}

func TestQueue_CoalescesPendingSnapshots(t *testing.T) {
	w := newGateWriter()
	q := cloudsync.NewQueue(w, cloudsync.Policy{Coalesce: true}, nil)
	defer q.Close()
	out := &outcomes{}

	q.Enqueue("a", xpDoc(1), out.done)
	require.Equal(t, "a", <-w.started)

	q.Enqueue("a", xpDoc(2), out.done)
	q.Enqueue("a", xpDoc(3), out.done)
	q.Enqueue("b", xpDoc(9), out.done)
	close(w.gate)

	require.NoError(t, q.Flush(context.Background()))

	assert.Equal(t, []string{"a:1", "a:3", "b:9"}, w.recorded())
	st := q.Stats()
	assert.Equal(t, uint64(4), st.Enqueued)
	assert.Equal(t, uint64(1), st.Coalesced)
	assert.Equal(t, uint64(3), st.Written)
	assert.Zero(t, st.Pending)

	errs := out.all()
	require.Len(t, errs, 4, "every caller hears back")
	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestQueue_PreservesOrderWithoutCoalescing(t *testing.T) {
	w := newGateWriter()
	close(w.gate)
	q := cloudsync.NewQueue(w, cloudsync.Policy{}, nil)
	defer q.Close()

	for i := int64(1); i <= 5; i++ {
		q.Enqueue("a", xpDoc(i), nil)
	}
	require.NoError(t, q.Flush(context.Background()))
	assert.Equal(t, []string{"a:1", "a:2", "a:3", "a:4", "a:5"}, w.recorded())
}

func TestQueue_DropsOldestWhenFull(t *testing.T) {
	w := newGateWriter()
	q := cloudsync.NewQueue(w, cloudsync.Policy{Capacity: 1}, nil)
	defer q.Close()

	var dropped error
	q.Enqueue("a", xpDoc(1), nil)
	<-w.started
	q.Enqueue("b", xpDoc(2), func(err error) { dropped = err })
	q.Enqueue("c", xpDoc(3), nil)
	close(w.gate)

	require.NoError(t, q.Flush(context.Background()))
	assert.ErrorIs(t, dropped, cloudsync.ErrSaveDropped)
	assert.Equal(t, []string{"a:1", "c:3"}, w.recorded())
	assert.Equal(t, uint64(1), q.Stats().Dropped)
}

func TestQueue_CloseCancelsInFlight(t *testing.T) {
	w := newGateWriter()
	q := cloudsync.NewQueue(w, cloudsync.Policy{}, nil)

	out := &outcomes{}
	q.Enqueue("a", xpDoc(1), out.done)
	<-w.started
	q.Enqueue("b", xpDoc(2), out.done)

	q.Close()

	errs := out.all()
	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[0], context.Canceled)
	assert.ErrorIs(t, errs[1], cloudsync.ErrQueueClosed)
	assert.Empty(t, w.recorded())

	var late error
	q.Enqueue("c", xpDoc(3), func(err error) { late = err })
	assert.ErrorIs(t, late, cloudsync.ErrQueueClosed)
	q.Close()
}

func TestQueue_WriteTimeout(t *testing.T) {
	w := newGateWriter()
	q := cloudsync.NewQueue(w, cloudsync.Policy{WriteTimeout: 20 * time.Millisecond}, nil)
	defer q.Close()

	errs := make(chan error, 1)
	q.Enqueue("a", xpDoc(1), func(err error) { errs <- err })

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("write did not time out")
	}
	assert.Equal(t, uint64(1), q.Stats().Failed)
}

func TestQueue_MinIntervalPaces(t *testing.T) {
	w := newGateWriter()
	close(w.gate)
	q := cloudsync.NewQueue(w, cloudsync.Policy{MinInterval: 40 * time.Millisecond}, nil)
	defer q.Close()

	start := time.Now()
	q.Enqueue("a", xpDoc(1), nil)
	q.Enqueue("b", xpDoc(2), nil)
	q.Enqueue("c", xpDoc(3), nil)
	require.NoError(t, q.Flush(context.Background()))

	assert.GreaterOrEqual(t, time.Since(start), 75*time.Millisecond)
	assert.Len(t, w.recorded(), 3)
}

func TestQueue_FlushHonorsContext(t *testing.T) {
	w := newGateWriter()
	q := cloudsync.NewQueue(w, cloudsync.Policy{}, nil)
	defer q.Close()

	q.Enqueue("a", xpDoc(1), nil)
	<-w.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Flush(ctx), context.DeadlineExceeded)
}
