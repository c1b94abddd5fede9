// Package cleanup delivers segment deletion requests to whatever subsystem
// actually removes segment metadata and files. Delivery is fire-and-forget:
// the lineage protocol's correctness never depends on a deletion landing, so
// failures are logged and counted, never surfaced to the triggering
// operation.
package cleanup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joshbouncesecurity/pinot/internal/backoff"
	"github.com/joshbouncesecurity/pinot/internal/safegoroutine"
	"github.com/joshbouncesecurity/pinot/metrics"
	"golang.org/x/sync/errgroup"
)

// Trigger accepts deletion requests for superseded or abandoned segments.
type Trigger interface {
	// DeleteSegments enqueues deletion of the named segments. It never
	// blocks on the actual deletion and reports no outcome.
	DeleteSegments(ctx context.Context, table string, segments []string)

	// Close stops accepting requests and waits for in-flight deliveries.
	Close() error
}

// NopTrigger discards all deletion requests.
type NopTrigger struct{}

func (NopTrigger) DeleteSegments(context.Context, string, []string) {}
func (NopTrigger) Close() error                                     { return nil }

// ── Queue ───────────────────────────────────────────────────────────────────

// DeleterFunc performs the physical deletion of one segment. It must be
// idempotent: deleting an already-deleted segment is a success.
type DeleterFunc func(ctx context.Context, table, segment string) error

type request struct {
	table   string
	segment string
}

// Queue is an in-process Trigger backed by a buffered channel and a worker
// pool. Each request is retried with jittered backoff and dropped with a
// warning once the attempt budget is spent; a full queue also drops rather
// than block the caller.
type Queue struct {
	mu          sync.Mutex
	closed      bool
	ch          chan request
	deleter     DeleterFunc
	logger      *slog.Logger
	g           *errgroup.Group
	cancel      context.CancelFunc
	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithQueueLogger sets the logger. Defaults to slog.Default().
func WithQueueLogger(l *slog.Logger) QueueOption {
	return func(q *Queue) { q.logger = l }
}

// WithQueueDepth sets the channel buffer size. Defaults to 1024.
func WithQueueDepth(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan request, n)
		}
	}
}

// WithQueueRetry sets the per-request attempt budget and backoff bounds.
func WithQueueRetry(maxAttempts int, base, cap time.Duration) QueueOption {
	return func(q *Queue) {
		if maxAttempts > 0 {
			q.maxAttempts = maxAttempts
		}
		if base > 0 {
			q.backoffBase = base
		}
		if cap > 0 {
			q.backoffCap = cap
		}
	}
}

// NewQueue creates a Queue and starts the given number of delivery workers
// (at least one).
func NewQueue(deleter DeleterFunc, workers int, opts ...QueueOption) *Queue {
	q := &Queue{
		ch:          make(chan request, 1024),
		deleter:     deleter,
		logger:      slog.Default(),
		maxAttempts: 5,
		backoffBase: 200 * time.Millisecond,
		backoffCap:  10 * time.Second,
	}
	for _, o := range opts {
		o(q)
	}
	q.logger = q.logger.With("component", "cleanup")

	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	g, gCtx := errgroup.WithContext(ctx)
	q.g = g
	for i := 0; i < workers; i++ {
		safegoroutine.Go(g, q.logger, "cleanup-worker", func() error {
			q.run(gCtx)
			return nil
		})
	}
	return q
}

func (q *Queue) DeleteSegments(_ context.Context, table string, segments []string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		metrics.CleanupDropped.Add(float64(len(segments)))
		q.logger.Warn("cleanup queue closed, dropping deletion request",
			"table", table, "segments", segments)
		return
	}
	for _, seg := range segments {
		select {
		case q.ch <- request{table: table, segment: seg}:
			metrics.CleanupEnqueued.WithLabelValues(table).Inc()
		default:
			metrics.CleanupDropped.Inc()
			q.logger.Warn("cleanup queue full, dropping deletion request",
				"table", table, "segment", seg)
		}
	}
}

func (q *Queue) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-q.ch:
			if !ok {
				return
			}
			q.deliver(ctx, req)
		}
	}
}

func (q *Queue) deliver(ctx context.Context, req request) {
	for attempt := 0; attempt < q.maxAttempts; attempt++ {
		err := q.deleter(ctx, req.table, req.segment)
		if err == nil {
			return
		}
		metrics.CleanupFailures.Inc()
		q.logger.Warn("segment deletion failed",
			"table", req.table, "segment", req.segment,
			"attempt", attempt+1, "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff.Jitter(attempt, q.backoffBase, q.backoffCap)):
		}
	}
	metrics.CleanupDropped.Inc()
	q.logger.Error("giving up on segment deletion, leaving it to the garbage collector",
		"table", req.table, "segment", req.segment, "attempts", q.maxAttempts)
}

func (q *Queue) Close() error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()

	err := q.g.Wait()
	q.cancel()
	return err
}

// ── Recorder ────────────────────────────────────────────────────────────────

// Recorder is a Trigger that remembers every request, for tests.
type Recorder struct {
	mu      sync.Mutex
	deleted map[string][]string // table -> segments, in request order
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{deleted: make(map[string][]string)}
}

func (r *Recorder) DeleteSegments(_ context.Context, table string, segments []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted[table] = append(r.deleted[table], segments...)
}

func (r *Recorder) Close() error { return nil }

// Deleted returns the segments requested for deletion for a table, in order.
func (r *Recorder) Deleted(table string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.deleted[table]...)
}
