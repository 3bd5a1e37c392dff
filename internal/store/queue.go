package store

import (
	"context"
	"sync"
	"time"

	"capillaire/internal/logging"
	"capillaire/internal/planner"
)

const (
	defaultWriteDelay = 500 * time.Millisecond
	writeTimeout      = 10 * time.Second
)

type pendingWrite struct {
	userID string
	plan   planner.Plan
}

// WriteQueue coalesces plan writes by plan id. Every Enqueue replaces the
// pending copy for that plan and restarts the debounce timer, so a burst of
// task toggles becomes one upsert carrying the last state. A plan is written
// at most maxWait after its first pending change even under constant
// activity.
type WriteQueue struct {
	store   PlanStore
	logger  logging.Logger
	delay   time.Duration
	maxWait time.Duration

	mu       sync.Mutex
	pending  map[string]pendingWrite
	closed   bool
	notify   chan struct{}
	shutdown chan struct{}
	done     chan struct{}

	// OnWritten, when set, is called after every attempted write.
	OnWritten func(userID, planID string, err error)
}

// NewWriteQueue starts the queue's worker. delay <= 0 uses the default.
func NewWriteQueue(store PlanStore, delay time.Duration, logger logging.Logger) *WriteQueue {
	if delay <= 0 {
		delay = defaultWriteDelay
	}
	q := &WriteQueue{
		store:    store,
		logger:   logger,
		delay:    delay,
		maxWait:  5 * delay,
		pending:  make(map[string]pendingWrite),
		notify:   make(chan struct{}, 1),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go q.worker()
	return q
}

// Enqueue schedules plan to be written for userID. After Close, the write
// happens synchronously.
func (q *WriteQueue) Enqueue(userID string, plan planner.Plan) {
	key := plan.ID
	if key == "" {
		key = "user:" + userID
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.write(context.Background(), pendingWrite{userID: userID, plan: plan.Clone()})
		return
	}
	q.pending[key] = pendingWrite{userID: userID, plan: plan.Clone()}
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pending is the number of plans waiting to be written.
func (q *WriteQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Flush writes everything pending now.
func (q *WriteQueue) Flush(ctx context.Context) {
	q.mu.Lock()
	batch := q.pending
	q.pending = make(map[string]pendingWrite)
	q.mu.Unlock()

	for _, w := range batch {
		q.write(ctx, w)
	}
}

// Close stops the worker and flushes synchronously.
func (q *WriteQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	close(q.shutdown)
	<-q.done
	q.Flush(context.Background())
	return nil
}

func (q *WriteQueue) worker() {
	defer close(q.done)

	timer := time.NewTimer(q.delay)
	timer.Stop()
	var deadline time.Time

	for {
		select {
		case <-q.notify:
			now := time.Now()
			if deadline.IsZero() {
				deadline = now.Add(q.maxWait)
			}
			wait := q.delay
			if until := deadline.Sub(now); until < wait {
				wait = until
			}
			timer.Reset(wait)
		case <-timer.C:
			deadline = time.Time{}
			q.Flush(context.Background())
		case <-q.shutdown:
			timer.Stop()
			return
		}
	}
}

func (q *WriteQueue) write(ctx context.Context, w pendingWrite) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := q.store.UpsertPlan(ctx, w.userID, w.plan)
	if err != nil {
		q.logger.Warnf("Warning: failed to persist plan %s for user %s: %v", w.plan.ID, w.userID, err)
	}
	if q.OnWritten != nil {
		q.OnWritten(w.userID, w.plan.ID, err)
	}
}
