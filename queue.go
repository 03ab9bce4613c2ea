package flux

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// queue is a named operation queue. Submitted operations are popped in
// submission order and handed a goroutine that waits for their
// prerequisites before calling Operation.Start, so a still-outstanding
// cross-queue dependency never blocks the queue from accepting its next
// submission. MaxConcurrency (0 = unbounded) bounds how many operations
// may be concurrently Executing at once, via golang.org/x/sync/semaphore,
// matching the corpus's golang.org/x/sync dependency.
type queue struct {
	name string

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	sem *semaphore.Weighted

	mu      sync.Mutex
	pending []*Operation // currently enqueued or executing, for CancelAll
	closed  bool
}

func newQueue(name string, maxConcurrency int64) *queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &queue{
		name:   name,
		ctx:    ctx,
		cancel: cancel,
		group:  &errgroup.Group{},
	}
	if maxConcurrency > 0 {
		q.sem = semaphore.NewWeighted(maxConcurrency)
	}
	return q
}

// submit enqueues op, to be started (after its prerequisites, if any,
// reach a terminal state) honoring the queue's MaxConcurrency.
func (q *queue) submit(op *Operation) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		op.Cancel()
		return
	}
	q.pending = append(q.pending, op)
	q.mu.Unlock()
	op.OnFinish(func(OperationState) {
		q.mu.Lock()
		defer q.mu.Unlock()
		for i, p := range q.pending {
			if p == op {
				q.pending = append(q.pending[:i], q.pending[i+1:]...)
				return
			}
		}
	})

	q.group.Go(func() error {
		if err := op.awaitReady(q.ctx); err != nil {
			op.Cancel()
			return nil
		}
		if q.sem != nil {
			if err := q.sem.Acquire(q.ctx, 1); err != nil {
				op.Cancel()
				return nil
			}
			op.OnFinish(func(OperationState) { q.sem.Release(1) })
		}
		op.Start()
		return nil
	})
}

// cancelAll cancels every operation currently enqueued or executing on
// this queue. Dependents still start (and typically short-circuit via
// the shared GroupError cell).
func (q *queue) cancelAll() {
	q.mu.Lock()
	ops := append([]*Operation(nil), q.pending...)
	q.mu.Unlock()
	for _, op := range ops {
		op.Cancel()
	}
}

// shutdown prevents further submissions and waits for in-flight work to
// drain.
func (q *queue) shutdown() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cancel()
	_ = q.group.Wait()
}
