package flux

import (
	"context"
	"fmt"
	"sync"
)

// defaultQueueName names the always-present, unbounded background queue
// ModeAsyncNamed falls back to when a Transaction names no queue, or an
// unregistered one.
const defaultQueueName = ""

// ExecutorOption configures an Executor at construction time, following
// the functional-options idiom shared across the corpus (logiface's
// Option[E], microbatch's BatcherConfig).
type ExecutorOption func(*executorConfig)

type executorConfig struct {
	logger         Logger
	defaultMaxConc int64
	mainQueue      bool
}

// WithLogger routes the Executor's diagnostics (unknown-queue warnings)
// through l.
func WithLogger(l Logger) ExecutorOption {
	return func(c *executorConfig) { c.logger = l }
}

// WithDefaultQueueConcurrency bounds how many operations the default
// background queue may run concurrently (0, the default, is unbounded).
func WithDefaultQueueConcurrency(n int64) ExecutorOption {
	return func(c *executorConfig) { c.defaultMaxConc = n }
}

// WithMainQueue enables ModeMainCooperative scheduling. Without it, a
// Transaction submitted with ModeMainCooperative degrades to
// ModeSyncInline, since there is no designated thread to cooperate with.
func WithMainQueue() ExecutorOption {
	return func(c *executorConfig) { c.mainQueue = true }
}

// Executor schedules Transactions according to their SchedulingMode and
// owns the named-queue registry, the shared ThrottlerRegistry, the
// id generator, and the ongoing-transactions registry. The zero value
// is not usable; construct with NewExecutor.
type Executor struct {
	logger    Logger
	throttler *ThrottlerRegistry
	idgen     *IDGenerator
	main      *mainQueue

	qmu    sync.Mutex
	queues map[string]*queue

	omu     sync.Mutex
	ongoing map[string]Tx
}

// NewExecutor constructs an Executor with a default background queue
// already registered.
func NewExecutor(opts ...ExecutorOption) *Executor {
	var cfg executorConfig
	for _, o := range opts {
		o(&cfg)
	}
	ex := &Executor{
		logger:    logOrNop(cfg.logger),
		throttler: NewThrottlerRegistry(),
		idgen:     NewIDGenerator(),
		queues:    make(map[string]*queue),
		ongoing:   make(map[string]Tx),
	}
	ex.queues[defaultQueueName] = newQueue(defaultQueueName, cfg.defaultMaxConc)
	if cfg.mainQueue {
		ex.main = newMainQueue()
	}
	return ex
}

// RegisterQueue creates (or replaces) a named queue with the given
// MaxConcurrency (0 = unbounded). A replaced queue's in-flight
// operations are canceled before the old queue is discarded. Panics if
// name is the empty string, which is reserved for the default queue.
func (ex *Executor) RegisterQueue(name string, maxConcurrency int64) {
	if name == defaultQueueName {
		panic("flux: RegisterQueue: the empty name is reserved for the default queue")
	}
	ex.qmu.Lock()
	old := ex.queues[name]
	ex.queues[name] = newQueue(name, maxConcurrency)
	ex.qmu.Unlock()
	if old != nil {
		old.cancelAll()
		old.shutdown()
	}
}

func (ex *Executor) queueFor(name string) *queue {
	ex.qmu.Lock()
	defer ex.qmu.Unlock()
	if name == defaultQueueName {
		return ex.queues[defaultQueueName]
	}
	if q, ok := ex.queues[name]; ok {
		return q
	}
	ex.logger.Warnf("unknown queue %q, falling back to default: %v", name, ErrUnknownQueue)
	return ex.queues[defaultQueueName]
}

// RunMainQueue pumps the cooperative main queue on the calling goroutine
// until stop is closed. Panics if the Executor was not built with
// WithMainQueue. Intended to be called exactly once, from whatever
// goroutine an application designates as its main/event-loop thread.
func (ex *Executor) RunMainQueue(stop <-chan struct{}) {
	if ex.main == nil {
		panic("flux: RunMainQueue called on an Executor with no main queue configured")
	}
	ex.main.pump(stop)
}

// NextID returns the next Push-ID from the Executor's IDGenerator,
// used to assign Transaction ids.
func (ex *Executor) NextID() string { return ex.idgen.Next() }

// Throttler exposes the Executor's shared ThrottlerRegistry.
func (ex *Executor) Throttler() *ThrottlerRegistry { return ex.throttler }

func (ex *Executor) track(tx Tx) {
	ex.omu.Lock()
	ex.ongoing[tx.ID()] = tx
	ex.omu.Unlock()
	tx.Operation().OnFinish(func(OperationState) {
		ex.omu.Lock()
		delete(ex.ongoing, tx.ID())
		ex.omu.Unlock()
	})
}

// Ongoing returns the ids of every transaction not yet in a terminal
// state.
func (ex *Executor) Ongoing() []string {
	ex.omu.Lock()
	defer ex.omu.Unlock()
	ids := make([]string, 0, len(ex.ongoing))
	for id := range ex.ongoing {
		ids = append(ids, id)
	}
	return ids
}

// Run schedules tx according to its SchedulingMode. For
// ModeMainCooperative and ModeSyncInline it blocks until tx reaches a
// terminal state; ModeAsyncNamed returns immediately after submission.
// If completion is non-nil, it is invoked exactly once, on the main
// queue (or inline, if none is configured), once tx has reached a
// terminal state.
func (ex *Executor) Run(tx Tx, completion func(*GroupError)) {
	ex.RunCtx(context.Background(), tx, completion)
}

// RunCtx is Run, bounded by ctx for the blocking modes. ctx has no
// effect on ModeAsyncNamed, which never blocks, nor on completion,
// which always waits for tx regardless of ctx. If ctx is canceled
// before a blocking transaction finishes, RunCtx returns. A transaction
// still waiting for its prerequisites on the calling goroutine at that
// point (ModeSyncInline, or ModeMainCooperative run inline) is
// canceled; one that has already started, or was posted to the main
// queue, keeps running and is not canceled.
func (ex *Executor) RunCtx(ctx context.Context, tx Tx, completion func(*GroupError)) {
	ex.track(tx)
	ex.schedule(ctx, tx)
	if completion != nil {
		ex.runCompletionBarrier([]Tx{tx}, tx.groupErrorCell(), completion)
	}
	if tx.Mode() == ModeAsyncNamed {
		return
	}
	select {
	case <-tx.Operation().Done():
	case <-ctx.Done():
	}
}

// RunGroup wires a shared GroupError across every tx, links them with a
// linear dependency chain (txs[i] depends on txs[i-1]), then schedules
// each via Run. If completion is non-nil, it is invoked exactly once,
// on the main queue (or inline, if none is configured), once every tx
// in the group has reached a terminal state.
func (ex *Executor) RunGroup(txs []Tx, completion func(*GroupError)) *GroupError {
	g := NewGroupError()
	for _, tx := range txs {
		tx.setGroupError(g)
	}
	for i := 1; i < len(txs); i++ {
		txs[i].Operation().DependOn(txs[i-1].Operation())
	}
	if completion != nil {
		ex.runCompletionBarrier(txs, g, completion)
	}
	for _, tx := range txs {
		ex.Run(tx, nil)
	}
	return g
}

// runCompletionBarrier allocates a synthetic Operation that depends on
// every tx in txs and, once all of them have reached a terminal state,
// invokes completion(g) on the main queue - or inline, on whichever
// goroutine satisfies the last dependency, if no main queue is
// configured. Mirrors schedule's ModeMainCooperative fallback: a
// completion handler is only ever deferred to the main queue when one
// actually exists to receive it.
func (ex *Executor) runCompletionBarrier(txs []Tx, g *GroupError, completion func(*GroupError)) {
	barrier := NewOperation(func() {}, nil)
	for _, tx := range txs {
		barrier.DependOn(tx.Operation())
	}
	barrier.onReady(func() {
		if ex.main != nil {
			ex.main.post(func() { completion(g) })
			return
		}
		completion(g)
	})
}

// CancelAll cancels every ongoing transaction across every queue.
func (ex *Executor) CancelAll() {
	for _, q := range ex.snapshotQueues() {
		q.cancelAll()
	}
}

// Shutdown prevents further submissions to every named queue and blocks
// until in-flight operations drain, or ctx is done.
func (ex *Executor) Shutdown(ctx context.Context) error {
	queues := ex.snapshotQueues()
	done := make(chan struct{})
	go func() {
		for _, q := range queues {
			q.shutdown()
		}
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (ex *Executor) snapshotQueues() []*queue {
	ex.qmu.Lock()
	defer ex.qmu.Unlock()
	qs := make([]*queue, 0, len(ex.queues))
	for _, q := range ex.queues {
		qs = append(qs, q)
	}
	return qs
}

// schedule dispatches tx per its SchedulingMode. Dependencies take
// precedence over throttling: a Transaction's prerequisites must reach a
// terminal state before it is even submitted to the ThrottlerRegistry,
// so a throttled action id's minimum-delay window only ever gates
// already-runnable work.
func (ex *Executor) schedule(ctx context.Context, tx Tx) {
	op := tx.Operation()

	switch tx.Mode() {
	case ModeSyncInline:
		if err := op.awaitReady(ctx); err != nil {
			op.Cancel()
			return
		}
		ex.runThrottled(tx, op.Start)

	case ModeMainCooperative:
		if ex.main != nil && ex.main.isMain() {
			if err := op.awaitReady(ctx); err != nil {
				op.Cancel()
				return
			}
			ex.runThrottled(tx, op.Start)
			return
		}
		if ex.main != nil {
			ex.main.post(func() {
				if err := op.awaitReady(context.Background()); err != nil {
					op.Cancel()
					return
				}
				ex.runThrottled(tx, op.Start)
			})
			return
		}
		// no main queue configured: there is nothing to cooperate with,
		// so fall back to running inline rather than deadlocking a
		// caller that never set one up.
		if err := op.awaitReady(ctx); err != nil {
			op.Cancel()
			return
		}
		ex.runThrottled(tx, op.Start)

	case ModeAsyncNamed:
		q := ex.queueFor(tx.QueueName())
		op.onReady(func() {
			ex.runThrottled(tx, func() { q.submit(op) })
		})

	default:
		panic(fmt.Sprintf("flux: unknown SchedulingMode %v", tx.Mode()))
	}
}

// runThrottled gates submit through the shared ThrottlerRegistry when tx
// carries a non-zero ThrottleDelay; otherwise submit runs immediately,
// on the calling goroutine.
func (ex *Executor) runThrottled(tx Tx, submit func()) {
	if tx.ThrottleDelay() <= 0 {
		submit()
		return
	}
	ex.throttler.Submit(tx.ActionID(), tx.ThrottleDelay(), submit, func() {
		tx.Operation().Cancel()
	})
}
