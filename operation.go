package flux

import (
	"context"
	"sync"
	"sync/atomic"
)

// OperationState models the lifecycle of an AsyncOperation.
type OperationState int

const (
	OperationReady OperationState = iota
	OperationExecuting
	OperationFinished
	OperationCanceled
)

func (s OperationState) String() string {
	switch s {
	case OperationReady:
		return "ready"
	case OperationExecuting:
		return "executing"
	case OperationFinished:
		return "finished"
	case OperationCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

func (s OperationState) terminal() bool {
	return s == OperationFinished || s == OperationCanceled
}

// Operation is a cancelable unit of work with a prerequisite set, forming
// the nodes of the executor's dependency DAG. The zero value is not
// usable; construct with NewOperation.
type Operation struct {
	mu          sync.Mutex
	state       OperationState
	prereqs     []*Operation
	started     bool
	startFn     func()
	cancelFn    func()
	finishOnce  sync.Once
	finishHooks []func(OperationState)
	done        chan struct{}
}

// NewOperation constructs an Operation. start is invoked exactly once,
// when the operation transitions Ready->Executing; it is responsible for
// eventually calling Finish or Cancel. cancelBody is invoked at most
// once, only if the operation was Executing at the time Cancel was
// called; it is expected to roll back or compensate.
func NewOperation(start func(), cancelBody func()) *Operation {
	return &Operation{startFn: start, cancelFn: cancelBody, done: make(chan struct{})}
}

// Done returns a channel closed when the operation reaches a terminal
// state. Blocking modes (MainCooperative, SyncInline) wait on this
// channel rather than on Start returning, since Start only runs the
// reducer to its own completion - the reducer is free to defer Fulfill
// until further posted work completes.
func (x *Operation) Done() <-chan struct{} {
	return x.done
}

// DependOn adds other as a prerequisite of x. It is an error (panic, a
// contract violation) to add a dependency after x has started.
func (x *Operation) DependOn(other *Operation) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.started {
		panic("flux: Operation.DependOn called after Start")
	}
	x.prereqs = append(x.prereqs, other)
}

// ReadyToStart reports whether every prerequisite has reached a terminal
// state (finished or canceled).
func (x *Operation) ReadyToStart() bool {
	x.mu.Lock()
	prereqs := append([]*Operation(nil), x.prereqs...)
	x.mu.Unlock()
	for _, p := range prereqs {
		if !p.State().terminal() {
			return false
		}
	}
	return true
}

// OnFinish registers a hook invoked exactly once, on the terminal
// transition (Finished or Canceled). Hooks registered after the
// operation is already terminal are invoked synchronously and
// immediately.
func (x *Operation) OnFinish(hook func(OperationState)) {
	x.mu.Lock()
	state := x.state
	if !state.terminal() {
		x.finishHooks = append(x.finishHooks, hook)
		x.mu.Unlock()
		return
	}
	x.mu.Unlock()
	hook(state)
}

// State returns the current state.
func (x *Operation) State() OperationState {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.state
}

// Start moves Ready->Executing and invokes start. Returns without effect
// if the operation is already terminal (for example canceled before it
// was dequeued). Panics (a contract violation) if any prerequisite is not
// terminal, or the operation is already Executing.
func (x *Operation) Start() {
	x.mu.Lock()
	if x.state.terminal() {
		// raced with a Cancel prior to dequeue: honor the cancellation,
		// dependents still observe a terminal state and may proceed.
		x.mu.Unlock()
		return
	}
	if x.state != OperationReady {
		x.mu.Unlock()
		panic("flux: Operation.Start called on non-ready operation")
	}
	if !x.readyToStartLocked() {
		x.mu.Unlock()
		panic("flux: Operation.Start called before prerequisites finished")
	}
	x.state = OperationExecuting
	x.started = true
	start := x.startFn
	x.mu.Unlock()

	if start != nil {
		start()
	}
}

// awaitReady blocks until every prerequisite has reached a terminal
// state, or ctx is done, whichever comes first. Used by the Executor's
// named-queue workers so a queue's drain loop never blocks popping the
// next item on a still-outstanding cross-queue dependency.
func (x *Operation) awaitReady(ctx context.Context) error {
	x.mu.Lock()
	prereqs := append([]*Operation(nil), x.prereqs...)
	x.mu.Unlock()

	if len(prereqs) == 0 {
		return nil
	}

	done := make(chan struct{})
	var closeOnce sync.Once
	remaining := int32(len(prereqs))

	dec := func(OperationState) {
		if atomic.AddInt32(&remaining, -1) == 0 {
			closeOnce.Do(func() { close(done) })
		}
	}

	for _, p := range prereqs {
		p.OnFinish(dec)
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// onReady invokes fn once every prerequisite has reached a terminal
// state, without blocking the calling goroutine: if x has no
// prerequisites, fn runs synchronously and immediately; otherwise fn
// runs later, on whichever goroutine completes the last outstanding
// prerequisite. Used by the Executor to defer throttler registration
// until dependencies are satisfied: dependencies gate before throttling,
// not the reverse.
func (x *Operation) onReady(fn func()) {
	x.mu.Lock()
	prereqs := append([]*Operation(nil), x.prereqs...)
	x.mu.Unlock()

	if len(prereqs) == 0 {
		fn()
		return
	}

	var once sync.Once
	remaining := int32(len(prereqs))
	dec := func(OperationState) {
		if atomic.AddInt32(&remaining, -1) == 0 {
			once.Do(fn)
		}
	}
	for _, p := range prereqs {
		p.OnFinish(dec)
	}
}

func (x *Operation) readyToStartLocked() bool {
	for _, p := range x.prereqs {
		if !p.State().terminal() {
			return false
		}
	}
	return true
}

// Finish transitions Executing (or Ready, for operations that never
// truly start a goroutine) to Finished. Safe to call multiple times; only
// the first call has effect.
func (x *Operation) Finish() {
	x.terminalTransition(OperationFinished, false)
}

// Cancel transitions any non-terminal state to Canceled. If the operation
// was Executing, cancelBody is invoked. Canceled operations still satisfy
// the dependency contract: successors may start.
func (x *Operation) Cancel() {
	x.terminalTransition(OperationCanceled, true)
}

func (x *Operation) terminalTransition(target OperationState, invokeCancel bool) {
	x.finishOnce.Do(func() {
		x.mu.Lock()
		wasExecuting := x.state == OperationExecuting
		x.state = target
		cancelFn := x.cancelFn
		hooks := x.finishHooks
		x.finishHooks = nil
		x.mu.Unlock()

		if invokeCancel && wasExecuting && cancelFn != nil {
			cancelFn()
		}
		for _, h := range hooks {
			h(target)
		}
		close(x.done)
	})
}
