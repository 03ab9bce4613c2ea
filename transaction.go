package flux

import (
	"sync"
	"time"
)

// SchedulingMode selects how a Transaction's Operation is run.
type SchedulingMode int

const (
	// ModeMainCooperative runs inline if the caller is already on the
	// main queue, otherwise posts to the main queue and blocks the
	// caller until finish.
	ModeMainCooperative SchedulingMode = iota
	// ModeSyncInline runs inline on the calling goroutine, ignoring
	// queues entirely, blocking until finish.
	ModeSyncInline
	// ModeAsyncNamed enqueues on a named queue (or the default
	// background queue) and returns immediately.
	ModeAsyncNamed
)

// TransactionState is the Transaction state machine.
type TransactionState int

const (
	TransactionPending TransactionState = iota
	TransactionStarted
	TransactionCompleted
	TransactionCanceled
)

func (s TransactionState) String() string {
	switch s {
	case TransactionPending:
		return "pending"
	case TransactionStarted:
		return "started"
	case TransactionCompleted:
		return "completed"
	case TransactionCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Action is a user-defined value describing one state change. Reduce
// is called once per transaction and may call ctx.Mutate,
// and must eventually call ctx.Fulfill or ctx.Reject. Cancel is called
// at most once, only if the transaction was canceled while Reduce's work
// was still outstanding; it is expected to compensate/roll back.
type Action[M any] struct {
	ID     string
	Reduce func(ctx *TxContext[M])
	Cancel func(ctx *TxContext[M])
}

// TxContext is exposed to an Action's Reduce/Cancel bodies.
type TxContext[M any] struct {
	Operation   *Operation
	Store       *Store[M]
	GroupError  *GroupError
	Transaction *Transaction[M]
}

// Mutate is shorthand for Store.Mutate(tx, fn), attributing the mutation
// to this context's transaction.
func (c *TxContext[M]) Mutate(fn func(M) M) M {
	return c.Store.Mutate(c.Transaction, fn)
}

// Fulfill completes the transaction successfully.
func (c *TxContext[M]) Fulfill() {
	c.Operation.Finish()
}

// Reject records err on the shared GroupError cell (first writer wins)
// and completes the transaction's operation.
func (c *TxContext[M]) Reject(err error) {
	c.GroupError.Reject(err)
	c.Operation.Finish()
}

// RejectOnPrevious finishes this transaction and returns true, iff the
// shared GroupError cell already holds an error from an earlier
// transaction in the same group. Intended as an idiomatic short-circuit
// at the head of an Action's Reduce body.
func (c *TxContext[M]) RejectOnPrevious() bool {
	if c.GroupError.HasError() {
		c.Operation.Finish()
		return true
	}
	return false
}

// Tx is the type-erased handle the Executor and the DSL operate on,
// allowing a single dependency-wired group to span Transactions against
// stores of different model types. *Transaction[M] implements Tx for
// every M. The unexported methods seal the interface to this package.
type Tx interface {
	ID() string
	ActionID() string
	Operation() *Operation
	Mode() SchedulingMode
	QueueName() string
	ThrottleDelay() time.Duration
	State() TransactionState

	setGroupError(g *GroupError)
	groupErrorCell() *GroupError
}

// Transaction is the running instance of an Action against a Store.
// Construct via Store.Transaction or Store.Run;
// the zero value is not usable.
type Transaction[M any] struct {
	id        string
	action    Action[M]
	store     *Store[M]
	mode      SchedulingMode
	queueName string
	throttle  time.Duration

	op *Operation

	mu       sync.Mutex
	state    TransactionState
	groupErr *GroupError
}

func newTransaction[M any](id string, action Action[M], store *Store[M], mode SchedulingMode, queueName string, throttle time.Duration) *Transaction[M] {
	tx := &Transaction[M]{
		id:        id,
		action:    action,
		store:     store,
		mode:      mode,
		queueName: queueName,
		throttle:  throttle,
		state:     TransactionPending,
	}

	ctx := &TxContext[M]{Store: store, Transaction: tx}
	tx.op = NewOperation(
		func() {
			tx.setState(TransactionStarted)
			ctx.Operation = tx.op
			ctx.GroupError = tx.groupErrorCell()
			if action.Reduce != nil {
				action.Reduce(ctx)
			} else {
				tx.op.Finish()
			}
		},
		func() {
			ctx.Operation = tx.op
			ctx.GroupError = tx.groupErrorCell()
			if action.Cancel != nil {
				action.Cancel(ctx)
			}
		},
	)
	tx.op.OnFinish(func(final OperationState) {
		if final == OperationCanceled {
			tx.groupErrorCell().Reject(ErrCanceled)
			tx.setState(TransactionCanceled)
		} else {
			tx.setState(TransactionCompleted)
		}
	})
	tx.setState(TransactionPending)

	return tx
}

func (tx *Transaction[M]) setState(s TransactionState) {
	tx.mu.Lock()
	tx.state = s
	tx.mu.Unlock()
	tx.store.notifyMiddleware(TransitionInfo{
		TransactionID: tx.id,
		ActionID:      tx.action.ID,
		State:         s,
		Err:           tx.groupErrorCell().FirstError(),
		TransactionRef: tx,
	})
}

// ID returns the transaction's Push-ID.
func (tx *Transaction[M]) ID() string { return tx.id }

// ActionID returns the id of the wrapped Action.
func (tx *Transaction[M]) ActionID() string { return tx.action.ID }

// Operation returns the underlying AsyncOperation.
func (tx *Transaction[M]) Operation() *Operation { return tx.op }

// Mode returns the configured scheduling mode.
func (tx *Transaction[M]) Mode() SchedulingMode { return tx.mode }

// QueueName returns the configured named queue (only meaningful under
// ModeAsyncNamed; empty means the default background queue).
func (tx *Transaction[M]) QueueName() string { return tx.queueName }

// ThrottleDelay returns the configured per-action-id minimum delay.
func (tx *Transaction[M]) ThrottleDelay() time.Duration { return tx.throttle }

// State returns the current TransactionState.
func (tx *Transaction[M]) State() TransactionState {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.state
}

// DependOn wires dependency edges at the Operation level: tx will not
// start until every one of others has reached a terminal state.
func (tx *Transaction[M]) DependOn(others ...Tx) {
	for _, o := range others {
		tx.op.DependOn(o.Operation())
	}
}

func (tx *Transaction[M]) setGroupError(g *GroupError) {
	tx.mu.Lock()
	tx.groupErr = g
	tx.mu.Unlock()
}

func (tx *Transaction[M]) groupErrorCell() *GroupError {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.groupErr == nil {
		tx.groupErr = NewGroupError()
	}
	return tx.groupErr
}

var _ Tx = (*Transaction[struct{}])(nil)
