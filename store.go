package flux

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/joeycumines/go-flux/internal/flatpath"
)

// StoreOption configures a Store at construction time, following the
// functional-options idiom shared across the corpus (logiface's
// Option[E], microbatch's BatcherConfig).
type StoreOption[M any] func(*storeConfig[M])

type storeConfig[M any] struct {
	executor *Executor
	logger   Logger
	encode   func(M) map[string]any
	diffMode DiffMode
}

// WithExecutor binds the Store to an existing Executor, e.g. so several
// Stores share one named-queue registry and ThrottlerRegistry. Without
// this option, NewStore/NewChildStore construct a private Executor.
func WithExecutor[M any](ex *Executor) StoreOption[M] {
	return func(c *storeConfig[M]) { c.executor = ex }
}

// WithStoreLogger routes the Store's diagnostics (malformed flat
// key-path warnings) through l.
func WithStoreLogger[M any](l Logger) StoreOption[M] {
	return func(c *storeConfig[M]) { c.logger = l }
}

// WithEncode configures the Store to flatten M to a path -> scalar map
// after every Mutate, enabling diffing. diffMode selects when the
// resulting TransactionDiff is delivered; DiffNone
// (the default) computes nothing even with Encode configured.
func WithEncode[M any](encode func(M) map[string]any, diffMode DiffMode) StoreOption[M] {
	return func(c *storeConfig[M]) {
		c.encode = encode
		c.diffMode = diffMode
	}
}

// Store binds a Model Storage cell to an Executor and a Middleware Bus,
// and is the primary entry point for constructing and running
// Transactions against a model of type M. The zero value is not usable;
// construct with NewStore or NewChildStore.
type Store[M any] struct {
	cell   storageCell[M]
	ex     *Executor
	logger Logger
	parent any // *Store[T] for whatever T the parent was built with, or nil

	encode   func(M) map[string]any
	diffMode DiffMode
	diffHub  *diffHub

	mw middlewareBus

	suppressMu    sync.Mutex
	suppressDepth int

	obsMu     sync.Mutex
	observers map[int]func(M)
	nextObsID int
}

// NewStore constructs a root Store owning initial directly.
func NewStore[M any](initial M, opts ...StoreOption[M]) *Store[M] {
	return newStore[M](newRootCell(initial), nil, opts...)
}

// NewChildStore constructs a Store whose model F is a lens-projected
// subtree of an already-existing Store[T]. F must be record-shaped (a
// struct), matching the record-oriented Flat Encoder; panics otherwise.
// Reads and writes delegate to parent through lens; parent-originated
// mutations of the projected subtree are visible through the child's own
// Subscribe callbacks too, since the child storage cell resubscribes to
// the parent's notifier.
func NewChildStore[T, F any](parent *Store[T], lens Lens[T, F], opts ...StoreOption[F]) *Store[F] {
	var zero F
	if t := reflect.TypeOf(zero); t == nil || t.Kind() != reflect.Struct {
		panic(fmt.Sprintf("%v: %T", ErrNotRecordShaped, zero))
	}
	return newStore[F](newChildCell[T, F](parent.cell, lens), parent, opts...)
}

func newStore[M any](cell storageCell[M], parent any, opts ...StoreOption[M]) *Store[M] {
	var cfg storeConfig[M]
	for _, o := range opts {
		o(&cfg)
	}
	s := &Store[M]{
		cell:      cell,
		ex:        cfg.executor,
		logger:    logOrNop(cfg.logger),
		parent:    parent,
		encode:    cfg.encode,
		diffMode:  cfg.diffMode,
		observers: make(map[int]func(M)),
	}
	if s.ex == nil {
		s.ex = NewExecutor()
	}
	if s.encode != nil {
		s.diffHub = newDiffHub()
	}
	cell.subscribe(s.fireObservers)
	return s
}

// ParentOf asserts child's parent Store is of model type T, returning
// ok=false if child is a root Store or its parent was built with a
// different model type.
func ParentOf[T, M any](child *Store[M]) (parent *Store[T], ok bool) {
	parent, ok = child.parent.(*Store[T])
	return parent, ok
}

// MustParentOf is ParentOf, panicking with ErrStoreTypeMismatch instead
// of returning ok=false.
func MustParentOf[T, M any](child *Store[M]) *Store[T] {
	parent, ok := ParentOf[T](child)
	if !ok {
		panic(fmt.Sprintf("%v: child has no parent of type %T", ErrStoreTypeMismatch, *new(T)))
	}
	return parent
}

// State returns the current model value.
func (s *Store[M]) State() M {
	return s.cell.read()
}

// Executor returns the Store's bound Executor.
func (s *Store[M]) Executor() *Executor {
	return s.ex
}

// Subscribe registers fn to be called with the current state after
// every Mutate, unless the mutation happened inside
// PerformWithoutNotifying. If the Store's Executor has a main queue
// (WithMainQueue), fn runs there: inline when the mutation happens on
// the main queue's goroutine, otherwise posted to it. Without a main
// queue, fn runs inline on the mutating goroutine. Returns an
// unsubscribe func.
func (s *Store[M]) Subscribe(fn func(M)) (unsubscribe func()) {
	s.obsMu.Lock()
	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = fn
	s.obsMu.Unlock()
	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

// SubscribeDiffs registers fn to receive every TransactionDiff computed
// by a Store configured with WithEncode. A Store with no Encode
// configured never calls fn; the returned unsubscribe is a no-op in
// that case.
func (s *Store[M]) SubscribeDiffs(fn func(TransactionDiff)) (unsubscribe func()) {
	if s.diffHub == nil {
		return func() {}
	}
	return s.diffHub.subscribe(fn)
}

// NotifyObservers manually fires every registered observer with the
// current state, bypassing any PerformWithoutNotifying suppression in
// effect. Useful to force a resync after a batch of silent mutations.
func (s *Store[M]) NotifyObservers() {
	v := s.cell.read()
	s.obsMu.Lock()
	cbs := make([]func(M), 0, len(s.observers))
	for _, cb := range s.observers {
		cbs = append(cbs, cb)
	}
	s.obsMu.Unlock()
	for _, cb := range cbs {
		cb(v)
	}
}

func (s *Store[M]) fireObservers() {
	s.suppressMu.Lock()
	suppressed := s.suppressDepth > 0
	s.suppressMu.Unlock()
	if suppressed {
		return
	}
	if mq := s.ex.main; mq != nil && !mq.isMain() {
		mq.post(s.NotifyObservers)
		return
	}
	s.NotifyObservers()
}

// PerformWithoutNotifying runs fn, during which any Mutate this Store
// performs (directly, or via a child Store projecting a subtree of this
// one) does not invoke this Store's registered observers. Nestable;
// observers resume once the outermost call returns.
func (s *Store[M]) PerformWithoutNotifying(fn func()) {
	s.suppressMu.Lock()
	s.suppressDepth++
	s.suppressMu.Unlock()
	defer func() {
		s.suppressMu.Lock()
		s.suppressDepth--
		s.suppressMu.Unlock()
	}()
	fn()
}

// RegisterMiddleware adds m to this Store's Middleware Bus. Idempotent
// by reference identity.
func (s *Store[M]) RegisterMiddleware(m Middleware) { s.mw.register(m) }

// UnregisterMiddleware removes m from this Store's Middleware Bus.
func (s *Store[M]) UnregisterMiddleware(m Middleware) { s.mw.unregister(m) }

func (s *Store[M]) notifyMiddleware(info TransitionInfo) { s.mw.notify(info) }

// Mutate applies fn to the current model, attributing the change to tx
// for middleware and diffing, and returns the new value. Called from an
// Action's Reduce body via TxContext.Mutate; not meant to be called
// directly by user code outside of a transaction (see Store.Update for
// that case).
func (s *Store[M]) Mutate(tx *Transaction[M], fn func(M) M) M {
	old, new_ := s.cell.mutate(fn)
	s.dispatchDiff(tx, old, new_)
	return new_
}

// Update performs a simple synchronous mutation outside of an explicit
// user-defined Action, tagged with the reserved SignpostModelUpdate
// action id so middleware and diffing observe it exactly like any other
// transaction.
func (s *Store[M]) Update(fn func(M) M) M {
	var result M
	action := Action[M]{
		ID: SignpostModelUpdate,
		Reduce: func(ctx *TxContext[M]) {
			result = ctx.Mutate(fn)
			ctx.Fulfill()
		},
	}
	s.Run(action, ModeSyncInline, "", 0, nil)
	return result
}

func (s *Store[M]) dispatchDiff(tx *Transaction[M], old, new_ M) {
	if s.encode == nil || s.diffMode == DiffNone {
		return
	}
	oldFlat := flatpath.Flatten(s.encode(old), s.warnPath)
	newFlat := flatpath.Flatten(s.encode(new_), s.warnPath)
	changes := flatpath.Diff(oldFlat, newFlat)
	if len(changes) == 0 {
		return
	}
	d := TransactionDiff{TransactionID: tx.ID(), ActionID: tx.ActionID(), Changes: changes}
	switch s.diffMode {
	case DiffSync:
		s.diffHub.dispatch(d)
	case DiffAsync:
		s.diffHub.publishAsync(d)
	}
}

func (s *Store[M]) warnPath(segment string) {
	s.logger.Warnf("malformed flat key-path segment %q skipped", segment)
}

// Transaction constructs a Transaction for action against this Store,
// with the given scheduling parameters, without scheduling it.
func (s *Store[M]) Transaction(action Action[M], mode SchedulingMode, queueName string, throttle time.Duration) *Transaction[M] {
	return newTransaction[M](s.ex.NextID(), action, s, mode, queueName, throttle)
}

// Run constructs a Transaction for action and schedules it via this
// Store's Executor, returning it. Blocks for ModeMainCooperative and
// ModeSyncInline. If completion is non-nil, it is invoked exactly once,
// on the main queue (or inline, if none is configured), once the
// transaction reaches a terminal state.
func (s *Store[M]) Run(action Action[M], mode SchedulingMode, queueName string, throttle time.Duration, completion func(*GroupError)) *Transaction[M] {
	return s.RunCtx(context.Background(), action, mode, queueName, throttle, completion)
}

// RunCtx is Run, bounded by ctx for the blocking scheduling modes.
func (s *Store[M]) RunCtx(ctx context.Context, action Action[M], mode SchedulingMode, queueName string, throttle time.Duration, completion func(*GroupError)) *Transaction[M] {
	tx := s.Transaction(action, mode, queueName, throttle)
	s.ex.RunCtx(ctx, tx, completion)
	return tx
}

// RunGroup constructs one Transaction per action, wires a shared
// GroupError across all of them, links them with a linear dependency
// chain (action i depends on action i-1), and schedules each via this
// Store's Executor. If completion is non-nil, it is invoked exactly
// once, on the main queue (or inline, if none is configured), once
// every transaction in the group has reached a terminal state.
func (s *Store[M]) RunGroup(actions []Action[M], mode SchedulingMode, queueName string, throttle time.Duration, completion func(*GroupError)) ([]*Transaction[M], *GroupError) {
	txs := make([]*Transaction[M], len(actions))
	asTx := make([]Tx, len(actions))
	for i, a := range actions {
		txs[i] = s.Transaction(a, mode, queueName, throttle)
		asTx[i] = txs[i]
	}
	g := s.ex.RunGroup(asTx, completion)
	return txs, g
}
