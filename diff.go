package flux

import (
	"sync"

	"github.com/joeycumines/go-flux/internal/flatpath"
)

// DiffMode selects how a Store with an Encode function dispatches
// TransactionDiffs after each Mutate.
type DiffMode int

const (
	// DiffNone computes no diff even if Encode is configured.
	DiffNone DiffMode = iota
	// DiffSync computes and delivers the diff synchronously, on the
	// goroutine that called Mutate, before Mutate returns.
	DiffSync
	// DiffAsync computes the diff on the goroutine that called Mutate
	// and delivers it on a single per-Store background goroutine that
	// drains diffs in publication order - a
	// "latest value wins" coalescing channel, so a burst of mutations
	// never backs up arbitrarily; only the most recently published
	// not-yet-delivered diff is guaranteed delivery under sustained
	// load.
	DiffAsync
)

// Kinds of PropertyDiff, re-exported from internal/flatpath so callers
// outside this module can inspect TransactionDiff.Changes.
const (
	Added   = flatpath.Added
	Changed = flatpath.Changed
	Removed = flatpath.Removed
)

// TransactionDiff reports the per-path changes a single Mutate call
// produced, flattened and compared via internal/flatpath.
type TransactionDiff struct {
	TransactionID string
	ActionID      string
	Changes       map[string]flatpath.PropertyDiff
}

// Paths returns the changed paths in lexically sorted order, for
// callers that log or render a diff and need reproducible output across
// runs rather than Go's randomized map iteration order.
func (d TransactionDiff) Paths() []string {
	return flatpath.SortedKeys(d.Changes)
}

// latestValue is a size-1 coalescing channel: send never blocks,
// overwriting any value not yet received, matching the corpus's
// longpoll.Channel "latest wins" delivery semantics rather than an
// unbounded queue.
type latestValue[T any] struct {
	ch chan T
}

func newLatestValue[T any]() *latestValue[T] {
	return &latestValue[T]{ch: make(chan T, 1)}
}

func (l *latestValue[T]) send(v T) {
	for {
		select {
		case l.ch <- v:
			return
		default:
		}
		select {
		case <-l.ch:
		default:
		}
	}
}

// diffHub fans a Store's TransactionDiffs out to every subscribed
// handler, and for DiffAsync runs a single lazily-started background
// goroutine draining coalesced diffs in mutation order.
type diffHub struct {
	latest *latestValue[TransactionDiff]

	mu       sync.Mutex
	handlers map[int]func(TransactionDiff)
	nextID   int

	startOnce sync.Once
}

func newDiffHub() *diffHub {
	return &diffHub{
		latest:   newLatestValue[TransactionDiff](),
		handlers: make(map[int]func(TransactionDiff)),
	}
}

func (h *diffHub) ensureStarted() {
	h.startOnce.Do(func() {
		go func() {
			for d := range h.latest.ch {
				h.dispatch(d)
			}
		}()
	})
}

func (h *diffHub) dispatch(d TransactionDiff) {
	h.mu.Lock()
	cbs := make([]func(TransactionDiff), 0, len(h.handlers))
	for _, cb := range h.handlers {
		cbs = append(cbs, cb)
	}
	h.mu.Unlock()
	for _, cb := range cbs {
		cb(d)
	}
}

func (h *diffHub) subscribe(fn func(TransactionDiff)) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.handlers[id] = fn
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.handlers, id)
		h.mu.Unlock()
	}
}

func (h *diffHub) publishAsync(d TransactionDiff) {
	h.ensureStarted()
	h.latest.send(d)
}
