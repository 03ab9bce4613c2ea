package flux

import "sync"

// TransitionInfo describes one Transaction state transition, passed to
// every registered Middleware synchronously on the thread performing the
// transition. It is intentionally non-generic so a Middleware
// implementation never needs to know a Store's model type.
type TransitionInfo struct {
	TransactionID string
	ActionID      string
	State         TransactionState
	// Err is the GroupError cell's first error at the time of this
	// transition, if any (typically only set alongside Canceled, or a
	// Completed transition following an earlier sibling's rejection).
	Err error
	// TransactionRef is the originating Tx, for middleware that needs
	// more than the flattened fields above (e.g. to call DependOn or
	// inspect ThrottleDelay).
	TransactionRef Tx
}

// Middleware observes every Transaction state transition across every
// Store it is registered on.
type Middleware interface {
	OnStateChange(info TransitionInfo)
}

// MiddlewareFunc adapts a plain function to Middleware. Note: func
// values are not comparable, so a MiddlewareFunc never matches any
// registered middleware - registering the same value twice adds it
// twice, and unregistering one has no effect. Prefer a pointer-receiver
// type for middleware that must be idempotently (re-)registered or
// later unregistered.
type MiddlewareFunc func(info TransitionInfo)

func (f MiddlewareFunc) OnStateChange(info TransitionInfo) { f(info) }

// middlewareBus is an ordered list of Middleware, registration idempotent
// by reference identity, notified synchronously on every transition.
type middlewareBus struct {
	mu   sync.Mutex
	list []Middleware
}

func (b *middlewareBus) register(m Middleware) {
	if m == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.list {
		if sameMiddleware(existing, m) {
			return
		}
	}
	b.list = append(b.list, m)
}

func (b *middlewareBus) unregister(m Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, existing := range b.list {
		if sameMiddleware(existing, m) {
			b.list = append(b.list[:i], b.list[i+1:]...)
			return
		}
	}
}

func (b *middlewareBus) notify(info TransitionInfo) {
	b.mu.Lock()
	snapshot := append([]Middleware(nil), b.list...)
	b.mu.Unlock()
	for _, m := range snapshot {
		m.OnStateChange(info)
	}
}

// sameMiddleware compares by reference identity (==). Comparing two
// interface values panics only when both share an identical, non-
// comparable dynamic type (e.g. two func-backed MiddlewareFunc values);
// in that case they are treated as distinct rather than propagating the
// panic, since such middleware can't meaningfully be deduplicated by
// identity anyway.
func sameMiddleware(a, b Middleware) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}
