package flux

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// goroutineID parses the numeric goroutine id out of the header line of
// this goroutine's runtime.Stack dump ("goroutine 123 [running]: ...").
// There is no supported public API for this; it exists purely as a
// best-effort identity check for ModeMainCooperative's "am I already on
// the main queue" fast path. Returns -1 if the header can't be parsed,
// which simply means isMain reports false.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	const prefix = "goroutine "
	if !bytes.HasPrefix(b, []byte(prefix)) {
		return -1
	}
	b = b[len(prefix):]
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return -1
	}
	return id
}

// mainQueue is a single cooperatively-scheduled queue bound to exactly
// one goroutine, the backing primitive for ModeMainCooperative: an
// application's designated main/UI/event-loop goroutine calls pump once,
// and every
// other goroutine reaches the main queue only via post. isMain lets a
// caller already running on that goroutine skip the post-and-wait
// round trip entirely.
type mainQueue struct {
	mu    sync.Mutex
	tasks []func()
	bound bool
	goid  int64
	wake  chan struct{}
}

func newMainQueue() *mainQueue {
	return &mainQueue{wake: make(chan struct{}, 1)}
}

// pump binds the calling goroutine as the main queue's thread and drains
// posted tasks, in submission order, until stop is closed. Must be
// called exactly once, from the goroutine meant to own the main queue.
func (q *mainQueue) pump(stop <-chan struct{}) {
	q.mu.Lock()
	q.bound = true
	q.goid = goroutineID()
	q.mu.Unlock()

	for {
		q.mu.Lock()
		pending := q.tasks
		q.tasks = nil
		q.mu.Unlock()

		for _, t := range pending {
			t()
		}

		select {
		case <-stop:
			return
		case <-q.wake:
		}
	}
}

// isMain reports whether the calling goroutine is the bound main-queue
// goroutine. Always false before pump's first iteration records an id.
func (q *mainQueue) isMain() bool {
	q.mu.Lock()
	bound, goid := q.bound, q.goid
	q.mu.Unlock()
	return bound && goid == goroutineID()
}

// post schedules fn to run on the main queue's goroutine and returns
// immediately, waking pump if it is currently blocked waiting for work.
func (q *mainQueue) post(fn func()) {
	q.mu.Lock()
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
