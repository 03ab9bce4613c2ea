package flux

import (
	"sync"
	"time"
)

// for testing purposes, mirrors catrate/limiter.go's test seams.
var (
	throttleTimeNow    = time.Now
	throttleAfterFunc  = time.AfterFunc
	throttleEpsilonDur = time.Duration(1) // delays <= this are treated as zero
)

// ThrottlerRegistry gates action execution per action id to at most one
// run per minimum-delay window, coalescing superseded submissions. The
// zero value is ready to use.
type ThrottlerRegistry struct {
	mu    sync.Mutex
	cells map[string]*throttleCell
}

type throttleCell struct {
	mu            sync.Mutex
	lastRun       time.Time
	pendingTimer  *time.Timer
	pendingCancel func()
}

// NewThrottlerRegistry constructs an empty registry.
func NewThrottlerRegistry() *ThrottlerRegistry {
	return &ThrottlerRegistry{cells: make(map[string]*throttleCell)}
}

func (r *ThrottlerRegistry) cellFor(actionID string) *throttleCell {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cells == nil {
		r.cells = make(map[string]*throttleCell)
	}
	c, ok := r.cells[actionID]
	if !ok {
		// Registration counts as the start of the window: a never-before-
		// seen action id must still wait out one full minDelay before its
		// first execute runs, the same as any subsequent submission.
		c = &throttleCell{lastRun: throttleTimeNow()}
		r.cells[actionID] = c
	}
	return c
}

// Submit registers execute to run for actionID, honoring minDelay as a
// minimum gap since the id was first seen (registration) or last ran,
// whichever is more recent. If a pending (not yet fired) execution
// already exists for actionID, its cancel callback is invoked and it is
// dropped. Delays at or below one nanosecond are treated as a no-op
// throttle: execute runs immediately.
func (r *ThrottlerRegistry) Submit(actionID string, minDelay time.Duration, execute func(), cancel func()) {
	if minDelay <= throttleEpsilonDur {
		execute()
		return
	}

	c := r.cellFor(actionID)

	c.mu.Lock()
	if c.pendingTimer != nil {
		c.pendingTimer.Stop()
		pendingCancel := c.pendingCancel
		c.pendingCancel = nil
		c.pendingTimer = nil
		c.mu.Unlock()
		if pendingCancel != nil {
			pendingCancel()
		}
		c.mu.Lock()
	}

	now := throttleTimeNow()
	if now.Sub(c.lastRun) >= minDelay {
		c.lastRun = now
		c.mu.Unlock()
		execute()
		return
	}

	wait := minDelay - now.Sub(c.lastRun)
	c.pendingCancel = cancel
	c.pendingTimer = throttleAfterFunc(wait, func() {
		c.mu.Lock()
		c.lastRun = throttleTimeNow()
		c.pendingCancel = nil
		c.pendingTimer = nil
		c.mu.Unlock()
		execute()
	})
	c.mu.Unlock()
}
