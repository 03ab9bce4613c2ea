package flux

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueue_SubmitRunsOperation(t *testing.T) {
	q := newQueue("q", 0)
	defer q.shutdown()

	done := make(chan struct{})
	op := NewOperation(func() { close(done) }, nil)
	q.submit(op)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("operation never started")
	}
}

func TestQueue_HonorsDependencyOrder(t *testing.T) {
	q := newQueue("q", 0)
	defer q.shutdown()

	var mu sync.Mutex
	var order []int

	record := func(n int) {
		mu.Lock()
		order = append(order, n)
		mu.Unlock()
	}

	var a *Operation
	a = NewOperation(func() { record(1); a.Finish() }, nil)
	b := NewOperation(func() { record(2) }, nil)
	b.DependOn(a)

	q.submit(b)
	q.submit(a)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{1, 2}, order)
}

func TestQueue_MaxConcurrencyLimitsParallelism(t *testing.T) {
	q := newQueue("q", 1)
	defer q.shutdown()

	var mu sync.Mutex
	active, maxActive := 0, 0
	release := make(chan struct{})

	mkOp := func() *Operation {
		var op *Operation
		op = NewOperation(func() {
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()
			<-release
			mu.Lock()
			active--
			mu.Unlock()
			op.Finish()
		}, nil)
		return op
	}

	ops := []*Operation{mkOp(), mkOp(), mkOp()}
	for _, op := range ops {
		q.submit(op)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)

	for _, op := range ops {
		select {
		case <-op.Done():
		case <-time.After(time.Second):
			t.Fatal("operation never finished")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, maxActive)
}

func TestQueue_CancelAllCancelsPending(t *testing.T) {
	q := newQueue("q", 1)
	defer q.shutdown()

	block := make(chan struct{})
	blocker := NewOperation(func() { <-block }, nil)
	q.submit(blocker)

	waiting := NewOperation(func() {}, nil)
	q.submit(waiting)

	q.cancelAll()
	close(block)
	blocker.Finish()

	select {
	case <-waiting.Done():
	case <-time.After(time.Second):
		t.Fatal("canceled operation never reached a terminal state")
	}
	require.Equal(t, OperationCanceled, waiting.State())
}
