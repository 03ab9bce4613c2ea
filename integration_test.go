package flux

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestScenario_CounterIncrements covers the simplest end-to-end path:
// one Store, one synchronous Action, one observer.
func TestScenario_CounterIncrements(t *testing.T) {
	store := NewStore(counterModel{})
	var seen []int
	store.Subscribe(func(m counterModel) { seen = append(seen, m.N) })

	increment := Action[counterModel]{
		ID: "increment",
		Reduce: func(ctx *TxContext[counterModel]) {
			ctx.Mutate(func(m counterModel) counterModel { m.N++; return m })
			ctx.Fulfill()
		},
	}

	for i := 0; i < 3; i++ {
		store.Run(increment, ModeSyncInline, "", 0, nil)
	}

	require.Equal(t, []int{1, 2, 3}, seen)
	require.Equal(t, 3, store.State().N)
}

// TestScenario_ChainOfThree covers three transactions run as one group,
// automatically chained in submission order by RunGroup.
func TestScenario_ChainOfThree(t *testing.T) {
	store := NewStore(counterModel{})
	mk := func(delta int) Action[counterModel] {
		return Action[counterModel]{
			ID: "add",
			Reduce: func(ctx *TxContext[counterModel]) {
				ctx.Mutate(func(m counterModel) counterModel { m.N += delta; return m })
				ctx.Fulfill()
			},
		}
	}

	a := store.Transaction(mk(1), ModeSyncInline, "", 0)
	b := store.Transaction(mk(10), ModeSyncInline, "", 0)
	c := store.Transaction(mk(100), ModeSyncInline, "", 0)

	g := store.Executor().RunGroup([]Tx{a, b, c}, nil)
	require.False(t, g.HasError())
	require.Equal(t, 111, store.State().N)
	require.Equal(t, TransactionCompleted, a.State())
	require.Equal(t, TransactionCompleted, b.State())
	require.Equal(t, TransactionCompleted, c.State())
}

// TestScenario_CancellationPropagates covers an async transaction
// canceled mid-flight, whose dependent still reaches a terminal state.
func TestScenario_CancellationPropagates(t *testing.T) {
	store := NewStore(counterModel{})
	block := make(chan struct{})
	started := make(chan struct{})

	a := store.Transaction(Action[counterModel]{
		ID: "a",
		Reduce: func(ctx *TxContext[counterModel]) {
			close(started)
			<-block
			ctx.Fulfill()
		},
		Cancel: func(ctx *TxContext[counterModel]) {
			ctx.GroupError.SetUserInfo("a-rolled-back", true)
		},
	}, ModeAsyncNamed, "", 0)

	b := store.Transaction(Action[counterModel]{
		ID: "b",
		Reduce: func(ctx *TxContext[counterModel]) {
			if ctx.RejectOnPrevious() {
				return
			}
			ctx.Mutate(func(m counterModel) counterModel { m.N++; return m })
			ctx.Fulfill()
		},
	}, ModeAsyncNamed, "", 0)

	g := store.Executor().RunGroup([]Tx{a, b}, nil)
	<-started
	a.Operation().Cancel()
	close(block)

	select {
	case <-b.Operation().Done():
	case <-time.After(time.Second):
		t.Fatal("dependent transaction never reached a terminal state")
	}

	require.Equal(t, TransactionCanceled, a.State())
	require.Equal(t, TransactionCompleted, b.State())
	require.ErrorIs(t, g.FirstError(), ErrCanceled)
	v, ok := g.UserInfo("a-rolled-back")
	require.True(t, ok)
	require.Equal(t, true, v)
	require.Equal(t, 0, store.State().N, "b must have short-circuited via RejectOnPrevious")
}

// TestScenario_ParentChildReconciliation covers a child store projecting
// a subtree of a parent, with mutations on either side staying merged.
func TestScenario_ParentChildReconciliation(t *testing.T) {
	parent := NewStore(appModel{Label: "root", User: userModel{Name: "Ada"}})
	lens := Lens[appModel, userModel]{
		Get: func(m appModel) userModel { return m.User },
		Set: func(m appModel, u userModel) appModel { m.User = u; return m },
	}
	child := NewChildStore[appModel, userModel](parent, lens)

	var parentSeen, childSeen []string
	parent.Subscribe(func(m appModel) { parentSeen = append(parentSeen, m.User.Name) })
	child.Subscribe(func(u userModel) { childSeen = append(childSeen, u.Name) })

	child.Update(func(u userModel) userModel { u.Name = "Grace"; return u })
	parent.Update(func(m appModel) appModel { m.User.Name = "Hopper"; return m })

	require.Equal(t, []string{"Grace", "Hopper"}, parentSeen)
	require.Equal(t, []string{"Grace", "Hopper"}, childSeen)
	require.Equal(t, "Hopper", parent.State().User.Name)
	require.Equal(t, "Hopper", child.State().Name)
}

// TestScenario_DiffOfLabelChange covers a Store configured with Encode,
// producing a TransactionDiff of exactly the changed paths.
func TestScenario_DiffOfLabelChange(t *testing.T) {
	type labelModel struct {
		Label         string
		NullableLabel string
		HasNullable   bool
	}
	encode := func(m labelModel) map[string]any {
		out := map[string]any{"label": m.Label}
		if m.HasNullable {
			out["nullableLabel"] = m.NullableLabel
		}
		return out
	}

	store := NewStore(labelModel{Label: "Foo", NullableLabel: "Something", HasNullable: true}, WithEncode(encode, DiffSync))

	var diffs []TransactionDiff
	store.SubscribeDiffs(func(d TransactionDiff) { diffs = append(diffs, d) })

	store.Update(func(m labelModel) labelModel {
		m.Label = "Bar"
		m.HasNullable = false
		return m
	})

	require.Len(t, diffs, 1)
	require.Len(t, diffs[0].Changes, 2)
	require.Equal(t, Changed, diffs[0].Changes["label"].Kind)
	require.Equal(t, Removed, diffs[0].Changes["nullableLabel"].Kind)
}

// TestScenario_ThrottledAction covers a burst of throttled submissions
// coalescing to a single deferred execution.
func TestScenario_ThrottledAction(t *testing.T) {
	now := time.UnixMilli(0)
	defer func() {
		throttleTimeNow = time.Now
		throttleAfterFunc = time.AfterFunc
	}()
	throttleTimeNow = func() time.Time { return now }

	var fired []func()
	throttleAfterFunc = func(d time.Duration, f func()) *time.Timer {
		fired = append(fired, f)
		return time.NewTimer(time.Hour)
	}

	store := NewStore(counterModel{})
	ex := store.Executor()

	mk := func() Action[counterModel] {
		return Action[counterModel]{
			ID: "save",
			Reduce: func(ctx *TxContext[counterModel]) {
				ctx.Mutate(func(m counterModel) counterModel { m.N++; return m })
				ctx.Fulfill()
			},
		}
	}

	// all three use ModeAsyncNamed: every submission in the burst is
	// deferred by the throttler, and ModeAsyncNamed never blocks the
	// caller waiting for that, unlike the blocking modes.
	first := store.Transaction(mk(), ModeAsyncNamed, "", 100*time.Millisecond)
	ex.Run(first, nil)
	require.Equal(t, 0, store.State().N, "a never-before-seen action id still waits out the window")

	second := store.Transaction(mk(), ModeAsyncNamed, "", 100*time.Millisecond)
	ex.Run(second, nil)
	require.Equal(t, 0, store.State().N, "second submission supersedes the pending first")

	third := store.Transaction(mk(), ModeAsyncNamed, "", 100*time.Millisecond)
	ex.Run(third, nil)
	require.Equal(t, 0, store.State().N, "third submission supersedes the pending second")

	require.Len(t, fired, 3)
	fired[2]()

	select {
	case <-third.Operation().Done():
	case <-time.After(time.Second):
		t.Fatal("the coalesced throttled submission never ran")
	}
	require.Equal(t, 1, store.State().N, "only the latest coalesced submission ever runs")
	require.Equal(t, TransactionCanceled, first.State())
	require.Equal(t, TransactionCanceled, second.State())
	require.Equal(t, TransactionCompleted, third.State())
}
