package flux

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type appModel struct {
	Label string
	User  userModel
}

type userModel struct {
	Name string
}

func TestStore_UpdateNotifiesObservers(t *testing.T) {
	store := NewStore(appModel{Label: "Foo"})

	var seen []string
	store.Subscribe(func(m appModel) { seen = append(seen, m.Label) })

	store.Update(func(m appModel) appModel { m.Label = "Bar"; return m })

	require.Equal(t, []string{"Bar"}, seen)
	require.Equal(t, "Bar", store.State().Label)
}

func TestStore_PerformWithoutNotifyingSuppressesObservers(t *testing.T) {
	store := NewStore(appModel{Label: "Foo"})

	var calls int
	store.Subscribe(func(appModel) { calls++ })

	store.PerformWithoutNotifying(func() {
		store.Update(func(m appModel) appModel { m.Label = "Bar"; return m })
		store.Update(func(m appModel) appModel { m.Label = "Baz"; return m })
	})

	require.Equal(t, 0, calls)
	require.Equal(t, "Baz", store.State().Label)

	store.Update(func(m appModel) appModel { return m })
	require.Equal(t, 1, calls)
}

func TestStore_PerformWithoutNotifyingNests(t *testing.T) {
	store := NewStore(appModel{})
	var calls int
	store.Subscribe(func(appModel) { calls++ })

	store.PerformWithoutNotifying(func() {
		store.PerformWithoutNotifying(func() {
			store.Update(func(m appModel) appModel { return m })
		})
		store.Update(func(m appModel) appModel { return m })
	})
	require.Equal(t, 0, calls)
}

func TestStore_NotifyObserversIgnoresSuppression(t *testing.T) {
	store := NewStore(appModel{})
	var calls int
	store.Subscribe(func(appModel) { calls++ })

	store.PerformWithoutNotifying(func() {
		store.NotifyObservers()
	})
	require.Equal(t, 1, calls)
}

func TestStore_ChildStoreReadsAndWritesThroughParent(t *testing.T) {
	parent := NewStore(appModel{User: userModel{Name: "Ada"}})
	lens := Lens[appModel, userModel]{
		Get: func(m appModel) userModel { return m.User },
		Set: func(m appModel, u userModel) appModel { m.User = u; return m },
	}
	child := NewChildStore[appModel, userModel](parent, lens)

	require.Equal(t, "Ada", child.State().Name)

	child.Update(func(u userModel) userModel { u.Name = "Grace"; return u })
	require.Equal(t, "Grace", parent.State().User.Name)
	require.Equal(t, "Grace", child.State().Name)
}

func TestStore_ChildStorePropagatesParentMutations(t *testing.T) {
	parent := NewStore(appModel{User: userModel{Name: "Ada"}})
	lens := Lens[appModel, userModel]{
		Get: func(m appModel) userModel { return m.User },
		Set: func(m appModel, u userModel) appModel { m.User = u; return m },
	}
	child := NewChildStore[appModel, userModel](parent, lens)

	var notified userModel
	child.Subscribe(func(u userModel) { notified = u })

	parent.Update(func(m appModel) appModel { m.User.Name = "Hopper"; return m })

	require.Equal(t, "Hopper", notified.Name)
	require.Equal(t, "Hopper", child.State().Name)
}

func TestStore_ParentOfRoundTrips(t *testing.T) {
	parent := NewStore(appModel{})
	lens := Lens[appModel, userModel]{
		Get: func(m appModel) userModel { return m.User },
		Set: func(m appModel, u userModel) appModel { m.User = u; return m },
	}
	child := NewChildStore[appModel, userModel](parent, lens)

	got, ok := ParentOf[appModel](child)
	require.True(t, ok)
	require.Same(t, parent, got)

	_, ok = ParentOf[userModel](child)
	require.False(t, ok)
}

func TestNewChildStore_PanicsOnNonStructModel(t *testing.T) {
	parent := NewStore(map[string]int{})
	lens := Lens[map[string]int, int]{
		Get: func(m map[string]int) int { return m["x"] },
		Set: func(m map[string]int, v int) map[string]int { m["x"] = v; return m },
	}
	require.Panics(t, func() { NewChildStore[map[string]int, int](parent, lens) })
}

func TestStore_DiffSyncDeliversChangedPaths(t *testing.T) {
	encode := func(m appModel) map[string]any {
		return map[string]any{"label": m.Label, "user": map[string]any{"name": m.User.Name}}
	}
	store := NewStore(appModel{Label: "Foo", User: userModel{Name: "Ada"}}, WithEncode(encode, DiffSync))

	var diffs []TransactionDiff
	store.SubscribeDiffs(func(d TransactionDiff) { diffs = append(diffs, d) })

	store.Update(func(m appModel) appModel { m.Label = "Bar"; return m })

	require.Len(t, diffs, 1)
	require.Contains(t, diffs[0].Changes, "label")
	require.Equal(t, Changed, diffs[0].Changes["label"].Kind)
}

func TestStore_DiffNoneNeverDelivers(t *testing.T) {
	store := NewStore(appModel{Label: "Foo"})
	var count int
	store.SubscribeDiffs(func(TransactionDiff) { count++ })
	store.Update(func(m appModel) appModel { m.Label = "Bar"; return m })
	require.Equal(t, 0, count)
}
