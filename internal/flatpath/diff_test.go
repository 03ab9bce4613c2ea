package flatpath

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDiff_LabelChangeScenario(t *testing.T) {
	old := Flatten(map[string]any{
		"label":         "Foo",
		"nullableLabel": "Something",
		"nested":        map[string]any{"label": "Foo"},
	}, nil)
	new_ := Flatten(map[string]any{
		"label":  "Bar",
		"nested": map[string]any{"label": "Bar"},
	}, nil)

	d := Diff(old, new_)

	require.Len(t, d, 3)
	require.Equal(t, PropertyDiff{Kind: Changed, Old: "Foo", New: "Bar"}, d["label"])
	require.Equal(t, PropertyDiff{Kind: Changed, Old: "Foo", New: "Bar"}, d["nested/label"])
	require.Equal(t, PropertyDiff{Kind: Removed, Old: "Something"}, d["nullableLabel"])
}

func TestDiff_SelfDiffIsEmpty(t *testing.T) {
	m := map[string]any{
		"a": 1,
		"b": map[string]any{"c": "x", "d": []any{1, 2, 3}},
	}
	flat := Flatten(m, nil)
	require.Empty(t, Diff(flat, flat))
}

func TestDiff_NumericCrossTypeEquality(t *testing.T) {
	old := Flat{"n": int(42)}
	new_ := Flat{"n": float64(42)}
	require.Empty(t, Diff(old, new_))
}

func TestDiff_TimeEquality(t *testing.T) {
	now := time.Now()
	old := Flat{"t": now}
	new_ := Flat{"t": now.Add(0)}
	require.Empty(t, Diff(old, new_))
}

func TestDiff_UnknownTypeConservativelyChanged(t *testing.T) {
	type custom struct{ V int }
	old := Flat{"x": custom{V: 1}}
	new_ := Flat{"x": custom{V: 1}}
	d := Diff(old, new_)
	require.Contains(t, d, "x")
	require.Equal(t, Changed, d["x"].Kind)
}

func TestDiff_BothNilLeavesEqual(t *testing.T) {
	old := Flat{"x": nil}
	new_ := Flat{"x": nil}
	require.Empty(t, Diff(old, new_))
}
