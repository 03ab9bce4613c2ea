package flatpath

import "time"

// DiffKind identifies the category of a PropertyDiff entry.
type DiffKind int

const (
	Added DiffKind = iota
	Changed
	Removed
)

func (k DiffKind) String() string {
	switch k {
	case Added:
		return "added"
	case Changed:
		return "changed"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// PropertyDiff describes how a single flat key-path changed between two
// snapshots.
type PropertyDiff struct {
	Kind DiffKind
	Old  any // unset for Added
	New  any // unset for Removed
}

// Diff compares old and new flat encodings, returning a map of
// path -> PropertyDiff for every path that was added, changed, or
// removed. Paths present in both with dynamically equal values are
// omitted.
func Diff(old, new_ Flat) map[string]PropertyDiff {
	out := make(map[string]PropertyDiff)
	for k, nv := range new_ {
		if ov, ok := old[k]; ok {
			if !dynamicEqual(ov, nv) {
				out[k] = PropertyDiff{Kind: Changed, Old: ov, New: nv}
			}
			continue
		}
		out[k] = PropertyDiff{Kind: Added, New: nv}
	}
	for k, ov := range old {
		if _, ok := new_[k]; !ok {
			out[k] = PropertyDiff{Kind: Removed, Old: ov}
		}
	}
	return out
}

// dynamicEqual compares two leaf values by runtime type: numeric
// equality for numeric scalars, string equality for strings, sequence
// equality for arrays of scalars, date equality for timestamps, and
// both-nil treated as equal. Any other pairing (including two values of
// an unrecognized / user-defined type) is conservatively reported as
// unequal.
func dynamicEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}

	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !dynamicEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// asFloat normalizes the numeric scalar kinds Go's encoding packages
// commonly produce (and the literal int/float written by hand in tests)
// to a comparable float64.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
