// Package flatpath implements the flat-encoding diff layer: flattening a
// nested map[string]any into a path -> scalar map, and diffing two such
// flat encodings into Added/Changed/Removed entries. It has no
// dependency on the store/executor types and is exercised purely
// through map[string]any, the way catrate/ring.go's ring buffer is kept
// independent of the limiter that uses it.
package flatpath

import (
	"sort"
	"strconv"
	"strings"

	"golang.org/x/exp/maps"
)

// Flat is a path -> scalar map, keyed by the canonical slash-separated
// key-path string.
type Flat map[string]any

// Separator is the fixed flat key-path segment separator.
const Separator = "/"

// Join renders segments as a canonical flat key-path string.
func Join(segments ...string) string {
	return strings.Join(segments, Separator)
}

// Split parses a canonical flat key-path string back into segments. The
// empty string parses to an empty (root) path.
func Split(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, Separator)
}

// appendSegment returns a fresh slice so sibling recursive calls sharing
// the same prefix don't alias and overwrite each other's backing array.
func appendSegment(prefix []string, seg string) []string {
	next := make([]string, len(prefix)+1)
	copy(next, prefix)
	next[len(prefix)] = seg
	return next
}

func isValidSegment(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !((r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

// Flatten walks a nested map (leaves are scalars, or arrays of
// scalars/maps) and produces one Flat entry per leaf, keyed by its
// slash-joined path. Malformed segments (empty, or containing anything
// other than ASCII letters and digits, such as '/') are reported via
// onWarn (which may be nil) and skipped; the rest of the traversal
// continues.
func Flatten(m map[string]any, onWarn func(segment string)) Flat {
	out := make(Flat)
	var walk func(prefix []string, v any)
	walk = func(prefix []string, v any) {
		switch vv := v.(type) {
		case map[string]any:
			for k, val := range vv {
				if !isValidSegment(k) {
					if onWarn != nil {
						onWarn(k)
					}
					continue
				}
				walk(appendSegment(prefix, k), val)
			}
		case []any:
			for i, val := range vv {
				walk(appendSegment(prefix, strconv.Itoa(i)), val)
			}
		default:
			path := Join(prefix...)
			out[path] = v
		}
	}
	walk(nil, m)
	return out
}

// SortedKeys returns m's keys in lexical order, for callers needing a
// deterministic iteration over a Flat or a diff's path -> value map -
// logging a diff, or producing reproducible test output, where Go's
// randomized map iteration order would otherwise make two runs of the
// same mutation print their changes in a different order.
func SortedKeys[M ~map[string]V, V any](m M) []string {
	keys := maps.Keys(m)
	sort.Strings(keys)
	return keys
}
