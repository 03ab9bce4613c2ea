package flux

// Group is a set of transactions with no ordering imposed among its own
// members, produced by Concurrent. Sequential treats a Group as a
// single element: every member of the element that follows it depends
// on every member of the Group, not just whichever transaction happens
// to be last in the slice.
type Group []Tx

// sequentialElement normalizes one of Sequential's variadic arguments
// to its member transactions. Panics (a contract violation) on any
// other type.
func sequentialElement(e any) []Tx {
	switch v := e.(type) {
	case Tx:
		return []Tx{v}
	case Group:
		return v
	case []Tx:
		return v
	default:
		panic("flux: Sequential: element must be a Tx, a Group, or a []Tx")
	}
}

// Sequential wires each element to depend on every transaction in the
// element immediately before it, so the elements run strictly in
// submission order regardless of which queue or scheduling mode any
// member is configured with. Each element is a bare Tx, a Group (from
// Concurrent), or a []Tx - a multi-member element's successors depend
// on all of its members, not just the last one. Returns the flattened
// member list in submission order. Executor.RunGroup accepts it, but
// additionally chains each member to the one before it in the slice, so
// members of a Concurrent group then run one after another.
func Sequential(elements ...any) []Tx {
	var all []Tx
	var prev []Tx
	for _, e := range elements {
		cur := sequentialElement(e)
		for _, c := range cur {
			for _, p := range prev {
				c.Operation().DependOn(p.Operation())
			}
		}
		all = append(all, cur...)
		prev = cur
	}
	return all
}

// Concurrent groups txs into one Group element with no ordering imposed
// among its own members: every member may start as soon as the
// element's own prerequisites (wired by an enclosing Sequential) are
// satisfied. It exists for DSL readability/symmetry with Sequential - a
// Concurrent(a, b, c) call site documents "these may race" as clearly
// as Sequential documents "these run in order".
func Concurrent(txs ...Tx) Group {
	return txs
}

// Throttle asserts every transaction in txs shares one ActionID - the
// ThrottlerRegistry coalesces by action id, so a Throttle group whose
// members disagree on ActionID would silently run unthrottled against
// each other. Returns txs unchanged; the actual minimum-delay gating
// comes from each Transaction's own ThrottleDelay, set when it was
// constructed. Panics (a contract violation) on a mismatched ActionID.
func Throttle(txs ...Tx) []Tx {
	if len(txs) == 0 {
		return txs
	}
	id := txs[0].ActionID()
	for _, tx := range txs[1:] {
		if tx.ActionID() != id {
			panic("flux: Throttle: every transaction in the group must share one ActionID")
		}
	}
	return txs
}
