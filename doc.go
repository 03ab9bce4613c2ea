// Package flux implements an in-process, unidirectional state container:
// a single value-type model is mutated exclusively through declarative
// actions wrapped in transactions, and change notifications are published
// to observers.
//
// A Store binds a Model Storage (the cell owning the model) to an ordered
// list of middleware and an optional parent Store. Actions are scheduled
// by an Executor across three modes: cooperative on the main queue,
// synchronous inline, or asynchronous on a named background queue.
// Transactions submitted together share a GroupError cell, may be wired
// into a dependency DAG via the DSL in dsl.go, and may be throttled per
// action id.
//
// Stores may be projected into child stores via a Lens over a field path;
// mutations on either side are merged through the parent, preserving a
// single source of truth. Diffable stores (those configured with an
// Encode function and DiffSync or DiffAsync) publish a flat path -> value
// TransactionDiff after every mutation that changes at least one path.
package flux
