package flux

import "errors"

// ErrCanceled is the distinguished error kind set on a GroupError when a
// transaction or queue is canceled.
var ErrCanceled = errors.New("flux: canceled")

// ErrUnknownQueue is logged (not returned) when a ModeAsyncNamed
// Transaction names a queue that was never registered with
// Executor.RegisterQueue; the Transaction still runs on the default
// background queue.
var ErrUnknownQueue = errors.New("flux: unknown queue, falling back to default")

// ErrNotRecordShaped is the panic value wrapped into NewChildStore's
// contract-violation message when the child model type is not a struct.
var ErrNotRecordShaped = errors.New("flux: model type is not record-shaped (must be a struct)")

// ErrStoreTypeMismatch is never returned: its message is formatted into
// MustParentOf's panic when a child Store's parent is not of the
// asserted type (ParentOf reports that case as ok=false).
var ErrStoreTypeMismatch = errors.New("flux: parent store model type mismatch")

// Signpost action ids, reserved for mutations that occur outside an
// explicit transaction.
const (
	SignpostModelUpdate = "__signpost_model_update"
	SignpostPrior       = "__signpost_prior"
	SignpostUndoRedo    = "__signpost_undo_redo"
)
