package multipool

import (
	"fmt"

	"github.com/pkg/errors"
)

// LoaderError wraps a failure returned by the user-supplied Loader. It is
// the only error that crosses the Borrow boundary in the steady state: no
// pool state is mutated when the loader fails, and no resourceKey is left
// behind.
type LoaderError struct {
	Category any
	Err      error
}

func (e *LoaderError) Error() string {
	return fmt.Sprintf("multipool: loader failed for category %v: %v", e.Category, e.Err)
}

func (e *LoaderError) Unwrap() error { return e.Err }

func newLoaderError(category any, err error) *LoaderError {
	return &LoaderError{Category: category, Err: errors.Wrap(err, "loader")}
}

// ErrHandleConsumed is returned by Handle.Get, Handle.Release,
// Handle.ReleaseAfter and Handle.Invalidate once the handle has already
// been released or invalidated once. It is a local, user-visible
// programming error and never mutates pool state.
var ErrHandleConsumed = errors.New("multipool: handle already consumed")

// invariantViolation indicates a ResourceKey CAS transition observed an
// impossible pre-state — a bug in the pool itself, never in caller code.
// The pool does not return or panic with this type: releaseKey,
// invalidateKey and reclaimDiscardedKey report such a state through
// logUnexpectedCAS (zap DPanic level) and return, so nothing propagates out
// of Borrow or a Handle method as an error.
type invariantViolation struct {
	op      string
	key     any
	status  status
	wantOne string
}

func (e *invariantViolation) Error() string {
	return fmt.Sprintf("multipool: invariant violation during %s: key %v in state %s, expected %s",
		e.op, e.key, e.status, e.wantOne)
}
