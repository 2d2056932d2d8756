package sync

import "fmt"

// UpstreamSyncError marks a run aborted by an upstream fetch failure. The
// run performed no local mutation; the scheduler logs it and the next tick
// retries from scratch.
type UpstreamSyncError struct {
	Op      string
	Wrapped error
}

func (e *UpstreamSyncError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Wrapped)
}

func (e *UpstreamSyncError) Unwrap() error { return e.Wrapped }

func newUpstreamError(op string, err error) *UpstreamSyncError {
	return &UpstreamSyncError{Op: op, Wrapped: err}
}
