package ledger

import (
	"errors"
	"fmt"
)

// ErrTipConflict is returned by ChainStore.CommitIfTipUnchanged when the tip
// advanced between the caller's read and its commit attempt. The commit has
// no side effects; Manager reacts by retrying against a fresh tip.
var ErrTipConflict = errors.New("ledger: tip changed since read")

// ErrEntryNotFound is returned by EntryGetter for a sequence that has not
// been committed.
var ErrEntryNotFound = errors.New("ledger: entry not found")

// ValidationError reports a missing required field. Nothing is persisted.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ledger: required field %q is missing or empty", e.Field)
}

// ContentionError reports that Append exhausted its retry budget under
// sustained concurrent write pressure. Nothing is persisted; the caller may
// retry the whole append.
type ContentionError struct {
	Attempts int
}

func (e *ContentionError) Error() string {
	return fmt.Sprintf("ledger: append abandoned after %d conflicting attempts", e.Attempts)
}

// StoreError wraps an unexpected failure from the underlying ChainStore.
// A store failure never rolls back the domain mutation that triggered the
// audit call; callers decide whether to treat it as fatal to their request.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("ledger: store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
