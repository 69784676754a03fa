package dlock

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is returned when a lock attempt starts before the broker
// address was ever configured on the Config.
var ErrNotInitialized = errors.New("lock configuration was never initialized; call ConfigureBroker first")

// LockProtocolError reports a reply that violates the lock protocol
// invariants (object name mismatch, UNLOCKED before LOCKED). It indicates
// either a bug or a colliding lock name: the lock state is indeterminate at
// that point, so it is never silently swallowed.
type LockProtocolError struct {
	Reason  string
	Object  string
	Command string
}

func (e *LockProtocolError) Error() string {
	return fmt.Sprintf("lock protocol violation on %s for object %q: %s", e.Command, e.Object, e.Reason)
}

// LockFailedError is returned by NewLock when the constructor-time lock
// attempt fails. Explicit Lock calls instead return false and let the caller
// decide.
type LockFailedError struct {
	Object string
}

func (e *LockFailedError) Error() string {
	return fmt.Sprintf("failed to obtain lock on object %q", e.Object)
}
