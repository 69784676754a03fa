package dlock

// ILock is the externally visible handle on one distributed lock. A handle
// owns at most one active broker session; acquiring through a handle that
// already holds a lock always releases the old lock first.
type ILock interface {
	// Lock obtains the named lock, blocking the calling goroutine until the
	// broker answers or the obtention timeout passes. Every duration is in
	// seconds; pass DefaultTimeout to use the Config defaults. The previous
	// lock held by this handle, if any, is released first.
	//
	// An unobtained lock is an expected outcome reported as false with a
	// nil error. A non-nil error means the attempt could not legitimately
	// run (broker never configured) or that the broker violated the
	// protocol (*LockProtocolError): the lock state is indeterminate then.
	Lock(objectName string, lockDuration, obtentionTimeout, unlockDuration int64) (bool, error)

	// Unlock releases the held lock, if any. Only the goroutine that
	// acquired the lock may release it; calls from any other goroutine are
	// silent no-ops.
	Unlock()

	// IsLocked reports whether this handle safely holds the lock: the
	// granted expiry is set and still in the future. Defaults to false when
	// no lock was ever obtained.
	IsLocked() bool

	// LockTimedOut reports whether the caller should stop working because
	// the broker revoked the lock. Defaults to true when no lock is active:
	// "am I safely holding the lock" defaults to no, "should I stop"
	// defaults to yes.
	LockTimedOut() bool

	// TimeoutDate returns the granted expiry in epoch seconds, 0 when no
	// lock is held.
	TimeoutDate() int64

	// Close releases the lock if still held and frees the connection.
	Close() error
}
