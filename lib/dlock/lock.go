package dlock

import (
	"errors"
)

// --------------------------------------------------------------------------
// Lock Facade
// --------------------------------------------------------------------------

// Lock implements ILock on top of a blocking broker session.
type Lock struct {
	cfg     *Config
	session *session
}

// NewLock creates a lock handle bound to the given configuration. With a
// non-empty objectName the lock is obtained immediately and a
// *LockFailedError is returned when that fails; with an empty name the
// handle stays idle until Lock is called explicitly.
func NewLock(cfg *Config, objectName string) (ILock, error) {
	l := &Lock{cfg: cfg}
	if objectName != "" {
		ok, err := l.Lock(objectName, DefaultTimeout, DefaultTimeout, DefaultTimeout)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &LockFailedError{Object: objectName}
		}
	}
	return l, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see dlock.ILock)
// --------------------------------------------------------------------------

func (l *Lock) Lock(objectName string, lockDuration, obtentionTimeout, unlockDuration int64) (bool, error) {
	// Always release before acquiring. Requesting the new lock first could
	// starve the party waiting on the old one.
	l.Unlock()

	s, err := newSession(l.cfg, objectName, lockDuration, obtentionTimeout, unlockDuration)
	if err != nil {
		if errors.Is(err, ErrNotInitialized) {
			return false, err
		}
		// Connection failures are expected, recoverable outcomes.
		Logger.Warningf("lock %q: %v", objectName, err)
		return false, nil
	}

	if err := s.run(); err != nil {
		s.close()
		return false, err
	}

	if !s.isLocked() {
		s.close()
		return false, nil
	}

	l.session = s
	return true, nil
}

func (l *Lock) Unlock() {
	if l.session == nil {
		return
	}
	// Keep the session when the calling goroutine is not the owner: the
	// lock is deliberately left untouched then.
	if !l.session.unlock() {
		return
	}
	l.session.close()
	l.session = nil
}

func (l *Lock) IsLocked() bool {
	if l.session == nil {
		return false
	}
	return l.session.isLocked()
}

func (l *Lock) LockTimedOut() bool {
	if l.session == nil {
		return true
	}
	timedOut, err := l.session.lockTimedOut()
	if err != nil {
		// A protocol violation cannot be ignored safely: report it loudly
		// and tell the caller to stop working.
		Logger.Errorf("lock timeout check: %v", err)
		return true
	}
	return timedOut
}

func (l *Lock) TimeoutDate() int64 {
	if l.session == nil {
		return 0
	}
	return l.session.timeoutDate
}

func (l *Lock) Close() error {
	l.Unlock()
	if l.session != nil {
		// Unlock refused (non-owning goroutine): drop the connection
		// anyway, the broker releases the lock on disconnect.
		l.session.close()
		l.session = nil
	}
	return nil
}
