package broker

import (
	"sync"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/snapforge/snaplock/rpc/common"
)

// --------------------------------------------------------------------------
// Lock Table
// --------------------------------------------------------------------------

// lockTable arbitrates all lock objects. One entry per object name, each
// with the current holder and a FIFO queue of waiters.
type lockTable struct {
	entries *xsync.MapOf[string, *lockEntry]
}

func newLockTable() *lockTable {
	return &lockTable{
		entries: xsync.NewMapOf[string, *lockEntry](),
	}
}

// lockEntry is the arbitration state of one object name.
type lockEntry struct {
	mu      sync.Mutex
	object  string
	holder  *grant
	waiters []*waiter
}

// grant is an active lock held by one client.
type grant struct {
	session        *clientSession
	pid            int64
	duration       int64
	unlockDuration int64
	timeoutDate    int64
	grantedAt      time.Time
	expiry         *time.Timer
	grace          *time.Timer
	revoked        bool
}

// waiter is a queued lock request with its obtention deadline.
type waiter struct {
	session        *clientSession
	pid            int64
	duration       int64
	unlockDuration int64
	deadline       *time.Timer
	requestedAt    time.Time
}

// lockRequest carries the parameters of one LOCK message.
type lockRequest struct {
	object         string
	session        *clientSession
	pid            int64
	deadline       int64 // absolute obtention deadline, epoch seconds
	duration       int64
	unlockDuration int64 // 0: grace period follows the duration
}

// --------------------------------------------------------------------------
// Operations
// --------------------------------------------------------------------------

// acquire grants the lock immediately when the object is free, otherwise
// queues the request until the holder releases or the obtention deadline
// passes.
func (t *lockTable) acquire(req lockRequest) {
	entry, _ := t.entries.LoadOrCompute(req.object, func() *lockEntry {
		return &lockEntry{object: req.object}
	})

	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := time.Now()
	if req.deadline <= now.Unix() {
		req.session.reply(common.NewLockFailedReply(req.object, "timedout"))
		return
	}

	w := &waiter{
		session:        req.session,
		pid:            req.pid,
		duration:       req.duration,
		unlockDuration: req.unlockDuration,
		requestedAt:    now,
	}

	if entry.holder == nil {
		entry.grantLocked(w)
		return
	}

	entry.waiters = append(entry.waiters, w)
	w.deadline = time.AfterFunc(time.Until(time.Unix(req.deadline, 0)), func() {
		entry.expireWaiter(w)
	})
}

// release handles a client-initiated UNLOCK. Releasing as the holder is
// acknowledged with UNLOCKED; anything else is ignored.
func (t *lockTable) release(object string, session *clientSession, pid int64) {
	entry, ok := t.entries.Load(object)
	if !ok {
		Logger.Warningf("UNLOCK for unknown object %q ignored", object)
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	holder := entry.holder
	if holder == nil || holder.session != session {
		Logger.Warningf("UNLOCK for object %q from a non-holder ignored", object)
		return
	}
	if holder.pid != pid {
		Logger.Warningf("UNLOCK for object %q with mismatched pid %d ignored", object, pid)
		return
	}

	entry.releaseHolderLocked()
	session.reply(common.NewUnlockedNotice(object, false))
	entry.grantNextLocked()
}

// releaseSession drops every waiter of the given session and releases every
// lock it holds. Called on disconnect and on UNREGISTER; no acknowledgement
// is sent.
func (t *lockTable) releaseSession(session *clientSession) {
	t.entries.Range(func(_ string, entry *lockEntry) bool {
		entry.mu.Lock()
		kept := entry.waiters[:0]
		for _, w := range entry.waiters {
			if w.session == session {
				w.deadline.Stop()
			} else {
				kept = append(kept, w)
			}
		}
		entry.waiters = kept

		if entry.holder != nil && entry.holder.session == session {
			entry.releaseHolderLocked()
			entry.grantNextLocked()
		}
		entry.mu.Unlock()
		return true
	})
}

// --------------------------------------------------------------------------
// Entry Helpers (all require entry.mu held)
// --------------------------------------------------------------------------

// grantLocked makes w the holder and sends the LOCKED reply.
func (e *lockEntry) grantLocked(w *waiter) {
	now := time.Now()
	g := &grant{
		session:        w.session,
		pid:            w.pid,
		duration:       w.duration,
		unlockDuration: w.unlockDuration,
		timeoutDate:    now.Unix() + w.duration,
		grantedAt:      now,
	}
	e.holder = g

	g.expiry = time.AfterFunc(time.Duration(g.duration)*time.Second, func() {
		e.revoke(g)
	})

	gometrics.GetOrRegisterTimer("broker.lock.wait", nil).UpdateSince(w.requestedAt)
	w.session.reply(common.NewLockedReply(e.object, g.timeoutDate))
}

// grantNextLocked promotes the first queued waiter, if any.
func (e *lockEntry) grantNextLocked() {
	for len(e.waiters) > 0 {
		next := e.waiters[0]
		e.waiters = e.waiters[1:]
		if !next.deadline.Stop() {
			// Deadline fired while queued; the callback will no longer find
			// this waiter, so report the failure here.
			next.session.reply(common.NewLockFailedReply(e.object, "timedout"))
			continue
		}
		e.grantLocked(next)
		return
	}
}

// releaseHolderLocked clears the holder and its timers.
func (e *lockEntry) releaseHolderLocked() {
	g := e.holder
	if g == nil {
		return
	}
	g.expiry.Stop()
	if g.grace != nil {
		g.grace.Stop()
	}
	e.holder = nil
	gometrics.GetOrRegisterTimer("broker.lock.hold", nil).UpdateSince(g.grantedAt)
}

// revoke fires when a grant's duration elapsed. The holder is notified once
// with UNLOCKED error=timedout and given the unlock grace period to
// acknowledge; after that the lock is released regardless.
func (e *lockEntry) revoke(g *grant) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.holder != g || g.revoked {
		return
	}
	g.revoked = true

	Logger.Warningf("lock on %q held by %s timed out, notifying holder", e.object, g.session.name())
	g.session.reply(common.NewUnlockedNotice(e.object, true))

	grace := g.unlockDuration
	if grace <= 0 {
		grace = g.duration
	}
	g.grace = time.AfterFunc(time.Duration(grace)*time.Second, func() {
		e.forceRelease(g)
	})
}

// forceRelease fires when the grace period elapsed without an UNLOCK.
func (e *lockEntry) forceRelease(g *grant) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.holder != g {
		return
	}
	Logger.Warningf("lock on %q forcibly released after unacknowledged timeout", e.object)
	gometrics.GetOrRegisterCounter("broker.lock.forced", nil).Inc(1)
	e.releaseHolderLocked()
	e.grantNextLocked()
}

// expireWaiter fires when a queued request's obtention deadline passed.
func (e *lockEntry) expireWaiter(w *waiter) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, queued := range e.waiters {
		if queued == w {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			w.session.reply(common.NewLockFailedReply(e.object, "timedout"))
			return
		}
	}
}
