// Package dlock implements a distributed mutual-exclusion lock client on
// top of the broker wire protocol. It provides a simple yet robust way to
// coordinate access to shared resources across multiple processes or nodes
// that all reach the same lock broker.
//
// Core Functionality:
//   - Blocking lock acquisition with a bounded obtention timeout
//   - Automatic lock expiry tracked against the broker's granted deadline
//   - Asynchronous revocation handling (forced unlock on timeout)
//   - Release operations gated to the goroutine that acquired the lock
//
// Implementation Approach:
//
//	Each lock attempt opens a dedicated connection to the broker and drives
//	one synchronous REGISTER -> LOCK -> {LOCKED | LOCKFAILED} exchange on
//	it, routing every reply through the dispatch package. The private
//	receive loop processes only this connection's messages and returns as
//	soon as exactly one terminal outcome has been observed, so acquisition
//	behaves like an ordinary blocking call to the caller.
//
//	Once granted, the connection stays open in the background. The broker
//	remains authoritative about expiry: when it decides to revoke the lock
//	it sends an UNLOCKED notice with error=timedout, which the holder picks
//	up by polling LockTimedOut (a non-blocking read, no event loop
//	required). The holder acknowledges the revocation with an explicit
//	Unlock, which sends UNLOCK followed by UNREGISTER without waiting for a
//	reply.
//
// Outcomes and Errors:
//
//	A lock that could not be obtained (broker refusal, obtention timeout,
//	connection failure, broker shutdown) is an expected outcome reported as
//	data: Lock returns false and IsLocked answers false. Only protocol
//	invariant violations - a reply naming a foreign object, or UNLOCKED
//	before any LOCKED - surface as *LockProtocolError, because the lock
//	state is indeterminate at that point and ignoring it could corrupt the
//	protected resource.
//
// Thread Safety:
//
//	A Lock handle is confined to the goroutine that acquired it: Unlock
//	from any other goroutine is a deliberate silent no-op, so a handle
//	leaked across goroutines cannot release a lock it does not own. The
//	Config is read by every attempt and must be fully configured before
//	concurrent lock users are spawned; only its attempt counter is
//	synchronized.
//
// Usage Example:
//
//	cfg := dlock.NewConfig()
//	cfg.ConfigureBroker("10.0.0.5", 9042, "tcp")
//
//	lock, err := dlock.NewLock(cfg, "website.content")
//	if err != nil {
//	    // not obtained (LockFailedError) or protocol violation
//	}
//	defer lock.Close()
//
//	for work := range jobs {
//	    if lock.LockTimedOut() {
//	        break // broker revoked the lock, stop immediately
//	    }
//	    process(work)
//	}
//	lock.Unlock()
package dlock
