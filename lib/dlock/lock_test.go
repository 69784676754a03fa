package dlock

import (
	"bufio"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/snapforge/snaplock/rpc/common"
	"github.com/snapforge/snaplock/rpc/serializer"
)

// --------------------------------------------------------------------------
// Scripted Broker
// --------------------------------------------------------------------------

// scriptConn wraps one accepted broker-side connection with line-level
// helpers so tests can script exact protocol exchanges.
type scriptConn struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
	ser    serializer.IMessageSerializer
}

// readMsg reads and parses one protocol line, failing the test on error.
func (c *scriptConn) readMsg() *common.Message {
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		c.t.Errorf("script: read failed: %v", err)
		return nil
	}
	var msg common.Message
	if err := c.ser.Deserialize(line, &msg); err != nil {
		c.t.Errorf("script: bad line %q: %v", line, err)
		return nil
	}
	return &msg
}

// expect reads one message and asserts its command.
func (c *scriptConn) expect(command string) *common.Message {
	msg := c.readMsg()
	if msg == nil {
		return common.NewMessage(command)
	}
	if msg.Command != command {
		c.t.Errorf("script: got %s, want %s", msg.Command, command)
	}
	return msg
}

// send writes one protocol line.
func (c *scriptConn) send(line string) {
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		c.t.Errorf("script: write failed: %v", err)
	}
}

// handshake plays the broker side of REGISTER/READY/LOCK and returns the
// received LOCK request.
func (c *scriptConn) handshake(object string) *common.Message {
	register := c.expect(common.CmdRegister)
	if service := register.Parameter("service"); !strings.HasPrefix(service, "lock_") {
		c.t.Errorf("script: service name %q does not follow the lock_<owner>_<attempt> scheme", service)
	}
	if version := register.Parameter("version"); version != "1" {
		c.t.Errorf("script: version = %q, want 1", version)
	}

	c.send("READY")

	lock := c.expect(common.CmdLock)
	if got := lock.Parameter("object_name"); got != object {
		c.t.Errorf("script: LOCK for %q, want %q", got, object)
	}
	for _, param := range []string{"pid", "timeout", "duration"} {
		if _, err := lock.IntegerParameter(param); err != nil {
			c.t.Errorf("script: LOCK parameter %s: %v", param, err)
		}
	}
	return lock
}

// startScriptBroker listens on a loopback port and runs one script per
// expected connection, in accept order. It returns a ready-to-use client
// configuration pointing at the listener.
func startScriptBroker(t *testing.T, scripts ...func(c *scriptConn)) *Config {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, script := range scripts {
			conn, err := ln.Accept()
			if err != nil {
				t.Errorf("accept failed: %v", err)
				return
			}
			script(&scriptConn{
				t:      t,
				conn:   conn,
				reader: bufio.NewReader(conn),
				ser:    serializer.NewTextSerializer(),
			})
			conn.Close()
		}
	}()
	t.Cleanup(wg.Wait)

	cfg := NewConfig()
	cfg.ConfigureBroker("127.0.0.1", ln.Addr().(*net.TCPAddr).Port, "tcp")
	return cfg
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

// TestLockGranted tests the happy path: register, lock, hold, unlock
func TestLockGranted(t *testing.T) {
	timeoutDate := time.Now().Unix() + 30

	cfg := startScriptBroker(t, func(c *scriptConn) {
		c.handshake("printer")
		c.send("LOCKED object_name=printer;timeout_date=" + formatInt(timeoutDate))

		c.expect(common.CmdUnlock)
		c.expect(common.CmdUnregister)
	})

	lock, err := NewLock(cfg, "printer")
	if err != nil {
		t.Fatalf("NewLock failed: %v", err)
	}
	defer lock.Close()

	if !lock.IsLocked() {
		t.Error("IsLocked() = false after a grant")
	}
	if got := lock.TimeoutDate(); got != timeoutDate {
		t.Errorf("TimeoutDate() = %d, want %d", got, timeoutDate)
	}
	if lock.LockTimedOut() {
		t.Error("LockTimedOut() = true while the grant is fresh")
	}

	lock.Unlock()
	if lock.IsLocked() {
		t.Error("IsLocked() = true after Unlock")
	}

	// A second Unlock must be a harmless no-op
	lock.Unlock()
}

// TestLockRefused tests that a broker refusal is an outcome, not an error
func TestLockRefused(t *testing.T) {
	cfg := startScriptBroker(t, func(c *scriptConn) {
		c.handshake("printer")
		c.send("LOCKFAILED object_name=printer;error=busy")
	})

	handle, err := NewLock(cfg, "")
	if err != nil {
		t.Fatalf("NewLock failed: %v", err)
	}
	defer handle.Close()

	ok, err := handle.Lock("printer", DefaultTimeout, DefaultTimeout, DefaultTimeout)
	if err != nil {
		t.Errorf("Lock returned error %v, want nil for a refusal", err)
	}
	if ok {
		t.Error("Lock = true, want false after LOCKFAILED")
	}
	if handle.IsLocked() {
		t.Error("IsLocked() = true after a refusal")
	}
}

// TestNewLockRefused tests that the immediate-acquire constructor surfaces
// a refusal as LockFailedError
func TestNewLockRefused(t *testing.T) {
	cfg := startScriptBroker(t, func(c *scriptConn) {
		c.handshake("printer")
		c.send("LOCKFAILED object_name=printer;error=busy")
	})

	_, err := NewLock(cfg, "printer")
	var failed *LockFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("NewLock error = %v, want *LockFailedError", err)
	}
	if failed.Object != "printer" {
		t.Errorf("failed object = %q, want %q", failed.Object, "printer")
	}
}

// TestObtentionTimeout tests giving up when the broker never answers the
// lock request
func TestObtentionTimeout(t *testing.T) {
	cfg := startScriptBroker(t, func(c *scriptConn) {
		c.handshake("printer")
		// Never reply; the client must give up at its obtention deadline.
		time.Sleep(4 * time.Second)
	})

	handle, err := NewLock(cfg, "")
	if err != nil {
		t.Fatalf("NewLock failed: %v", err)
	}
	defer handle.Close()

	start := time.Now()
	ok, err := handle.Lock("printer", DefaultTimeout, 3, DefaultTimeout)
	if err != nil {
		t.Errorf("Lock returned error %v, want nil for an obtention timeout", err)
	}
	if ok {
		t.Error("Lock = true, want false after the obtention deadline")
	}
	if elapsed := time.Since(start); elapsed < 2*time.Second || elapsed > 5*time.Second {
		t.Errorf("Lock blocked for %v, want roughly the 3s obtention timeout", elapsed)
	}
}

// TestConnectionRefused tests that an unreachable broker is a recoverable
// outcome
func TestConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	cfg := NewConfig()
	cfg.ConfigureBroker("127.0.0.1", port, "tcp")

	handle, err := NewLock(cfg, "")
	if err != nil {
		t.Fatalf("NewLock failed: %v", err)
	}
	ok, err := handle.Lock("printer", DefaultTimeout, DefaultTimeout, DefaultTimeout)
	if err != nil {
		t.Errorf("Lock returned error %v, want nil for a connection failure", err)
	}
	if ok {
		t.Error("Lock = true, want false with no broker listening")
	}
}

// TestForcedRevocation tests the broker taking the lock back after its
// duration elapsed
func TestForcedRevocation(t *testing.T) {
	timeoutDate := time.Now().Unix() + 1

	cfg := startScriptBroker(t, func(c *scriptConn) {
		c.handshake("printer")
		c.send("LOCKED object_name=printer;timeout_date=" + formatInt(timeoutDate))
		c.send("UNLOCKED object_name=printer;error=timedout")

		// The revoked holder still acknowledges with an explicit release.
		c.expect(common.CmdUnlock)
		c.expect(common.CmdUnregister)
	})

	lock, err := NewLock(cfg, "printer")
	if err != nil {
		t.Fatalf("NewLock failed: %v", err)
	}
	defer lock.Close()

	// Wait until the granted expiry has clearly passed, so the buffered
	// revocation notice gets consumed by the next timeout check.
	time.Sleep(1500 * time.Millisecond)

	if !lock.LockTimedOut() {
		t.Error("LockTimedOut() = false after the revocation notice")
	}
	if lock.IsLocked() {
		t.Error("IsLocked() = true after the revocation notice")
	}

	lock.Unlock()
}

// TestMismatchedGrant tests that a LOCKED reply for the wrong object is a
// protocol violation
func TestMismatchedGrant(t *testing.T) {
	cfg := startScriptBroker(t, func(c *scriptConn) {
		c.handshake("printer")
		c.send("LOCKED object_name=scanner;timeout_date=" + formatInt(time.Now().Unix()+30))
	})

	handle, err := NewLock(cfg, "")
	if err != nil {
		t.Fatalf("NewLock failed: %v", err)
	}
	defer handle.Close()

	ok, err := handle.Lock("printer", DefaultTimeout, DefaultTimeout, DefaultTimeout)
	if ok {
		t.Error("Lock = true despite the mismatched grant")
	}
	var protoErr *LockProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("Lock error = %v, want *LockProtocolError", err)
	}
	if protoErr.Reason != "mismatched object" {
		t.Errorf("protocol error reason = %q, want %q", protoErr.Reason, "mismatched object")
	}
}

// TestUnlockedBeforeLock tests that an UNLOCKED without a prior grant is a
// protocol violation
func TestUnlockedBeforeLock(t *testing.T) {
	cfg := startScriptBroker(t, func(c *scriptConn) {
		c.handshake("printer")
		c.send("UNLOCKED object_name=printer")
	})

	handle, err := NewLock(cfg, "")
	if err != nil {
		t.Fatalf("NewLock failed: %v", err)
	}
	defer handle.Close()

	_, err = handle.Lock("printer", DefaultTimeout, DefaultTimeout, DefaultTimeout)
	var protoErr *LockProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("Lock error = %v, want *LockProtocolError", err)
	}
	if protoErr.Reason != "unlock before lock" {
		t.Errorf("protocol error reason = %q, want %q", protoErr.Reason, "unlock before lock")
	}
}

// TestCrossGoroutineUnlock tests that only the acquiring goroutine can
// release the lock
func TestCrossGoroutineUnlock(t *testing.T) {
	cfg := startScriptBroker(t, func(c *scriptConn) {
		c.handshake("printer")
		c.send("LOCKED object_name=printer;timeout_date=" + formatInt(time.Now().Unix()+30))

		c.expect(common.CmdUnlock)
		c.expect(common.CmdUnregister)
	})

	lock, err := NewLock(cfg, "printer")
	if err != nil {
		t.Fatalf("NewLock failed: %v", err)
	}
	defer lock.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		lock.Unlock()
	}()
	<-done

	// The foreign unlock must have been silently ignored
	if !lock.IsLocked() {
		t.Error("IsLocked() = false after an unlock from a foreign goroutine")
	}

	// The owner can still release normally
	lock.Unlock()
	if lock.IsLocked() {
		t.Error("IsLocked() = true after the owner's unlock")
	}
}

// TestReleaseBeforeAcquire tests that switching objects releases the old
// lock before the new one is requested
func TestReleaseBeforeAcquire(t *testing.T) {
	released := make(chan struct{})

	cfg := startScriptBroker(t,
		func(c *scriptConn) {
			c.handshake("first")
			c.send("LOCKED object_name=first;timeout_date=" + formatInt(time.Now().Unix()+30))

			c.expect(common.CmdUnlock)
			c.expect(common.CmdUnregister)
			close(released)
		},
		func(c *scriptConn) {
			// Hold the grant for the second object back until the first
			// lock was observably released.
			select {
			case <-released:
			case <-time.After(5 * time.Second):
				c.t.Error("second LOCK arrived but the first lock was never released")
			}
			c.handshake("second")
			c.send("LOCKED object_name=second;timeout_date=" + formatInt(time.Now().Unix()+30))

			c.expect(common.CmdUnlock)
			c.expect(common.CmdUnregister)
		},
	)

	lock, err := NewLock(cfg, "first")
	if err != nil {
		t.Fatalf("NewLock failed: %v", err)
	}
	defer lock.Close()

	ok, err := lock.Lock("second", DefaultTimeout, DefaultTimeout, DefaultTimeout)
	if err != nil || !ok {
		t.Fatalf("Lock(second) = (%t, %v), want (true, nil)", ok, err)
	}
	if !lock.IsLocked() {
		t.Error("IsLocked() = false after switching objects")
	}
}

// TestUnlockDurationForwarded tests that an explicit grace period reaches
// the broker while the sentinel omits it
func TestUnlockDurationForwarded(t *testing.T) {
	cfg := startScriptBroker(t,
		func(c *scriptConn) {
			lock := c.handshake("printer")
			if got := lock.Parameter("unlock_duration"); got != "90" {
				c.t.Errorf("unlock_duration = %q, want %q", got, "90")
			}
			c.send("LOCKFAILED object_name=printer;error=busy")
		},
		func(c *scriptConn) {
			lock := c.handshake("printer")
			if lock.HasParameter("unlock_duration") {
				c.t.Error("unlock_duration sent despite the follow-the-lock sentinel")
			}
			c.send("LOCKFAILED object_name=printer;error=busy")
		},
	)

	handle, err := NewLock(cfg, "")
	if err != nil {
		t.Fatalf("NewLock failed: %v", err)
	}
	defer handle.Close()

	handle.Lock("printer", DefaultTimeout, DefaultTimeout, 90)
	handle.Lock("printer", DefaultTimeout, DefaultTimeout, UnlockUsesLockTimeout)
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}
