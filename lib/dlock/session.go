package dlock

import (
	"errors"
	"os"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/petermattis/goid"
	"github.com/snapforge/snaplock/rpc/common"
	"github.com/snapforge/snaplock/rpc/dispatch"
	"github.com/snapforge/snaplock/rpc/serializer"
	"github.com/snapforge/snaplock/rpc/transport"
	"github.com/snapforge/snaplock/rpc/transport/tcp"
	"github.com/snapforge/snaplock/rpc/transport/unix"
)

var Logger = logger.GetLogger("dlock")

// --------------------------------------------------------------------------
// Session States
// --------------------------------------------------------------------------

type sessionState int

const (
	stateInit sessionState = iota
	stateRegistering
	stateLockRequested
	stateLocked
	stateTimedOutPendingAck
	stateFailed
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateInit:
		return "init"
	case stateRegistering:
		return "registering"
	case stateLockRequested:
		return "lock-requested"
	case stateLocked:
		return "locked"
	case stateTimedOutPendingAck:
		return "timed-out-pending-ack"
	case stateFailed:
		return "failed"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Blocking Lock Session
// --------------------------------------------------------------------------

// session drives one REGISTER -> LOCK -> {LOCKED|LOCKFAILED|UNLOCKED}
// exchange with the broker on a dedicated connection. It blocks the calling
// goroutine in run until exactly one terminal outcome has been observed,
// then keeps the connection open in the background for a late forced-unlock
// notice.
type session struct {
	cfg        *Config
	conn       transport.IMessageConn
	dispatcher *dispatch.Dispatcher

	owner       int64 // goroutine that created the attempt; gates unlock
	pid         int
	serviceName string
	objectName  string

	lockDuration      int64
	unlockDuration    int64 // 0 when the grace period follows the duration
	obtentionDeadline time.Time

	state       sessionState
	everLocked  bool
	timeoutDate int64 // granted expiry in epoch seconds; 0 until LOCKED
	timedOut    bool
	done        bool
	err         error
}

// newSession resolves the timeouts against the Config defaults, captures the
// owner identity, generates the unique service name and connects to the
// broker. The DefaultTimeout sentinel selects the Config default for any of
// the three durations.
func newSession(cfg *Config, objectName string, lockDuration, obtentionTimeout, unlockDuration int64) (*session, error) {
	if !cfg.initialized {
		return nil, ErrNotInitialized
	}

	if lockDuration == DefaultTimeout {
		lockDuration = cfg.LockDuration()
	}
	if obtentionTimeout == DefaultTimeout {
		obtentionTimeout = cfg.ObtentionTimeout()
	}
	if unlockDuration == DefaultTimeout {
		unlockDuration = cfg.UnlockDuration()
	}
	if unlockDuration == UnlockUsesLockTimeout {
		unlockDuration = 0 // omitted from the LOCK request
	}

	owner := goid.Get()

	s := &session{
		cfg:               cfg,
		owner:             owner,
		pid:               os.Getpid(),
		serviceName:       cfg.nextServiceName(owner),
		objectName:        objectName,
		lockDuration:      lockDuration,
		unlockDuration:    unlockDuration,
		obtentionDeadline: time.Now().Add(time.Duration(obtentionTimeout) * time.Second),
		state:             stateInit,
	}

	s.dispatcher = dispatch.NewDispatcher("dlock/"+s.serviceName, []dispatch.Rule{
		{Expr: common.CmdLocked, Execute: s.msgLocked},
		{Expr: common.CmdLockFailed, Execute: s.msgLockFailed},
		{Expr: common.CmdUnlocked, Execute: s.msgUnlocked},
	})
	s.dispatcher.AppendBuiltinCommands(s)

	var connector transport.IClientConnector
	switch cfg.Mode() {
	case "unix":
		connector = unix.NewUnixClientConnector()
	default:
		connector = tcp.NewTCPClientConnector()
	}

	conn, err := transport.Connect(connector, common.ClientConfig{
		Mode:     cfg.Mode(),
		Endpoint: cfg.Endpoint(),
		TCPConf:  common.TCPConf{TCPNoDelay: true},
	}, serializer.NewTextSerializer())
	if err != nil {
		return nil, err
	}
	s.conn = conn

	return s, nil
}

// run registers with the broker and processes this connection's messages
// until one terminal outcome (LOCKED, LOCKFAILED, UNLOCKED error, STOP,
// QUITTING or the obtention deadline) has been observed. Expected negative
// outcomes are observable through isLocked; only a protocol violation is
// returned as an error.
func (s *session) run() error {
	if err := s.conn.Send(common.NewRegisterMessage(s.serviceName)); err != nil {
		Logger.Warningf("lock %q: failed to register: %v", s.objectName, err)
		s.state = stateFailed
		return nil
	}
	s.state = stateRegistering

	for !s.done {
		msg, err := s.conn.Recv(s.obtentionDeadline)
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				s.processTimeout()
				break
			}
			if errors.Is(err, common.ErrMalformedMessage) {
				// Fatal to that single read only, not to the connection.
				Logger.Warningf("lock %q: dropping malformed line: %v", s.objectName, err)
				continue
			}
			Logger.Warningf("lock %q: connection failed while %s: %v", s.objectName, s.state, err)
			s.state = stateFailed
			break
		}
		s.dispatcher.Dispatch(msg)
		if s.err != nil {
			return s.err
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Message Handlers
// --------------------------------------------------------------------------

// Ready is the broker's acknowledgement of our registration; it hands
// control back to us, so request the lock.
func (s *session) Ready(msg *common.Message) {
	if s.state != stateRegistering {
		Logger.Warningf("lock %q: READY received while %s, ignored", s.objectName, s.state)
		return
	}
	lock := common.NewLockMessage(s.objectName, s.pid, s.obtentionDeadline.Unix(), s.lockDuration, s.unlockDuration)
	if err := s.conn.Send(lock); err != nil {
		Logger.Warningf("lock %q: failed to send LOCK: %v", s.objectName, err)
		s.state = stateFailed
		s.done = true
		return
	}
	s.state = stateLockRequested
}

// msgLocked handles the broker granting us the lock.
func (s *session) msgLocked(msg *common.Message) {
	if s.state != stateLockRequested {
		Logger.Warningf("lock %q: LOCKED received while %s, ignored", s.objectName, s.state)
		return
	}
	if msg.Parameter("object_name") != s.objectName {
		s.fail(&LockProtocolError{
			Reason:  "mismatched object",
			Object:  msg.Parameter("object_name"),
			Command: common.CmdLocked,
		})
		return
	}
	timeoutDate, err := msg.IntegerParameter("timeout_date")
	if err != nil {
		s.fail(&LockProtocolError{
			Reason:  "missing or invalid timeout_date",
			Object:  s.objectName,
			Command: common.CmdLocked,
		})
		return
	}

	s.timeoutDate = timeoutDate
	s.everLocked = true
	s.state = stateLocked
	s.done = true
	metrics.GetOrCreateCounter(`snaplock_client_locks_total{outcome="granted"}`).Inc()
}

// msgLockFailed handles the broker rejecting our request. This is an
// expected, recoverable outcome: no error is raised, the caller observes
// isLocked() == false.
func (s *session) msgLockFailed(msg *common.Message) {
	if s.state != stateLockRequested {
		Logger.Warningf("lock %q: LOCKFAILED received while %s, ignored", s.objectName, s.state)
		return
	}
	Logger.Warningf("lock %q: broker refused the lock: %s", s.objectName, msg.Parameter("error"))
	s.state = stateFailed
	s.done = true
	metrics.GetOrCreateCounter(`snaplock_client_locks_total{outcome="failed"}`).Inc()
}

// msgUnlocked handles the two legitimate UNLOCKED contexts: the unsolicited
// forced-timeout notice (error=timedout) and the acknowledgement of a
// caller-initiated UNLOCK. Anything else is a protocol violation.
func (s *session) msgUnlocked(msg *common.Message) {
	if msg.Parameter("object_name") != s.objectName {
		s.fail(&LockProtocolError{
			Reason:  "foreign object",
			Object:  msg.Parameter("object_name"),
			Command: common.CmdUnlocked,
		})
		return
	}
	if !s.everLocked {
		s.fail(&LockProtocolError{
			Reason:  "unlock before lock",
			Object:  s.objectName,
			Command: common.CmdUnlocked,
		})
		return
	}

	if msg.Parameter("error") == "timedout" {
		// Forced revocation. The caller must still explicitly unlock to
		// acknowledge; no automatic reply here.
		Logger.Warningf("lock %q: broker revoked the lock (timed out)", s.objectName)
		s.timedOut = true
		s.timeoutDate = 0
		s.state = stateTimedOutPendingAck
		s.done = true
		metrics.GetOrCreateCounter(`snaplock_client_locks_total{outcome="revoked"}`).Inc()
		return
	}

	// Acknowledgement of our own UNLOCK.
	s.timeoutDate = 0
	s.state = stateClosed
	s.done = true
}

// processTimeout is invoked when the obtention deadline passes without a
// terminal reply. The caller observes isLocked() == false; no error.
func (s *session) processTimeout() {
	if s.state != stateRegistering && s.state != stateLockRequested {
		return
	}
	Logger.Warningf("lock %q: obtention deadline passed while %s", s.objectName, s.state)
	s.state = stateFailed
	s.done = true
	metrics.GetOrCreateCounter(`snaplock_client_locks_total{outcome="obtention_timeout"}`).Inc()
}

// Stop handles STOP/QUITTING arriving unexpectedly during negotiation.
func (s *session) Stop(quitting bool) {
	Logger.Warningf("lock %q: broker is stopping (quitting=%t), giving up", s.objectName, quitting)
	if s.state == stateRegistering || s.state == stateLockRequested {
		s.state = stateFailed
	}
	s.done = true
}

// Send implements dispatch.IControl.
func (s *session) Send(msg *common.Message) error {
	return s.conn.Send(msg)
}

// Commands implements dispatch.IControl. The session has no dynamic
// commands beyond its rule list.
func (s *session) Commands() []string {
	return nil
}

// fail records a protocol violation. The session state is deliberately left
// untouched: the violation is reported, not absorbed.
func (s *session) fail(err *LockProtocolError) {
	Logger.Errorf("lock %q: %v", s.objectName, err)
	s.err = err
	s.done = true
}

// --------------------------------------------------------------------------
// Caller Operations
// --------------------------------------------------------------------------

// unlock releases the lock. It is idempotent and a silent no-op unless the
// session holds (or held, pending acknowledgement) the lock and the calling
// goroutine is the one that created it. It reports whether the caller was
// recognized as the owner; the release itself never waits for a reply.
func (s *session) unlock() bool {
	if goid.Get() != s.owner {
		Logger.Debugf("lock %q: unlock from non-owning goroutine ignored", s.objectName)
		return false
	}
	if s.state != stateLocked && s.state != stateTimedOutPendingAck {
		return true
	}

	if err := s.conn.Send(common.NewUnlockMessage(s.objectName, s.pid)); err != nil {
		Logger.Warningf("lock %q: failed to send UNLOCK: %v", s.objectName, err)
	}
	if err := s.conn.Send(common.NewUnregisterMessage(s.serviceName)); err != nil {
		Logger.Warningf("lock %q: failed to send UNREGISTER: %v", s.objectName, err)
	}

	s.timeoutDate = 0
	s.state = stateClosed
	return true
}

// isLocked reports whether the granted expiry is set and still in the
// future. Pure state read, no I/O.
func (s *session) isLocked() bool {
	return s.timeoutDate != 0 && time.Now().Unix() < s.timeoutDate
}

// lockTimedOut reports whether the broker forcibly revoked the lock. While
// the granted expiry is in the future it answers false immediately. Once
// the expiry passed it consumes any already-buffered message without
// blocking, so an already-arrived forced-unlock notice updates the flag.
// A protocol violation discovered that way is returned alongside the
// unmodified flag.
func (s *session) lockTimedOut() (bool, error) {
	if s.timeoutDate != 0 {
		if time.Now().Unix() < s.timeoutDate {
			return false, nil
		}
		for s.err == nil {
			msg, err := s.conn.Peek()
			if err != nil {
				Logger.Debugf("lock %q: peek failed: %v", s.objectName, err)
				break
			}
			if msg == nil {
				break
			}
			s.dispatcher.Dispatch(msg)
		}
		if s.err != nil {
			return s.timedOut, s.err
		}
	}
	return s.timedOut, nil
}

// close releases the lock defensively and closes the connection. Errors
// from the best-effort release are logged and discarded so tear-down never
// fails.
func (s *session) close() {
	s.unlock()
	if err := s.conn.Close(); err != nil {
		Logger.Debugf("lock %q: close: %v", s.objectName, err)
	}
}
