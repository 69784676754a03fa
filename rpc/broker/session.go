package broker

import (
	"sync/atomic"
	"time"

	"github.com/snapforge/snaplock/rpc/common"
	"github.com/snapforge/snaplock/rpc/dispatch"
	"github.com/snapforge/snaplock/rpc/transport"
)

// --------------------------------------------------------------------------
// Client Session
// --------------------------------------------------------------------------

// clientSession is the broker side of one client connection. Every inbound
// message is routed through its dispatcher; replies go back on the same
// connection.
type clientSession struct {
	broker     *Broker
	conn       transport.IMessageConn
	dispatcher *dispatch.Dispatcher

	service atomic.Value // string; set on REGISTER
	closed  atomic.Bool
}

func newClientSession(b *Broker, conn transport.IMessageConn) *clientSession {
	s := &clientSession{
		broker: b,
		conn:   conn,
	}
	s.dispatcher = dispatch.NewDispatcher("broker", []dispatch.Rule{
		{Expr: common.CmdRegister, Execute: s.msgRegister},
		{Expr: common.CmdUnregister, Execute: s.msgUnregister},
		{Expr: common.CmdLock, Execute: s.msgLock},
		{Expr: common.CmdUnlock, Execute: s.msgUnlock},
		{Expr: common.CmdCommands, Execute: s.msgCommands},
	})
	s.dispatcher.AppendBuiltinCommands(s)
	return s
}

// name returns the registered service name for log output.
func (s *clientSession) name() string {
	if v := s.service.Load(); v != nil {
		return v.(string)
	}
	return "(unregistered)"
}

// serve processes messages until the client disconnects or the broker
// stops. An unregistered client must register within the configured
// handshake timeout; a registered client may stay idle indefinitely (lock
// holders are long-lived by nature).
func (s *clientSession) serve() {
	defer s.teardown()

	for !s.closed.Load() {
		var deadline time.Time
		if s.service.Load() == nil && s.broker.config.TimeoutSecond > 0 {
			deadline = time.Now().Add(time.Duration(s.broker.config.TimeoutSecond) * time.Second)
		}

		msg, err := s.conn.Recv(deadline)
		if err != nil {
			if common.IsMalformed(err) {
				// Fatal to that single read only.
				Logger.Warningf("client %s: dropping malformed line: %v", s.name(), err)
				continue
			}
			if !s.closed.Load() {
				Logger.Infof("client %s: connection closed: %v", s.name(), err)
			}
			return
		}
		msg.SentFromService = s.name()
		s.dispatcher.Dispatch(msg)
	}
}

// teardown releases everything the client holds and forgets the session.
func (s *clientSession) teardown() {
	s.closed.Store(true)
	s.broker.table.releaseSession(s)
	if v := s.service.Load(); v != nil {
		s.broker.clients.Delete(v.(string))
	}
	s.conn.Close()
}

// reply sends a message to the client, tolerating a connection that just
// went away.
func (s *clientSession) reply(msg *common.Message) {
	if s.closed.Load() {
		return
	}
	if err := s.conn.Send(msg); err != nil {
		Logger.Warningf("client %s: failed to send %s: %v", s.name(), msg.Command, err)
	}
}

// --------------------------------------------------------------------------
// Message Handlers
// --------------------------------------------------------------------------

// msgRegister acknowledges the client with READY and asks for its command
// list with HELP.
func (s *clientSession) msgRegister(msg *common.Message) {
	service := msg.Parameter("service")
	if service == "" {
		Logger.Warningf("REGISTER without service name ignored")
		return
	}
	if version, err := msg.IntegerParameter("version"); err != nil || version != common.ProtocolVersion {
		Logger.Warningf("REGISTER for %q with unsupported version, ignored", service)
		return
	}

	s.service.Store(service)
	s.broker.clients.Store(service, s)
	Logger.Debugf("client %s registered", service)

	s.reply(common.NewMessage(common.CmdReady))
	s.reply(common.NewMessage(common.CmdHelp))
}

func (s *clientSession) msgUnregister(msg *common.Message) {
	s.broker.table.releaseSession(s)
	if v := s.service.Load(); v != nil {
		s.broker.clients.Delete(v.(string))
	}
	Logger.Debugf("client %s unregistered", s.name())
}

// msgLock queues or grants a lock request.
func (s *clientSession) msgLock(msg *common.Message) {
	object := msg.Parameter("object_name")
	if object == "" {
		s.reply(common.NewLockFailedReply(object, "missing object_name"))
		return
	}
	pid, err := msg.IntegerParameter("pid")
	if err != nil {
		s.reply(common.NewLockFailedReply(object, "missing pid"))
		return
	}
	deadline, err := msg.IntegerParameter("timeout")
	if err != nil {
		s.reply(common.NewLockFailedReply(object, "missing timeout"))
		return
	}
	duration, err := msg.IntegerParameter("duration")
	if err != nil || duration <= 0 {
		s.reply(common.NewLockFailedReply(object, "missing duration"))
		return
	}
	var unlockDuration int64
	if msg.HasParameter("unlock_duration") {
		if unlockDuration, err = msg.IntegerParameter("unlock_duration"); err != nil {
			s.reply(common.NewLockFailedReply(object, "invalid unlock_duration"))
			return
		}
	}

	s.broker.table.acquire(lockRequest{
		object:         object,
		session:        s,
		pid:            pid,
		deadline:       deadline,
		duration:       duration,
		unlockDuration: unlockDuration,
	})
}

func (s *clientSession) msgUnlock(msg *common.Message) {
	object := msg.Parameter("object_name")
	pid, err := msg.IntegerParameter("pid")
	if err != nil {
		Logger.Warningf("UNLOCK for %q without pid ignored", object)
		return
	}
	s.broker.table.release(object, s, pid)
}

// msgCommands records the capabilities a client announced in response to
// our HELP.
func (s *clientSession) msgCommands(msg *common.Message) {
	Logger.Debugf("client %s answers: %s", s.name(), msg.Parameter("list"))
}

// --------------------------------------------------------------------------
// dispatch.IControl
// --------------------------------------------------------------------------

func (s *clientSession) Send(msg *common.Message) error {
	return s.conn.Send(msg)
}

// Ready is part of the client side of the protocol; a broker session never
// registers anywhere, so a READY from a client is only logged.
func (s *clientSession) Ready(msg *common.Message) {
	Logger.Debugf("client %s sent READY", s.name())
}

func (s *clientSession) Stop(quitting bool) {
	Logger.Infof("client %s asked us to stop (quitting=%t)", s.name(), quitting)
	s.closed.Store(true)
	s.conn.Close()
}

func (s *clientSession) Commands() []string {
	return nil
}
