package broker

import (
	"errors"
	"net"
	"sync"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/snapforge/snaplock/rpc/common"
	"github.com/snapforge/snaplock/rpc/serializer"
	"github.com/snapforge/snaplock/rpc/transport"
	"github.com/snapforge/snaplock/rpc/transport/tcp"
)

var Logger = logger.GetLogger("broker")

// NewBroker creates a new lock broker.
// It takes a config, a server connector and a serializer as parameters.
//
// Usage:
//
//	b := broker.NewBroker(
//		config,
//		tcp.NewTCPServerConnector(),
//		serializer.NewTextSerializer(),
//	)
//
//	if err := b.Start(); err != nil {
//		panic(err)
//	}
//	defer b.Stop()
func NewBroker(
	config common.ServerConfig,
	connector transport.IServerConnector,
	ser serializer.IMessageSerializer,
) *Broker {
	Logger.Infof("Created lock broker")
	Logger.Infof(config.String())

	return &Broker{
		config:     config,
		connector:  connector,
		serializer: ser,
		table:      newLockTable(),
		clients:    xsync.NewMapOf[string, *clientSession](),
	}
}

// Broker owns the listener, the lock table and all connected client
// sessions. One Broker serves one endpoint.
type Broker struct {
	config     common.ServerConfig
	connector  transport.IServerConnector
	serializer serializer.IMessageSerializer
	table      *lockTable
	clients    *xsync.MapOf[string, *clientSession]

	mu       sync.Mutex
	listener net.Listener
	stopped  bool
	done     chan struct{}
}

// Start binds the listener and begins accepting connections in a
// background goroutine. It returns once the endpoint is bound, so tests
// can dial Addr() immediately after.
func (b *Broker) Start() error {
	ln, err := b.connector.Listen(b.config)
	if err != nil {
		return err
	}

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		ln.Close()
		return errors.New("broker already stopped")
	}
	b.listener = ln
	b.done = make(chan struct{})
	b.mu.Unlock()

	Logger.Infof("Broker listening on %s (%s)", ln.Addr(), b.connector.GetName())

	go b.acceptLoop(ln)
	return nil
}

// Stop closes the listener and all client connections. Safe to call
// more than once.
func (b *Broker) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	ln := b.listener
	done := b.done
	b.mu.Unlock()

	if ln != nil {
		ln.Close()
	}

	b.clients.Range(func(_ string, s *clientSession) bool {
		s.Stop(false)
		return true
	})

	if done != nil {
		<-done
	}
	Logger.Infof("Broker stopped")
}

// Addr returns the bound listener address, or nil before Start.
func (b *Broker) Addr() net.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listener == nil {
		return nil
	}
	return b.listener.Addr()
}

// acceptLoop accepts connections until the listener closes. Each
// connection gets its own session goroutine.
func (b *Broker) acceptLoop(ln net.Listener) {
	defer close(b.done)
	for {
		conn, err := ln.Accept()
		if err != nil {
			b.mu.Lock()
			stopped := b.stopped
			b.mu.Unlock()
			if stopped {
				return
			}
			Logger.Warningf("accept failed: %v", err)
			return
		}

		if err := tcp.UpgradeServerConn(conn, b.config); err != nil {
			Logger.Warningf("failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
		}

		session := newClientSession(b, transport.NewMessageConn(conn, b.serializer))
		go session.serve()
	}
}
