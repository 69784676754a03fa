package transport

import (
	"net"
	"time"

	"github.com/snapforge/snaplock/rpc/common"
)

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection
// operations.
type IClientConnector interface {
	// Connect establishes a single connection to the given endpoint
	Connect(endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an
	// established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// IMessageConn is a message-oriented view of one broker connection. It pairs
// a stream socket with the wire serializer so callers exchange parsed
// messages instead of raw lines.
type IMessageConn interface {
	// Send serializes and transmits one message. Safe for concurrent use.
	Send(msg *common.Message) error

	// Recv blocks until one full message arrives or the absolute deadline
	// passes. A zero deadline blocks indefinitely. On deadline expiry the
	// returned error wraps ErrTimeout.
	Recv(deadline time.Time) (*common.Message, error)

	// Peek returns one already-buffered message without blocking. It
	// returns (nil, nil) when no complete message is pending.
	Peek() (*common.Message, error)

	// Close closes the underlying connection.
	Close() error
}

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// IServerConnector defines the interface for transport-specific listener
// operations (used by the broker).
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
}
