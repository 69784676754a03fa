package common

import (
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Socket configuration (shared by client and broker)
// --------------------------------------------------------------------------

// SocketConf holds buffer settings applied to any stream socket.
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds settings only applied to TCP connections.
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

// --------------------------------------------------------------------------
// Client configuration struct
// --------------------------------------------------------------------------

// ClientConfig holds the transport parameters of a lock client connection.
type ClientConfig struct {
	// Mode selects the transport ("tcp" or "unix").
	Mode string

	// Endpoint is the broker address (host:port for tcp, a path for unix).
	Endpoint string

	SocketConf
	TCPConf
}

// String returns a formatted string representation of the configuration.
func (c *ClientConfig) String() string {
	var sb strings.Builder
	sb.WriteString("\nCLIENT CONFIGURATION\n")
	sb.WriteString(fmt.Sprintf("  %-22s: %s\n", "Transport", c.Mode))
	sb.WriteString(fmt.Sprintf("  %-22s: %s\n", "Endpoint", c.Endpoint))
	return sb.String()
}

// --------------------------------------------------------------------------
// Broker (server) configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters of the lock broker.
type ServerConfig struct {
	// Mode selects the transport ("tcp" or "unix").
	Mode string

	// Endpoint is the address the broker listens on.
	Endpoint string

	// TimeoutSecond bounds how long a freshly accepted connection may stay
	// unregistered before the broker drops it. Registered clients are not
	// subject to it. Zero disables the deadline.
	TimeoutSecond int64

	// Logging configuration
	LogLevel string

	SocketConf
	TCPConf
}

// String returns a formatted string representation of the configuration.
func (c *ServerConfig) String() string {
	var sb strings.Builder
	sb.WriteString("\nBROKER CONFIGURATION\n")
	sb.WriteString(fmt.Sprintf("  %-22s: %s\n", "Transport", c.Mode))
	sb.WriteString(fmt.Sprintf("  %-22s: %s\n", "Endpoint", c.Endpoint))
	sb.WriteString(fmt.Sprintf("  %-22s: %d sec\n", "Timeout", c.TimeoutSecond))
	sb.WriteString(fmt.Sprintf("  %-22s: %s\n", "Log Level", c.LogLevel))
	return sb.String()
}
