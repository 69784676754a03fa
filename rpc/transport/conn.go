package transport

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/snapforge/snaplock/rpc/common"
	"github.com/snapforge/snaplock/rpc/serializer"
)

var Logger = logger.GetLogger("transport/rpc")

// ErrTimeout is wrapped by Recv when the deadline passes before a full
// message arrived.
var ErrTimeout = errors.New("receive timed out")

const readBufferSize = 64 * 1024

// -----------------------------------------------------------
// Message Connection
// -----------------------------------------------------------

// messageConn implements IMessageConn over a net.Conn
type messageConn struct {
	conn       net.Conn
	reader     *bufio.Reader
	serializer serializer.IMessageSerializer
	writeMu    sync.Mutex // protects writes; reads are single-goroutine
}

// NewMessageConn wraps an established connection with the wire serializer.
func NewMessageConn(conn net.Conn, s serializer.IMessageSerializer) IMessageConn {
	return &messageConn{
		conn:       conn,
		reader:     bufio.NewReaderSize(conn, readBufferSize),
		serializer: s,
	}
}

// Connect dials the broker using the given connector and wraps the
// resulting connection.
func Connect(connector IClientConnector, config common.ClientConfig, s serializer.IMessageSerializer) (IMessageConn, error) {
	conn, err := connector.Connect(config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s (%s): %v", config.Endpoint, connector.GetName(), err)
	}

	if err := connector.UpgradeConnection(conn, config); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to upgrade connection to %s: %v", config.Endpoint, err)
	}

	Logger.Debugf("connected to %s using %s transport", config.Endpoint, connector.GetName())
	return NewMessageConn(conn, s), nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IMessageConn)
// --------------------------------------------------------------------------

func (c *messageConn) Send(msg *common.Message) error {
	data, err := c.serializer.Serialize(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_, err = c.conn.Write(append(data, '\n'))
	return err
}

func (c *messageConn) Recv(deadline time.Time) (*common.Message, error) {
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("%w after deadline %s", ErrTimeout, deadline.Format(time.RFC3339))
		}
		return nil, err
	}

	msg := &common.Message{}
	if err := c.serializer.Deserialize(line, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (c *messageConn) Peek() (*common.Message, error) {
	// Trigger a non-blocking buffer fill so data already delivered by the
	// kernel becomes visible without waiting for more. This must also run
	// when a partial line is already buffered, otherwise its remainder
	// would never be read.
	if !c.lineBuffered() {
		if err := c.conn.SetReadDeadline(time.Now()); err != nil {
			return nil, err
		}
		if _, err := c.reader.Peek(c.reader.Buffered() + 1); err != nil {
			var netErr net.Error
			if !errors.As(err, &netErr) || !netErr.Timeout() {
				return nil, err
			}
			// Nothing further delivered yet; whatever the fill picked up
			// before the deadline is inspected below.
		}
	}

	// Only consume a complete line; a partial line stays buffered for the
	// next call.
	if !c.lineBuffered() {
		return nil, nil
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return nil, err
	}

	msg := &common.Message{}
	if err := c.serializer.Deserialize(line, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// lineBuffered reports whether a complete line is already buffered.
func (c *messageConn) lineBuffered() bool {
	buffered, _ := c.reader.Peek(c.reader.Buffered())
	return bytes.IndexByte(buffered, '\n') >= 0
}

func (c *messageConn) Close() error {
	return c.conn.Close()
}
