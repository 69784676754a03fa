package common

import (
	"fmt"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single command exchange on the broker wire protocol.
// A message carries an uppercase command token, optional destination
// server/service names, optional sender names (filled in by the transport,
// never by the application) and an ordered list of named string parameters.
//
// A message is built by a sender immediately before transmission and parsed
// fully on receipt; handlers never observe a partially parsed message.
type Message struct {
	// Command is the uppercase command token (e.g. "LOCK", "LOCKED").
	// It must match [A-Z_][A-Z0-9_]*.
	Command string

	// Destination routing (optional)
	Server  string // Name of the server the message is addressed to
	Service string // Name of the service the message is addressed to

	// Sender identity, set by the transport layer on received messages
	SentFromServer  string
	SentFromService string

	// Ordered parameters. names preserves insertion order so that
	// serialization is deterministic and tests can assert exact wire bytes.
	names  []string
	params map[string]string
}

// NewMessage creates a new message for the given command.
func NewMessage(command string) *Message {
	return &Message{Command: command}
}

// --------------------------------------------------------------------------
// Parameter Accessors
// --------------------------------------------------------------------------

// AddParameter appends a named parameter. Adding a name that already exists
// overwrites the value but keeps the original position.
func (m *Message) AddParameter(name, value string) *Message {
	if m.params == nil {
		m.params = make(map[string]string)
	}
	if _, ok := m.params[name]; !ok {
		m.names = append(m.names, name)
	}
	m.params[name] = value
	return m
}

// AddIntegerParameter appends a named parameter formatted as base-10.
func (m *Message) AddIntegerParameter(name string, value int64) *Message {
	return m.AddParameter(name, strconv.FormatInt(value, 10))
}

// HasParameter reports whether the named parameter is present.
func (m *Message) HasParameter(name string) bool {
	_, ok := m.params[name]
	return ok
}

// Parameter returns the value of the named parameter or the empty string if
// the parameter is not present. Use HasParameter to distinguish an absent
// parameter from an empty value.
func (m *Message) Parameter(name string) string {
	return m.params[name]
}

// IntegerParameter returns the named parameter parsed as a base-10 int64.
// It returns an InvalidParameterTypeError if the value is not parseable and
// treats an absent parameter like an empty (unparseable) value.
func (m *Message) IntegerParameter(name string) (int64, error) {
	value := m.params[name]
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, &InvalidParameterTypeError{Name: name, Value: value}
	}
	return n, nil
}

// ParameterNames returns the parameter names in insertion order.
func (m *Message) ParameterNames() []string {
	names := make([]string, len(m.names))
	copy(names, m.names)
	return names
}

// --------------------------------------------------------------------------
// Command Token Validation
// --------------------------------------------------------------------------

// ValidCommand reports whether command is a valid command token
// ([A-Z_][A-Z0-9_]*).
func ValidCommand(command string) bool {
	if len(command) == 0 {
		return false
	}
	for i := 0; i < len(command); i++ {
		c := command[i]
		switch {
		case c == '_' || (c >= 'A' && c <= 'Z'):
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// String returns a human readable representation used in log output.
func (m *Message) String() string {
	return fmt.Sprintf("%s (%d parameters)", m.Command, len(m.names))
}

// Dump returns the full message content in wire shape, including the
// destination prefix and every parameter in order. Used by dispatch tracing;
// values are not escaped.
func (m *Message) Dump() string {
	var sb strings.Builder
	if m.Service != "" {
		if m.Server != "" {
			sb.WriteString(m.Server)
			sb.WriteByte(':')
		}
		sb.WriteString(m.Service)
		sb.WriteByte('/')
	}
	sb.WriteString(m.Command)
	for i, name := range m.names {
		if i == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteByte(';')
		}
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.WriteString(m.params[name])
	}
	return sb.String()
}
