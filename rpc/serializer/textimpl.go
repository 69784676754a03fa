package serializer

import (
	"strings"

	"github.com/snapforge/snaplock/rpc/common"
)

// NewTextSerializer creates a serializer for the line-oriented text wire
// format spoken by the lock broker:
//
//	[[server:]service/]COMMAND[ name=value[;name=value]...]
//
// Parameter values escape the characters that structure the format
// (backslash, equal sign, semicolon and newline). Serialization preserves
// parameter insertion order, so a parsed canonical line serializes back to
// the exact same bytes.
func NewTextSerializer() IMessageSerializer {
	return &textSerializerImpl{}
}

// textSerializerImpl implements the IMessageSerializer interface using the
// text wire format
type textSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IMessageSerializer)
// --------------------------------------------------------------------------

func (t textSerializerImpl) Serialize(msg *common.Message) ([]byte, error) {
	if !common.ValidCommand(msg.Command) {
		return nil, common.MalformedMessagef("invalid command token %q", msg.Command)
	}

	var sb strings.Builder

	// Destination prefix. A server name alone is not routable, it is only
	// written together with a service name.
	if msg.Service != "" {
		if msg.Server != "" {
			sb.WriteString(msg.Server)
			sb.WriteByte(':')
		}
		sb.WriteString(msg.Service)
		sb.WriteByte('/')
	}

	sb.WriteString(msg.Command)

	names := msg.ParameterNames()
	for i, name := range names {
		if !validParameterName(name) {
			return nil, common.MalformedMessagef("invalid parameter name %q", name)
		}
		if i == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteByte(';')
		}
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.WriteString(escapeValue(msg.Parameter(name)))
	}

	return []byte(sb.String()), nil
}

func (t textSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	line := strings.TrimRight(string(b), "\r\n")
	if line == "" {
		return common.MalformedMessagef("empty line")
	}

	// Split the command head from the parameter list
	head := line
	params := ""
	if idx := strings.IndexByte(line, ' '); idx >= 0 {
		head = line[:idx]
		params = line[idx+1:]
	}

	// Extract the optional destination prefix
	command := head
	var server, service string
	if idx := strings.IndexByte(head, '/'); idx >= 0 {
		dest := head[:idx]
		command = head[idx+1:]
		if colon := strings.IndexByte(dest, ':'); colon >= 0 {
			server = dest[:colon]
			service = dest[colon+1:]
		} else {
			service = dest
		}
		if service == "" {
			return common.MalformedMessagef("empty service in destination %q", dest)
		}
	}

	if !common.ValidCommand(command) {
		return common.MalformedMessagef("invalid command token %q", command)
	}

	parsed := common.NewMessage(command)
	parsed.Server = server
	parsed.Service = service

	if params != "" {
		if err := parseParameters(parsed, params); err != nil {
			return err
		}
	}

	*msg = *parsed
	return nil
}

// --------------------------------------------------------------------------
// Escaping Helpers
// --------------------------------------------------------------------------

// escapeValue escapes the characters that structure the wire format
func escapeValue(value string) string {
	var sb strings.Builder
	for i := 0; i < len(value); i++ {
		switch c := value[i]; c {
		case '\\':
			sb.WriteString(`\\`)
		case '=':
			sb.WriteString(`\=`)
		case ';':
			sb.WriteString(`\;`)
		case '\n':
			sb.WriteString(`\n`)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// parseParameters splits the parameter list on unescaped semicolons and each
// clause on its first unescaped equal sign. Parameter names must be unique
// within one message.
func parseParameters(msg *common.Message, params string) error {
	var name, value strings.Builder
	inValue := false

	flush := func() error {
		if !inValue {
			return common.MalformedMessagef("parameter clause %q has no value", name.String())
		}
		n := name.String()
		if !validParameterName(n) {
			return common.MalformedMessagef("invalid parameter name %q", n)
		}
		if msg.HasParameter(n) {
			return common.MalformedMessagef("duplicate parameter %q", n)
		}
		msg.AddParameter(n, value.String())
		name.Reset()
		value.Reset()
		inValue = false
		return nil
	}

	for i := 0; i < len(params); i++ {
		c := params[i]
		switch {
		case c == '\\':
			if !inValue {
				return common.MalformedMessagef("escape sequence in parameter name")
			}
			if i+1 >= len(params) {
				return common.MalformedMessagef("dangling escape at end of line")
			}
			i++
			switch params[i] {
			case '\\':
				value.WriteByte('\\')
			case '=':
				value.WriteByte('=')
			case ';':
				value.WriteByte(';')
			case 'n':
				value.WriteByte('\n')
			default:
				return common.MalformedMessagef("unknown escape sequence \\%c", params[i])
			}
		case c == '=' && !inValue:
			inValue = true
		case c == ';':
			if err := flush(); err != nil {
				return err
			}
		default:
			if inValue {
				value.WriteByte(c)
			} else {
				name.WriteByte(c)
			}
		}
	}

	return flush()
}

// validParameterName reports whether name is a valid parameter name
// ([A-Za-z_][A-Za-z0-9_]*).
func validParameterName(name string) bool {
	if len(name) == 0 {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
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
