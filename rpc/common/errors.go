package common

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Wire Protocol Errors
// --------------------------------------------------------------------------

// ErrMalformedMessage is returned by the serializer when a wire line cannot
// be parsed into a Message. It is fatal to that single read, not to the
// connection. Use errors.Is to test for it; the wrapped error carries the
// parse detail.
var ErrMalformedMessage = errors.New("malformed message")

// MalformedMessagef wraps ErrMalformedMessage with a detail message.
func MalformedMessagef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedMessage, fmt.Sprintf(format, args...))
}

// IsMalformed reports whether err wraps ErrMalformedMessage.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedMessage)
}

// InvalidParameterTypeError is returned by Message.IntegerParameter when the
// parameter value is not base-10 parseable. It is local to the accessor call.
type InvalidParameterTypeError struct {
	Name  string
	Value string
}

func (e *InvalidParameterTypeError) Error() string {
	return fmt.Sprintf("parameter %q is not a valid integer (value %q)", e.Name, e.Value)
}
