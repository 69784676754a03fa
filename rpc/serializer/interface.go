package serializer

import "github.com/snapforge/snaplock/rpc/common"

// IMessageSerializer is the interface for all Message serializers.
type IMessageSerializer interface {
	// Serialize serializes a Message into its wire representation without
	// the trailing newline. It returns an error when the message carries an
	// invalid command token or parameter name.
	Serialize(msg *common.Message) ([]byte, error)
	// Deserialize parses a single wire line (with or without the trailing
	// newline) into the given Message. It returns an error wrapping
	// common.ErrMalformedMessage when the line cannot be parsed.
	Deserialize(b []byte, msg *common.Message) error
}
