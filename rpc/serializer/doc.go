// Package serializer provides message serialization for the lock broker
// wire protocol. It defines a common interface and the line-oriented text
// implementation used on every broker connection.
//
// The package focuses on:
//   - Providing a consistent interface separating the codec from transport
//   - Deterministic serialization (parameter insertion order is preserved)
//   - Complete parsing on receipt; handlers never see partial messages
//
// Key Components:
//
//   - IMessageSerializer: Core interface that serializer implementations
//     must satisfy.
//
//   - textSerializerImpl: The broker wire format. One message per line,
//     an optional "server:service/" destination prefix, the uppercase
//     command token and a semicolon separated "name=value" parameter list.
//     Values escape backslash, equal sign, semicolon and newline so any
//     string value survives a round trip.
//
// Malformed input is rejected with an error wrapping
// common.ErrMalformedMessage before any dispatch can happen. This keeps the
// dispatcher free of partial-parse states: either a handler receives a fully
// parsed message or the transport drops the line.
//
// Thread Safety:
//
//	The serializer is stateless and safe for concurrent use across multiple
//	goroutines without additional synchronization.
package serializer
