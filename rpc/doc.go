// Package rpc provides the communication layer of the lock service. It
// defines the line-oriented wire protocol spoken between lock clients and
// the broker, and the plumbing both sides share.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the system,
//     including the Message type, protocol message factories, configuration
//     structures, and logging.
//
//   - serializer: The text wire format, converting between Message objects
//     and single protocol lines.
//
//   - transport: Network communication abstractions with pluggable
//     implementations (TCP, Unix sockets) and the message-oriented
//     connection wrapper used by both sides.
//
//   - dispatch: The first-match message dispatcher and the builtin handlers
//     for the administrative commands every connection answers.
//
//   - broker: The server side, granting named locks to connected clients
//     and revoking them on expiry.
package rpc
