// Package common provides core data structures and utilities shared across
// the lock client and broker. It defines fundamental types, configuration
// structures, and protocol elements used by other packages.
//
// The package focuses on:
//   - Message protocol definition for the line-oriented broker wire format
//   - Configuration structures for client and broker components
//   - Custom logging implementation with consistent formatting
//   - The protocol command vocabulary and message factory functions
//
// Key Components:
//
//   - Message: Core data structure for all broker communication. A message
//     carries an uppercase command token, optional routing names and an
//     ordered list of named string parameters. Factory functions build the
//     well known protocol messages (REGISTER, LOCK, LOCKED, UNLOCKED, ...).
//
//   - ClientConfig / ServerConfig: Connection parameters for the lock client
//     and the broker, including transport mode selection and socket tuning.
//
//   - ErrMalformedMessage / InvalidParameterTypeError: The wire level error
//     taxonomy. Parse failures are reported by the serializer before any
//     dispatch happens; integer conversion failures are local to the
//     accessor call.
//
//   - Logger: Custom logging implementation providing consistent formatting
//     across the application.
package common
