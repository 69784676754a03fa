// Package cmd implements the command-line interface for the snaplock
// distributed lock service. It provides a hierarchical command structure
// with operations for running the broker and interacting with it as a
// client.
//
// The package is organized into several subpackages:
//
//   - lock: Commands for lock operations (acquire, test)
//   - serve: Commands for starting and configuring the lock broker
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See snaplock -help for a list of all commands.
package cmd
