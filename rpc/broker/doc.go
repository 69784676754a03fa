// Package broker implements the server side of the lock protocol. It accepts
// client connections, tracks which client holds or waits for which named
// lock, and pushes asynchronous notifications (grants, failures, timeout
// revocations) back over the same connections.
//
// The package focuses on:
//   - One goroutine per client connection, driving a first-match dispatcher
//   - A process-wide lock table granting each object to at most one holder
//   - FIFO waiter queues with per-request obtention deadlines
//   - Lock expiry with a grace period before forced release
//
// Key Components:
//
//   - NewBroker: Factory function creating a broker bound to a server
//     connector and a wire serializer.
//
//   - Broker: Owns the listener, the lock table and all connected client
//     sessions. Start binds the endpoint and accepts in the background;
//     Stop tears everything down.
//
//   - clientSession: The broker side of one connection. REGISTER, LOCK,
//     UNLOCK and UNREGISTER are handled here; administrative commands come
//     from the shared dispatch builtins.
//
//   - lockTable: The concurrent map of lock entries. Each entry serializes
//     its own state under a small mutex, so contention on one object never
//     blocks another.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Endpoint:      "0.0.0.0:8017",
//	  TimeoutSecond: 5,
//	  LogLevel:      "info",
//	}
//
//	b := broker.NewBroker(
//	  config,
//	  tcp.NewTCPServerConnector(),
//	  serializer.NewTextSerializer(),
//	)
//
//	if err := b.Start(); err != nil {
//	  log.Fatalf("broker error: %v", err)
//	}
//	defer b.Stop()
//
// Lifecycle of a lock: a LOCK request is granted immediately when the object
// is free, otherwise the requester joins the waiter queue. A waiter whose
// obtention deadline passes before the grant receives LOCKFAILED. A holder
// whose lock duration elapses receives an UNLOCKED notification carrying
// error=timedout and is expected to acknowledge with UNLOCK; after the grace
// period the broker releases the lock regardless, so a crashed or wedged
// holder cannot block an object forever. Disconnecting releases everything
// the session held or waited for.
//
// The handshake timeout (ServerConfig.TimeoutSecond) applies only while a
// connection is unregistered. Registered clients may idle indefinitely,
// since holding a lock for a long time is the normal case.
package broker
