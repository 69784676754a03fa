// Package transport provides network communication abstractions for the
// lock protocol with pluggable implementations (TCP, Unix sockets).
//
// The package separates two concerns:
//
//   - IClientConnector / IServerConnector: how a stream connection is
//     established (dialing or listening on tcp/unix endpoints, applying
//     socket tuning).
//
//   - IMessageConn: a message-oriented view of one established connection.
//     It pairs the stream with the wire serializer so callers send and
//     receive parsed messages. Recv takes an absolute deadline and reports
//     expiry as ErrTimeout; Peek consumes one already-buffered message
//     without ever blocking, which lets a lock holder poll for a late
//     forced-unlock notice outside of any event loop.
//
// Unlike a multiplexing RPC client, a message connection is conversational:
// the lock protocol is a stateful exchange on a dedicated connection, so
// there is no request-id correlation and no connection pooling here.
package transport
