// Package dispatch routes inbound protocol messages to handler functions.
//
// A connection owns a Dispatcher built from an ordered list of rules. Each
// rule binds a match expression to a handler closure capturing the
// connection. On Dispatch the rules are evaluated strictly in declaration
// order: a callback match runs its handler and keeps going, the first
// terminal match runs its handler and stops evaluation. When no rule
// matches, Dispatch returns false and the owner's fallback path runs;
// unmatched messages are never an error. Malformed input is rejected
// earlier, at parse time, and never reaches the dispatcher.
//
// AppendBuiltinCommands extends a rule list with handlers for the standard
// administrative commands every connection answers (HELP, ALIVE, LOG,
// QUITTING, READY, STOP, UNKNOWN) plus a trailing catch-all that replies
// UNKNOWN. Rules appended earlier shadow the builtins, so a connection can
// override any of them by declaring its own rule for the same command.
//
// Rule lists are constructed once, before the connection starts processing
// messages, and are immutable afterwards. The Dispatcher itself holds no
// locks: it is confined to the goroutine driving its connection.
package dispatch
