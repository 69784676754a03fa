package dispatch

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/snapforge/snaplock/rpc/common"
)

var Logger = logger.GetLogger("dispatch")

// --------------------------------------------------------------------------
// Match Functions
// --------------------------------------------------------------------------

// MatchResult is the outcome of a rule's match function.
type MatchResult int

const (
	// MatchFalse means the rule does not apply; evaluation continues.
	MatchFalse MatchResult = iota
	// MatchTrue is a terminal match; the handler runs and evaluation stops.
	MatchTrue
	// MatchCallback runs the handler but keeps evaluating later rules. It
	// allows a rule to inspect or mutate a message before a terminal rule
	// fires.
	MatchCallback
)

// MatchFunc decides whether a rule applies to a message.
type MatchFunc func(expr string, msg *common.Message) MatchResult

// Handler processes one dispatched message. Handlers are closures bound to
// their owning connection.
type Handler func(msg *common.Message)

// MatchCommand is the default match function: case-sensitive exact equality
// between the rule expression and the message command.
func MatchCommand(expr string, msg *common.Message) MatchResult {
	if expr == msg.Command {
		return MatchTrue
	}
	return MatchFalse
}

// MatchAll matches any message terminally. Used for trailing fallback rules.
func MatchAll(string, *common.Message) MatchResult {
	return MatchTrue
}

// MatchCallbackAll matches any message without stopping evaluation.
func MatchCallbackAll(string, *common.Message) MatchResult {
	return MatchCallback
}

// --------------------------------------------------------------------------
// Rules
// --------------------------------------------------------------------------

// Rule binds a match expression to a handler. A nil Match falls back to
// MatchCommand. Rule lists are built at connection construction time and
// must not change once the connection starts processing messages.
type Rule struct {
	Expr    string
	Execute Handler
	Match   MatchFunc
}

func (r *Rule) match(msg *common.Message) MatchResult {
	if r.Match == nil {
		return MatchCommand(r.Expr, msg)
	}
	return r.Match(r.Expr, msg)
}

// exact reports whether the rule is a plain exact-command rule whose
// expression can be enumerated.
func (r *Rule) exact() bool {
	return r.Match == nil && r.Expr != ""
}

// --------------------------------------------------------------------------
// Dispatcher
// --------------------------------------------------------------------------

// Dispatcher routes an inbound message to exactly one terminal handler,
// with optional non-terminal callbacks first. Rules are evaluated strictly
// in declaration order; the first terminal match wins.
type Dispatcher struct {
	name  string
	rules []Rule
	trace bool
}

// NewDispatcher creates a dispatcher with the given rule list. The name is
// only used in log output and metrics.
func NewDispatcher(name string, rules []Rule) *Dispatcher {
	return &Dispatcher{
		name:  name,
		rules: rules,
	}
}

// SetTrace enables logging of every dispatch call including the full
// message. Off by default to avoid the overhead under load.
func (d *Dispatcher) SetTrace(trace bool) {
	d.trace = trace
}

// Dispatch matches msg against the rules in order. Callback matches run
// their handler and continue; the first terminal match runs its handler and
// stops evaluation. It returns false when no terminal rule matched so the
// owner's fallback path can run. Unmatched messages are not an error.
func (d *Dispatcher) Dispatch(msg *common.Message) bool {
	if d.trace {
		Logger.Infof("dispatcher %s: dispatching %s", d.name, msg.Dump())
	}

	metrics.GetOrCreateCounter(
		fmt.Sprintf(`snaplock_dispatch_total{dispatcher=%q,command=%q}`, d.name, msg.Command)).Inc()

	for i := range d.rules {
		rule := &d.rules[i]
		switch rule.match(msg) {
		case MatchTrue:
			rule.Execute(msg)
			return true
		case MatchCallback:
			rule.Execute(msg)
		}
	}
	return false
}

// Commands returns the plain exact-match command names of the rule list in
// declaration order. incomplete is true when at least one rule uses a
// non-exact match function and thus cannot be enumerated; callers must then
// merge in their own dynamic names.
func (d *Dispatcher) Commands() (names []string, incomplete bool) {
	for i := range d.rules {
		if d.rules[i].exact() {
			names = append(names, d.rules[i].Expr)
		} else {
			incomplete = true
		}
	}
	return names, incomplete
}
