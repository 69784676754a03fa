package dispatch

import (
	"sort"
	"strings"

	"github.com/snapforge/snaplock/rpc/common"
)

// --------------------------------------------------------------------------
// Built-in Administrative Commands
// --------------------------------------------------------------------------

// IControl is the owner side of the built-in command handlers. Every
// connection that appends the builtins implements it.
type IControl interface {
	// Send transmits a message back to the peer.
	Send(msg *common.Message) error

	// Ready is invoked when the peer acknowledges our registration and
	// hands control back (the READY reply to REGISTER).
	Ready(msg *common.Message)

	// Stop is invoked on STOP, or on QUITTING with quitting set.
	Stop(quitting bool)

	// Commands returns command names the connection answers that are not
	// enumerable from its rule list (dynamic names merged into the HELP
	// reply).
	Commands() []string
}

// AppendBuiltinCommands appends, in fixed order, rules for HELP, ALIVE, LOG,
// QUITTING, READY, STOP, UNKNOWN and a trailing always-match fallback that
// replies UNKNOWN for anything else. It must be called at most once per
// dispatcher, right after construction and before the first Dispatch.
//
// Because the builtins are appended, a connection-specific rule for the same
// command earlier in the list wins (first match semantics).
func (d *Dispatcher) AppendBuiltinCommands(c IControl) {
	d.rules = append(d.rules,
		Rule{Expr: common.CmdHelp, Execute: func(msg *common.Message) { d.help(c, msg) }},
		Rule{Expr: common.CmdAlive, Execute: func(msg *common.Message) { d.alive(c, msg) }},
		Rule{Expr: common.CmdLog, Execute: func(msg *common.Message) { d.logrotate(msg) }},
		Rule{Expr: common.CmdQuitting, Execute: func(msg *common.Message) { c.Stop(true) }},
		Rule{Expr: common.CmdReady, Execute: func(msg *common.Message) { c.Ready(msg) }},
		Rule{Expr: common.CmdStop, Execute: func(msg *common.Message) { c.Stop(false) }},
		Rule{Expr: common.CmdUnknown, Execute: func(msg *common.Message) { d.unknown(msg) }},
		Rule{Match: MatchAll, Execute: func(msg *common.Message) { d.fallback(c, msg) }},
	)
}

// help replies with the COMMANDS list of everything this connection answers.
func (d *Dispatcher) help(c IControl, msg *common.Message) {
	names, _ := d.Commands()
	names = append(names, c.Commands()...)

	// Deduplicate and sort so the reply is stable.
	sort.Strings(names)
	unique := names[:0]
	for i, name := range names {
		if i == 0 || name != names[i-1] {
			unique = append(unique, name)
		}
	}

	if err := c.Send(common.NewCommandsReply(strings.Join(unique, ","))); err != nil {
		Logger.Warningf("dispatcher %s: failed to reply to HELP: %v", d.name, err)
	}
}

// alive replies ABSOLUTELY so peers can check that we still answer.
func (d *Dispatcher) alive(c IControl, msg *common.Message) {
	reply := common.NewMessage(common.CmdAbsolutely)
	for _, name := range msg.ParameterNames() {
		reply.AddParameter(name, msg.Parameter(name))
	}
	if err := c.Send(reply); err != nil {
		Logger.Warningf("dispatcher %s: failed to reply to ALIVE: %v", d.name, err)
	}
}

// logrotate handles the LOG command asking us to reopen log outputs.
func (d *Dispatcher) logrotate(msg *common.Message) {
	Logger.Infof("dispatcher %s: log rotation requested", d.name)
}

// unknown handles a peer telling us it did not understand one of our
// messages.
func (d *Dispatcher) unknown(msg *common.Message) {
	Logger.Warningf("dispatcher %s: peer did not understand command %q",
		d.name, msg.Parameter("command"))
}

// fallback answers anything unrecognized with UNKNOWN.
func (d *Dispatcher) fallback(c IControl, msg *common.Message) {
	Logger.Warningf("dispatcher %s: unsupported command %q", d.name, msg.Command)
	if err := c.Send(common.NewUnknownReply(msg)); err != nil {
		Logger.Warningf("dispatcher %s: failed to reply UNKNOWN: %v", d.name, err)
	}
}
