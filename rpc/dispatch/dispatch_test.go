package dispatch

import (
	"reflect"
	"strings"
	"testing"

	"github.com/snapforge/snaplock/rpc/common"
)

// fakeControl records everything the builtins do with the connection
type fakeControl struct {
	sent     []*common.Message
	ready    []*common.Message
	stops    []bool
	commands []string
}

func (c *fakeControl) Send(msg *common.Message) error { c.sent = append(c.sent, msg); return nil }
func (c *fakeControl) Ready(msg *common.Message)      { c.ready = append(c.ready, msg) }
func (c *fakeControl) Stop(quitting bool)             { c.stops = append(c.stops, quitting) }
func (c *fakeControl) Commands() []string             { return c.commands }

// TestDispatchOrder tests first-match semantics over the rule list
func TestDispatchOrder(t *testing.T) {
	var fired []string

	d := NewDispatcher("test", []Rule{
		{Expr: "LOCKED", Execute: func(msg *common.Message) { fired = append(fired, "first") }},
		{Expr: "LOCKED", Execute: func(msg *common.Message) { fired = append(fired, "second") }},
		{Expr: "UNLOCKED", Execute: func(msg *common.Message) { fired = append(fired, "unlocked") }},
	})

	if !d.Dispatch(common.NewMessage("LOCKED")) {
		t.Fatal("Dispatch(LOCKED) = false, want true")
	}
	if !reflect.DeepEqual(fired, []string{"first"}) {
		t.Errorf("fired = %v, want only the first matching rule", fired)
	}
}

// TestDispatchUnmatched tests that an unmatched message is reported, not an
// error
func TestDispatchUnmatched(t *testing.T) {
	d := NewDispatcher("test", []Rule{
		{Expr: "LOCKED", Execute: func(msg *common.Message) { t.Error("rule must not fire") }},
	})

	if d.Dispatch(common.NewMessage("NOPE")) {
		t.Error("Dispatch(NOPE) = true, want false")
	}
}

// TestDispatchCallback tests that a callback rule runs without stopping
// evaluation
func TestDispatchCallback(t *testing.T) {
	var fired []string

	d := NewDispatcher("test", []Rule{
		{Match: MatchCallbackAll, Execute: func(msg *common.Message) { fired = append(fired, "callback") }},
		{Expr: "LOCKED", Execute: func(msg *common.Message) { fired = append(fired, "terminal") }},
	})

	if !d.Dispatch(common.NewMessage("LOCKED")) {
		t.Fatal("Dispatch(LOCKED) = false, want true")
	}
	if !reflect.DeepEqual(fired, []string{"callback", "terminal"}) {
		t.Errorf("fired = %v, want callback before terminal", fired)
	}

	// A callback alone is not a terminal match
	fired = nil
	if d.Dispatch(common.NewMessage("OTHER")) {
		t.Error("Dispatch(OTHER) = true, want false with only a callback match")
	}
	if !reflect.DeepEqual(fired, []string{"callback"}) {
		t.Errorf("fired = %v, want the callback to have run", fired)
	}
}

// TestCommands tests rule enumeration and the incomplete flag
func TestCommands(t *testing.T) {
	d := NewDispatcher("test", []Rule{
		{Expr: "LOCKED", Execute: func(msg *common.Message) {}},
		{Expr: "UNLOCKED", Execute: func(msg *common.Message) {}},
	})

	names, incomplete := d.Commands()
	if incomplete {
		t.Error("incomplete = true for exact-only rules")
	}
	if !reflect.DeepEqual(names, []string{"LOCKED", "UNLOCKED"}) {
		t.Errorf("names = %v, want declaration order", names)
	}

	d = NewDispatcher("test", []Rule{
		{Expr: "LOCKED", Execute: func(msg *common.Message) {}},
		{Match: MatchAll, Execute: func(msg *common.Message) {}},
	})
	names, incomplete = d.Commands()
	if !incomplete {
		t.Error("incomplete = false with a non-exact rule present")
	}
	if !reflect.DeepEqual(names, []string{"LOCKED"}) {
		t.Errorf("names = %v, want only the exact rules", names)
	}
}

// TestBuiltinAlive tests the ALIVE handshake reply
func TestBuiltinAlive(t *testing.T) {
	control := &fakeControl{}
	d := NewDispatcher("test", nil)
	d.AppendBuiltinCommands(control)

	if !d.Dispatch(common.NewMessage(common.CmdAlive).AddParameter("token", "xyz")) {
		t.Fatal("Dispatch(ALIVE) = false, want true")
	}
	if len(control.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(control.sent))
	}
	reply := control.sent[0]
	if reply.Command != common.CmdAbsolutely {
		t.Errorf("reply command = %q, want %q", reply.Command, common.CmdAbsolutely)
	}
	if got := reply.Parameter("token"); got != "xyz" {
		t.Errorf("reply token = %q, want echoed %q", got, "xyz")
	}
}

// TestBuiltinHelp tests the HELP reply merging rule names with connection
// specific commands
func TestBuiltinHelp(t *testing.T) {
	control := &fakeControl{commands: []string{"LOCKED", "EXTRA"}}
	d := NewDispatcher("test", []Rule{
		{Expr: "LOCKED", Execute: func(msg *common.Message) {}},
	})
	d.AppendBuiltinCommands(control)

	if !d.Dispatch(common.NewMessage(common.CmdHelp)) {
		t.Fatal("Dispatch(HELP) = false, want true")
	}
	if len(control.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(control.sent))
	}
	reply := control.sent[0]
	if reply.Command != common.CmdCommands {
		t.Fatalf("reply command = %q, want %q", reply.Command, common.CmdCommands)
	}

	list := strings.Split(reply.Parameter("list"), ",")
	seen := map[string]int{}
	for _, name := range list {
		seen[name]++
	}
	for _, name := range []string{"LOCKED", "EXTRA", common.CmdHelp, common.CmdAlive, common.CmdStop} {
		if seen[name] != 1 {
			t.Errorf("command %q appears %d times in %v, want exactly once", name, seen[name], list)
		}
	}
	if !sortedUnique(list) {
		t.Errorf("list %v is not sorted and deduplicated", list)
	}
}

func sortedUnique(list []string) bool {
	for i := 1; i < len(list); i++ {
		if list[i-1] >= list[i] {
			return false
		}
	}
	return true
}

// TestBuiltinStopAndQuitting tests that STOP and QUITTING reach the control
func TestBuiltinStopAndQuitting(t *testing.T) {
	control := &fakeControl{}
	d := NewDispatcher("test", nil)
	d.AppendBuiltinCommands(control)

	d.Dispatch(common.NewMessage(common.CmdStop))
	d.Dispatch(common.NewMessage(common.CmdQuitting))

	if !reflect.DeepEqual(control.stops, []bool{false, true}) {
		t.Errorf("stops = %v, want [false true]", control.stops)
	}
}

// TestBuiltinReady tests that READY is forwarded to the control
func TestBuiltinReady(t *testing.T) {
	control := &fakeControl{}
	d := NewDispatcher("test", nil)
	d.AppendBuiltinCommands(control)

	d.Dispatch(common.NewMessage(common.CmdReady))
	if len(control.ready) != 1 {
		t.Errorf("ready fired %d times, want 1", len(control.ready))
	}
}

// TestBuiltinFallback tests that anything unrecognized gets an UNKNOWN reply
func TestBuiltinFallback(t *testing.T) {
	control := &fakeControl{}
	d := NewDispatcher("test", nil)
	d.AppendBuiltinCommands(control)

	if !d.Dispatch(common.NewMessage("BOGUS")) {
		t.Fatal("Dispatch(BOGUS) = false, want the fallback to match")
	}
	if len(control.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(control.sent))
	}
	reply := control.sent[0]
	if reply.Command != common.CmdUnknown {
		t.Errorf("reply command = %q, want %q", reply.Command, common.CmdUnknown)
	}
	if got := reply.Parameter("command"); got != "BOGUS" {
		t.Errorf("reply command parameter = %q, want %q", got, "BOGUS")
	}
}

// TestUserRuleShadowsBuiltin tests first-match shadowing of a builtin by an
// earlier connection rule
func TestUserRuleShadowsBuiltin(t *testing.T) {
	control := &fakeControl{}
	var fired int
	d := NewDispatcher("test", []Rule{
		{Expr: common.CmdHelp, Execute: func(msg *common.Message) { fired++ }},
	})
	d.AppendBuiltinCommands(control)

	if !d.Dispatch(common.NewMessage(common.CmdHelp)) {
		t.Fatal("Dispatch(HELP) = false, want true")
	}
	if fired != 1 {
		t.Errorf("user rule fired %d times, want 1", fired)
	}
	if len(control.sent) != 0 {
		t.Errorf("builtin replied %d times, want the user rule to shadow it", len(control.sent))
	}
}
