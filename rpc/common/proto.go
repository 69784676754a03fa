package common

// --------------------------------------------------------------------------
// Protocol Constants
// --------------------------------------------------------------------------

const (
	// ProtocolVersion is the version announced in REGISTER messages.
	ProtocolVersion = 1

	// LockService is the well known name of the lock arbitration service.
	LockService = "snaplock"
)

// Command names used by the lock protocol.
const (
	CmdRegister   = "REGISTER"
	CmdUnregister = "UNREGISTER"
	CmdLock       = "LOCK"
	CmdUnlock     = "UNLOCK"
	CmdLocked     = "LOCKED"
	CmdLockFailed = "LOCKFAILED"
	CmdUnlocked   = "UNLOCKED"

	// Administrative commands handled by the dispatcher builtins.
	CmdHelp       = "HELP"
	CmdAlive      = "ALIVE"
	CmdAbsolutely = "ABSOLUTELY"
	CmdCommands   = "COMMANDS"
	CmdLog        = "LOG"
	CmdQuitting   = "QUITTING"
	CmdReady      = "READY"
	CmdStop       = "STOP"
	CmdUnknown    = "UNKNOWN"
)

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewRegisterMessage creates a REGISTER request announcing a service name.
func NewRegisterMessage(service string) *Message {
	return NewMessage(CmdRegister).
		AddParameter("service", service).
		AddIntegerParameter("version", ProtocolVersion)
}

// NewUnregisterMessage creates an UNREGISTER request for a service name.
func NewUnregisterMessage(service string) *Message {
	return NewMessage(CmdUnregister).
		AddParameter("service", service)
}

// NewLockMessage creates a LOCK request for the given object. The deadline
// is the absolute obtention deadline in epoch seconds; duration is the
// requested time-to-live of the granted lock in seconds. A non-positive
// unlockDuration means "use the lock duration" and omits the parameter.
func NewLockMessage(objectName string, pid int, deadline, duration, unlockDuration int64) *Message {
	msg := NewMessage(CmdLock)
	msg.Service = LockService
	msg.AddParameter("object_name", objectName).
		AddIntegerParameter("pid", int64(pid)).
		AddIntegerParameter("timeout", deadline).
		AddIntegerParameter("duration", duration)
	if unlockDuration > 0 {
		msg.AddIntegerParameter("unlock_duration", unlockDuration)
	}
	return msg
}

// NewUnlockMessage creates an UNLOCK request releasing the given object.
func NewUnlockMessage(objectName string, pid int) *Message {
	msg := NewMessage(CmdUnlock)
	msg.Service = LockService
	msg.AddParameter("object_name", objectName).
		AddIntegerParameter("pid", int64(pid))
	return msg
}

// NewLockedReply creates a LOCKED reply granting a lock until timeoutDate
// (epoch seconds).
func NewLockedReply(objectName string, timeoutDate int64) *Message {
	return NewMessage(CmdLocked).
		AddParameter("object_name", objectName).
		AddIntegerParameter("timeout_date", timeoutDate)
}

// NewLockFailedReply creates a LOCKFAILED reply with a reason.
func NewLockFailedReply(objectName, reason string) *Message {
	return NewMessage(CmdLockFailed).
		AddParameter("object_name", objectName).
		AddParameter("error", reason)
}

// NewUnlockedNotice creates an UNLOCKED message. With timedOut set it
// represents the broker's forced revocation notice, otherwise the
// acknowledgement of a client initiated UNLOCK.
func NewUnlockedNotice(objectName string, timedOut bool) *Message {
	msg := NewMessage(CmdUnlocked).
		AddParameter("object_name", objectName)
	if timedOut {
		msg.AddParameter("error", "timedout")
	}
	return msg
}

// NewUnknownReply creates the catch-all UNKNOWN reply naming the command
// that was not understood.
func NewUnknownReply(original *Message) *Message {
	return NewMessage(CmdUnknown).
		AddParameter("command", original.Command)
}

// NewCommandsReply creates the COMMANDS reply sent in response to HELP,
// listing the commands the sender understands.
func NewCommandsReply(list string) *Message {
	return NewMessage(CmdCommands).
		AddParameter("list", list)
}
