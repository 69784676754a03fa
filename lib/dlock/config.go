package dlock

import (
	"fmt"
	"sync/atomic"
)

// --------------------------------------------------------------------------
// Defaults and Sentinels
// --------------------------------------------------------------------------

const (
	// DefaultTimeout is the per-call sentinel meaning "use the Config
	// default" for lock duration, obtention timeout and unlock duration.
	DefaultTimeout int64 = -1

	// UnlockUsesLockTimeout makes the unlock grace period follow the lock
	// duration instead of a fixed value. It is the initial default.
	UnlockUsesLockTimeout int64 = -1

	// MinimumTimeout is the smallest accepted lock duration and obtention
	// timeout in seconds. Smaller values are clamped up.
	MinimumTimeout int64 = 3

	// MinimumUnlockDuration is the smallest accepted unlock grace period in
	// seconds. Smaller values are clamped up unless the sentinel
	// UnlockUsesLockTimeout is used.
	MinimumUnlockDuration int64 = 60

	initialLockDuration     int64 = 5
	initialObtentionTimeout int64 = 5
)

// --------------------------------------------------------------------------
// Lock Configuration
// --------------------------------------------------------------------------

// Config holds the defaults read by every lock attempt: lock duration,
// obtention timeout, unlock grace period and the broker connection target.
// It is constructed once by process start-up code and injected into every
// Lock.
//
// Config is not thread-safe: configure it before spawning concurrent lock
// users. Only the attempt counter is safe for concurrent access.
type Config struct {
	lockDuration     int64
	obtentionTimeout int64
	unlockDuration   int64

	address string
	port    int
	mode    string

	initialized bool
	attempt     atomic.Uint64
}

// NewConfig creates a Config with the hard-coded defaults. The broker target
// must still be set with ConfigureBroker before the first lock attempt.
func NewConfig() *Config {
	return &Config{
		lockDuration:     initialLockDuration,
		obtentionTimeout: initialObtentionTimeout,
		unlockDuration:   UnlockUsesLockTimeout,
		mode:             "tcp",
	}
}

// --------------------------------------------------------------------------
// Administrative Setters
// --------------------------------------------------------------------------

// SetDefaultLockDuration sets the default time-to-live of granted locks in
// seconds, clamped up to MinimumTimeout.
func (c *Config) SetDefaultLockDuration(seconds int64) {
	if seconds < MinimumTimeout {
		seconds = MinimumTimeout
	}
	c.lockDuration = seconds
}

// SetDefaultObtentionTimeout sets the default maximum wait for acquiring a
// lock in seconds, clamped up to MinimumTimeout.
func (c *Config) SetDefaultObtentionTimeout(seconds int64) {
	if seconds < MinimumTimeout {
		seconds = MinimumTimeout
	}
	c.obtentionTimeout = seconds
}

// SetDefaultUnlockDuration sets the default unlock grace period in seconds.
// The sentinel UnlockUsesLockTimeout is stored unchanged; any other value is
// clamped up to MinimumUnlockDuration.
func (c *Config) SetDefaultUnlockDuration(seconds int64) {
	if seconds != UnlockUsesLockTimeout && seconds < MinimumUnlockDuration {
		seconds = MinimumUnlockDuration
	}
	c.unlockDuration = seconds
}

// ConfigureBroker stores the broker connection target. mode selects the
// transport ("tcp" or "unix"; for unix the address is the socket path and
// the port is ignored).
func (c *Config) ConfigureBroker(address string, port int, mode string) {
	c.address = address
	c.port = port
	c.mode = mode
	c.initialized = true
}

// --------------------------------------------------------------------------
// Scoped Raises
// --------------------------------------------------------------------------

// RaiseLockDuration raises (never lowers) the default lock duration and
// returns a restore function putting the previous value back. Use it when a
// specific operation is known to need a longer-than-default window:
//
//	defer cfg.RaiseLockDuration(300)()
func (c *Config) RaiseLockDuration(seconds int64) (restore func()) {
	previous := c.lockDuration
	if seconds > c.lockDuration {
		c.lockDuration = seconds
	}
	return func() { c.lockDuration = previous }
}

// RaiseObtentionTimeout raises (never lowers) the default obtention timeout
// and returns a restore function putting the previous value back.
func (c *Config) RaiseObtentionTimeout(seconds int64) (restore func()) {
	previous := c.obtentionTimeout
	if seconds > c.obtentionTimeout {
		c.obtentionTimeout = seconds
	}
	return func() { c.obtentionTimeout = previous }
}

// --------------------------------------------------------------------------
// Getters
// --------------------------------------------------------------------------

// LockDuration returns the default lock duration in seconds.
func (c *Config) LockDuration() int64 { return c.lockDuration }

// ObtentionTimeout returns the default obtention timeout in seconds.
func (c *Config) ObtentionTimeout() int64 { return c.obtentionTimeout }

// UnlockDuration returns the default unlock grace period in seconds, or
// UnlockUsesLockTimeout.
func (c *Config) UnlockDuration() int64 { return c.unlockDuration }

// Mode returns the configured transport mode.
func (c *Config) Mode() string { return c.mode }

// Endpoint returns the broker endpoint in the form the transport expects.
func (c *Config) Endpoint() string {
	if c.mode == "unix" {
		return c.address
	}
	return fmt.Sprintf("%s:%d", c.address, c.port)
}

// nextServiceName generates the unique service name of one lock attempt.
// The owner id plus the monotonically increasing attempt counter
// disambiguates replies across repeated attempts on the same object.
func (c *Config) nextServiceName(owner int64) string {
	return fmt.Sprintf("lock_%d_%d", owner, c.attempt.Add(1))
}
