package util

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/snapforge/snaplock/lib/dlock"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupLockClientFlags adds common broker connection flags to a command
func SetupLockClientFlags(cmd *cobra.Command) {
	key := "address"
	cmd.PersistentFlags().String(key, "localhost", WrapString("The address of the lock broker (host for tcp, socket path for unix)"))

	key = "port"
	cmd.PersistentFlags().Int(key, 8017, WrapString("The port of the lock broker (ignored for unix)"))

	key = "mode"
	cmd.PersistentFlags().String(key, "tcp", WrapString("Transport to use to reach the broker (tcp, unix)"))

	key = "lock-duration"
	cmd.PersistentFlags().Int64(key, 5, WrapString("Default lock duration in seconds"))

	key = "obtention-timeout"
	cmd.PersistentFlags().Int64(key, 5, WrapString("Default time in seconds to wait for a busy lock before giving up"))

	key = "unlock-duration"
	cmd.PersistentFlags().Int64(key, dlock.UnlockUsesLockTimeout, WrapString("Grace period in seconds before a timed out lock is forcibly released (-1 to follow the lock duration)"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "info", WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// InitClientConfig initializes configuration from environment variables
func InitClientConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("snaplock")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetLockConfig reads the lock configuration from viper
func GetLockConfig() *dlock.Config {
	conf := dlock.NewConfig()
	conf.SetDefaultLockDuration(viper.GetInt64("lock-duration"))
	conf.SetDefaultObtentionTimeout(viper.GetInt64("obtention-timeout"))
	conf.SetDefaultUnlockDuration(viper.GetInt64("unlock-duration"))
	conf.ConfigureBroker(
		viper.GetString("address"),
		viper.GetInt("port"),
		viper.GetString("mode"),
	)
	return conf
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
