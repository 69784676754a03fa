package lock

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/snapforge/snaplock/cmd/util"
	"github.com/snapforge/snaplock/lib/dlock"
	"github.com/snapforge/snaplock/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	lockConfig *dlock.Config

	// LockCommands represents the lock command group
	LockCommands = &cobra.Command{
		Use:               "lock",
		Short:             "Perform lock operations against a broker",
		PersistentPreRunE: setupLockConfig,
	}

	// acquireCmd represents the acquire command
	acquireCmd = &cobra.Command{
		Use:   "acquire [object]",
		Short: "Acquire a named lock",
		Long:  "Acquire a named lock and report the outcome. With --hold the command keeps the lock until interrupted or until the broker revokes it.",
		Args:  cobra.ExactArgs(1),
		RunE:  runAcquire,
	}

	// testCmd represents the test command
	testCmd = &cobra.Command{
		Use:   "test [object]",
		Short: "Check whether a named lock is currently free",
		Long:  "Try to acquire the lock and release it immediately. Exits 0 when the lock was free, 1 when it was busy.",
		Args:  cobra.ExactArgs(1),
		RunE:  runTest,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add subcommands to lock command
	LockCommands.AddCommand(acquireCmd)
	LockCommands.AddCommand(testCmd)

	// Add common broker flags to the lock command
	util.SetupLockClientFlags(LockCommands)

	// Add flags specific to acquire
	acquireCmd.Flags().Bool("hold", false, util.WrapString("Keep holding the lock until interrupted or revoked"))
}

// setupLockConfig builds the lock configuration shared by all subcommands
func setupLockConfig(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Install the custom loggers before any client code runs, otherwise the
	// library falls back to the default logger format.
	common.InitLoggers(viper.GetString("log-level"))

	lockConfig = util.GetLockConfig()
	return nil
}

// runAcquire handles the acquire lock command
func runAcquire(cmd *cobra.Command, args []string) error {
	object := args[0]
	hold, _ := cmd.Flags().GetBool("hold")

	lock, err := dlock.NewLock(lockConfig, object)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %v", err)
	}
	defer lock.Close()

	fmt.Printf("acquired=true, object=%s, timeout_date=%d\n", object, lock.TimeoutDate())

	if !hold {
		return nil
	}

	// Hold the lock until the user interrupts us or the broker takes it
	// back.
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-interrupt:
			fmt.Println("released")
			return nil
		case <-ticker.C:
			if lock.LockTimedOut() {
				fmt.Println("revoked")
				return nil
			}
		}
	}
}

// runTest handles the test lock command
func runTest(_ *cobra.Command, args []string) error {
	object := args[0]

	lock, err := dlock.NewLock(lockConfig, object)
	if err != nil {
		var failed *dlock.LockFailedError
		if errors.As(err, &failed) {
			fmt.Printf("free=false, object=%s\n", object)
			os.Exit(1)
		}
		return fmt.Errorf("failed to test lock: %v", err)
	}
	defer lock.Close()

	lock.Unlock()
	fmt.Printf("free=true, object=%s\n", object)
	return nil
}
