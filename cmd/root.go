package cmd

import (
	"fmt"
	"os"

	"github.com/snapforge/snaplock/cmd/lock"
	"github.com/snapforge/snaplock/cmd/serve"
	"github.com/spf13/cobra"
)

const (
	Version = "1.0.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "snaplock",
		Short: "distributed lock service",
		Long: fmt.Sprintf(`snaplock (v%s)

A distributed mutual-exclusion lock service: a broker granting named
locks over a line-oriented protocol, and a blocking client library
built on top of it.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of snaplock",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("snaplock v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(lock.LockCommands)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
