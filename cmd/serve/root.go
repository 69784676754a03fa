package serve

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	cmdUtil "github.com/snapforge/snaplock/cmd/util"
	"github.com/snapforge/snaplock/rpc/broker"
	"github.com/snapforge/snaplock/rpc/common"
	"github.com/snapforge/snaplock/rpc/serializer"
	"github.com/snapforge/snaplock/rpc/transport"
	"github.com/snapforge/snaplock/rpc/transport/tcp"
	"github.com/snapforge/snaplock/rpc/transport/unix"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the lock broker",
		Long:    `Start the lock broker with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is SNAPLOCK_<flag> (e.g. SNAPLOCK_LOG_LEVEL=debug)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(initConfig)

	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8017", cmdUtil.WrapString("The address on which the broker will listen (e.g. 0.0.0.0:8017, /tmp/snaplock.sock, ...)"))

	key = "mode"
	ServeCmd.PersistentFlags().String(key, "tcp", cmdUtil.WrapString("Transport to listen on (tcp, unix)"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Handshake timeout in seconds. An unregistered client is dropped after this long; registered clients may idle indefinitely"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	key = "write-buffer"
	ServeCmd.PersistentFlags().Int(key, 64, cmdUtil.WrapString("The size of the write buffer for each connection (in KB)"))

	key = "read-buffer"
	ServeCmd.PersistentFlags().Int(key, 64, cmdUtil.WrapString("The size of the read buffer for each connection (in KB)"))

	key = "tcp-nodelay"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Whether to enable TCP_NODELAY for accepted connections (tcp only)"))

	key = "tcp-keepalive"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The keepalive interval for accepted connections (in seconds, tcp only)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the broker configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	serveCmdConfig.Mode = viper.GetString("mode")
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	serveCmdConfig.SocketConf = common.SocketConf{
		WriteBufferSize: viper.GetInt("write-buffer") * 1024,
		ReadBufferSize:  viper.GetInt("read-buffer") * 1024,
	}
	serveCmdConfig.TCPConf = common.TCPConf{
		TCPNoDelay:      viper.GetBool("tcp-nodelay"),
		TCPKeepAliveSec: viper.GetInt("tcp-keepalive"),
	}

	return nil
}

// run starts the lock broker
func run(_ *cobra.Command, _ []string) error {
	common.InitLoggers(serveCmdConfig.LogLevel)

	// Parse the transport
	var connector transport.IServerConnector
	switch serveCmdConfig.Mode {
	case "tcp":
		connector = tcp.NewTCPServerConnector()
	case "unix":
		connector = unix.NewUnixServerConnector()
	default:
		return fmt.Errorf("invalid mode %s", serveCmdConfig.Mode)
	}

	b := broker.NewBroker(
		*serveCmdConfig,
		connector,
		serializer.NewTextSerializer(),
	)

	if err := b.Start(); err != nil {
		return err
	}

	// Block until we are asked to shut down.
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	b.Stop()
	return nil
}

// initConfig reads in serveCmdConfig file and ENV variables if set.
func initConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("snaplock")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}
