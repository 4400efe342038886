package serve

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/revd/cmd/util"
	"github.com/ValentinKolb/revd/rpc/common"
	"github.com/ValentinKolb/revd/rpc/server"
	"github.com/ValentinKolb/revd/rpc/transport/tcp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"os/signal"
	"syscall"
)

var (
	serveCmdConfig = common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve [port] [max_worker_count]",
		Short:   "Start the reverse server",
		Long:    `Start the reverse server. port defaults to 8080 and max_worker_count to 3 (values above 6 are clamped to 6). The options can be set via command line flags or environment variables. The format of the environment variables is REVD_<flag> (e.g. REVD_IDLE_TIMEOUT=30s)`,
		Args:    cobra.ArbitraryArgs,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// add flags
	key := "host"
	ServeCmd.PersistentFlags().String(key, common.DefaultHost, util.WrapString("The address the server binds to"))

	key = "backlog"
	ServeCmd.PersistentFlags().Int(key, common.DefaultBacklog, util.WrapString("The listen backlog of the server socket"))

	key = "idle-timeout"
	ServeCmd.PersistentFlags().Duration(key, common.DefaultIdleTimeout, util.WrapString("How long a connection may stay silent before it is closed (0 disables the timeout)"))

	key = "write-timeout"
	ServeCmd.PersistentFlags().Duration(key, 0, util.WrapString("Deadline for sending the reply (0 disables the deadline)"))

	key = "shutdown-grace"
	ServeCmd.PersistentFlags().Duration(key, common.DefaultShutdownGrace, util.WrapString("How long a shutdown waits for open connections before they are closed"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", util.WrapString("Address of the http endpoint serving /metrics and /debug/pprof (e.g. 127.0.0.1:9100, empty disables it)"))

	key = "write-buffer"
	ServeCmd.PersistentFlags().Int(key, 0, util.WrapString("The size of the socket write buffer in KB (0 keeps the OS default)"))

	key = "read-buffer"
	ServeCmd.PersistentFlags().Int(key, 0, util.WrapString("The size of the socket read buffer in KB (0 keeps the OS default)"))

	key = "tcp-nodelay"
	ServeCmd.PersistentFlags().Bool(key, true, util.WrapString("Whether to enable TCP_NODELAY on accepted connections"))

	key = "tcp-keepalive"
	ServeCmd.PersistentFlags().Int(key, 0, util.WrapString("The keepalive interval in seconds (0 disables keepalive)"))

	key = "tcp-linger"
	ServeCmd.PersistentFlags().Int(key, -1, util.WrapString("The linger time in seconds (negative keeps the OS default)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, common.DefaultLogLevel, util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the positional arguments, the command line flags and the
// environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, args []string) error {
	// bind the flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	port, workers, err := util.ParseServerArgs(args)
	if err != nil {
		return err
	}

	if _, err := common.ParseLogLevel(viper.GetString("log-level")); err != nil {
		return &util.ExitError{Code: util.ExitParseError, Err: err}
	}

	for _, key := range []string{"idle-timeout", "write-timeout", "shutdown-grace"} {
		if viper.GetDuration(key) < 0 {
			return util.NewExitError(util.ExitParseError, "invalid %s: must not be negative", key)
		}
	}
	if viper.GetInt("backlog") < 0 {
		return util.NewExitError(util.ExitParseError, "invalid backlog: must not be negative")
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig = common.NewServerConfig(port, workers)
	serveCmdConfig.Host = viper.GetString("host")
	serveCmdConfig.Backlog = viper.GetInt("backlog")
	serveCmdConfig.IdleTimeout = viper.GetDuration("idle-timeout")
	serveCmdConfig.WriteTimeout = viper.GetDuration("write-timeout")
	serveCmdConfig.ShutdownGrace = viper.GetDuration("shutdown-grace")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	serveCmdConfig.SocketConf = common.SocketConf{
		WriteBufferSize: viper.GetInt("write-buffer") * 1024,
		ReadBufferSize:  viper.GetInt("read-buffer") * 1024,
	}
	serveCmdConfig.TCPConf = common.TCPConf{
		TCPNoDelay:      viper.GetBool("tcp-nodelay"),
		TCPKeepAliveSec: viper.GetInt("tcp-keepalive"),
		TCPLingerSec:    viper.GetInt("tcp-linger"),
	}

	return nil
}

// run starts the reverse server and serves until SIGINT or SIGTERM
func run(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serv := server.NewReverseServer(serveCmdConfig, tcp.NewTCPServerTransport())

	if err := serv.Listen(); err != nil {
		return &util.ExitError{Code: util.ExitServerError, Err: fmt.Errorf("failed to start server: %w", err)}
	}

	if err := serv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return &util.ExitError{Code: util.ExitServerError, Err: fmt.Errorf("server failed: %w", err)}
	}
	return nil
}

// cmdContext returns the command context, or a background context if none is set
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
