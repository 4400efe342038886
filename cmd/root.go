package cmd

import (
	"fmt"
	"github.com/ValentinKolb/revd/cmd/perf"
	"github.com/ValentinKolb/revd/cmd/send"
	"github.com/ValentinKolb/revd/cmd/serve"
	"github.com/ValentinKolb/revd/cmd/util"
	"github.com/spf13/cobra"
	"os"
)

const (
	Version = "0.1.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "revd",
		Short: "TCP message reversing server and client",
		Long: fmt.Sprintf(`revd (v%s)

A minimal TCP request/response service. The server reads one length
prefixed message per connection, replies with the reversed message and
closes the connection. Connections are handled by a bounded worker pool.`, Version),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of revd",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "revd v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(send.SendCmd)
	RootCmd.AddCommand(perf.PerfCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
// Errors are printed to stdout and the process exits with the code of the error.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stdout, "Error: %v\n", err)
		os.Exit(util.ExitCode(err))
	}
}
