package send

import (
	"fmt"
	"github.com/ValentinKolb/revd/cmd/util"
	"github.com/ValentinKolb/revd/rpc/client"
	"github.com/ValentinKolb/revd/rpc/codec"
	"github.com/ValentinKolb/revd/rpc/transport/tcp"
	"github.com/spf13/cobra"
)

var (
	// SendCmd sends one message to the reverse server and prints the raw response
	SendCmd = &cobra.Command{
		Use:     "send <port> <message>",
		Short:   "Send a message to the reverse server",
		Long:    `Send a message to the reverse server and print the raw response (length byte + reversed message). Messages longer than 255 bytes are truncated to 255 bytes. The connection options can be set via command line flags or environment variables (e.g. REVD_HOST=10.0.0.1)`,
		Args:    util.RequireArgs(2),
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	util.SetupClientFlags(SendCmd)
}

func processConfig(cmd *cobra.Command, _ []string) error {
	return util.BindCommandFlags(cmd)
}

func run(cmd *cobra.Command, args []string) error {
	port, message, truncated, err := util.ParseClientArgs(args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if truncated {
		fmt.Fprintf(out, "Warning: message is longer than %d bytes and was truncated to %d bytes\n", codec.MaxPayloadLength, codec.MaxPayloadLength)
	}

	c, err := client.NewReverseClient(util.GetClientConfig(port), tcp.NewTCPClientTransport())
	if err != nil {
		return &util.ExitError{Code: util.ExitClientError, Err: err}
	}
	defer c.Close()

	resp, err := c.SendRaw(message)
	if err != nil {
		return &util.ExitError{Code: util.ExitClientError, Err: err}
	}

	fmt.Fprintf(out, "Response: %q\n", resp)
	return nil
}
