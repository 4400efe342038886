package util

import (
	"github.com/ValentinKolb/revd/rpc/common"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"net"
	"strconv"
	"strings"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables (e.g. REVD_HOST)
	EnvPrefix = "revd"
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

// InitConfig loads .env files and makes viper read REVD_* environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// SetupClientFlags adds the connection flags of the client commands
func SetupClientFlags(cmd *cobra.Command) {
	key := "host"
	cmd.PersistentFlags().String(key, common.DefaultHost, WrapString("The host of the reverse server"))

	key = "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds for connecting and for the whole exchange"))

	key = "retries"
	cmd.PersistentFlags().Int(key, 3, WrapString("How many times to try the request before giving up"))

	key = "write-buffer"
	cmd.PersistentFlags().Int(key, 0, WrapString("The size of the socket write buffer in KB (0 keeps the OS default)"))

	key = "read-buffer"
	cmd.PersistentFlags().Int(key, 0, WrapString("The size of the socket read buffer in KB (0 keeps the OS default)"))

	key = "tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY"))

	key = "tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval in seconds (0 disables keepalive)"))

	key = "tcp-linger"
	cmd.PersistentFlags().Int(key, -1, WrapString("The linger time in seconds (negative keeps the OS default)"))
}

// GetClientConfig reads the client configuration for the given port from viper
func GetClientConfig(port uint16) common.ClientConfig {
	return common.ClientConfig{
		Endpoint:      net.JoinHostPort(viper.GetString("host"), strconv.Itoa(int(port))),
		TimeoutSecond: viper.GetInt("timeout"),
		RetryCount:    viper.GetInt("retries"),
		SocketConf: common.SocketConf{
			WriteBufferSize: viper.GetInt("write-buffer") * 1024,
			ReadBufferSize:  viper.GetInt("read-buffer") * 1024,
		},
		TCPConf: common.TCPConf{
			TCPNoDelay:      viper.GetBool("tcp-nodelay"),
			TCPKeepAliveSec: viper.GetInt("tcp-keepalive"),
			TCPLingerSec:    viper.GetInt("tcp-linger"),
		},
	}
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
