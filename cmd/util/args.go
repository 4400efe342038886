package util

import (
	"errors"
	"github.com/ValentinKolb/revd/rpc/codec"
	"github.com/ValentinKolb/revd/rpc/common"
	"github.com/spf13/cobra"
	"strconv"
)

// ParsePort parses an unsigned decimal port number
func ParsePort(s string) (uint16, error) {
	port, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, NewExitError(ExitParseError, "invalid port %q: must be a number between 0 and 65535", s)
	}
	return uint16(port), nil
}

// ParseWorkerCount parses an unsigned decimal worker count and clamps it to
// [1, common.MaxWorkersCap]. Numbers too large for an int are clamped as well.
func ParseWorkerCount(s string) (int, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return common.MaxWorkersCap, nil
		}
		return 0, NewExitError(ExitParseError, "invalid max_worker_count %q: must be a positive number", s)
	}
	if n > common.MaxWorkersCap {
		return common.MaxWorkersCap, nil
	}
	return common.ClampWorkers(int(n)), nil
}

// ParseServerArgs parses the optional positional arguments [port] [max_worker_count]
func ParseServerArgs(args []string) (port uint16, workers int, err error) {
	port, workers = common.DefaultPort, common.DefaultMaxWorkers

	if len(args) > 2 {
		return 0, 0, NewExitError(ExitParseError, "too many arguments: expected [port] [max_worker_count]")
	}
	if len(args) > 0 {
		if port, err = ParsePort(args[0]); err != nil {
			return 0, 0, err
		}
	}
	if len(args) > 1 {
		if workers, err = ParseWorkerCount(args[1]); err != nil {
			return 0, 0, err
		}
	}
	return port, workers, nil
}

// ParseClientArgs parses the required positional arguments <port> <message>.
// Messages longer than codec.MaxPayloadLength bytes are truncated, which is
// reported by the truncated return value.
func ParseClientArgs(args []string) (port uint16, message []byte, truncated bool, err error) {
	if len(args) < 2 {
		return 0, nil, false, NewExitError(ExitMissingArgs, "missing arguments: expected <port> <message>")
	}
	if len(args) > 2 {
		return 0, nil, false, NewExitError(ExitParseError, "too many arguments: expected <port> <message> (quote messages with spaces)")
	}

	if port, err = ParsePort(args[0]); err != nil {
		return 0, nil, false, err
	}

	message = []byte(args[1])
	if len(message) > codec.MaxPayloadLength {
		message = message[:codec.MaxPayloadLength]
		truncated = true
	}
	return port, message, truncated, nil
}

// RequireArgs returns a cobra argument validator that fails with
// ExitMissingArgs when fewer than n arguments are given
func RequireArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < n {
			return NewExitError(ExitMissingArgs, "missing arguments: %s requires %d argument(s), got %d (usage: %s)", cmd.Name(), n, len(args), cmd.UseLine())
		}
		return nil
	}
}
