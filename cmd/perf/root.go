package perf

import (
	"encoding/csv"
	"fmt"
	"github.com/ValentinKolb/revd/cmd/util"
	"github.com/ValentinKolb/revd/rpc/client"
	"github.com/ValentinKolb/revd/rpc/codec"
	"github.com/ValentinKolb/revd/rpc/common"
	"github.com/ValentinKolb/revd/rpc/transport/tcp"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"
)

var (
	// PerfCmd runs a load test against a reverse server
	PerfCmd = &cobra.Command{
		Use:     "perf <port>",
		Short:   "Performance testing tool for reverse servers",
		Long:    `Sends messages of different sizes from several goroutines and reports throughput and latency percentiles for each size.`,
		Args:    util.RequireArgs(1),
		PreRunE: processPerfConfig,
		RunE:    run,
	}
	perfNumThreads = 10
	perfSkip       = make([]string, 0)
	perfClient     *client.ReverseClient
	perfConfig     common.ClientConfig
)

// perfTest is one benchmark with a fixed message size
type perfTest struct {
	name string
	size int
}

var perfTests = []perfTest{
	{name: "empty", size: 0},
	{name: "tiny", size: 1},
	{name: "small", size: 32},
	{name: "max", size: codec.MaxPayloadLength},
}

// perfResult holds the benchmark result and the latency statistics of a test
type perfResult struct {
	bench    testing.BenchmarkResult
	latency  metrics.Timer
	failures metrics.Counter
}

func init() {
	util.SetupClientFlags(PerfCmd)

	// add flags
	key := "skip"
	PerfCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. empty,max)"))
	key = "threads"
	PerfCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines sending requests"))
	key = "csv"
	PerfCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, args []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	port, err := util.ParsePort(args[0])
	if err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfNumThreads = viper.GetInt("threads")
	if perfNumThreads < 1 {
		return util.NewExitError(util.ExitParseError, "invalid threads: must be at least 1")
	}
	perfSkip = strings.Split(viper.GetString("skip"), ",")
	perfConfig = util.GetClientConfig(port)

	perfClient, err = client.NewReverseClient(perfConfig, tcp.NewTCPClientTransport())
	if err != nil {
		return &util.ExitError{Code: util.ExitClientError, Err: err}
	}
	return nil
}

func run(cmd *cobra.Command, _ []string) error {
	defer perfClient.Close()
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Performance testing tool for reverse servers")

	// Print configuration
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintln(out, perfConfig.String())
	fmt.Fprintf(out, "Threads: %d\n", perfNumThreads)
	fmt.Fprintln(out)

	// Fail early if the server is not reachable
	if _, err := perfClient.Reverse([]byte("ping")); err != nil {
		return &util.ExitError{Code: util.ExitClientError, Err: fmt.Errorf("server not reachable: %w", err)}
	}

	fmt.Fprintln(out, "starting tests...")

	results := make(map[string]perfResult)
	for _, test := range perfTests {
		if shouldSkip(test.name) {
			printResult(out, test.name, nil)
			continue
		}
		result := runTest(test)
		results[test.name] = result
		printResult(out, test.name, &result)
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Fprintf(out, "\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Fprintln(out, "Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// runTest benchmarks the round trip of messages with the size of the test
func runTest(test perfTest) perfResult {
	result := perfResult{
		latency:  metrics.NewTimer(),
		failures: metrics.NewCounter(),
	}
	defer result.latency.Stop()

	message := make([]byte, test.size)
	for i := range message {
		message[i] = byte('a' + i%26)
	}

	result.bench = testing.Benchmark(func(b *testing.B) {
		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				start := time.Now()
				_, err := perfClient.Reverse(message)
				if err != nil {
					result.failures.Inc(1)
					log.Printf("(%s) - error sending message: %v\n", test.name, err)
					continue
				}
				result.latency.UpdateSince(start)
			}
		})
	})

	return result
}

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(out io.Writer, test string, result *perfResult) {
	if result == nil || result.bench.NsPerOp() == 0 {
		fmt.Fprintf(out, "%-10sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.bench.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)
	p := result.latency.Percentiles([]float64{0.5, 0.95, 0.99})

	fmt.Fprintf(out, "%-10s%.0f ops/sec\tp50 %s\tp95 %s\tp99 %s\tfailures %d\n",
		test,
		opsPerSec,
		time.Duration(p[0]),
		time.Duration(p[1]),
		time.Duration(p[2]),
		result.failures.Count(),
	)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]perfResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "MessageBytes", "NsPerOp", "OpsPerSec",
		"LatencyMeanNs", "LatencyP50Ns", "LatencyP99Ns", "Failures",
		"Endpoint", "TimeoutSec", "RetryCount", "Threads",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results in a fixed order
	for _, test := range perfTests {
		result, ok := results[test.name]
		if !ok {
			continue
		}

		nsPerOp := math.Max(float64(result.bench.NsPerOp()), 1)
		p := result.latency.Percentiles([]float64{0.5, 0.99})

		row := []string{
			test.name,
			strconv.Itoa(test.size),
			fmt.Sprintf("%.0f", nsPerOp),
			fmt.Sprintf("%.0f", 1.0/(nsPerOp/1e9)),
			fmt.Sprintf("%.0f", result.latency.Mean()),
			fmt.Sprintf("%.0f", p[0]),
			fmt.Sprintf("%.0f", p[1]),
			strconv.FormatInt(result.failures.Count(), 10),
			perfConfig.Endpoint,
			strconv.Itoa(perfConfig.TimeoutSecond),
			strconv.Itoa(perfConfig.RetryCount),
			strconv.Itoa(perfNumThreads),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test.name, err)
		}
	}

	return nil
}
