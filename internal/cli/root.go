package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// Version information (set by build flags)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "timeleech",
	Short: "Statistical time-based blind SQL injection extraction tool",
	Long: `timeleech - Statistical time-based blind SQL injection extraction tool

Extracts string values from a remote database through a time-based blind
injection oracle. Timing decisions use Welch's t-test instead of fixed
thresholds, the server-side delay is auto-calibrated against network
noise, and characters are recovered by binary search with optional
parallel position extraction.

WARNING: Use this tool only against systems you have explicit permission
to test. Unauthorized access to computer systems is illegal.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)

	// Target flags
	rootCmd.PersistentFlags().StringP("url", "u", "", "Target URL (e.g., http://target.com/page?id=1)")
	rootCmd.PersistentFlags().String("param", "id", "Query parameter bound to the injected value")
	rootCmd.PersistentFlags().StringP("payload", "p", "", "Payload template with a {condition} placeholder")
	rootCmd.PersistentFlags().String("cookie", "", "Cookie string (e.g., PHPSESSID=abc123)")
	rootCmd.PersistentFlags().StringArrayP("header", "H", nil, "Extra header (repeatable, e.g., -H 'X-Custom: value')")
	rootCmd.PersistentFlags().String("dbms", "", "DBMS dialect (MySQL, PostgreSQL, SQLite; default MySQL)")

	// Timing flags
	rootCmd.PersistentFlags().Float64P("delay", "d", 0, "Server-side delay in seconds (auto-calibrated if not set)")
	rootCmd.PersistentFlags().Int("samples", 0, "Probe samples per oracle decision (default 7)")

	// Concurrency flags
	rootCmd.PersistentFlags().Bool("parallel", false, "Extract character positions in parallel")
	rootCmd.PersistentFlags().Int("workers", 4, "Number of parallel workers")
	rootCmd.PersistentFlags().Int("chunk-size", 4, "Positions per parallel chunk")

	// Connection flags
	rootCmd.PersistentFlags().String("proxy", "", "Proxy URL (http://host:port or socks5://host:port)")
	rootCmd.PersistentFlags().Duration("timeout", 30*time.Second, "Request timeout")
	rootCmd.PersistentFlags().Float64("rate", 0, "Maximum requests per second (0 = unlimited)")
	rootCmd.PersistentFlags().Bool("random-agent", false, "Use random User-Agent")

	// Output flags
	rootCmd.PersistentFlags().IntP("verbose", "v", 0, "Verbosity level (0-3)")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output file path")
	rootCmd.PersistentFlags().StringP("format", "f", "text", "Output format (text, json)")
	rootCmd.PersistentFlags().Bool("trace", false, "Record per-probe trace data")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("timeleech %s (commit: %s, built: %s)\n", version, commit, date)
	},
}
