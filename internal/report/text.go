package report

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/0x6d61/timeleech/internal/engine"
)

const (
	doubleLine = "\u2550" // ═
	lineWidth  = 50
)

// TextReporter outputs plain terminal text.
type TextReporter struct {
	// Verbose controls detail level: 0=result only, 1=+run info.
	Verbose int
}

// Format returns "text".
func (r *TextReporter) Format() string {
	return "text"
}

// Generate writes the formatted extraction result to w.
func (r *TextReporter) Generate(ctx context.Context, result *engine.Result, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b := &strings.Builder{}

	doubleBar := strings.Repeat(doubleLine, lineWidth)

	fmt.Fprintln(b, doubleBar)
	fmt.Fprintln(b, "timeleech - Extraction Results")
	fmt.Fprintln(b, doubleBar)

	fmt.Fprintf(b, "Result:   %s\n", result.Value)
	if result.Partial {
		fmt.Fprintln(b, "          (partial: extraction was interrupted)")
	}

	fmt.Fprintf(b, "Queries:  %d\n", result.Queries)
	fmt.Fprintf(b, "Duration: %.1fs\n", result.Duration.Seconds())
	fmt.Fprintf(b, "Delay:    %.1fs", result.Delay)
	if result.CalibrationFallback {
		fmt.Fprint(b, " (fallback: no candidate delay was reliably detectable)")
	}
	fmt.Fprintln(b)

	if r.Verbose > 0 {
		fmt.Fprintf(b, "Run ID:   %s\n", result.ID)
		if len(result.Trace) > 0 {
			fmt.Fprintf(b, "Trace:    %d oracle decisions recorded\n", len(result.Trace))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
