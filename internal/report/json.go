package report

import (
	"context"
	"encoding/json"
	"io"

	"github.com/0x6d61/timeleech/internal/engine"
)

// JSONReporter outputs the extraction result as indented JSON.
type JSONReporter struct{}

// Format returns "json".
func (r *JSONReporter) Format() string {
	return "json"
}

// Generate writes the extraction result as JSON to w.
func (r *JSONReporter) Generate(ctx context.Context, result *engine.Result, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
