package report

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/0x6d61/timeleech/internal/engine"
)

func sampleResult() *engine.Result {
	return &engine.Result{
		ID:       "0f8fad5b-d9cb-469f-a165-70867728950e",
		Value:    "admin",
		Queries:  327,
		Duration: 42*time.Second + 300*time.Millisecond,
		Delay:    1.5,
	}
}

func TestTextReporter_Generate(t *testing.T) {
	r := &TextReporter{}
	b := &strings.Builder{}

	if err := r.Generate(context.Background(), sampleResult(), b); err != nil {
		t.Fatalf("Generate() returned error: %v", err)
	}
	out := b.String()

	for _, want := range []string{"admin", "327", "42.3s", "1.5s"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "partial") {
		t.Error("output mentions a partial result for a complete extraction")
	}
}

func TestTextReporter_PartialAndFallback(t *testing.T) {
	res := sampleResult()
	res.Partial = true
	res.CalibrationFallback = true

	r := &TextReporter{}
	b := &strings.Builder{}
	if err := r.Generate(context.Background(), res, b); err != nil {
		t.Fatal(err)
	}
	out := b.String()

	if !strings.Contains(out, "partial") {
		t.Error("output does not flag the partial result")
	}
	if !strings.Contains(out, "fallback") {
		t.Error("output does not flag the calibration fallback")
	}
}

func TestTextReporter_VerboseIncludesRunID(t *testing.T) {
	r := &TextReporter{Verbose: 1}
	b := &strings.Builder{}
	if err := r.Generate(context.Background(), sampleResult(), b); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(b.String(), "0f8fad5b") {
		t.Error("verbose output missing the run ID")
	}
}
