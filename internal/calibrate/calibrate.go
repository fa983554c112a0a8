// Package calibrate picks the smallest server-side delay that is reliably
// separable from ambient network noise. Larger delays are more robust but
// cost linearly more per probe; total extraction cost scales with the
// chosen delay, so the cheapest detectable value wins.
package calibrate

import (
	"context"
	"io"
	"log/slog"

	"github.com/0x6d61/timeleech/internal/dbms"
	"github.com/0x6d61/timeleech/internal/oracle"
	"github.com/0x6d61/timeleech/internal/payload"
	"github.com/0x6d61/timeleech/internal/stats"
)

const (
	// defaultMinDelay, defaultMaxDelay and defaultStep bound the candidate
	// sweep in seconds.
	defaultMinDelay = 0.5
	defaultMaxDelay = 5.0
	defaultStep     = 0.5

	// defaultFallback is used when no candidate is detectable.
	defaultFallback = 1.0

	// defaultMargin is the factor a candidate's probe mean must exceed
	// the baseline noise ceiling (mean + 3·stdev) by to count as
	// reliably detectable.
	defaultMargin = 1.5

	// baselineSamples and probeSamples are the sweep sample sizes.
	baselineSamples = 10
	probeSamples    = 5
)

// Options configures a Calibrator. Zero values select the defaults above.
type Options struct {
	MinDelay float64
	MaxDelay float64
	Step     float64
	Fallback float64

	// Margin is the detectability factor over baseline noise.
	Margin float64

	// Logger receives progress output. Nil disables logging.
	Logger *slog.Logger
}

// Result is the outcome of a calibration sweep.
type Result struct {
	// Delay is the chosen server-side delay in seconds.
	Delay float64

	// Fallback is set when no candidate was reliably detectable and the
	// configured fallback delay was used instead.
	Fallback bool

	// BaselineMean and BaselineStdev describe the ambient noise measured
	// during the sweep.
	BaselineMean  float64
	BaselineStdev float64
}

// Calibrator sweeps candidate delays against the live target.
type Calibrator struct {
	prober   *oracle.Prober
	template *payload.Template
	dialect  dbms.Dialect
	opts     Options
	logger   *slog.Logger
}

// New creates a Calibrator over the given prober, template and dialect.
func New(prober *oracle.Prober, tpl *payload.Template, dialect dbms.Dialect, opts Options) *Calibrator {
	if opts.MinDelay <= 0 {
		opts.MinDelay = defaultMinDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = defaultMaxDelay
	}
	if opts.Step <= 0 {
		opts.Step = defaultStep
	}
	if opts.Fallback <= 0 {
		opts.Fallback = defaultFallback
	}
	if opts.Margin <= 0 {
		opts.Margin = defaultMargin
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Calibrator{
		prober:   prober,
		template: tpl,
		dialect:  dialect,
		opts:     opts,
		logger:   logger,
	}
}

// DetectOptimalDelay measures ambient noise with prompt probes, then
// sweeps candidate delays in ascending order and returns the first whose
// probe mean clears Margin·(mean + 3·stdev) of the baseline. The sweep is
// ascending, so the first detectable candidate is also the smallest; no
// further candidates are probed once one passes. When none passes, the
// fallback delay is returned with the Fallback flag set.
func (c *Calibrator) DetectOptimalDelay(ctx context.Context) (Result, error) {
	c.logger.Info("detecting optimal delay from network conditions")

	promptPayload := c.template.Instantiate(oracle.FalsePredicate)
	baseline := c.prober.Samples(ctx, promptPayload, baselineSamples)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	mean, stdev := stats.Baseline(baseline)
	detectableFloor := c.opts.Margin * (mean + 3*stdev)

	c.logger.Debug("calibration baseline",
		"mean", mean, "stdev", stdev, "floor", detectableFloor)

	for d := c.opts.MinDelay; d <= c.opts.MaxDelay+1e-9; d += c.opts.Step {
		probePayload := oracle.BuildPayload(c.template, c.dialect, oracle.TruePredicate, d)
		timings := c.prober.Samples(ctx, probePayload, probeSamples)
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		probeMean, _ := stats.Baseline(timings)
		c.logger.Debug("calibration candidate",
			"delay", d, "probe_mean", probeMean)

		if probeMean > detectableFloor {
			c.logger.Info("optimal delay detected", "delay", d)
			return Result{
				Delay:         d,
				BaselineMean:  mean,
				BaselineStdev: stdev,
			}, nil
		}
	}

	c.logger.Warn("could not reliably detect any candidate delay, using fallback",
		"fallback", c.opts.Fallback)
	return Result{
		Delay:         c.opts.Fallback,
		Fallback:      true,
		BaselineMean:  mean,
		BaselineStdev: stdev,
	}, nil
}
