// Package stats provides the statistical timing analysis used to decide
// whether a probe sample carries a server-induced delay.
//
// Network latency is heavy-tailed and correlated across short windows. A
// fixed absolute threshold either misses small delays under load or fires
// on jitter when the link is quiet. Welch's two-sample t-test models both
// populations jointly and gives a calibratable error budget.
package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// defaultConfidence is the confidence level for significance decisions.
	defaultConfidence = 0.95

	// defaultMinSamples is the minimum sample size before any decision.
	defaultMinSamples = 5

	// defaultThreshold is returned by AdaptiveThreshold when the baseline
	// is too small to estimate noise.
	defaultThreshold = 1.0
)

// Analyzer decides whether timing samples show a significant delay.
type Analyzer struct {
	// Confidence is the confidence level for the t-test (default 0.95).
	// The null hypothesis is rejected when p < 1-Confidence.
	Confidence float64

	// MinSamples is the minimum number of observations required in each
	// sample before a decision is made (default 5).
	MinSamples int
}

// NewAnalyzer returns an Analyzer with default confidence and sample bounds.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		Confidence: defaultConfidence,
		MinSamples: defaultMinSamples,
	}
}

// Baseline returns the mean and sample standard deviation of a timing
// sample. An empty sample yields (0, 0); a single observation has zero
// standard deviation.
func Baseline(timings []float64) (mean, stdev float64) {
	if len(timings) == 0 {
		return 0, 0
	}
	mean = stat.Mean(timings, nil)
	if len(timings) > 1 {
		stdev = stat.StdDev(timings, nil)
	}
	return mean, stdev
}

// Significant reports whether the probe sample is stochastically greater
// than the baseline sample at the configured confidence, together with the
// one-sided p-value.
//
// It applies Welch's t-test (unequal variances, alternative "probe greater
// than baseline"). Samples smaller than MinSamples are rejected outright
// with p = 1.
func (a *Analyzer) Significant(baseline, probe []float64) (bool, float64) {
	if len(baseline) < a.MinSamples || len(probe) < a.MinSamples {
		return false, 1.0
	}

	nb := float64(len(baseline))
	np := float64(len(probe))

	meanB := stat.Mean(baseline, nil)
	meanP := stat.Mean(probe, nil)
	varB := stat.Variance(baseline, nil)
	varP := stat.Variance(probe, nil)

	seSq := varP/np + varB/nb
	if seSq == 0 {
		// Degenerate samples with no spread: the decision reduces to a
		// direct comparison of means.
		if meanP > meanB {
			return true, 0.0
		}
		return false, 1.0
	}

	t := (meanP - meanB) / math.Sqrt(seSq)

	// Welch–Satterthwaite degrees of freedom.
	df := seSq * seSq / ((varP/np)*(varP/np)/(np-1) + (varB/nb)*(varB/nb)/(nb-1))

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p := 1 - dist.CDF(t)

	return p < 1-a.Confidence, p
}

// AdaptiveThreshold returns a delay threshold derived from baseline noise:
// mean + 3·stdev, clamped to at least 1.10·mean. Used by the calibrator
// and by threshold-mode fallbacks; the t-test path never consults it.
func (a *Analyzer) AdaptiveThreshold(baseline []float64) float64 {
	if len(baseline) < a.MinSamples {
		return defaultThreshold
	}

	mean, stdev := Baseline(baseline)
	threshold := mean + 3*stdev
	return math.Max(threshold, mean*1.1)
}

// SampleSize estimates the number of probe samples needed to detect the
// given effect (delay in seconds) over baseline noise with 80% power at
// 95% confidence, using a one-sided normal approximation. The result is
// rounded up and never below MinSamples.
func (a *Analyzer) SampleSize(effect, stdev float64) int {
	if stdev == 0 || effect <= 0 {
		return a.MinSamples
	}

	z95 := distuv.UnitNormal.Quantile(0.95)
	z80 := distuv.UnitNormal.Quantile(0.80)

	n := 2 * (z95 + z80) * (z95 + z80) * (stdev / effect) * (stdev / effect)

	required := int(math.Ceil(n))
	if required < a.MinSamples {
		return a.MinSamples
	}
	return required
}
