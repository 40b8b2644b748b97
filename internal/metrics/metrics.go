// Package metrics computes the risk/return figures reported for every
// evaluation window. All functions are pure. Undefined (NaN) entries are
// excluded before any product, mean or deviation is taken; they are never
// read as zero here. Zero-filling is a decision for the caller.
package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"marketpulse/internal/domain"
	"marketpulse/internal/series"
)

// TradingDaysPerYear is the default annualization factor for daily data.
const TradingDaysPerYear = 252

// SharpeOptions parameterizes SharpeRatio.
type SharpeOptions struct {
	RiskFreeDaily  float64 // subtracted from every return
	PeriodsPerYear int     // annualization periods; 0 means TradingDaysPerYear
}

// CumulativeReturn compounds the defined returns: prod(1+r) - 1. An empty
// or entirely undefined series compounds over the empty set and yields 0.
func CumulativeReturn(returns []float64) float64 {
	growth := 1.0
	for _, r := range returns {
		if math.IsNaN(r) {
			continue
		}
		growth *= 1 + r
	}
	return growth - 1
}

// MaxDrawdown returns the deepest decline from the running peak of equity,
// as a fraction that is always <= 0. It is 0 exactly when the defined part
// of the curve never falls.
func MaxDrawdown(equity []float64) (float64, error) {
	peak := math.NaN()
	worst := 0.0
	seen := 0
	for _, e := range equity {
		if math.IsNaN(e) {
			continue
		}
		seen++
		if math.IsNaN(peak) || e > peak {
			peak = e
		}
		if dd := e/peak - 1; dd < worst {
			worst = dd
		}
	}
	if seen == 0 {
		return 0, fmt.Errorf("max drawdown over %d points: %w", len(equity), domain.ErrInsufficientData)
	}
	return worst, nil
}

// SharpeRatio annualizes mean/stddev of the defined excess returns using the
// sample standard deviation. A series whose excess returns are all
// identical carries no risk signal and scores exactly 0, as does a series
// with fewer than two defined observations.
func SharpeRatio(returns []float64, opts SharpeOptions) float64 {
	periods := opts.PeriodsPerYear
	if periods <= 0 {
		periods = TradingDaysPerYear
	}

	excess := series.DropNaN(returns)
	if len(excess) < 2 {
		return 0
	}
	for i := range excess {
		excess[i] -= opts.RiskFreeDaily
	}
	if constant(excess) {
		return 0
	}

	mean, std := stat.MeanStdDev(excess, nil)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return mean / std * math.Sqrt(float64(periods))
}

// constant reports whether every entry equals the first.
func constant(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}
