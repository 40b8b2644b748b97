// Package backtest turns a position series into simulated strategy returns
// and an equity curve, and derives the summary and equity records that the
// recorder persists.
//
// Positions are lagged one period before they meet returns: the decision
// taken at the close of day t-1 earns the return of day t. The first date of
// the window has no prior decision and earns nothing.
package backtest

import (
	"fmt"
	"math"
	"time"

	"marketpulse/internal/domain"
	"marketpulse/internal/metrics"
	"marketpulse/internal/series"
)

// Options controls a simulation.
type Options struct {
	// StartEquity is the value of the curve on the first date. Zero means 1.
	StartEquity float64
	// BuyAndHold also computes the position-always-1 curve over the same
	// window.
	BuyAndHold bool
}

// Result holds every per-date series of a simulation. All slices share the
// Dates index.
type Result struct {
	Dates           []time.Time
	Returns         []float64 // input returns, undefined entries as 0
	Positions       []float64 // input positions, undefined entries as 0
	StrategyReturns []float64
	Equity          []float64

	BuyHoldReturns []float64 // nil unless Options.BuyAndHold
	BuyHoldEquity  []float64
}

// Simulate runs the strategy defined by positions over returns. The two
// series are inner-joined on date; dates present in only one of them are
// outside the window. Returns are not clamped, so a return below -100%
// shows up as a non-positive equity value.
func Simulate(returns, positions series.Series, opts Options) (*Result, error) {
	start := opts.StartEquity
	if start == 0 {
		start = 1
	}

	al, err := series.Align(returns, positions)
	if err != nil {
		return nil, fmt.Errorf("backtest: %w", err)
	}

	n := len(al.Dates)
	res := &Result{
		Dates:     al.Dates,
		Returns:   series.FillNaN(al.Left, 0),
		Positions: series.FillNaN(al.Right, 0),
	}
	for i, p := range res.Positions {
		if math.IsInf(p, 0) {
			return nil, fmt.Errorf("backtest: position %v on %s: %w", p, al.Dates[i].Format(time.DateOnly), domain.ErrInvalidInput)
		}
	}

	lagged := series.FillNaN(series.Shift(res.Positions, 1), 0)
	res.StrategyReturns = make([]float64, n)
	for i := range res.StrategyReturns {
		res.StrategyReturns[i] = lagged[i] * res.Returns[i]
	}
	res.Equity = Compound(res.StrategyReturns, start)

	if opts.BuyAndHold {
		res.BuyHoldReturns = append([]float64(nil), res.Returns...)
		res.BuyHoldEquity = Compound(res.BuyHoldReturns, start)
	}
	return res, nil
}

// Compound builds the equity curve start * prod(1 + r[0..t]).
func Compound(returns []float64, start float64) []float64 {
	out := make([]float64, len(returns))
	prev := start
	for i, r := range returns {
		prev *= 1 + r
		out[i] = prev
	}
	return out
}

// Len returns the number of dates in the simulation window.
func (r *Result) Len() int { return len(r.Dates) }

// Summary computes the metrics of the strategy curve.
func (r *Result) Summary(strategyID, ticker string, opts metrics.SharpeOptions) (domain.SummaryMetrics, error) {
	return summarize(strategyID, ticker, r.Dates, r.StrategyReturns, r.Equity, opts)
}

// BuyAndHoldSummary computes the metrics of the buy-and-hold curve.
func (r *Result) BuyAndHoldSummary(strategyID, ticker string, opts metrics.SharpeOptions) (domain.SummaryMetrics, error) {
	if r.BuyHoldEquity == nil {
		return domain.SummaryMetrics{}, fmt.Errorf("backtest: %s %s: buy-and-hold curve not computed: %w", strategyID, ticker, domain.ErrInvalidInput)
	}
	return summarize(strategyID+domain.SuffixBuyAndHold, ticker, r.Dates, r.BuyHoldReturns, r.BuyHoldEquity, opts)
}

// EquityRows returns one row per date of the strategy curve.
func (r *Result) EquityRows(strategyID, ticker string) []domain.EquityRow {
	return equityRows(strategyID, ticker, r.Dates, r.StrategyReturns, r.Equity)
}

// BuyAndHoldRows returns the buy-and-hold curve under strategyID with the
// buy-and-hold suffix, or nil when it was not computed.
func (r *Result) BuyAndHoldRows(strategyID, ticker string) []domain.EquityRow {
	if r.BuyHoldEquity == nil {
		return nil
	}
	return equityRows(strategyID+domain.SuffixBuyAndHold, ticker, r.Dates, r.BuyHoldReturns, r.BuyHoldEquity)
}

func summarize(id, ticker string, dates []time.Time, returns, equity []float64, opts metrics.SharpeOptions) (domain.SummaryMetrics, error) {
	if len(dates) == 0 {
		return domain.SummaryMetrics{}, fmt.Errorf("backtest: %s %s: empty window: %w", id, ticker, domain.ErrInsufficientData)
	}
	mdd, err := metrics.MaxDrawdown(equity)
	if err != nil {
		return domain.SummaryMetrics{}, fmt.Errorf("backtest: %s %s: %w", id, ticker, err)
	}
	return domain.SummaryMetrics{
		StrategyID:       id,
		Ticker:           ticker,
		StartDate:        dates[0],
		EndDate:          dates[len(dates)-1],
		CumulativeReturn: metrics.CumulativeReturn(returns),
		Sharpe:           metrics.SharpeRatio(returns, opts),
		MaxDrawdown:      mdd,
	}, nil
}

func equityRows(id, ticker string, dates []time.Time, returns, equity []float64) []domain.EquityRow {
	out := make([]domain.EquityRow, len(dates))
	for i, d := range dates {
		out[i] = domain.EquityRow{
			StrategyID: id,
			Ticker:     ticker,
			Date:       d,
			Equity:     equity[i],
			Return:     returns[i],
		}
	}
	return out
}
