package dashboard

import (
	"context"
	"fmt"

	"marketpulse/internal/domain"
	"marketpulse/internal/metrics"
	"marketpulse/internal/store"
)

// Options controls how a Report is built.
type Options struct {
	Sharpe   metrics.SharpeOptions
	SortMode int
}

// Curve is one stored equity curve.
type Curve struct {
	ID     string
	Ticker string
	Rows   []domain.EquityRow
}

// Predictions is the per-date classifier output of one model on one
// ticker.
type Predictions struct {
	ModelID string
	Ticker  string
	Rows    []domain.PredictionRow
}

// Report is everything the table and workbook renderers need.
type Report struct {
	SortMode    int
	Groups      []StrategyGroup
	Curves      []Curve
	Predictions []Predictions
}

// Build reads every recorded summary, derives the baseline metrics from the
// stored buy-and-hold curves and groups the comparisons per strategy.
// Model runs also carry their stored predictions.
func Build(ctx context.Context, r store.ResultReader, opts Options) (*Report, error) {
	summaries, err := r.ListSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing summaries: %w", err)
	}

	rep := &Report{SortMode: opts.SortMode}
	baselines := make(map[string]domain.SummaryMetrics)
	for _, s := range summaries {
		if isBaseline(s.StrategyID) {
			baselines[baselineKey(s.StrategyID, s.Ticker)] = s
			continue
		}

		rows, err := readCurve(ctx, r, s.StrategyID, s.Ticker)
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			rep.Curves = append(rep.Curves, Curve{ID: rows[0].StrategyID, Ticker: s.Ticker, Rows: rows})
		}

		preds, err := r.ReadPredictions(ctx, s.StrategyID, s.Ticker)
		if err != nil {
			return nil, fmt.Errorf("reading predictions %s %s: %w", s.StrategyID, s.Ticker, err)
		}
		if len(preds) > 0 {
			rep.Predictions = append(rep.Predictions, Predictions{ModelID: s.StrategyID, Ticker: s.Ticker, Rows: preds})
		}

		baseID := s.StrategyID + domain.SuffixBuyAndHold
		base, err := r.ReadEquity(ctx, baseID, s.Ticker)
		if err != nil {
			return nil, fmt.Errorf("reading %s %s: %w", baseID, s.Ticker, err)
		}
		if len(base) == 0 {
			continue
		}
		rep.Curves = append(rep.Curves, Curve{ID: baseID, Ticker: s.Ticker, Rows: base})
		bs, err := summarizeCurve(baseID, s.Ticker, base, opts.Sharpe)
		if err != nil {
			return nil, err
		}
		baselines[baselineKey(baseID, s.Ticker)] = bs
	}

	rep.Groups = GroupByStrategy(Compare(summaries, baselines), opts.SortMode)
	return rep, nil
}

// readCurve returns the curve stored under id, or under id with the
// strategy suffix as model runs record it.
func readCurve(ctx context.Context, r store.ResultReader, id, ticker string) ([]domain.EquityRow, error) {
	for _, cid := range []string{id, id + domain.SuffixStrategy} {
		rows, err := r.ReadEquity(ctx, cid, ticker)
		if err != nil {
			return nil, fmt.Errorf("reading %s %s: %w", cid, ticker, err)
		}
		if len(rows) > 0 {
			return rows, nil
		}
	}
	return nil, nil
}

func summarizeCurve(id, ticker string, rows []domain.EquityRow, opts metrics.SharpeOptions) (domain.SummaryMetrics, error) {
	returns := make([]float64, len(rows))
	equity := make([]float64, len(rows))
	for i, row := range rows {
		returns[i] = row.Return
		equity[i] = row.Equity
	}
	mdd, err := metrics.MaxDrawdown(equity)
	if err != nil {
		return domain.SummaryMetrics{}, fmt.Errorf("%s %s: %w", id, ticker, err)
	}
	return domain.SummaryMetrics{
		StrategyID:       id,
		Ticker:           ticker,
		StartDate:        rows[0].Date,
		EndDate:          rows[len(rows)-1].Date,
		CumulativeReturn: metrics.CumulativeReturn(returns),
		Sharpe:           metrics.SharpeRatio(returns, opts),
		MaxDrawdown:      mdd,
	}, nil
}
