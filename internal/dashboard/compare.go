// Package dashboard compares recorded strategy results with their
// buy-and-hold baselines and renders them as a console table and an XLSX
// workbook.
package dashboard

import (
	"math"
	"sort"
	"strings"

	"marketpulse/internal/domain"
)

// Verdict classifies a strategy against its baseline.
type Verdict string

const (
	VerdictBetterRiskReturn Verdict = "BETTER_RISK_RETURN"
	VerdictMoreReturnRisk   Verdict = "MORE_RETURN_MORE_RISK"
	VerdictWorse            Verdict = "WORSE"
	VerdictNeutral          Verdict = "NEUTRAL"
)

// Comparison is one (strategy, ticker) summary next to its baseline.
// Deltas are NaN when no baseline was recorded.
type Comparison struct {
	domain.SummaryMetrics
	Baseline      *domain.SummaryMetrics
	ExcessReturn  float64 // strategy cumulative return minus baseline
	SharpeDelta   float64
	DrawdownDelta float64 // > 0 means a shallower drawdown than the baseline
	Verdict       Verdict
}

// Compare pairs every summary with the baseline of the same ticker whose
// ID is the summary's ID plus the buy-and-hold suffix. Summaries that are
// themselves baselines are not listed.
func Compare(summaries []domain.SummaryMetrics, baselines map[string]domain.SummaryMetrics) []*Comparison {
	out := make([]*Comparison, 0, len(summaries))
	for _, s := range summaries {
		if isBaseline(s.StrategyID) {
			continue
		}
		c := &Comparison{
			SummaryMetrics: s,
			ExcessReturn:   math.NaN(),
			SharpeDelta:    math.NaN(),
			DrawdownDelta:  math.NaN(),
			Verdict:        VerdictNeutral,
		}
		if b, ok := baselines[baselineKey(s.StrategyID+domain.SuffixBuyAndHold, s.Ticker)]; ok {
			c.Baseline = &b
			c.ExcessReturn = s.CumulativeReturn - b.CumulativeReturn
			c.SharpeDelta = s.Sharpe - b.Sharpe
			c.DrawdownDelta = s.MaxDrawdown - b.MaxDrawdown
			c.Verdict = classify(c.SharpeDelta, c.DrawdownDelta)
		}
		out = append(out, c)
	}
	return out
}

func baselineKey(id, ticker string) string { return id + "|" + ticker }

func isBaseline(id string) bool { return strings.HasSuffix(id, domain.SuffixBuyAndHold) }

// classify mirrors the quadrant reading of Sharpe delta against drawdown
// delta.
func classify(sharpeDelta, drawdownDelta float64) Verdict {
	switch {
	case sharpeDelta > 0 && drawdownDelta >= 0:
		return VerdictBetterRiskReturn
	case sharpeDelta > 0:
		return VerdictMoreReturnRisk
	case sharpeDelta < 0:
		return VerdictWorse
	default:
		return VerdictNeutral
	}
}

// Sort modes for Rank.
const (
	SortSharpe      = 0 // by Sharpe (default)
	SortReturn      = 1 // by cumulative return
	SortExcess      = 2 // by excess return over the baseline
	SortSharpeDelta = 3 // by Sharpe delta
	SortModeCount   = 4
)

// SortModeLabel returns a short label for the given sort mode.
func SortModeLabel(mode int) string {
	switch mode {
	case SortSharpe:
		return "SHARPE"
	case SortReturn:
		return "RETURN"
	case SortExcess:
		return "EXCESS"
	case SortSharpeDelta:
		return "D-SHARPE"
	default:
		return "?"
	}
}

func sortKey(c *Comparison, mode int) float64 {
	switch mode {
	case SortReturn:
		return c.CumulativeReturn
	case SortExcess:
		return c.ExcessReturn
	case SortSharpeDelta:
		return c.SharpeDelta
	default:
		return c.Sharpe
	}
}

// Rank sorts cs in descending order of the mode's key. Undefined keys sort
// last; ties break on ticker then strategy.
func Rank(cs []*Comparison, mode int) {
	sort.SliceStable(cs, func(i, j int) bool {
		ki, kj := sortKey(cs[i], mode), sortKey(cs[j], mode)
		ni, nj := math.IsNaN(ki), math.IsNaN(kj)
		switch {
		case ni != nj:
			return nj
		case !ni && ki != kj:
			return ki > kj
		case cs[i].Ticker != cs[j].Ticker:
			return cs[i].Ticker < cs[j].Ticker
		default:
			return cs[i].StrategyID < cs[j].StrategyID
		}
	})
}

// StrategyGroup holds the ranked comparisons of one strategy or model.
// The KPIs skip undefined figures and are NaN when none is defined.
type StrategyGroup struct {
	Name          string
	Count         int
	Improved      int // SharpeDelta > 0
	MeanSharpe    float64
	BestReturn    float64
	WorstDrawdown float64
	Comparisons   []*Comparison
}

// GroupByStrategy splits cs per strategy ID, ranks each group by mode and
// returns the groups ordered by name.
func GroupByStrategy(cs []*Comparison, mode int) []StrategyGroup {
	byID := make(map[string][]*Comparison)
	for _, c := range cs {
		byID[c.StrategyID] = append(byID[c.StrategyID], c)
	}
	names := make([]string, 0, len(byID))
	for name := range byID {
		names = append(names, name)
	}
	sort.Strings(names)

	groups := make([]StrategyGroup, 0, len(names))
	for _, name := range names {
		ss := byID[name]
		Rank(ss, mode)
		g := StrategyGroup{
			Name:          name,
			Count:         len(ss),
			MeanSharpe:    math.NaN(),
			BestReturn:    math.NaN(),
			WorstDrawdown: math.NaN(),
			Comparisons:   ss,
		}
		var sharpeSum float64
		var sharpeN int
		for _, c := range ss {
			if c.SharpeDelta > 0 {
				g.Improved++
			}
			if !math.IsNaN(c.Sharpe) {
				sharpeSum += c.Sharpe
				sharpeN++
			}
			if !math.IsNaN(c.CumulativeReturn) && (math.IsNaN(g.BestReturn) || c.CumulativeReturn > g.BestReturn) {
				g.BestReturn = c.CumulativeReturn
			}
			if !math.IsNaN(c.MaxDrawdown) && (math.IsNaN(g.WorstDrawdown) || c.MaxDrawdown < g.WorstDrawdown) {
				g.WorstDrawdown = c.MaxDrawdown
			}
		}
		if sharpeN > 0 {
			g.MeanSharpe = sharpeSum / float64(sharpeN)
		}
		groups = append(groups, g)
	}
	return groups
}
