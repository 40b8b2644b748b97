package dashboard

import (
	"bytes"
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"marketpulse/internal/domain"
)

func d(day int) time.Time { return time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC) }

func TestFormat(t *testing.T) {
	tests := []struct{ got, want string }{
		{FormatInt(0), "0"},
		{FormatInt(1234567), "1,234,567"},
		{FormatInt(-4500), "-4,500"},
		{FormatPct(0.1234), "12.34%"},
		{FormatPct(-1.5), "-150%"},
		{FormatPct(math.NaN()), "-"},
		{FormatDelta(0.02), "+2.00%"},
		{FormatRatio(1.234, false), "1.23"},
		{FormatRatio(-0.5, true), "-0.50"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestCompare(t *testing.T) {
	summaries := []domain.SummaryMetrics{
		{StrategyID: "M", Ticker: "AAPL", CumulativeReturn: 0.10, Sharpe: 1.5, MaxDrawdown: -0.05},
		{StrategyID: "M", Ticker: "MSFT", CumulativeReturn: 0.02, Sharpe: 0.2, MaxDrawdown: -0.20},
		{StrategyID: "M", Ticker: "NVDA", CumulativeReturn: 0.30, Sharpe: 2.0},
		{StrategyID: "M_BUY_HOLD", Ticker: "AAPL"},
	}
	baselines := map[string]domain.SummaryMetrics{
		baselineKey("M_BUY_HOLD", "AAPL"): {CumulativeReturn: 0.04, Sharpe: 1.0, MaxDrawdown: -0.10},
		baselineKey("M_BUY_HOLD", "MSFT"): {CumulativeReturn: 0.05, Sharpe: 0.5, MaxDrawdown: -0.10},
	}

	cs := Compare(summaries, baselines)
	if len(cs) != 3 {
		t.Fatalf("got %d comparisons, want 3 (baseline rows excluded)", len(cs))
	}
	aapl := cs[0]
	if math.Abs(aapl.ExcessReturn-0.06) > 1e-12 || math.Abs(aapl.SharpeDelta-0.5) > 1e-12 {
		t.Errorf("AAPL deltas = %v, %v", aapl.ExcessReturn, aapl.SharpeDelta)
	}
	if aapl.Verdict != VerdictBetterRiskReturn {
		t.Errorf("AAPL verdict = %s", aapl.Verdict)
	}
	if cs[1].Verdict != VerdictWorse {
		t.Errorf("MSFT verdict = %s", cs[1].Verdict)
	}
	if cs[2].Baseline != nil || !math.IsNaN(cs[2].SharpeDelta) || cs[2].Verdict != VerdictNeutral {
		t.Errorf("NVDA without baseline = %+v", cs[2])
	}
	if got := classify(0.1, -0.05); got != VerdictMoreReturnRisk {
		t.Errorf("classify(+, -) = %s", got)
	}
}

func TestRank(t *testing.T) {
	cs := []*Comparison{
		{SummaryMetrics: domain.SummaryMetrics{Ticker: "B", Sharpe: 1}, SharpeDelta: math.NaN()},
		{SummaryMetrics: domain.SummaryMetrics{Ticker: "A", Sharpe: 1}, SharpeDelta: 0.3},
		{SummaryMetrics: domain.SummaryMetrics{Ticker: "C", Sharpe: 2}, SharpeDelta: -0.1},
	}
	Rank(cs, SortSharpe)
	if cs[0].Ticker != "C" || cs[1].Ticker != "A" || cs[2].Ticker != "B" {
		t.Errorf("by Sharpe = %s %s %s", cs[0].Ticker, cs[1].Ticker, cs[2].Ticker)
	}
	Rank(cs, SortSharpeDelta)
	if cs[0].Ticker != "A" || cs[2].Ticker != "B" {
		t.Errorf("undefined keys should sort last: %s %s %s", cs[0].Ticker, cs[1].Ticker, cs[2].Ticker)
	}
	if SortModeLabel(SortExcess) != "EXCESS" || SortModeLabel(99) != "?" {
		t.Error("unexpected sort labels")
	}
}

type fakeReader struct {
	summaries []domain.SummaryMetrics
	curves    map[string][]domain.EquityRow
	preds     map[string][]domain.PredictionRow
}

func (f fakeReader) ListSummaries(context.Context) ([]domain.SummaryMetrics, error) {
	return f.summaries, nil
}

func (f fakeReader) ReadEquity(_ context.Context, id, ticker string) ([]domain.EquityRow, error) {
	return f.curves[id+"|"+ticker], nil
}

func (f fakeReader) ReadPredictions(_ context.Context, id, ticker string) ([]domain.PredictionRow, error) {
	return f.preds[id+"|"+ticker], nil
}

func curve(id string, returns ...float64) []domain.EquityRow {
	rows := make([]domain.EquityRow, len(returns))
	eq := 1.0
	for i, r := range returns {
		eq *= 1 + r
		rows[i] = domain.EquityRow{StrategyID: id, Ticker: "AAPL", Date: d(i + 1), Equity: eq, Return: r}
	}
	return rows
}

func testReport(t *testing.T) *Report {
	t.Helper()
	reader := fakeReader{
		summaries: []domain.SummaryMetrics{
			{StrategyID: "LR", Ticker: "AAPL", StartDate: d(1), EndDate: d(4), CumulativeReturn: 0.05, Sharpe: 3},
			{StrategyID: "MA", Ticker: "AAPL", StartDate: d(1), EndDate: d(4), CumulativeReturn: -0.01, Sharpe: -1},
		},
		curves: map[string][]domain.EquityRow{
			"LR_STRAT|AAPL":    curve("LR_STRAT", 0, 0.02, 0.01, 0.02),
			"LR_BUY_HOLD|AAPL": curve("LR_BUY_HOLD", 0, 0.01, -0.02, 0.01),
			"MA|AAPL":          curve("MA", 0, -0.01, 0, 0),
		},
		preds: map[string][]domain.PredictionRow{
			"LR|AAPL": {
				{ModelID: "LR", Ticker: "AAPL", Date: d(3), ProbabilityUp: 0.61, Signal: 1},
				{ModelID: "LR", Ticker: "AAPL", Date: d(4), ProbabilityUp: 0.42, Signal: 0},
			},
		},
	}
	rep, err := Build(context.Background(), reader, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return rep
}

func TestBuild(t *testing.T) {
	rep := testReport(t)
	if len(rep.Groups) != 2 || rep.Groups[0].Name != "LR" {
		t.Fatalf("groups = %+v", rep.Groups)
	}
	lr := rep.Groups[0].Comparisons[0]
	if lr.Baseline == nil {
		t.Fatal("LR should have a baseline derived from its buy-and-hold curve")
	}
	wantBase := 1.01*0.98*1.01 - 1
	if math.Abs(lr.Baseline.CumulativeReturn-wantBase) > 1e-12 {
		t.Errorf("baseline return = %v, want %v", lr.Baseline.CumulativeReturn, wantBase)
	}
	if lr.Baseline.MaxDrawdown >= 0 {
		t.Errorf("baseline drawdown = %v, want < 0", lr.Baseline.MaxDrawdown)
	}
	if rep.Groups[1].Comparisons[0].Baseline != nil {
		t.Error("MA has no baseline curve")
	}
	if len(rep.Curves) != 3 {
		t.Errorf("got %d curves, want 3", len(rep.Curves))
	}
	if len(rep.Predictions) != 1 {
		t.Fatalf("got %d prediction sets, want 1 (only the model run has predictions)", len(rep.Predictions))
	}
	if p := rep.Predictions[0]; p.ModelID != "LR" || p.Ticker != "AAPL" || len(p.Rows) != 2 {
		t.Errorf("predictions = %+v", p)
	}
}

func TestGroupByStrategyKPIs(t *testing.T) {
	cs := []*Comparison{
		{SummaryMetrics: domain.SummaryMetrics{StrategyID: "LR", Ticker: "A", CumulativeReturn: 0.10, Sharpe: 1, MaxDrawdown: -0.05}, SharpeDelta: 0.2},
		{SummaryMetrics: domain.SummaryMetrics{StrategyID: "LR", Ticker: "B", CumulativeReturn: -0.02, Sharpe: 2, MaxDrawdown: -0.15}, SharpeDelta: math.NaN()},
		{SummaryMetrics: domain.SummaryMetrics{StrategyID: "LR", Ticker: "C", CumulativeReturn: 0.04, Sharpe: math.NaN(), MaxDrawdown: -0.10}, SharpeDelta: -0.1},
	}
	groups := GroupByStrategy(cs, SortSharpe)
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	g := groups[0]
	if g.Count != 3 || g.Improved != 1 {
		t.Errorf("count/improved = %d/%d, want 3/1", g.Count, g.Improved)
	}
	if math.Abs(g.MeanSharpe-1.5) > 1e-12 {
		t.Errorf("MeanSharpe = %v, want 1.5 (undefined Sharpe skipped)", g.MeanSharpe)
	}
	if g.BestReturn != 0.10 || g.WorstDrawdown != -0.15 {
		t.Errorf("best return / worst drawdown = %v / %v", g.BestReturn, g.WorstDrawdown)
	}

	empty := GroupByStrategy([]*Comparison{
		{SummaryMetrics: domain.SummaryMetrics{StrategyID: "X", CumulativeReturn: math.NaN(), Sharpe: math.NaN(), MaxDrawdown: math.NaN()}},
	}, SortSharpe)
	if !math.IsNaN(empty[0].MeanSharpe) || !math.IsNaN(empty[0].BestReturn) || !math.IsNaN(empty[0].WorstDrawdown) {
		t.Errorf("KPIs without defined figures = %+v", empty[0])
	}
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	RenderTable(&buf, testReport(t))
	out := buf.String()
	for _, want := range []string{"LR", "AAPL", "5.00%", string(VerdictBetterRiskReturn), "improved", "mean", "best", "worst"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	// Footer labels keep their case.
	if strings.Contains(out, "IMPROVED") {
		t.Errorf("footer label upper-cased:\n%s", out)
	}
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	if err := WriteXLSX(path, testReport(t)); err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}

	fx, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer fx.Close()

	if sheets := fx.GetSheetList(); len(sheets) != 3 || sheets[0] != summarySheet || sheets[1] != equitySheet || sheets[2] != predictionsSheet {
		t.Errorf("sheets = %v", sheets)
	}
	rows, err := fx.GetRows(summarySheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || rows[0][0] != "Strategy" || rows[1][0] != "LR" {
		t.Errorf("summary rows = %v", rows)
	}
	eq, err := fx.GetRows(equitySheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(eq) != 1+12 {
		t.Errorf("equity sheet has %d rows, want 13", len(eq))
	}
	preds, err := fx.GetRows(predictionsSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(preds) != 1+2 {
		t.Fatalf("predictions sheet has %d rows, want 3", len(preds))
	}
	if preds[0][3] != "Prob Up" || preds[1][0] != "LR" || preds[1][2] != "2024-03-03" || preds[1][4] != "1" {
		t.Errorf("predictions rows = %v", preds)
	}
}
