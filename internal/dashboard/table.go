package dashboard

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// RenderTable writes one table per strategy group to w.
func RenderTable(w io.Writer, rep *Report) {
	for _, g := range rep.Groups {
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetTitle(fmt.Sprintf("%s  (%d tickers, sort %s)", g.Name, g.Count, SortModeLabel(rep.SortMode)))
		t.SetStyle(table.StyleRounded)
		t.Style().Format.Footer = text.FormatDefault
		t.AppendHeader(table.Row{"#", "Ticker", "Window", "Return", "Sharpe", "Max DD", "Excess", "D Sharpe", "Verdict"})

		for i, c := range g.Comparisons {
			t.AppendRow(table.Row{
				i + 1,
				c.Ticker,
				c.StartDate.Format("2006-01-02") + " .. " + c.EndDate.Format("2006-01-02"),
				FormatPct(c.CumulativeReturn),
				FormatRatio(c.Sharpe, false),
				FormatPct(c.MaxDrawdown),
				FormatDelta(c.ExcessReturn),
				FormatRatio(c.SharpeDelta, true),
				string(c.Verdict),
			})
		}
		t.AppendFooter(table.Row{"", "mean", "", "", FormatRatio(g.MeanSharpe, false), "", "", "", ""})
		t.AppendFooter(table.Row{"", "best", "", FormatPct(g.BestReturn), "", "", "", "", ""})
		t.AppendFooter(table.Row{"", "worst", "", "", "", FormatPct(g.WorstDrawdown), "", "", ""})
		t.AppendFooter(table.Row{"", "", "", "", "", "", "improved", FormatInt(g.Improved), ""})
		t.SetColumnConfigs([]table.ColumnConfig{
			{Number: 4, Align: text.AlignRight},
			{Number: 5, Align: text.AlignRight},
			{Number: 6, Align: text.AlignRight},
			{Number: 7, Align: text.AlignRight},
			{Number: 8, Align: text.AlignRight},
		})
		t.Render()
	}
}
