package dashboard

import (
	"fmt"
	"math"

	"github.com/xuri/excelize/v2"
	"go.uber.org/multierr"
)

const (
	summarySheet     = "Summary"
	equitySheet      = "Equity"
	predictionsSheet = "Predictions"
)

// WriteXLSX saves rep as a workbook with a Summary sheet (one row per
// comparison), an Equity sheet (every stored curve point) and a
// Predictions sheet (every stored model prediction).
func WriteXLSX(path string, rep *Report) (err error) {
	fx := excelize.NewFile()
	defer func() { err = multierr.Append(err, fx.Close()) }()

	if err := fx.SetSheetName(fx.GetSheetName(0), summarySheet); err != nil {
		return err
	}
	for _, name := range []string{equitySheet, predictionsSheet} {
		if _, err := fx.NewSheet(name); err != nil {
			return err
		}
	}

	header, err := fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"2F4F4F"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
		},
	})
	if err != nil {
		return err
	}
	pct, err := fx.NewStyle(&excelize.Style{NumFmt: 10}) // 0.00%
	if err != nil {
		return err
	}

	if err := writeSummarySheet(fx, rep, header, pct); err != nil {
		return err
	}
	if err := writeEquitySheet(fx, rep, header); err != nil {
		return err
	}
	if err := writePredictionsSheet(fx, rep, header); err != nil {
		return err
	}
	if err := fx.SaveAs(path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}

func writeSummarySheet(fx *excelize.File, rep *Report, header, pct int) error {
	headers := []interface{}{
		"Strategy", "Ticker", "Start", "End", "Cumulative Return", "Sharpe", "Max Drawdown",
		"Baseline Return", "Baseline Sharpe", "Excess Return", "Sharpe Delta", "Drawdown Delta", "Verdict",
	}
	if err := writeHeader(fx, summarySheet, headers, header); err != nil {
		return err
	}
	_ = fx.SetColWidth(summarySheet, "A", "A", 22)
	_ = fx.SetColWidth(summarySheet, "B", "D", 12)
	_ = fx.SetColWidth(summarySheet, "E", "L", 16)
	_ = fx.SetColWidth(summarySheet, "M", "M", 24)

	row := 2
	for _, g := range rep.Groups {
		for _, c := range g.Comparisons {
			baseRet, baseSharpe := math.NaN(), math.NaN()
			if c.Baseline != nil {
				baseRet, baseSharpe = c.Baseline.CumulativeReturn, c.Baseline.Sharpe
			}
			values := []interface{}{
				c.StrategyID, c.Ticker,
				c.StartDate.Format("2006-01-02"), c.EndDate.Format("2006-01-02"),
				cellValue(c.CumulativeReturn), cellValue(c.Sharpe), cellValue(c.MaxDrawdown),
				cellValue(baseRet), cellValue(baseSharpe),
				cellValue(c.ExcessReturn), cellValue(c.SharpeDelta), cellValue(c.DrawdownDelta),
				string(c.Verdict),
			}
			cell, _ := excelize.CoordinatesToCellName(1, row)
			if err := fx.SetSheetRow(summarySheet, cell, &values); err != nil {
				return err
			}
			row++
		}
	}
	if row > 2 {
		for _, col := range []string{"E", "G", "H", "J", "L"} {
			if err := fx.SetCellStyle(summarySheet, fmt.Sprintf("%s2", col), fmt.Sprintf("%s%d", col, row-1), pct); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeEquitySheet(fx *excelize.File, rep *Report, header int) error {
	sw, err := fx.NewStreamWriter(equitySheet)
	if err != nil {
		return err
	}
	if err := sw.SetColWidth(1, 1, 28); err != nil {
		return err
	}
	headers := make([]interface{}, 0, 5)
	for _, h := range []string{"Curve", "Ticker", "Date", "Equity", "Return"} {
		headers = append(headers, excelize.Cell{StyleID: header, Value: h})
	}
	if err := sw.SetRow("A1", headers); err != nil {
		return err
	}
	row := 2
	for _, c := range rep.Curves {
		for _, r := range c.Rows {
			cell, _ := excelize.CoordinatesToCellName(1, row)
			if err := sw.SetRow(cell, []interface{}{c.ID, c.Ticker, r.Date.Format("2006-01-02"), r.Equity, r.Return}); err != nil {
				return err
			}
			row++
		}
	}
	return sw.Flush()
}

func writePredictionsSheet(fx *excelize.File, rep *Report, header int) error {
	sw, err := fx.NewStreamWriter(predictionsSheet)
	if err != nil {
		return err
	}
	if err := sw.SetColWidth(1, 1, 22); err != nil {
		return err
	}
	headers := make([]interface{}, 0, 5)
	for _, h := range []string{"Model", "Ticker", "Date", "Prob Up", "Signal"} {
		headers = append(headers, excelize.Cell{StyleID: header, Value: h})
	}
	if err := sw.SetRow("A1", headers); err != nil {
		return err
	}
	row := 2
	for _, p := range rep.Predictions {
		for _, r := range p.Rows {
			cell, _ := excelize.CoordinatesToCellName(1, row)
			if err := sw.SetRow(cell, []interface{}{p.ModelID, p.Ticker, r.Date.Format("2006-01-02"), cellValue(r.ProbabilityUp), r.Signal}); err != nil {
				return err
			}
			row++
		}
	}
	return sw.Flush()
}

func writeHeader(fx *excelize.File, sheet string, headers []interface{}, style int) error {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := fx.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
		if err := fx.SetCellStyle(sheet, cell, cell, style); err != nil {
			return err
		}
	}
	return nil
}

// cellValue leaves undefined figures as empty cells.
func cellValue(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
