// Package series provides the dated float series used throughout the
// evaluation engine, together with the alignment and fill helpers that the
// simulator and the feature pipeline share. NaN marks an undefined value.
package series

import (
	"fmt"
	"math"
	"time"

	"marketpulse/internal/domain"
)

// Series is a chronologically ordered run of values on a daily index.
type Series struct {
	Dates  []time.Time
	Values []float64
}

// New builds a Series after checking that both slices have the same length
// and the dates are strictly increasing.
func New(dates []time.Time, values []float64) (Series, error) {
	if len(dates) != len(values) {
		return Series{}, fmt.Errorf("series: %d dates but %d values: %w", len(dates), len(values), domain.ErrInvalidInput)
	}
	if err := Validate(dates); err != nil {
		return Series{}, err
	}
	return Series{Dates: dates, Values: values}, nil
}

// Len returns the number of observations.
func (s Series) Len() int { return len(s.Values) }

// Validate reports ErrInvalidInput unless dates are strictly increasing.
func Validate(dates []time.Time) error {
	for i := 1; i < len(dates); i++ {
		if !dates[i].After(dates[i-1]) {
			return fmt.Errorf("series: date %s at index %d does not follow %s: %w",
				dates[i].Format(time.DateOnly), i, dates[i-1].Format(time.DateOnly), domain.ErrInvalidInput)
		}
	}
	return nil
}

// ValidateDated is Validate over any slice of dated rows.
func ValidateDated[T domain.Dated](rows []T) error {
	for i := 1; i < len(rows); i++ {
		if !rows[i].Day().After(rows[i-1].Day()) {
			return fmt.Errorf("series: row %d dated %s does not follow %s: %w",
				i, rows[i].Day().Format(time.DateOnly), rows[i-1].Day().Format(time.DateOnly), domain.ErrInvalidInput)
		}
	}
	return nil
}

// Aligned is the inner join of two series on their dates.
type Aligned struct {
	Dates []time.Time
	Left  []float64
	Right []float64
}

// Align joins a and b on identical dates. Dates present in only one series
// are dropped; nothing is filled across the join. Both inputs must be
// strictly increasing. Zero overlapping dates is an ErrAlignment.
func Align(a, b Series) (Aligned, error) {
	if err := Validate(a.Dates); err != nil {
		return Aligned{}, err
	}
	if err := Validate(b.Dates); err != nil {
		return Aligned{}, err
	}

	n := min(a.Len(), b.Len())
	out := Aligned{
		Dates: make([]time.Time, 0, n),
		Left:  make([]float64, 0, n),
		Right: make([]float64, 0, n),
	}
	i, j := 0, 0
	for i < a.Len() && j < b.Len() {
		switch {
		case a.Dates[i].Equal(b.Dates[j]):
			out.Dates = append(out.Dates, a.Dates[i])
			out.Left = append(out.Left, a.Values[i])
			out.Right = append(out.Right, b.Values[j])
			i++
			j++
		case a.Dates[i].Before(b.Dates[j]):
			i++
		default:
			j++
		}
	}
	if len(out.Dates) == 0 {
		return Aligned{}, fmt.Errorf("series: no overlapping dates (%d vs %d observations): %w",
			a.Len(), b.Len(), domain.ErrAlignment)
	}
	return out, nil
}

// PctChange returns values[t]/values[t-periods] - 1. The first periods
// entries, and any entry whose operands are undefined, are NaN.
func PctChange(values []float64, periods int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if i < periods || math.IsNaN(values[i]) || math.IsNaN(values[i-periods]) {
			out[i] = math.NaN()
			continue
		}
		out[i] = values[i]/values[i-periods] - 1
	}
	return out
}

// Shift moves values forward by n positions (a lag) when n > 0 and backward
// (a lead) when n < 0. Vacated positions are NaN.
func Shift(values []float64, n int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		src := i - n
		if src < 0 || src >= len(values) {
			out[i] = math.NaN()
			continue
		}
		out[i] = values[src]
	}
	return out
}

// FillNaN returns a copy of values with undefined entries replaced by fill.
func FillNaN(values []float64, fill float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			v = fill
		}
		out[i] = v
	}
	return out
}

// DropNaN returns the defined entries of values in their original order.
func DropNaN(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// RollingMean is the trailing mean over window entries. An entry is NaN
// until the window is full or whenever the window holds an undefined value.
func RollingMean(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if window <= 0 || i < window-1 {
			out[i] = math.NaN()
			continue
		}
		sum := 0.0
		for _, v := range values[i-window+1 : i+1] {
			sum += v
		}
		out[i] = sum / float64(window)
	}
	return out
}

// Column extracts the named feature from rows as a Series, with NaN for
// undefined entries.
func Column(rows []domain.FeatureRow, name string) (Series, error) {
	dates := make([]time.Time, len(rows))
	values := make([]float64, len(rows))
	for i, r := range rows {
		dates[i] = r.Date
		values[i], _ = r.Get(name)
	}
	return New(dates, values)
}
