// Package builtins provides the built-in signal generators that ship with
// marketpulse.
package builtins

import (
	"fmt"
	"time"

	"marketpulse/internal/domain"
	"marketpulse/internal/series"
	"marketpulse/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Generator = (*MACross)(nil)

// DefaultMACrossName is the strategy ID of the 20/50 day crossover.
const DefaultMACrossName = "MA20_GT_MA50"

// MACross is a moving-average crossover: it is in the market while the fast
// average is above the slow one. It stays out whenever the slow average is
// still warming up, so no position is ever taken on an incomplete
// indicator.
type MACross struct {
	name string
	fast string
	slow string
}

// NewMACross creates a crossover generator reading the given fast and slow
// moving-average columns.
func NewMACross(name, fastColumn, slowColumn string) *MACross {
	return &MACross{
		name: name,
		fast: fastColumn,
		slow: slowColumn,
	}
}

// NewDefaultMACross is the MA20 > MA50 crossover.
func NewDefaultMACross() *MACross {
	return NewMACross(DefaultMACrossName, domain.ColMA20, domain.ColMA50)
}

// Name returns the strategy ID.
func (s *MACross) Name() string {
	return s.name
}

// Generate returns 1 where fast > slow and 0 elsewhere, including every date
// on which either average is undefined.
func (s *MACross) Generate(rows []domain.FeatureRow) (series.Series, error) {
	if err := series.ValidateDated(rows); err != nil {
		return series.Series{}, fmt.Errorf("%s: %w", s.name, err)
	}

	out := series.Series{
		Dates:  make([]time.Time, 0, len(rows)),
		Values: make([]float64, len(rows)),
	}
	for i, r := range rows {
		out.Dates = append(out.Dates, r.Date)
		slow, ok := r.Get(s.slow)
		if !ok {
			continue
		}
		fast, ok := r.Get(s.fast)
		if ok && fast > slow {
			out.Values[i] = 1
		}
	}
	return out, nil
}
