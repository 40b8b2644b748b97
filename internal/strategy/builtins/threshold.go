package builtins

import (
	"fmt"
	"math"
	"time"

	"marketpulse/internal/domain"
	"marketpulse/internal/series"
	"marketpulse/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Generator = (*Threshold)(nil)

// DefaultThreshold is the probability above which the model path goes long.
const DefaultThreshold = 0.55

// Threshold converts a predicted up-move probability into a position: long
// when the probability is strictly above the threshold, flat otherwise. The
// threshold is configuration, never fitted to data.
type Threshold struct {
	name      string
	column    string
	threshold float64
}

// NewThreshold creates a Threshold generator that reads probabilities from
// column.
func NewThreshold(name, column string, threshold float64) *Threshold {
	return &Threshold{
		name:      name,
		column:    column,
		threshold: threshold,
	}
}

// Name returns the strategy ID.
func (s *Threshold) Name() string {
	return s.name
}

// Level returns the configured threshold.
func (s *Threshold) Level() float64 {
	return s.threshold
}

// Signal maps a single probability to {0,1}. Undefined probabilities and
// values outside [0,1] are rejected.
func (s *Threshold) Signal(p float64) (int, error) {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, fmt.Errorf("probability %v outside [0,1]: %w", p, domain.ErrInvalidInput)
	}
	if p > s.threshold {
		return 1, nil
	}
	return 0, nil
}

// Generate applies Signal to the probability column of every row.
func (s *Threshold) Generate(rows []domain.FeatureRow) (series.Series, error) {
	if err := series.ValidateDated(rows); err != nil {
		return series.Series{}, fmt.Errorf("%s: %w", s.name, err)
	}

	out := series.Series{
		Dates:  make([]time.Time, len(rows)),
		Values: make([]float64, len(rows)),
	}
	for i, r := range rows {
		out.Dates[i] = r.Date
		p, _ := r.Get(s.column)
		sig, err := s.Signal(p)
		if err != nil {
			return series.Series{}, fmt.Errorf("%s: %s %s: %w", s.name, r.Ticker, r.Date.Format(time.DateOnly), err)
		}
		out.Values[i] = float64(sig)
	}
	return out, nil
}
