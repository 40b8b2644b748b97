package builtins

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpulse/internal/domain"
	"marketpulse/internal/strategy"
)

func rowsOf(cols map[string][]float64, n int) []domain.FeatureRow {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]domain.FeatureRow, n)
	for i := range rows {
		vals := make(map[string]float64, len(cols))
		for name, vs := range cols {
			vals[name] = vs[i]
		}
		rows[i] = domain.FeatureRow{Ticker: "BBAS3", Date: start.AddDate(0, 0, i), Values: vals}
	}
	return rows
}

func TestMACross_WarmupForcedFlat(t *testing.T) {
	nan := math.NaN()
	rows := rowsOf(map[string][]float64{
		domain.ColMA20: {1, 2, 3},
		domain.ColMA50: {nan, 1, 2},
	}, 3)

	got, err := NewDefaultMACross().Generate(rows)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 1}, got.Values)
	assert.Len(t, got.Dates, 3)
	assert.True(t, got.Dates[0].Equal(rows[0].Date))
}

func TestMACross_Crossings(t *testing.T) {
	nan := math.NaN()
	rows := rowsOf(map[string][]float64{
		domain.ColMA20: {5, 5, 4, nan, 6},
		domain.ColMA50: {4, 5, 5, 5, 5},
	}, 5)

	got, err := NewDefaultMACross().Generate(rows)
	require.NoError(t, err)
	// Equal averages and an undefined fast average both mean flat.
	assert.Equal(t, []float64{1, 0, 0, 0, 1}, got.Values)
}

func TestMACross_MissingColumnIsFlat(t *testing.T) {
	rows := rowsOf(map[string][]float64{domain.ColMA20: {3, 4}}, 2)

	got, err := NewDefaultMACross().Generate(rows)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, got.Values)
}

func TestMACross_RejectsUnordered(t *testing.T) {
	rows := rowsOf(map[string][]float64{domain.ColMA20: {1, 2}, domain.ColMA50: {0, 0}}, 2)
	rows[0], rows[1] = rows[1], rows[0]

	_, err := NewDefaultMACross().Generate(rows)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestThreshold_Signal(t *testing.T) {
	th := NewThreshold("LR", domain.ColProbUp, DefaultThreshold)

	cases := []struct {
		p    float64
		want int
	}{
		{0, 0},
		{0.55, 0},
		{0.5500001, 1},
		{1, 1},
	}
	for _, c := range cases {
		got, err := th.Signal(c.p)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "Signal(%v)", c.p)
	}

	for _, bad := range []float64{-0.01, 1.01, math.NaN()} {
		_, err := th.Signal(bad)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, "Signal(%v)", bad)
	}
}

func TestThreshold_Generate(t *testing.T) {
	th := NewThreshold("LR", domain.ColProbUp, 0.6)
	rows := rowsOf(map[string][]float64{domain.ColProbUp: {0.2, 0.61, 0.6, 0.99}}, 4)

	got, err := th.Generate(rows)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 0, 1}, got.Values)
	assert.Equal(t, 0.6, th.Level())

	rows[2].Values[domain.ColProbUp] = math.NaN()
	_, err = th.Generate(rows)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestGeneratorsArePure(t *testing.T) {
	rows := rowsOf(map[string][]float64{
		domain.ColMA20: {1, 3, 2, 4},
		domain.ColMA50: {2, 2, 2, 2},
	}, 4)

	var g strategy.Generator = NewDefaultMACross()
	first, err := g.Generate(rows)
	require.NoError(t, err)
	second, err := g.Generate(rows)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
