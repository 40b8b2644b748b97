package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpulse/internal/domain"
)

func TestCumulativeReturn(t *testing.T) {
	assert.InDelta(t, 0.030301, CumulativeReturn([]float64{0.01, 0.01, 0.01}), 1e-12)
	assert.InDelta(t, 0.1*0.9+0.9-1, CumulativeReturn([]float64{0.1, -0.1}), 1e-12)
}

func TestCumulativeReturn_SkipsUndefined(t *testing.T) {
	nan := math.NaN()
	assert.InDelta(t, 0.02, CumulativeReturn([]float64{nan, 0.02, nan}), 1e-12)
}

func TestCumulativeReturn_EmptyIsZero(t *testing.T) {
	assert.Equal(t, 0.0, CumulativeReturn(nil))
	assert.Equal(t, 0.0, CumulativeReturn([]float64{math.NaN(), math.NaN()}))
}

func TestMaxDrawdown(t *testing.T) {
	dd, err := MaxDrawdown([]float64{1, 1.2, 0.9, 1.1, 0.6, 1.5})
	require.NoError(t, err)
	assert.InDelta(t, 0.6/1.2-1, dd, 1e-12)
}

func TestMaxDrawdown_NonDecreasingIsZero(t *testing.T) {
	dd, err := MaxDrawdown([]float64{1, 1, 1.01, 1.05, 1.05})
	require.NoError(t, err)
	assert.Equal(t, 0.0, dd)
}

func TestMaxDrawdown_AlwaysNonPositive(t *testing.T) {
	curves := [][]float64{
		{1},
		{1, 0.5},
		{2, 3, 1, 4},
		{1, 1.02, 1.0098, 1.0098},
	}
	for _, c := range curves {
		dd, err := MaxDrawdown(c)
		require.NoError(t, err)
		assert.LessOrEqual(t, dd, 0.0, "curve %v", c)
	}
}

func TestMaxDrawdown_Empty(t *testing.T) {
	_, err := MaxDrawdown(nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)

	_, err = MaxDrawdown([]float64{math.NaN()})
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestSharpeRatio_IdenticalReturnsIsZero(t *testing.T) {
	assert.Equal(t, 0.0, SharpeRatio([]float64{0.01, 0.01, 0.01}, SharpeOptions{}))
	assert.Equal(t, 0.0, SharpeRatio([]float64{0, 0, 0, 0}, SharpeOptions{}))
	assert.Equal(t, 0.0, SharpeRatio([]float64{0.003, 0.003}, SharpeOptions{RiskFreeDaily: 0.001}))
}

func TestSharpeRatio_TooShortIsZero(t *testing.T) {
	assert.Equal(t, 0.0, SharpeRatio(nil, SharpeOptions{}))
	assert.Equal(t, 0.0, SharpeRatio([]float64{0.05}, SharpeOptions{}))
	assert.Equal(t, 0.0, SharpeRatio([]float64{math.NaN(), 0.05}, SharpeOptions{}))
}

func TestSharpeRatio_Annualized(t *testing.T) {
	returns := []float64{0.01, -0.02, 0.03, 0.0}

	// mean 0.005, sample variance 0.00043333..., sqrt(252) annualization.
	mean := 0.005
	std := math.Sqrt((0.005*0.005 + 0.025*0.025 + 0.025*0.025 + 0.005*0.005) / 3)
	want := mean / std * math.Sqrt(252)

	assert.InDelta(t, want, SharpeRatio(returns, SharpeOptions{}), 1e-9)
	assert.InDelta(t, mean/std*math.Sqrt(12), SharpeRatio(returns, SharpeOptions{PeriodsPerYear: 12}), 1e-9)
}

func TestSharpeRatio_RiskFreeAndUndefined(t *testing.T) {
	nan := math.NaN()
	withGaps := SharpeRatio([]float64{nan, 0.01, -0.02, nan, 0.03, 0.0}, SharpeOptions{})
	dense := SharpeRatio([]float64{0.01, -0.02, 0.03, 0.0}, SharpeOptions{})
	assert.InDelta(t, dense, withGaps, 1e-12)

	lower := SharpeRatio([]float64{0.01, -0.02, 0.03, 0.0}, SharpeOptions{RiskFreeDaily: 0.001})
	assert.Less(t, lower, dense)
}

func TestScenarioIdenticalReturns(t *testing.T) {
	returns := []float64{0.01, 0.01, 0.01}
	equity := []float64{1.01, 1.0201, 1.030301}

	assert.Equal(t, 0.0, SharpeRatio(returns, SharpeOptions{}))
	dd, err := MaxDrawdown(equity)
	require.NoError(t, err)
	assert.Equal(t, 0.0, dd)
	assert.InDelta(t, 0.030301, CumulativeReturn(returns), 1e-9)
}
