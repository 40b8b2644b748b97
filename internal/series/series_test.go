package series

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpulse/internal/domain"
)

func days(start time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.AddDate(0, 0, i)
	}
	return out
}

var jan2 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func TestNewRejectsUnorderedDates(t *testing.T) {
	d := days(jan2, 3)
	d[1], d[2] = d[2], d[1]

	_, err := New(d, []float64{1, 2, 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = New(days(jan2, 2), []float64{1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	dup := []time.Time{jan2, jan2}
	_, err = New(dup, []float64{1, 2})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestAlignInnerJoin(t *testing.T) {
	d := days(jan2, 5)
	a, err := New([]time.Time{d[0], d[1], d[2], d[4]}, []float64{10, 11, 12, 14})
	require.NoError(t, err)
	b, err := New([]time.Time{d[1], d[2], d[3], d[4]}, []float64{1, 2, 3, 4})
	require.NoError(t, err)

	got, err := Align(a, b)
	require.NoError(t, err)

	assert.Equal(t, []time.Time{d[1], d[2], d[4]}, got.Dates)
	assert.Equal(t, []float64{11, 12, 14}, got.Left)
	assert.Equal(t, []float64{1, 2, 4}, got.Right)
}

func TestAlignNoOverlap(t *testing.T) {
	d := days(jan2, 4)
	a, _ := New(d[:2], []float64{1, 2})
	b, _ := New(d[2:], []float64{3, 4})

	_, err := Align(a, b)
	assert.ErrorIs(t, err, domain.ErrAlignment)

	_, err = Align(Series{}, b)
	assert.ErrorIs(t, err, domain.ErrAlignment)
}

func TestPctChange(t *testing.T) {
	got := PctChange([]float64{100, 102, 99.96, math.NaN(), 50}, 1)

	assert.True(t, math.IsNaN(got[0]), "first entry must be undefined")
	assert.InDelta(t, 0.02, got[1], 1e-12)
	assert.InDelta(t, -0.02, got[2], 1e-12)
	assert.True(t, math.IsNaN(got[3]))
	assert.True(t, math.IsNaN(got[4]), "operand after a gap is undefined")
}

func TestShift(t *testing.T) {
	in := []float64{1, 2, 3}

	lag := Shift(in, 1)
	assert.True(t, math.IsNaN(lag[0]))
	assert.Equal(t, []float64{1, 2}, lag[1:])

	lead := Shift(in, -2)
	assert.Equal(t, 3.0, lead[0])
	assert.True(t, math.IsNaN(lead[1]))
	assert.True(t, math.IsNaN(lead[2]))
}

func TestFillAndDrop(t *testing.T) {
	in := []float64{math.NaN(), 0.5, math.NaN(), -0.25}

	assert.Equal(t, []float64{0, 0.5, 0, -0.25}, FillNaN(in, 0))
	assert.Equal(t, []float64{0.5, -0.25}, DropNaN(in))
	assert.Empty(t, DropNaN([]float64{math.NaN()}))
	assert.True(t, math.IsNaN(in[0]), "inputs must not be mutated")
}

func TestRollingMean(t *testing.T) {
	got := RollingMean([]float64{1, 2, 3, math.NaN(), 5, 6, 7}, 3)

	assert.True(t, math.IsNaN(got[0]))
	assert.True(t, math.IsNaN(got[1]))
	assert.InDelta(t, 2.0, got[2], 1e-12)
	assert.True(t, math.IsNaN(got[3]))
	assert.True(t, math.IsNaN(got[5]))
	assert.InDelta(t, 6.0, got[6], 1e-12)
}

func TestColumn(t *testing.T) {
	d := days(jan2, 2)
	rows := []domain.FeatureRow{
		{Ticker: "WEGE3", Date: d[0], Values: map[string]float64{domain.ColMA20: 40}},
		{Ticker: "WEGE3", Date: d[1], Values: map[string]float64{}},
	}

	s, err := Column(rows, domain.ColMA20)
	require.NoError(t, err)
	assert.Equal(t, 40.0, s.Values[0])
	assert.True(t, math.IsNaN(s.Values[1]))
}
