package features

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpulse/internal/domain"
	"marketpulse/internal/store"
)

func day(i int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

func rising(ticker string, n int) []domain.PricePoint {
	out := make([]domain.PricePoint, n)
	for i := range out {
		out[i] = domain.PricePoint{Ticker: ticker, Date: day(i), Close: 100 + float64(i)}
	}
	return out
}

func TestComputeWarmup(t *testing.T) {
	rows, err := Compute(rising("AAPL", 60), nil)
	require.NoError(t, err)
	require.Len(t, rows, 60)

	get := func(i int, col string) float64 { return rows[i].Values[col] }

	assert.True(t, math.IsNaN(get(0, domain.ColReturn1D)))
	assert.InDelta(t, 0.01, get(1, domain.ColReturn1D), 1e-12)

	assert.True(t, math.IsNaN(get(18, domain.ColMA20)))
	assert.InDelta(t, 109.5, get(19, domain.ColMA20), 1e-9)
	assert.True(t, math.IsNaN(get(48, domain.ColMA50)))
	assert.InDelta(t, 124.5, get(49, domain.ColMA50), 1e-9)

	// The first return is undefined, so the first full volatility window
	// ends one row later.
	assert.True(t, math.IsNaN(get(19, domain.ColVolatility20)))
	assert.False(t, math.IsNaN(get(20, domain.ColVolatility20)))
	assert.Greater(t, get(20, domain.ColVolatility20), 0.0)

	assert.True(t, math.IsNaN(get(13, domain.ColRSI14)))
	assert.InDelta(t, 100, get(14, domain.ColRSI14), 1e-9)

	_, ok := rows[30].Get(domain.ColSentiment)
	assert.False(t, ok, "no sentiment supplied")
	assert.Equal(t, 0.0, get(30, domain.ColSentiment3D))
}

func TestComputeShortHistory(t *testing.T) {
	rows, err := Compute(rising("AAPL", 10), nil)
	require.NoError(t, err)
	for _, r := range rows {
		for _, col := range []string{domain.ColMA20, domain.ColMA50, domain.ColRSI14, domain.ColVolatility20} {
			_, ok := r.Get(col)
			assert.False(t, ok, "%s should be undefined on a 10-row history", col)
		}
	}
}

func TestComputeSentiment(t *testing.T) {
	sent := map[time.Time]float64{day(0): 0.3, day(1): 0.6, day(2): 0.9, day(4): 0.1}
	rows, err := Compute(rising("AAPL", 5), sent)
	require.NoError(t, err)

	v, ok := rows[1].Get(domain.ColSentiment)
	require.True(t, ok)
	assert.InDelta(t, 0.6, v, 1e-12)
	_, ok = rows[3].Get(domain.ColSentiment)
	assert.False(t, ok, "missing day stays missing")

	want := []float64{0, 0, 0.6, 0, 0}
	for i, w := range want {
		assert.InDelta(t, w, rows[i].Values[domain.ColSentiment3D], 1e-12, "sentiment_3d[%d]", i)
	}
}

func TestComputeRejectsBadInput(t *testing.T) {
	prices := rising("AAPL", 3)
	prices[1].Close = 0
	_, err := Compute(prices, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	prices = rising("AAPL", 3)
	prices[2].Date = prices[0].Date
	_, err = Compute(prices, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestForwardUp(t *testing.T) {
	got := ForwardUp([]float64{10, 11, 9, 12, 12, 8}, 2)
	want := []float64{0, 1, 1, 0}
	for i, w := range want {
		assert.Equal(t, w, got[i], "label[%d]", i)
	}
	assert.True(t, math.IsNaN(got[4]))
	assert.True(t, math.IsNaN(got[5]))
}

func TestRollingStd(t *testing.T) {
	got := RollingStd([]float64{1, 2, 3, math.NaN(), 5, 6}, 3)
	assert.True(t, math.IsNaN(got[1]))
	assert.InDelta(t, 1.0, got[2], 1e-12)
	assert.True(t, math.IsNaN(got[3]))
	assert.True(t, math.IsNaN(got[4]))
	assert.True(t, math.IsNaN(got[5]))
}

func TestReadSentimentCSV(t *testing.T) {
	in := "date,ticker,avg_sentiment,source\n" +
		"2024-01-02, aapl ,0.25,news\n" +
		"\n" +
		"2024-01-03,MSFT,-0.5,news\n"
	scores, err := ReadSentimentCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, "AAPL", scores[0].Ticker)
	assert.Equal(t, day(1), scores[0].Date)
	assert.Equal(t, -0.5, scores[1].AvgSentiment)
}

func TestReadSentimentCSVErrors(t *testing.T) {
	for name, in := range map[string]string{
		"empty":          "",
		"missing column": "ticker,date\nAAPL,2024-01-02\n",
		"bad date":       "ticker,date,avg_sentiment\nAAPL,01/02/2024,0.1\n",
		"bad score":      "ticker,date,avg_sentiment\nAAPL,2024-01-02,NaN\n",
		"short row":      "ticker,date,avg_sentiment\nAAPL,2024-01-02\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ReadSentimentCSV(strings.NewReader(in))
			assert.Error(t, err)
		})
	}
}

func TestJobRun(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	ps := store.NewParquetStore(dir)
	require.NoError(t, ps.WritePrices(ctx, rising("AAPL", 30)))

	csvPath := filepath.Join(dir, "sentiment.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("ticker,date,avg_sentiment\nAAPL,2024-01-03,0.4\n"), 0o644))
	require.NoError(t, NewSentimentImport(csvPath, ps, nil).Run(ctx))

	job := NewJob(ps, ps, ps, nil)
	assert.Equal(t, "features", job.Name())
	require.NoError(t, job.Run(ctx))

	rows, err := ps.ReadFeatures(ctx, "AAPL")
	require.NoError(t, err)
	require.Len(t, rows, 30)
	v, ok := rows[2].Get(domain.ColSentiment)
	require.True(t, ok)
	assert.InDelta(t, 0.4, v, 1e-12)
	_, ok = rows[5].Get(domain.ColMA20)
	assert.False(t, ok)
}

type failingPrices struct{ store.PriceStore }

func (failingPrices) ListTickers(context.Context) ([]string, error) {
	return []string{"AAPL"}, nil
}

func (failingPrices) ReadAllPrices(context.Context, string) ([]domain.PricePoint, error) {
	return nil, errors.New("disk gone")
}

func TestJobRunAllFailed(t *testing.T) {
	ps := store.NewParquetStore(t.TempDir())
	err := NewJob(failingPrices{}, nil, ps, nil).Run(context.Background())
	assert.Error(t, err)
}
