package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"marketpulse/internal/domain"
	"marketpulse/internal/util"
)

// Compile-time interface checks.
var _ PriceStore = (*ParquetStore)(nil)
var _ FeatureStore = (*ParquetStore)(nil)
var _ SentimentStore = (*ParquetStore)(nil)

// ParquetStore implements PriceStore, FeatureStore and SentimentStore using
// Parquet files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// PriceRecord is the Parquet schema for daily prices.
type PriceRecord struct {
	Ticker string  `parquet:"ticker"`
	Date   int64   `parquet:"date,timestamp(millisecond)"` // Unix ms, UTC midnight
	Open   float64 `parquet:"open"`
	High   float64 `parquet:"high"`
	Low    float64 `parquet:"low"`
	Close  float64 `parquet:"close"`
	Volume int64   `parquet:"volume"`
}

// FeatureRecord is the Parquet schema for derived features. Undefined
// values are stored as nulls.
type FeatureRecord struct {
	Ticker       string   `parquet:"ticker"`
	Date         int64    `parquet:"date,timestamp(millisecond)"`
	Ret1D        *float64 `parquet:"ret_1d,optional"`
	MA20         *float64 `parquet:"ma_20,optional"`
	MA50         *float64 `parquet:"ma_50,optional"`
	Volatility20 *float64 `parquet:"volatility_20,optional"`
	RSI14        *float64 `parquet:"rsi_14,optional"`
	AvgSentiment *float64 `parquet:"avg_sentiment,optional"`
	Sentiment3D  *float64 `parquet:"sentiment_3d,optional"`
}

// SentimentRecord is the Parquet schema for daily sentiment.
type SentimentRecord struct {
	Ticker       string  `parquet:"ticker"`
	Date         int64   `parquet:"date,timestamp(millisecond)"`
	AvgSentiment float64 `parquet:"avg_sentiment"`
}

// ---------------------------------------------------------------------------
// PriceStore implementation
// ---------------------------------------------------------------------------

// WritePrices writes prices to Parquet files organized by ticker and year.
// Each ticker+year combination produces a separate file at:
//
//	<DataDir>/prices/<TICKER>/<YYYY>.parquet
func (s *ParquetStore) WritePrices(_ context.Context, prices []domain.PricePoint) error {
	if len(prices) == 0 {
		return nil
	}

	type key struct {
		ticker string
		year   int
	}
	groups := make(map[key][]PriceRecord)
	for _, p := range prices {
		d := util.Day(p.Date)
		k := key{ticker: strings.ToUpper(p.Ticker), year: d.Year()}
		groups[k] = append(groups[k], PriceRecord{
			Ticker: k.ticker,
			Date:   d.UnixMilli(),
			Open:   p.Open,
			High:   p.High,
			Low:    p.Low,
			Close:  p.Close,
			Volume: p.Volume,
		})
	}

	for k, records := range groups {
		path := s.pricePath(k.ticker, k.year)

		existing, err := readParquetFile[PriceRecord](path)
		if err != nil {
			return fmt.Errorf("reading prices for %s/%d: %w", k.ticker, k.year, err)
		}
		merged := mergeByDate(existing, records, func(r PriceRecord) int64 { return r.Date })

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing prices for %s/%d: %w", k.ticker, k.year, err)
		}
	}
	return nil
}

// ReadPrices reads prices for ticker within [start, end].
func (s *ParquetStore) ReadPrices(_ context.Context, ticker string, start, end time.Time) ([]domain.PricePoint, error) {
	var prices []domain.PricePoint
	for year := start.Year(); year <= end.Year(); year++ {
		records, err := readParquetFile[PriceRecord](s.pricePath(ticker, year))
		if err != nil {
			return nil, fmt.Errorf("reading prices for %s/%d: %w", ticker, year, err)
		}

		for _, r := range records {
			d := time.UnixMilli(r.Date).UTC()
			if d.Before(start) || d.After(end) {
				continue
			}
			prices = append(prices, domain.PricePoint{
				Ticker: r.Ticker,
				Date:   d,
				Open:   r.Open,
				High:   r.High,
				Low:    r.Low,
				Close:  r.Close,
				Volume: r.Volume,
			})
		}
	}
	return prices, nil
}

// ReadAllPrices reads every stored price of ticker.
func (s *ParquetStore) ReadAllPrices(ctx context.Context, ticker string) ([]domain.PricePoint, error) {
	years, err := s.priceYears(ticker)
	if err != nil || len(years) == 0 {
		return nil, err
	}
	start := time.Date(years[0], 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(years[len(years)-1], 12, 31, 0, 0, 0, 0, time.UTC)
	return s.ReadPrices(ctx, ticker, start, end)
}

// ListTickers lists all tickers that have price data.
func (s *ParquetStore) ListTickers(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, "prices"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var tickers []string
	for _, e := range entries {
		if e.IsDir() {
			tickers = append(tickers, e.Name())
		}
	}
	sort.Strings(tickers)
	return tickers, nil
}

// ---------------------------------------------------------------------------
// FeatureStore implementation
// ---------------------------------------------------------------------------

// WriteFeatures rewrites <DataDir>/features/<TICKER>.parquet for every
// ticker in rows. Columns without a Parquet field are not persisted.
func (s *ParquetStore) WriteFeatures(_ context.Context, rows []domain.FeatureRow) error {
	groups := make(map[string][]FeatureRecord)
	for _, r := range rows {
		t := strings.ToUpper(r.Ticker)
		groups[t] = append(groups[t], FeatureRecord{
			Ticker:       t,
			Date:         util.Day(r.Date).UnixMilli(),
			Ret1D:        optional(r, domain.ColReturn1D),
			MA20:         optional(r, domain.ColMA20),
			MA50:         optional(r, domain.ColMA50),
			Volatility20: optional(r, domain.ColVolatility20),
			RSI14:        optional(r, domain.ColRSI14),
			AvgSentiment: optional(r, domain.ColSentiment),
			Sentiment3D:  optional(r, domain.ColSentiment3D),
		})
	}
	for t, records := range groups {
		sort.Slice(records, func(i, j int) bool { return records[i].Date < records[j].Date })
		if err := writeParquetFile(s.featurePath(t), records); err != nil {
			return fmt.Errorf("writing features for %s: %w", t, err)
		}
	}
	return nil
}

// ReadFeatures reads the feature table of ticker. A ticker without features
// yields no rows.
func (s *ParquetStore) ReadFeatures(_ context.Context, ticker string) ([]domain.FeatureRow, error) {
	records, err := readParquetFile[FeatureRecord](s.featurePath(ticker))
	if err != nil {
		return nil, fmt.Errorf("reading features for %s: %w", ticker, err)
	}
	rows := make([]domain.FeatureRow, len(records))
	for i, r := range records {
		vals := make(map[string]float64, 7)
		set := func(name string, v *float64) {
			if v != nil {
				vals[name] = *v
			}
		}
		set(domain.ColReturn1D, r.Ret1D)
		set(domain.ColMA20, r.MA20)
		set(domain.ColMA50, r.MA50)
		set(domain.ColVolatility20, r.Volatility20)
		set(domain.ColRSI14, r.RSI14)
		set(domain.ColSentiment, r.AvgSentiment)
		set(domain.ColSentiment3D, r.Sentiment3D)
		rows[i] = domain.FeatureRow{
			Ticker: r.Ticker,
			Date:   time.UnixMilli(r.Date).UTC(),
			Values: vals,
		}
	}
	return rows, nil
}

// ---------------------------------------------------------------------------
// SentimentStore implementation
// ---------------------------------------------------------------------------

// WriteSentiment merges scores into <DataDir>/sentiment/<TICKER>.parquet.
func (s *ParquetStore) WriteSentiment(_ context.Context, scores []SentimentScore) error {
	groups := make(map[string][]SentimentRecord)
	for _, sc := range scores {
		t := strings.ToUpper(sc.Ticker)
		groups[t] = append(groups[t], SentimentRecord{
			Ticker:       t,
			Date:         util.Day(sc.Date).UnixMilli(),
			AvgSentiment: sc.AvgSentiment,
		})
	}
	for t, records := range groups {
		path := s.sentimentPath(t)
		existing, err := readParquetFile[SentimentRecord](path)
		if err != nil {
			return fmt.Errorf("reading sentiment for %s: %w", t, err)
		}
		merged := mergeByDate(existing, records, func(r SentimentRecord) int64 { return r.Date })
		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing sentiment for %s: %w", t, err)
		}
	}
	return nil
}

// ReadSentiment returns the stored scores of ticker keyed by UTC day.
func (s *ParquetStore) ReadSentiment(_ context.Context, ticker string) (map[time.Time]float64, error) {
	records, err := readParquetFile[SentimentRecord](s.sentimentPath(ticker))
	if err != nil {
		return nil, fmt.Errorf("reading sentiment for %s: %w", ticker, err)
	}
	out := make(map[time.Time]float64, len(records))
	for _, r := range records {
		out[time.UnixMilli(r.Date).UTC()] = r.AvgSentiment
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// pricePath returns the filesystem path for a price Parquet file.
// Layout: <dataDir>/prices/<TICKER>/<YYYY>.parquet
func (s *ParquetStore) pricePath(ticker string, year int) string {
	return filepath.Join(s.DataDir, "prices", strings.ToUpper(ticker), fmt.Sprintf("%d.parquet", year))
}

// featurePath layout: <dataDir>/features/<TICKER>.parquet
func (s *ParquetStore) featurePath(ticker string) string {
	return filepath.Join(s.DataDir, "features", strings.ToUpper(ticker)+".parquet")
}

// sentimentPath layout: <dataDir>/sentiment/<TICKER>.parquet
func (s *ParquetStore) sentimentPath(ticker string) string {
	return filepath.Join(s.DataDir, "sentiment", strings.ToUpper(ticker)+".parquet")
}

func (s *ParquetStore) priceYears(ticker string) ([]int, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, "prices", strings.ToUpper(ticker)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var years []int
	for _, e := range entries {
		var y int
		if _, err := fmt.Sscanf(e.Name(), "%d.parquet", &y); err == nil {
			years = append(years, y)
		}
	}
	sort.Ints(years)
	return years, nil
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

// readParquetFile returns no records, and no error, when path does not exist.
func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return rows, nil
}

// mergeByDate deduplicates records by date, preferring incoming records over
// existing ones. Results are sorted by date.
func mergeByDate[T any](existing, incoming []T, date func(T) int64) []T {
	seen := make(map[int64]T, len(existing)+len(incoming))
	for _, r := range existing {
		seen[date(r)] = r
	}
	for _, r := range incoming {
		seen[date(r)] = r
	}

	merged := make([]T, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return date(merged[i]) < date(merged[j])
	})
	return merged
}

func optional(r domain.FeatureRow, name string) *float64 {
	v, ok := r.Get(name)
	if !ok || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
