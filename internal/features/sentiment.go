package features

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"marketpulse/internal/domain"
	"marketpulse/internal/store"
	"marketpulse/internal/util"
)

var sentimentHeader = []string{"ticker", "date", "avg_sentiment"}

// ReadSentimentCSV parses daily sentiment scores. The first record must be
// the header "ticker,date,avg_sentiment"; columns may appear in any order
// and extra columns are ignored. Tickers are upper-cased and dates must be
// YYYY-MM-DD.
func ReadSentimentCSV(r io.Reader) ([]store.SentimentScore, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("sentiment csv: missing header: %w", domain.ErrInvalidInput)
		}
		return nil, fmt.Errorf("sentiment csv: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	cols := make([]int, len(sentimentHeader))
	for i, name := range sentimentHeader {
		c, ok := idx[name]
		if !ok {
			return nil, fmt.Errorf("sentiment csv: missing column %q: %w", name, domain.ErrInvalidInput)
		}
		cols[i] = c
	}

	var out []store.SentimentScore
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("sentiment csv: %w", err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		for _, c := range cols {
			if c >= len(rec) {
				return nil, fmt.Errorf("sentiment csv line %d: too few fields: %w", line, domain.ErrInvalidInput)
			}
		}

		ticker := strings.ToUpper(strings.TrimSpace(rec[cols[0]]))
		if ticker == "" {
			return nil, fmt.Errorf("sentiment csv line %d: empty ticker: %w", line, domain.ErrInvalidInput)
		}
		day, err := util.ParseDay(strings.TrimSpace(rec[cols[1]]))
		if err != nil {
			return nil, fmt.Errorf("sentiment csv line %d: %w", line, err)
		}
		score, err := strconv.ParseFloat(strings.TrimSpace(rec[cols[2]]), 64)
		if err != nil || math.IsNaN(score) || math.IsInf(score, 0) {
			return nil, fmt.Errorf("sentiment csv line %d: bad score %q: %w", line, rec[cols[2]], domain.ErrInvalidInput)
		}
		out = append(out, store.SentimentScore{Ticker: ticker, Date: day, AvgSentiment: score})
	}
	return out, nil
}

// SentimentImport loads a sentiment CSV into the sentiment store. It
// implements gather.Gatherer and is meant to run before the feature job.
type SentimentImport struct {
	path  string
	store store.SentimentStore
	log   *zap.Logger
}

// NewSentimentImport creates an importer for the CSV at path.
func NewSentimentImport(path string, s store.SentimentStore, log *zap.Logger) *SentimentImport {
	return &SentimentImport{path: path, store: s, log: util.OrNop(log).Named("sentiment")}
}

// Name implements gather.Gatherer.
func (s *SentimentImport) Name() string { return "sentiment-import" }

// Run parses the whole file before writing, so a malformed file stores
// nothing.
func (s *SentimentImport) Run(ctx context.Context) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("opening sentiment csv: %w", err)
	}
	defer f.Close()

	scores, err := ReadSentimentCSV(f)
	if err != nil {
		return err
	}
	if err := s.store.WriteSentiment(ctx, scores); err != nil {
		return fmt.Errorf("writing sentiment: %w", err)
	}
	s.log.Info("sentiment imported", zap.String("path", s.path), zap.Int("scores", len(scores)))
	return nil
}
