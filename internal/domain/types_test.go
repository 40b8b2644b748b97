package domain

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"
)

func TestFeatureRowGet(t *testing.T) {
	row := FeatureRow{
		Ticker: "PETR4",
		Date:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Values: map[string]float64{
			ColMA20: 31.5,
			ColMA50: math.NaN(),
		},
	}

	if v, ok := row.Get(ColMA20); !ok || v != 31.5 {
		t.Errorf("Get(%q) = (%v, %v), want (31.5, true)", ColMA20, v, ok)
	}
	if _, ok := row.Get(ColMA50); ok {
		t.Errorf("Get(%q) reported NaN as defined", ColMA50)
	}
	if _, ok := row.Get(ColSentiment); ok {
		t.Errorf("Get(%q) reported absent key as defined", ColSentiment)
	}
	if !row.Day().Equal(row.Date) {
		t.Errorf("Day() = %v, want %v", row.Day(), row.Date)
	}
}

func TestTypesExist(t *testing.T) {
	// Zero values are usable.
	var p PricePoint
	if p.Ticker != "" || p.Close != 0 || !p.Date.IsZero() {
		t.Error("expected zero-value PricePoint")
	}

	var s SummaryMetrics
	if s.CumulativeReturn != 0 || s.Sharpe != 0 || s.MaxDrawdown != 0 {
		t.Error("expected zero metrics for zero-value SummaryMetrics")
	}

	pred := PredictionRow{ModelID: "LR_TECH_SENT_V2", Ticker: "VALE3", ProbabilityUp: 0.61, Signal: 1}
	if pred.Signal != 1 {
		t.Errorf("pred.Signal = %d, want 1", pred.Signal)
	}

	if SuffixBuyAndHold != "_BUY_HOLD" || SuffixStrategy != "_STRAT" {
		t.Error("curve suffix constants have unexpected values")
	}
}

func TestErrorsWrap(t *testing.T) {
	err := fmt.Errorf("split ITUB4: %w", ErrInsufficientData)
	if !errors.Is(err, ErrInsufficientData) {
		t.Error("wrapped error does not match ErrInsufficientData")
	}
	if errors.Is(err, ErrAlignment) || errors.Is(err, ErrInvalidInput) {
		t.Error("wrapped error matched an unrelated sentinel")
	}
}
