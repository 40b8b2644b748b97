// Package model adapts an externally trained binary classifier to the
// evaluation engine. The adapter only supplies probabilities; turning them
// into trading signals is delegated to a Signaler (the threshold strategy).
package model

import (
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/multierr"

	"marketpulse/internal/domain"
)

// Classifier is the scoring half of a trained binary classifier.
type Classifier interface {
	// PredictProbability returns P(up) for one feature vector.
	PredictProbability(features []float64) (float64, error)
}

// ClassifierFunc lets a plain function act as a Classifier.
type ClassifierFunc func(features []float64) (float64, error)

// PredictProbability calls f.
func (f ClassifierFunc) PredictProbability(features []float64) (float64, error) {
	return f(features)
}

// Trainer fits a Classifier from a design matrix and 0/1 labels.
type Trainer interface {
	Fit(x [][]float64, y []float64) (Classifier, error)
}

// Signaler maps a probability to a position in {0,1}.
type Signaler interface {
	Signal(p float64) (int, error)
}

// Adapter scores feature rows with a classifier and produces prediction
// rows.
type Adapter struct {
	modelID  string
	features []string
	clf      Classifier
	signal   Signaler
}

// NewAdapter creates an Adapter reading the named features, in order, from
// every row.
func NewAdapter(modelID string, features []string, clf Classifier, signal Signaler) *Adapter {
	return &Adapter{
		modelID:  modelID,
		features: features,
		clf:      clf,
		signal:   signal,
	}
}

// ModelID returns the identifier stamped on every prediction.
func (a *Adapter) ModelID() string { return a.modelID }

// Vector extracts the feature vector of row. Any undefined feature rejects
// the row: an undefined indicator means warm-up is incomplete, so nothing
// is imputed.
func (a *Adapter) Vector(row domain.FeatureRow) ([]float64, error) {
	return vector(row, a.features)
}

// ScoreRow scores a single row.
func (a *Adapter) ScoreRow(row domain.FeatureRow) (domain.PredictionRow, error) {
	x, err := a.Vector(row)
	if err != nil {
		return domain.PredictionRow{}, err
	}
	p, err := a.clf.PredictProbability(x)
	if err != nil {
		return domain.PredictionRow{}, fmt.Errorf("%s %s: classifier: %w", row.Ticker, day(row.Date), err)
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return domain.PredictionRow{}, fmt.Errorf("%s %s: probability %v outside [0,1]: %w",
			row.Ticker, day(row.Date), p, domain.ErrInvalidInput)
	}
	sig, err := a.signal.Signal(p)
	if err != nil {
		return domain.PredictionRow{}, fmt.Errorf("%s %s: %w", row.Ticker, day(row.Date), err)
	}
	return domain.PredictionRow{
		ModelID:       a.modelID,
		Ticker:        row.Ticker,
		Date:          row.Date,
		ProbabilityUp: p,
		Signal:        sig,
	}, nil
}

// Score scores every row. If any row is rejected no predictions are
// returned and the error lists every rejected date.
func (a *Adapter) Score(rows []domain.FeatureRow) ([]domain.PredictionRow, error) {
	out := make([]domain.PredictionRow, 0, len(rows))
	var errs error
	for _, r := range rows {
		pred, err := a.ScoreRow(r)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		out = append(out, pred)
	}
	if errs != nil {
		return nil, fmt.Errorf("%s: %d of %d rows rejected: %w", a.modelID, len(multierr.Errors(errs)), len(rows), errs)
	}
	return out, nil
}

// Design builds the training matrix and label vector. Rows must be
// complete; use DropIncomplete first.
func Design(rows []domain.FeatureRow, features []string, label string) ([][]float64, []float64, error) {
	x := make([][]float64, len(rows))
	y := make([]float64, len(rows))
	for i, r := range rows {
		v, err := vector(r, features)
		if err != nil {
			return nil, nil, err
		}
		l, ok := r.Get(label)
		if !ok {
			return nil, nil, fmt.Errorf("%s %s: label %q undefined: %w", r.Ticker, day(r.Date), label, domain.ErrInvalidInput)
		}
		x[i], y[i] = v, l
	}
	return x, y, nil
}

// DropIncomplete keeps the rows on which every named column is defined.
func DropIncomplete(rows []domain.FeatureRow, columns ...string) []domain.FeatureRow {
	out := make([]domain.FeatureRow, 0, len(rows))
next:
	for _, r := range rows {
		for _, c := range columns {
			if _, ok := r.Get(c); !ok {
				continue next
			}
		}
		out = append(out, r)
	}
	return out
}

func vector(row domain.FeatureRow, features []string) ([]float64, error) {
	x := make([]float64, len(features))
	var missing []string
	for i, name := range features {
		v, ok := row.Get(name)
		if !ok || math.IsInf(v, 0) {
			missing = append(missing, name)
			continue
		}
		x[i] = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%s %s: undefined features %s: %w",
			row.Ticker, day(row.Date), strings.Join(missing, ","), domain.ErrInvalidInput)
	}
	return x, nil
}

func day(t time.Time) string { return t.Format(time.DateOnly) }
