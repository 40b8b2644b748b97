// Package split partitions a chronologically ordered table into a training
// prefix and a test suffix. Rows are never shuffled: a classifier scored on
// dates before its training window would be evaluated with lookahead.
package split

import (
	"fmt"

	"marketpulse/internal/domain"
	"marketpulse/internal/series"
)

// Options controls the split. A zero minimum disables that check.
type Options struct {
	TrainRatio float64
	MinTrain   int
	MinTest    int
}

// DefaultOptions returns the reference 75/25 split with 120 training rows
// and 30 test rows as the smallest usable partitions.
func DefaultOptions() Options {
	return Options{
		TrainRatio: 0.75,
		MinTrain:   120,
		MinTest:    30,
	}
}

// Partition is the result of a temporal split.
type Partition[T domain.Dated] struct {
	Train []T
	Test  []T
}

// Split returns the first floor(n*TrainRatio) rows as Train and the rest as
// Test. The returned slices share memory with rows.
func Split[T domain.Dated](rows []T, opts Options) (Partition[T], error) {
	if !(opts.TrainRatio > 0 && opts.TrainRatio < 1) {
		return Partition[T]{}, fmt.Errorf("split: train ratio %v outside (0,1): %w", opts.TrainRatio, domain.ErrInvalidInput)
	}
	if err := series.ValidateDated(rows); err != nil {
		return Partition[T]{}, fmt.Errorf("split: %w", err)
	}

	cut := int(float64(len(rows)) * opts.TrainRatio)
	p := Partition[T]{
		Train: rows[:cut:cut],
		Test:  rows[cut:],
	}
	if err := CheckSizes(len(p.Train), len(p.Test), opts); err != nil {
		return Partition[T]{}, err
	}
	return p, nil
}

// CheckSizes applies the partition minimums. Callers that clean a partition
// after splitting re-check with it before fitting.
func CheckSizes(train, test int, opts Options) error {
	if train < opts.MinTrain || test < opts.MinTest {
		return fmt.Errorf("split: %d train / %d test rows, need at least %d / %d: %w",
			train, test, opts.MinTrain, opts.MinTest, domain.ErrInsufficientData)
	}
	return nil
}
