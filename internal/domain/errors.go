package domain

import "errors"

// Error taxonomy of the evaluation engine. Callers match these with
// errors.Is; every failure is recoverable by skipping the (strategy, ticker)
// unit that produced it.
var (
	// ErrInsufficientData means a series is too short for a rolling
	// computation, a split, or a metric to be meaningful.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrAlignment means two series that should share a date index do not
	// overlap enough to be joined.
	ErrAlignment = errors.New("series alignment")

	// ErrInvalidInput means a malformed value was found, such as an
	// undefined feature at scoring time or a probability outside [0,1].
	ErrInvalidInput = errors.New("invalid input")
)
