// Package gather defines the batch jobs that bring data into the stores.
package gather

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run performs one gathering pass. It returns early when ctx is
	// cancelled.
	Run(ctx context.Context) error
}

// RunAll runs gatherers in order and stops at the first failure, since
// later stages read what earlier ones wrote.
func RunAll(ctx context.Context, log *zap.Logger, gatherers ...Gatherer) error {
	for _, g := range gatherers {
		start := time.Now()
		log.Info("gatherer starting", zap.String("gatherer", g.Name()))
		if err := g.Run(ctx); err != nil {
			return fmt.Errorf("%s: %w", g.Name(), err)
		}
		log.Info("gatherer finished", zap.String("gatherer", g.Name()), zap.Duration("elapsed", time.Since(start)))
	}
	return nil
}
