// Package strategy defines the Generator interface for signal strategies and
// provides a Registry for managing multiple generator implementations.
package strategy

import (
	"sort"

	"marketpulse/internal/domain"
	"marketpulse/internal/series"
)

// Generator turns feature rows into a position series. Implementations must
// be pure: the position on a date may only depend on rows dated on or
// before it, and the same input always yields the same output.
type Generator interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Generate returns one position in {0,1} per input row, on the same
	// date index as rows. Rows must be in strictly increasing date order.
	Generate(rows []domain.FeatureRow) (series.Series, error)
}

// Registry holds a named collection of generators for lookup and
// enumeration.
type Registry struct {
	generators map[string]Generator
}

// NewRegistry creates an empty generator Registry.
func NewRegistry() *Registry {
	return &Registry{
		generators: make(map[string]Generator),
	}
}

// Register adds a generator to the registry, keyed by its Name().
func (r *Registry) Register(g Generator) {
	r.generators[g.Name()] = g
}

// Get retrieves a generator by name. The second return value indicates
// whether the generator was found.
func (r *Registry) Get(name string) (Generator, bool) {
	g, ok := r.generators[name]
	return g, ok
}

// List returns a sorted slice of all registered generator names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.generators))
	for name := range r.generators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
