// Package logreg implements an L2-regularised logistic regression trainer.
// Inputs are standardised with the training mean and standard deviation and
// the weights are found with Newton iterations on the penalised
// log-likelihood. The intercept is not penalised.
package logreg

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"marketpulse/internal/domain"
	"marketpulse/internal/model"
)

var _ model.Trainer = (*Trainer)(nil)

// Options controls fitting. C is the inverse regularisation strength: the
// objective is 0.5*|w|^2 + C*sum(logloss).
type Options struct {
	C       float64
	MaxIter int
	Tol     float64
}

// DefaultOptions mirrors the reference model: C=1 with up to 2000 iterations.
func DefaultOptions() Options {
	return Options{C: 1, MaxIter: 2000, Tol: 1e-8}
}

// ErrNotConverged is returned when MaxIter is reached before the Newton
// step falls below Tol.
var ErrNotConverged = errors.New("logreg: did not converge")

// Trainer fits Models.
type Trainer struct {
	opts Options
}

// New creates a Trainer. Non-positive option values fall back to defaults.
func New(opts Options) *Trainer {
	def := DefaultOptions()
	if opts.C <= 0 {
		opts.C = def.C
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = def.MaxIter
	}
	if opts.Tol <= 0 {
		opts.Tol = def.Tol
	}
	return &Trainer{opts: opts}
}

// Model is a fitted classifier.
type Model struct {
	Mean      []float64
	Scale     []float64
	Weights   []float64
	Intercept float64
	Iter      int
}

// Fit trains a Model on x (rows are observations) and labels y in {0,1}.
func (t *Trainer) Fit(x [][]float64, y []float64) (model.Classifier, error) {
	return t.FitModel(x, y)
}

// FitModel is Fit returning the concrete type.
func (t *Trainer) FitModel(x [][]float64, y []float64) (*Model, error) {
	n := len(x)
	if n == 0 {
		return nil, fmt.Errorf("logreg: no observations: %w", domain.ErrInsufficientData)
	}
	if len(y) != n {
		return nil, fmt.Errorf("logreg: %d rows but %d labels: %w", n, len(y), domain.ErrInvalidInput)
	}
	p := len(x[0])
	var pos int
	for i, row := range x {
		if len(row) != p {
			return nil, fmt.Errorf("logreg: row %d has %d features, want %d: %w", i, len(row), p, domain.ErrInvalidInput)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("logreg: row %d has a non-finite feature: %w", i, domain.ErrInvalidInput)
			}
		}
		switch y[i] {
		case 1:
			pos++
		case 0:
		default:
			return nil, fmt.Errorf("logreg: label %v at row %d not in {0,1}: %w", y[i], i, domain.ErrInvalidInput)
		}
	}
	if pos == 0 || pos == n {
		return nil, fmt.Errorf("logreg: labels contain a single class: %w", domain.ErrInsufficientData)
	}

	m := &Model{Mean: make([]float64, p), Scale: make([]float64, p)}
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		mean, variance := stat.PopMeanVariance(col, nil)
		m.Mean[j] = mean
		m.Scale[j] = math.Sqrt(variance)
		if m.Scale[j] == 0 {
			m.Scale[j] = 1
		}
	}

	// Design matrix with a leading intercept column.
	d := p + 1
	z := mat.NewDense(n, d, nil)
	for i := range x {
		z.Set(i, 0, 1)
		for j := 0; j < p; j++ {
			z.Set(i, j+1, (x[i][j]-m.Mean[j])/m.Scale[j])
		}
	}

	lambda := 1 / t.opts.C
	beta := mat.NewVecDense(d, nil)
	grad := mat.NewVecDense(d, nil)
	step := mat.NewVecDense(d, nil)
	hess := mat.NewSymDense(d, nil)
	eta := mat.NewVecDense(n, nil)
	var chol mat.Cholesky

	converged := false
	for it := 1; it <= t.opts.MaxIter; it++ {
		m.Iter = it
		eta.MulVec(z, beta)

		for a := 0; a < d; a++ {
			for b := a; b < d; b++ {
				hess.SetSym(a, b, 0)
			}
			grad.SetVec(a, 0)
		}
		for i := 0; i < n; i++ {
			mu := sigmoid(eta.AtVec(i))
			w := mu * (1 - mu)
			r := mu - y[i]
			row := z.RawRowView(i)
			for a := 0; a < d; a++ {
				grad.SetVec(a, grad.AtVec(a)+r*row[a])
				for b := a; b < d; b++ {
					hess.SetSym(a, b, hess.At(a, b)+w*row[a]*row[b])
				}
			}
		}
		for a := 1; a < d; a++ {
			grad.SetVec(a, grad.AtVec(a)+lambda*beta.AtVec(a))
			hess.SetSym(a, a, hess.At(a, a)+lambda)
		}

		if ok := chol.Factorize(hess); !ok {
			return nil, fmt.Errorf("logreg: hessian not positive definite at iteration %d", it)
		}
		if err := chol.SolveVecTo(step, grad); err != nil {
			return nil, fmt.Errorf("logreg: newton step: %w", err)
		}
		beta.SubVec(beta, step)

		if floats.Norm(step.RawVector().Data, math.Inf(1)) < t.opts.Tol {
			converged = true
			break
		}
	}
	if !converged {
		return nil, fmt.Errorf("%w after %d iterations", ErrNotConverged, t.opts.MaxIter)
	}

	m.Intercept = beta.AtVec(0)
	m.Weights = make([]float64, p)
	for j := range m.Weights {
		m.Weights[j] = beta.AtVec(j + 1)
	}
	return m, nil
}

// PredictProbability returns P(y=1 | features).
func (m *Model) PredictProbability(features []float64) (float64, error) {
	if len(features) != len(m.Weights) {
		return math.NaN(), fmt.Errorf("logreg: got %d features, want %d: %w", len(features), len(m.Weights), domain.ErrInvalidInput)
	}
	s := m.Intercept
	for j, v := range features {
		s += m.Weights[j] * (v - m.Mean[j]) / m.Scale[j]
	}
	return sigmoid(s), nil
}

func sigmoid(v float64) float64 {
	if v >= 0 {
		return 1 / (1 + math.Exp(-v))
	}
	e := math.Exp(v)
	return e / (1 + e)
}
