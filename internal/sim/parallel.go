package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/san-kum/drivesim/internal/drivetrain"
	"github.com/san-kum/drivesim/internal/dynamo"
)

// Case is one member of an ensemble. Build must return a fresh Drivetrain:
// runs never share one.
type Case struct {
	Name       string
	Build      func() (*drivetrain.Drivetrain, error)
	Initial    func(d *drivetrain.Drivetrain) map[string]float64
	Controller func(d *drivetrain.Drivetrain) (Controller, error)
	Grade      GradeProfile
	Config     dynamo.Config
}

// Ensemble runs independent cases concurrently.
type Ensemble struct {
	cases   []Case
	workers int
	opts    []Option
}

// NewEnsemble limits concurrency to workers (all cases at once when
// workers <= 0).
func NewEnsemble(cases []Case, workers int, opts ...Option) *Ensemble {
	return &Ensemble{cases: cases, workers: workers, opts: opts}
}

// Run returns one result per case, in case order. The first error is
// returned alongside every result that did complete.
func (e *Ensemble) Run(ctx context.Context) ([]*Result, error) {
	results := make([]*Result, len(e.cases))
	errs := make([]error, len(e.cases))

	workers := e.workers
	if workers <= 0 || workers > len(e.cases) {
		workers = len(e.cases)
	}
	sem := make(chan struct{}, max(workers, 1))

	var wg sync.WaitGroup
	for i := range e.cases {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[idx], errs[idx] = e.runCase(ctx, e.cases[idx])
		}(i)
	}

	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return results, fmt.Errorf("case %s: %w", e.cases[i].Name, err)
		}
	}

	return results, nil
}

func (e *Ensemble) runCase(ctx context.Context, c Case) (*Result, error) {
	d, err := c.Build()
	if err != nil {
		return nil, err
	}
	ctrl, err := c.Controller(d)
	if err != nil {
		return nil, err
	}
	var x0 map[string]float64
	if c.Initial != nil {
		x0 = c.Initial(d)
	}
	res, err := New(d, e.opts...).Simulate(ctx, x0, ctrl, c.Grade, c.Config)
	if res != nil {
		res.Metadata["case"] = c.Name
	}
	return res, err
}
