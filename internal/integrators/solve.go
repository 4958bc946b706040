package integrators

import (
	"context"
	"math"

	"github.com/san-kum/drivesim/internal/dynamo"
)

// outputTolerance is how close a step end must land to an output time to be
// recorded there.
const outputTolerance = 1e-12

// Options configures SolveIVP.
type Options struct {
	Method string
	// TEval lists the times to record, ascending. When empty every step is
	// recorded.
	TEval   []float64
	MaxStep float64
	// BeforeStep runs before every step and may replace the state, e.g. to
	// apply a gear change. An error ends the integration.
	BeforeStep func(t float64, x dynamo.State) (dynamo.State, error)
	// OnRecord sees every recorded sample.
	OnRecord func(t float64, x dynamo.State)
}

// Result holds the recorded trajectory. Y[i] is the series of state i.
type Result struct {
	T       []float64
	Y       [][]float64
	Success bool
	Message string
	// Err is the failure behind Message.
	Err   error `json:"-"`
	Nfev  int
	Steps int
}

func (r *Result) record(t float64, x dynamo.State) {
	r.T = append(r.T, t)
	for i, v := range x {
		r.Y[i] = append(r.Y[i], v)
	}
}

func (r *Result) fail(err error) *Result {
	r.Success = false
	r.Message = err.Error()
	r.Err = err
	return r
}

// State returns the recorded state at output index k.
func (r *Result) State(k int) dynamo.State {
	x := make(dynamo.State, len(r.Y))
	for i := range r.Y {
		x[i] = r.Y[i][k]
	}
	return x
}

// SolveIVP integrates f from t0 to t1 with fixed steps of MaxStep, shortened
// so that no step crosses t1 or the next output time. Failures inside a step
// are reported through Result.Success and Result.Message. ctx is checked once
// per recorded sample.
func SolveIVP(ctx context.Context, f dynamo.Func, t0, t1 float64, x0 dynamo.State, opts Options) *Result {
	res := &Result{Y: make([][]float64, len(x0))}

	stepper, err := New(opts.Method)
	if err != nil {
		return res.fail(err)
	}
	h := opts.MaxStep
	if h <= 0 {
		h = 0.01
	}

	counted := func(t float64, x dynamo.State) (dynamo.State, error) {
		res.Nfev++
		return f(t, x)
	}

	t := t0
	x := x0.Clone()
	useEval := len(opts.TEval) > 0
	next := 0

	record := func(t float64, x dynamo.State) {
		res.record(t, x)
		if opts.OnRecord != nil {
			opts.OnRecord(t, x)
		}
	}

	if !useEval || opts.TEval[0] <= t0 {
		record(t, x)
		if useEval {
			next++
		}
	}

	for t < t1 {
		if opts.BeforeStep != nil {
			x, err = opts.BeforeStep(t, x)
			if err != nil {
				return res.fail(err)
			}
		}

		target := t + h
		if target > t1 {
			target = t1
		}
		if useEval && next < len(opts.TEval) && target > opts.TEval[next] {
			target = opts.TEval[next]
		}
		if t1-target < outputTolerance {
			target = t1
		}
		dt := target - t
		if dt <= 0 {
			// Output times at or before t (e.g. duplicates) are skipped.
			next++
			continue
		}

		xNext, err := stepper.Step(counted, t, x, dt)
		if err != nil {
			return res.fail(&dynamo.SimulationError{Step: res.Steps, Time: t, State: x, Wrapped: err})
		}
		if !xNext.IsValid() {
			return res.fail(&dynamo.SimulationError{Step: res.Steps, Time: t, State: x, Wrapped: dynamo.ErrInvalidState})
		}
		x = xNext
		t = target
		res.Steps++

		recorded := false
		if useEval {
			for next < len(opts.TEval) && math.Abs(t-opts.TEval[next]) < outputTolerance {
				record(t, x)
				next++
				recorded = true
			}
		} else {
			record(t, x)
			recorded = true
		}
		if recorded {
			select {
			case <-ctx.Done():
				return res.fail(ctx.Err())
			default:
			}
		}
	}

	res.Success = true
	return res
}

// IntegrateFixed steps exactly between consecutive entries of tEval.
func IntegrateFixed(f dynamo.Func, tEval []float64, x0 dynamo.State, method string) *Result {
	res := &Result{Y: make([][]float64, len(x0))}
	stepper, err := New(method)
	if err != nil {
		return res.fail(err)
	}
	counted := func(t float64, x dynamo.State) (dynamo.State, error) {
		res.Nfev++
		return f(t, x)
	}

	if len(tEval) == 0 {
		res.Success = true
		return res
	}
	x := x0.Clone()
	res.record(tEval[0], x)
	for k := 1; k < len(tEval); k++ {
		x, err = stepper.Step(counted, tEval[k-1], x, tEval[k]-tEval[k-1])
		if err != nil {
			return res.fail(&dynamo.SimulationError{Step: k, Time: tEval[k-1], Wrapped: err})
		}
		res.Steps++
		res.record(tEval[k], x)
	}
	res.Success = true
	return res
}
