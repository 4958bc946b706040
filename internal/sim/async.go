package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/san-kum/drivesim/internal/dynamo"
	"github.com/san-kum/drivesim/internal/integrators"
)

// progressEvery is the number of output intervals between progress reports.
const progressEvery = 10

// Job is a simulation running on its own goroutine.
type Job struct {
	progress chan Progress
	done     chan struct{}
	result   *Result
	err      error
}

// Progress delivers progress reports; it is closed when the run ends.
// Reports are dropped rather than blocking the run when nobody reads.
func (j *Job) Progress() <-chan Progress { return j.progress }

func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the run ends.
func (j *Job) Wait() (*Result, error) {
	<-j.done
	return j.result, j.err
}

// SimulateAsync runs the simulation on a separate goroutine. Controls are
// held constant over each RK4 sub-step of at most cfg.MaxStep; the
// controller and gear selection are re-evaluated before every sub-step.
// Cancellation is checked once per output interval.
func (s *Simulator) SimulateAsync(ctx context.Context, x0 map[string]float64, ctrl Controller, grade GradeProfile, cfg dynamo.Config) *Job {
	j := &Job{
		progress: make(chan Progress, 16),
		done:     make(chan struct{}),
	}
	go func() {
		defer close(j.done)
		defer close(j.progress)
		j.result, j.err = s.runStepped(ctx, x0, ctrl, grade, cfg, j.report)
	}()
	return j
}

func (j *Job) report(p Progress) {
	select {
	case j.progress <- p:
	default:
	}
}

func (s *Simulator) runStepped(ctx context.Context, x0 map[string]float64, ctrl Controller, grade GradeProfile, cfg dynamo.Config, report func(Progress)) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := s.newRun(ctrl, grade)
	tEval := cfg.OutputTimes()
	h := cfg.MaxStep
	rk4 := integrators.NewRK4()
	nfev := 0

	start := time.Now()
	s.logger.Info("simulation started", "topology", s.d.Topology().Name, "mode", "stepped", "tEnd", cfg.TEnd)

	x := s.d.StateToArray(x0)
	y := make([][]float64, len(x))
	var times []float64
	record := func(t float64) {
		times = append(times, t)
		for i, v := range x {
			y[i] = append(y[i], v)
		}
		r.onRecord(t, x)
	}

	fail := func(t float64, err error) (*Result, error) {
		res := r.build(times, y, cfg)
		res.Metadata["n_function_evals"] = nfev
		res.Message = "ODE integration failed: " + err.Error()
		s.logger.Error("simulation failed", "error", err, "t", t)
		return res, fmt.Errorf("ODE integration failed: %w", err)
	}

	record(tEval[0])
	total := len(tEval) - 1
	for k := 1; k < len(tEval); k++ {
		select {
		case <-ctx.Done():
			return fail(tEval[k-1], ctx.Err())
		default:
		}

		t, tEnd := tEval[k-1], tEval[k]
		for t < tEnd-1e-12 {
			step := min(h, tEnd-t)
			u, g := r.computeControl(t, x)
			r.log(t, u, g)
			r.latest = u

			var err error
			if x, err = r.applyGears(t, u, x); err != nil {
				return fail(t, err)
			}
			f := func(tt float64, xx dynamo.State) (dynamo.State, error) {
				nfev++
				return s.d.Dynamics(tt, xx, u, g)
			}
			next, err := rk4.Step(f, t, x, step)
			if err != nil {
				return fail(t, &dynamo.SimulationError{Time: t, State: x, Wrapped: err})
			}
			if !next.IsValid() {
				return fail(t, &dynamo.SimulationError{Time: t, State: x, Wrapped: dynamo.ErrInvalidState})
			}
			x = next
			t += step
		}
		record(tEnd)

		if k%progressEvery == 0 || k == total {
			report(Progress{Fraction: float64(k) / float64(total), Time: tEnd, Velocity: s.d.Velocity(x)})
		}
	}

	res := r.build(times, y, cfg)
	res.Metadata["n_function_evals"] = nfev
	res.Metadata["elapsed_ms"] = time.Since(start).Milliseconds()
	res.Success = true
	s.logger.Info("simulation finished", "points", res.NumPoints(), "nfev", nfev, "shifts", r.shifts)
	return res, nil
}

// SimulateWithProgress is the synchronous form of SimulateAsync; onProgress
// may be nil.
func (s *Simulator) SimulateWithProgress(ctx context.Context, x0 map[string]float64, ctrl Controller, grade GradeProfile, cfg dynamo.Config, onProgress func(Progress)) (*Result, error) {
	if onProgress == nil {
		onProgress = func(Progress) {}
	}
	return s.runStepped(ctx, x0, ctrl, grade, cfg, onProgress)
}
