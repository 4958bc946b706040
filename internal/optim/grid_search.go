// Package optim tunes controller gains by exhaustive grid search.
package optim

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/san-kum/drivesim/internal/experiment"
)

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	logger     *slog.Logger
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges, logger: slog.Default()}
}

func (g *GridSearch) WithLogger(l *slog.Logger) *GridSearch {
	g.logger = l
	return g
}

// Trial is one evaluated grid point.
type Trial struct {
	Params map[string]float64
	Value  float64
	Err    error
}

// Search runs every grid point and returns the parameters minimizing
// metricName. Points whose run fails or whose metric is missing are
// skipped; Search fails only when no point succeeds or ctx ends.
func (g *GridSearch) Search(
	ctx context.Context,
	buildExperiment func(params map[string]float64) (*experiment.Experiment, error),
	metricName string,
) (map[string]float64, float64, []Trial, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, 0, nil, fmt.Errorf("optim: %d parameters but %d ranges", len(g.paramNames), len(g.ranges))
	}

	best := math.Inf(1)
	var bestParams map[string]float64
	var trials []Trial

	err := g.searchRecursive(ctx, 0, make(map[string]float64), func(params map[string]float64) {
		tr := Trial{Params: params, Value: math.NaN()}
		defer func() { trials = append(trials, tr) }()

		exp, err := buildExperiment(params)
		if err != nil {
			tr.Err = err
			return
		}
		if err := exp.Setup(); err != nil {
			tr.Err = err
			return
		}
		res, err := exp.Run(ctx)
		if err != nil {
			tr.Err = err
			return
		}
		if !res.Success {
			tr.Err = fmt.Errorf("optim: run failed: %s", res.Message)
			return
		}
		val, ok := exp.Metrics()[metricName]
		if !ok {
			tr.Err = fmt.Errorf("optim: metric %q not reported", metricName)
			return
		}
		tr.Value = val
		g.logger.Debug("grid point", "params", params, metricName, val)
		if val < best {
			best = val
			bestParams = params
		}
	})
	if err != nil {
		return bestParams, best, trials, err
	}
	if bestParams == nil {
		return nil, 0, trials, fmt.Errorf("optim: no grid point produced %q", metricName)
	}
	return bestParams, best, trials, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	evaluate func(map[string]float64),
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth == len(g.paramNames) {
		evaluate(current)
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		if err := g.searchRecursive(ctx, depth+1, newParams, evaluate); err != nil {
			return err
		}
	}
	return nil
}

// Linspace returns n evenly spaced values over [lo, hi].
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + (hi-lo)*float64(i)/float64(n-1)
	}
	return out
}
