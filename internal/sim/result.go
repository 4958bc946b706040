package sim

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/san-kum/drivesim/internal/linalg"
)

// Result holds every time series of one run. All series have len(Time)
// entries.
type Result struct {
	Time     []float64            `json:"time"`
	States   map[string][]float64 `json:"states"`
	Controls map[string][]float64 `json:"controls"`
	Outputs  map[string][]float64 `json:"outputs"`
	Metadata map[string]any       `json:"metadata"`
	// StateNames keeps the drivetrain's state ordering.
	StateNames []string `json:"stateNames"`
	Success    bool     `json:"success"`
	Message    string   `json:"message,omitempty"`
}

func newResult() *Result {
	return &Result{
		States:   make(map[string][]float64),
		Controls: make(map[string][]float64),
		Outputs:  make(map[string][]float64),
		Metadata: make(map[string]any),
	}
}

func (r *Result) NumPoints() int { return len(r.Time) }

func (r *Result) Duration() float64 {
	n := len(r.Time)
	if n < 2 {
		return 0
	}
	return r.Time[n-1] - r.Time[0]
}

// Series looks a name up in states, then controls, then outputs.
func (r *Result) Series(name string) ([]float64, bool) {
	for _, src := range []map[string][]float64{r.States, r.Controls, r.Outputs} {
		if s, ok := src[name]; ok {
			return s, true
		}
	}
	return nil, false
}

func (r *Result) Final(name string) (float64, bool) {
	s, ok := r.Series(name)
	if !ok || len(s) == 0 {
		return 0, false
	}
	return s[len(s)-1], true
}

// Names lists every series: states in drivetrain order, then sorted
// controls and outputs.
func (r *Result) Names() []string {
	names := append([]string(nil), r.StateNames...)
	for _, src := range []map[string][]float64{r.Controls, r.Outputs} {
		keys := make([]string, 0, len(src))
		for k := range src {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		names = append(names, keys...)
	}
	return names
}

func (r *Result) Max(name string) (float64, bool) {
	s, ok := r.Series(name)
	if !ok || len(s) == 0 {
		return 0, false
	}
	return slices.Max(s), true
}

func (r *Result) Min(name string) (float64, bool) {
	s, ok := r.Series(name)
	if !ok || len(s) == 0 {
		return 0, false
	}
	return slices.Min(s), true
}

func (r *Result) Mean(name string) (float64, bool) {
	s, ok := r.Series(name)
	if !ok || len(s) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, v := range s {
		sum += v
	}
	return sum / float64(len(s)), true
}

func (r *Result) Velocity() []float64 { return r.Outputs["velocity"] }

// SOC returns the first battery state of charge series.
func (r *Result) SOC() ([]float64, bool) {
	for _, name := range r.StateNames {
		if strings.HasSuffix(name, ".SOC") {
			return r.States[name], true
		}
	}
	return nil, false
}

// Integrate is the trapezoidal integral of a series over time.
func (r *Result) Integrate(name string) (float64, bool) {
	s, ok := r.Series(name)
	if !ok || len(r.Time) < 2 {
		return 0, false
	}
	total := 0.0
	for i := 1; i < len(r.Time); i++ {
		total += 0.5 * (s[i-1] + s[i]) * (r.Time[i] - r.Time[i-1])
	}
	return total, true
}

// FuelTotal is the fuel consumed in kg.
func (r *Result) FuelTotal() (float64, bool) {
	return r.Integrate("fuel_rate")
}

// Sample returns every series value at output index k.
func (r *Result) Sample(k int) map[string]float64 {
	out := make(map[string]float64)
	for _, src := range []map[string][]float64{r.States, r.Controls, r.Outputs} {
		for name, s := range src {
			if k < len(s) {
				out[name] = s[k]
			}
		}
	}
	return out
}

func mapSeries(src map[string][]float64, f func([]float64) []float64) map[string][]float64 {
	out := make(map[string][]float64, len(src))
	for k, v := range src {
		out[k] = f(v)
	}
	return out
}

func (r *Result) derive(time []float64, f func([]float64) []float64) *Result {
	meta := make(map[string]any, len(r.Metadata))
	for k, v := range r.Metadata {
		meta[k] = v
	}
	return &Result{
		Time:       time,
		States:     mapSeries(r.States, f),
		Controls:   mapSeries(r.Controls, f),
		Outputs:    mapSeries(r.Outputs, f),
		Metadata:   meta,
		StateNames: append([]string(nil), r.StateNames...),
		Success:    r.Success,
		Message:    r.Message,
	}
}

// Slice keeps the samples with t0 <= t <= t1.
func (r *Result) Slice(t0, t1 float64) *Result {
	var idx []int
	for i, t := range r.Time {
		if t >= t0 && t <= t1 {
			idx = append(idx, i)
		}
	}
	pick := func(s []float64) []float64 {
		out := make([]float64, len(idx))
		for j, i := range idx {
			out[j] = s[i]
		}
		return out
	}
	return r.derive(pick(r.Time), pick)
}

// Resample interpolates every series onto a uniform grid of step dt.
func (r *Result) Resample(dt float64) *Result {
	if len(r.Time) == 0 || dt <= 0 {
		return r.derive(nil, func([]float64) []float64 { return nil })
	}
	t0, t1 := r.Time[0], r.Time[len(r.Time)-1]
	n := int(math.Floor((t1-t0)/dt+1e-9)) + 1
	grid := make([]float64, n)
	for i := range grid {
		grid[i] = t0 + float64(i)*dt
	}
	return r.derive(grid, func(s []float64) []float64 {
		out := make([]float64, n)
		for i, t := range grid {
			out[i] = linalg.Interp(t, r.Time, s)
		}
		return out
	})
}

func (r *Result) Summary() string {
	var b strings.Builder
	b.WriteString("Simulation Results\n")
	fmt.Fprintf(&b, "  Duration: %.1f s (%d points)\n", r.Duration(), r.NumPoints())
	fmt.Fprintf(&b, "  States: %s\n", strings.Join(r.StateNames, ", "))
	fmt.Fprintf(&b, "  Controls: %s\n", strings.Join(sortedKeys(r.Controls), ", "))
	fmt.Fprintf(&b, "  Outputs: %s\n", strings.Join(sortedKeys(r.Outputs), ", "))

	if v := r.Velocity(); len(v) > 0 {
		fmt.Fprintf(&b, "  Velocity: %.1f -> %.1f km/h (max %.1f km/h)\n",
			v[0]*3.6, v[len(v)-1]*3.6, slices.Max(v)*3.6)
	}
	if soc, ok := r.SOC(); ok && len(soc) > 0 {
		fmt.Fprintf(&b, "  SOC: %.1f%% -> %.1f%%\n", soc[0]*100, soc[len(soc)-1]*100)
	}
	if fuel, ok := r.FuelTotal(); ok {
		fmt.Fprintf(&b, "  Fuel consumed: %.2f kg\n", fuel)
	}
	if !r.Success && r.Message != "" {
		fmt.Fprintf(&b, "  Failed: %s\n", r.Message)
	}
	return b.String()
}

func sortedKeys(m map[string][]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
