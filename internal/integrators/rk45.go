package integrators

import (
	"math"

	"github.com/san-kum/drivesim/internal/dynamo"
)

// Runge-Kutta-Fehlberg 4(5) coefficients
var (
	a2 = 1.0 / 4.0
	a3 = 3.0 / 8.0
	a4 = 12.0 / 13.0
	a6 = 1.0 / 2.0

	b21 = 1.0 / 4.0
	b31 = 3.0 / 32.0
	b32 = 9.0 / 32.0
	b41 = 1932.0 / 2197.0
	b42 = -7200.0 / 2197.0
	b43 = 7296.0 / 2197.0
	b51 = 439.0 / 216.0
	b52 = -8.0
	b53 = 3680.0 / 513.0
	b54 = -845.0 / 4104.0
	b61 = -8.0 / 27.0
	b62 = 2.0
	b63 = -3544.0 / 2565.0
	b64 = 1859.0 / 4104.0
	b65 = -11.0 / 40.0

	// fifth order
	c1 = 16.0 / 135.0
	c3 = 6656.0 / 12825.0
	c4 = 28561.0 / 56430.0
	c5 = -9.0 / 50.0
	c6 = 2.0 / 55.0

	// embedded fourth order
	d1 = 25.0 / 216.0
	d3 = 1408.0 / 2565.0
	d4 = 2197.0 / 4104.0
	d5 = -1.0 / 5.0
)

// RK45 takes fixed Fehlberg steps. The embedded error estimate is reported
// by StepWithError but does not drive the step size.
type RK45 struct{}

func NewRK45() *RK45 {
	return &RK45{}
}

func (r *RK45) Step(f dynamo.Func, t float64, x dynamo.State, h float64) (dynamo.State, error) {
	xNew, _, err := r.StepWithError(f, t, x, h)
	return xNew, err
}

// StepWithError returns the fifth-order update and the max-norm difference
// from the embedded fourth-order solution.
func (r *RK45) StepWithError(f dynamo.Func, t float64, x dynamo.State, h float64) (dynamo.State, float64, error) {
	n := len(x)
	stage := make(dynamo.State, n)

	k1, err := f(t, x)
	if err != nil {
		return nil, 0, err
	}

	for i := 0; i < n; i++ {
		stage[i] = x[i] + h*b21*k1[i]
	}
	k2, err := f(t+a2*h, stage)
	if err != nil {
		return nil, 0, err
	}

	for i := 0; i < n; i++ {
		stage[i] = x[i] + h*(b31*k1[i]+b32*k2[i])
	}
	k3, err := f(t+a3*h, stage)
	if err != nil {
		return nil, 0, err
	}

	for i := 0; i < n; i++ {
		stage[i] = x[i] + h*(b41*k1[i]+b42*k2[i]+b43*k3[i])
	}
	k4, err := f(t+a4*h, stage)
	if err != nil {
		return nil, 0, err
	}

	for i := 0; i < n; i++ {
		stage[i] = x[i] + h*(b51*k1[i]+b52*k2[i]+b53*k3[i]+b54*k4[i])
	}
	k5, err := f(t+h, stage)
	if err != nil {
		return nil, 0, err
	}

	for i := 0; i < n; i++ {
		stage[i] = x[i] + h*(b61*k1[i]+b62*k2[i]+b63*k3[i]+b64*k4[i]+b65*k5[i])
	}
	k6, err := f(t+a6*h, stage)
	if err != nil {
		return nil, 0, err
	}

	xNew := make(dynamo.State, n)
	errMax := 0.0
	for i := 0; i < n; i++ {
		xNew[i] = x[i] + h*(c1*k1[i]+c3*k3[i]+c4*k4[i]+c5*k5[i]+c6*k6[i])
		x4 := x[i] + h*(d1*k1[i]+d3*k3[i]+d4*k4[i]+d5*k5[i])
		errMax = math.Max(errMax, math.Abs(xNew[i]-x4))
	}

	return xNew, errMax, nil
}
