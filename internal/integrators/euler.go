package integrators

import "github.com/san-kum/drivesim/internal/dynamo"

// Stepper advances x by one step of size h.
type Stepper interface {
	Step(f dynamo.Func, t float64, x dynamo.State, h float64) (dynamo.State, error)
}

type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(f dynamo.Func, t float64, x dynamo.State, h float64) (dynamo.State, error) {
	dx, err := f(t, x)
	if err != nil {
		return nil, err
	}
	result := make(dynamo.State, len(x))
	for i := range x {
		result[i] = x[i] + h*dx[i]
	}
	return result, nil
}

// New returns the stepper for a method name.
func New(method string) (Stepper, error) {
	switch method {
	case dynamo.MethodEuler:
		return NewEuler(), nil
	case dynamo.MethodRK4, "":
		return NewRK4(), nil
	case dynamo.MethodRK45:
		return NewRK45(), nil
	}
	return nil, dynamo.ErrUnknownMethod
}
