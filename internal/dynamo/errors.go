package dynamo

import "errors"

// Domain errors for drivetrain compilation and simulation.
var (
	// ErrInvalidState indicates a state vector with invalid dimensions or values.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrSingularMatrix indicates a numerically zero pivot in a linear solve.
	ErrSingularMatrix = errors.New("dynamo: singular matrix")

	// ErrUnknownPort indicates a query for a port a component does not define.
	ErrUnknownPort = errors.New("dynamo: unknown port")

	// ErrDOFNotFound indicates a constraint referencing a DOF that is neither
	// independent nor eliminated.
	ErrDOFNotFound = errors.New("dynamo: DOF not found in topology")

	// ErrCyclicConstraintGraph indicates eliminated DOFs that reference each other.
	ErrCyclicConstraintGraph = errors.New("dynamo: cyclic constraint graph")

	// ErrLayoutChanged indicates a recompilation that altered the independent DOF set.
	ErrLayoutChanged = errors.New("dynamo: independent DOF set changed on recompile")

	// ErrUnknownMethod indicates an unsupported integration method name.
	ErrUnknownMethod = errors.New("dynamo: unknown integration method")

	// ErrDimensionMismatch indicates mismatched state dimensions.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between state and system")
)

// SimulationError wraps an error with simulation context.
type SimulationError struct {
	Step    int
	Time    float64
	State   State
	Wrapped error
}

func (e *SimulationError) Error() string {
	return e.Wrapped.Error()
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
