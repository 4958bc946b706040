// Package linalg holds the dense solver and the interpolation helpers used by
// the drivetrain compiler and the component models.
package linalg

import (
	"fmt"
	"math"

	"github.com/san-kum/drivesim/internal/dynamo"
)

// PivotTolerance is the magnitude below which a pivot is treated as zero.
const PivotTolerance = 1e-15

// SolveLinear solves A x = b by Gaussian elimination with partial pivoting.
// A and b are left untouched.
func SolveLinear(A [][]float64, b []float64) ([]float64, error) {
	n := len(A)
	if n == 0 {
		return []float64{}, nil
	}
	if len(b) != n {
		return nil, fmt.Errorf("%w: matrix has %d rows, rhs has %d", dynamo.ErrDimensionMismatch, n, len(b))
	}

	aug := make([][]float64, n)
	for i, row := range A {
		if len(row) != n {
			return nil, fmt.Errorf("%w: row %d has %d columns", dynamo.ErrDimensionMismatch, i, len(row))
		}
		aug[i] = make([]float64, n+1)
		copy(aug[i], row)
		aug[i][n] = b[i]
	}

	for k := 0; k < n; k++ {
		maxIdx := k
		maxVal := math.Abs(aug[k][k])
		for i := k + 1; i < n; i++ {
			if v := math.Abs(aug[i][k]); v > maxVal {
				maxVal = v
				maxIdx = i
			}
		}
		if maxIdx != k {
			aug[k], aug[maxIdx] = aug[maxIdx], aug[k]
		}

		pivot := aug[k][k]
		if math.Abs(pivot) < PivotTolerance {
			return nil, fmt.Errorf("%w: pivot %g at column %d", dynamo.ErrSingularMatrix, pivot, k)
		}

		for i := k + 1; i < n; i++ {
			factor := aug[i][k] / pivot
			for j := k; j <= n; j++ {
				aug[i][j] -= factor * aug[k][j]
			}
		}
	}

	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := aug[i][n]
		for j := i + 1; j < n; j++ {
			sum -= aug[i][j] * x[j]
		}
		x[i] = sum / aug[i][i]
	}
	return x, nil
}
