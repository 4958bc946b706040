package linalg

import (
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Interp linearly interpolates fp over the increasing grid xp, holding the
// end values outside the domain.
func Interp(x float64, xp, fp []float64) float64 {
	n := len(xp)
	if n == 0 || n != len(fp) {
		return 0
	}
	if x <= xp[0] {
		return fp[0]
	}
	if x >= xp[n-1] {
		return fp[n-1]
	}
	i := SearchSorted(xp, x)
	x0, x1 := xp[i-1], xp[i]
	if x1 == x0 {
		return fp[i]
	}
	frac := (x - x0) / (x1 - x0)
	return fp[i-1] + frac*(fp[i]-fp[i-1])
}

// Interp2D bilinearly interpolates z[i][j] = f(xp[i], yp[j]), clamping both
// coordinates to the grid. Mismatched grid shapes return 0.
func Interp2D(x, y float64, xp, yp []float64, z [][]float64) float64 {
	if len(xp) == 0 || len(yp) == 0 || len(z) != len(xp) {
		return 0
	}
	for _, row := range z {
		if len(row) != len(yp) {
			return 0
		}
	}
	x = Clip(x, xp[0], xp[len(xp)-1])
	y = Clip(y, yp[0], yp[len(yp)-1])

	i := cell(xp, x)
	j := cell(yp, y)
	i1 := min(i+1, len(xp)-1)
	j1 := min(j+1, len(yp)-1)

	tx := 0.0
	if xp[i1] != xp[i] {
		tx = (x - xp[i]) / (xp[i1] - xp[i])
	}
	ty := 0.0
	if yp[j1] != yp[j] {
		ty = (y - yp[j]) / (yp[j1] - yp[j])
	}

	z00, z01 := z[i][j], z[i][j1]
	z10, z11 := z[i1][j], z[i1][j1]
	return (1-tx)*(1-ty)*z00 + (1-tx)*ty*z01 + tx*(1-ty)*z10 + tx*ty*z11
}

// cell returns the lower index of the grid interval containing v. Grids of a
// single point collapse to index 0 with a zero-width cell.
func cell(grid []float64, v float64) int {
	if len(grid) < 2 {
		return 0
	}
	i := SearchSorted(grid, v) - 1
	if i < 0 {
		i = 0
	}
	if i > len(grid)-2 {
		i = len(grid) - 2
	}
	return i
}

// SearchSorted returns the first index i with xp[i] >= x.
func SearchSorted(xp []float64, x float64) int {
	return sort.SearchFloat64s(xp, x)
}

func Clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Linspace returns n evenly spaced samples over [lo, hi].
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{lo}
	}
	return floats.Span(make([]float64, n), lo, hi)
}
