package drivetrain

import (
	"gonum.org/v1/gonum/mat"
)

// portInertias returns the inertia of every mechanical port in allDOFs
// order, i.e. the diagonal of J.
func (d *Drivetrain) portInertias() ([]float64, error) {
	j := make([]float64, len(d.allDOFs))
	for i, dof := range d.allDOFs {
		v, err := d.byName[dof.Component].Inertia(dof.Port)
		if err != nil {
			return nil, err
		}
		j[i] = v
	}
	return j, nil
}

// elimMatrix packs the layout rows into C (ports x independent DOFs).
func elimMatrix(l *layout) *mat.Dense {
	n := len(l.independent)
	if n == 0 || len(l.rows) == 0 {
		return nil
	}
	c := mat.NewDense(len(l.rows), n, nil)
	for i, row := range l.rows {
		c.SetRow(i, row)
	}
	return c
}

// assembleInertia computes CᵀJC, summing J_port*c_i*c_j over every port for
// each pair of independent DOFs.
func (d *Drivetrain) assembleInertia(l *layout) ([][]float64, error) {
	n := len(l.independent)
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
	}
	c := elimMatrix(l)
	if c == nil {
		return out, nil
	}

	jdiag, err := d.portInertias()
	if err != nil {
		return nil, err
	}
	j := mat.NewDiagDense(len(jdiag), jdiag)

	var jc, m mat.Dense
	jc.Mul(j, c)
	m.Mul(c.T(), &jc)

	for i := 0; i < n; i++ {
		for k := 0; k < n; k++ {
			out[i][k] = m.At(i, k)
		}
	}
	return out, nil
}

// inertiaDense returns the layout's inertia matrix as a gonum matrix.
func inertiaDense(l *layout) *mat.Dense {
	n := len(l.independent)
	if n == 0 {
		return nil
	}
	m := mat.NewDense(n, n, nil)
	for i, row := range l.inertia {
		m.SetRow(i, row)
	}
	return m
}
