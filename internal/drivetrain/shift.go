package drivetrain

import (
	"fmt"
	"math"
	"slices"

	"github.com/san-kum/drivesim/internal/component"
	"github.com/san-kum/drivesim/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// ShiftGear selects gear on the named shiftable component, recompiles the
// layout and remaps x onto it. Mechanical speeds are remapped so that the
// generalized momentum CᵀJCω is conserved across the shift; internal states
// are carried over unchanged.
//
// A shift that would change which DOFs are independent is rejected with
// ErrLayoutChanged and leaves the drivetrain untouched.
func (d *Drivetrain) ShiftGear(name string, gear int, x dynamo.State) (dynamo.State, error) {
	d.shiftMu.Lock()
	defer d.shiftMu.Unlock()

	s, ok := component.IsShiftable(d.byName[name])
	if !ok {
		return nil, fmt.Errorf("%q is not a shiftable component", name)
	}
	old := d.layout()
	if len(x) != len(old.independent)+len(d.internal) {
		return nil, fmt.Errorf("%w: state has %d entries, drivetrain has %d",
			dynamo.ErrDimensionMismatch, len(x), len(old.independent)+len(d.internal))
	}

	prev := s.Gear()
	s.SetGear(gear)
	if s.Gear() == prev {
		return x.Clone(), nil
	}

	next, err := d.buildLayout()
	if err != nil {
		s.SetGear(prev)
		return nil, err
	}
	if !sameDOFs(old, next) {
		s.SetGear(prev)
		return nil, fmt.Errorf("%w: shifting %s to gear %d", dynamo.ErrLayoutChanged, name, gear)
	}

	remapped, err := d.remap(old, next, x)
	if err != nil {
		s.SetGear(prev)
		return nil, err
	}
	d.current.Store(next)
	return remapped, nil
}

// ApplyGears applies every gear_<name> entry in control, flooring the
// requested value. It reports whether any gear changed.
func (d *Drivetrain) ApplyGears(control dynamo.Control, x dynamo.State) (dynamo.State, bool, error) {
	changed := false
	for _, name := range d.shifters {
		v, ok := control["gear_"+name]
		if !ok {
			continue
		}
		want := int(math.Floor(v))
		before, _ := d.Gear(name)
		if before == want {
			continue
		}
		next, err := d.ShiftGear(name, want, x)
		if err != nil {
			return x, changed, err
		}
		x = next
		if after, _ := d.Gear(name); after != before {
			changed = true
		}
	}
	return x, changed, nil
}

func sameDOFs(a, b *layout) bool {
	if len(a.independent) != len(b.independent) {
		return false
	}
	return slices.EqualFunc(a.independent, b.independent, func(p, q DOF) bool {
		return p.Name == q.Name
	})
}

// remap solves M_new ω_new = C_newᵀ J C_old ω_old.
func (d *Drivetrain) remap(old, next *layout, x dynamo.State) (dynamo.State, error) {
	n := len(next.independent)
	out := x.Clone()
	if n == 0 {
		return out, nil
	}

	jdiag, err := d.portInertias()
	if err != nil {
		return nil, err
	}
	cOld := elimMatrix(old)
	cNew := elimMatrix(next)

	w := mat.NewVecDense(len(old.independent), append([]float64(nil), x[:len(old.independent)]...))
	var speeds mat.VecDense
	speeds.MulVec(cOld, w)
	for i := range jdiag {
		speeds.SetVec(i, jdiag[i]*speeds.AtVec(i))
	}
	var momentum mat.VecDense
	momentum.MulVec(cNew.T(), &speeds)

	var wNew mat.VecDense
	if err := wNew.SolveVec(inertiaDense(next), &momentum); err != nil {
		return nil, fmt.Errorf("%w: %v", dynamo.ErrSingularMatrix, err)
	}
	for i := 0; i < n; i++ {
		out[i] = wNew.AtVec(i)
	}
	return out, nil
}
