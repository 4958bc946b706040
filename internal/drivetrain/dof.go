package drivetrain

import (
	"fmt"
	"math"

	"github.com/san-kum/drivesim/internal/dynamo"
	"github.com/san-kum/drivesim/internal/port"
)

// coeffEpsilon is the magnitude below which an elimination coefficient is
// treated as zero.
const coeffEpsilon = 1e-12

// DOF is one mechanical port speed. Index is the position in the state
// vector for independent DOFs and the position in the full port list
// otherwise.
type DOF struct {
	Name      string
	Component string
	Port      string
	Index     int
}

func dofName(comp, p string) string { return comp + "." + p }

type term struct {
	dof   string
	coeff float64
}

// linComb is a linear combination of DOF speeds kept in insertion order so
// that every sum over it is evaluated in the same order on every compile.
type linComb []term

func (l *linComb) add(dof string, c float64) {
	for i := range *l {
		if (*l)[i].dof == dof {
			(*l)[i].coeff += c
			return
		}
	}
	*l = append(*l, term{dof: dof, coeff: c})
}

func (l linComb) coeff(dof string) float64 {
	for _, t := range l {
		if t.dof == dof {
			return t.coeff
		}
	}
	return 0
}

func (l linComb) String() string {
	s := ""
	for i, t := range l {
		if i > 0 {
			s += " + "
		}
		s += fmt.Sprintf("%.6g*%s", t.coeff, t.dof)
	}
	return s
}

// elimination records how a DOF was removed from the independent set. expr
// may reference other eliminated DOFs; it is resolved separately.
type elimination struct {
	dof       string
	component string
	kind      port.Kind
	expr      linComb
}

// resolver expands eliminated DOFs into independent ones, walking the
// elimination graph depth first and rejecting cycles.
type resolver struct {
	independent map[string]bool
	eliminated  map[string]*elimination
	memo        map[string]linComb
	visiting    map[string]bool
}

func newResolver(independent map[string]bool, eliminated map[string]*elimination) *resolver {
	return &resolver{
		independent: independent,
		eliminated:  eliminated,
		memo:        make(map[string]linComb),
		visiting:    make(map[string]bool),
	}
}

func (r *resolver) resolve(dof string) (linComb, error) {
	if r.independent[dof] {
		return linComb{{dof: dof, coeff: 1}}, nil
	}
	if out, ok := r.memo[dof]; ok {
		return out, nil
	}
	e, ok := r.eliminated[dof]
	if !ok {
		return nil, fmt.Errorf("%w: %s", dynamo.ErrDOFNotFound, dof)
	}
	if r.visiting[dof] {
		return nil, fmt.Errorf("%w: %s references itself", dynamo.ErrCyclicConstraintGraph, dof)
	}
	r.visiting[dof] = true
	defer delete(r.visiting, dof)

	var out linComb
	for _, t := range e.expr {
		sub, err := r.resolve(t.dof)
		if err != nil {
			return nil, err
		}
		for _, s := range sub {
			out.add(s.dof, t.coeff*s.coeff)
		}
	}
	r.memo[dof] = out
	return out, nil
}

// eliminate reduces the full DOF list by the inter-component connections and
// then by each component's own kinematic constraints.
func (d *Drivetrain) eliminate() (map[string]bool, map[string]*elimination, []string, error) {
	independent := make(map[string]bool, len(d.allDOFs))
	for _, dof := range d.allDOFs {
		independent[dof.Name] = true
	}
	eliminated := make(map[string]*elimination)
	var order []string

	for _, c := range d.topo.Connections() {
		if !d.isMechanical(c.FromComponent, c.FromPort) {
			continue
		}
		from := dofName(c.FromComponent, c.FromPort)
		to := dofName(c.ToComponent, c.ToPort)
		if !independent[to] {
			continue
		}
		delete(independent, to)
		eliminated[to] = &elimination{
			dof:       to,
			component: "connection",
			kind:      port.KindRigid,
			expr:      linComb{{dof: from, coeff: 1}},
		}
		order = append(order, to)
	}

	for _, comp := range d.components {
		name := comp.Name()
		for _, con := range comp.Constraints() {
			dep := con.DependentPort()
			depDOF := dofName(name, dep)
			rel := con.SpeedRelation()
			depCoeff := rel.Coeff(dep)
			if math.Abs(depCoeff) < coeffEpsilon {
				continue
			}

			var expr linComb
			for _, t := range rel {
				if t.Port == dep {
					continue
				}
				resolved, err := newResolver(independent, eliminated).resolve(dofName(name, t.Port))
				if err != nil {
					return nil, nil, nil, fmt.Errorf("component %s: %w", name, err)
				}
				for _, r := range resolved {
					expr.add(r.dof, -(t.Coeff/depCoeff)*r.coeff)
				}
			}

			if independent[depDOF] {
				if math.Abs(expr.coeff(depDOF)) > coeffEpsilon {
					return nil, nil, nil, fmt.Errorf("%w: %s constrained through itself", dynamo.ErrCyclicConstraintGraph, depDOF)
				}
				delete(independent, depDOF)
				eliminated[depDOF] = &elimination{dof: depDOF, component: name, kind: con.Kind(), expr: expr}
				order = append(order, depDOF)
				continue
			}

			target, hop, err := hopTarget(depDOF, expr, independent, eliminated)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("component %s: %w", name, err)
			}
			if target == "" {
				continue
			}
			delete(independent, target)
			eliminated[target] = &elimination{dof: target, component: name, kind: con.Kind(), expr: hop}
			order = append(order, target)
		}
	}

	return independent, eliminated, order, nil
}

// hopTarget handles a constraint whose dependent DOF was already eliminated,
// typically by a rigid connection. Equating the existing expression with the
// constraint expression gives a relation over independent DOFs; the first
// DOF of the existing expression that the relation involves is eliminated
// instead. An empty target means the constraint is redundant.
func hopTarget(depDOF string, expr linComb, independent map[string]bool, eliminated map[string]*elimination) (string, linComb, error) {
	existing, err := newResolver(independent, eliminated).resolve(depDOF)
	if err != nil {
		return "", nil, err
	}

	var diff linComb
	for _, t := range existing {
		diff.add(t.dof, t.coeff)
	}
	for _, t := range expr {
		diff.add(t.dof, -t.coeff)
	}

	target := ""
	for _, t := range existing {
		if math.Abs(diff.coeff(t.dof)) > coeffEpsilon {
			target = t.dof
			break
		}
	}
	if target == "" {
		for _, t := range diff {
			if math.Abs(t.coeff) > coeffEpsilon {
				target = t.dof
				break
			}
		}
	}
	if target == "" {
		return "", nil, nil
	}

	pivot := diff.coeff(target)
	var hop linComb
	for _, t := range diff {
		if t.dof == target || math.Abs(t.coeff) < coeffEpsilon {
			continue
		}
		hop.add(t.dof, -t.coeff/pivot)
	}
	return target, hop, nil
}
