package port

type Kind int

const (
	KindGearRatio Kind = iota
	KindWillis
	KindRigid
)

func (k Kind) String() string {
	switch k {
	case KindGearRatio:
		return "gear_ratio"
	case KindWillis:
		return "willis"
	case KindRigid:
		return "rigid"
	default:
		return "unknown"
	}
}

// Term is one coefficient of a speed relation.
type Term struct {
	Port  string
	Coeff float64
}

// Relation is the left-hand side of sum(coeff_i * w_i) = 0, in declaration
// order.
type Relation []Term

// Coeff returns the coefficient of p, or zero when p does not appear.
func (r Relation) Coeff(p string) float64 {
	for _, t := range r {
		if t.Port == p {
			return t.Coeff
		}
	}
	return 0
}

// Residual evaluates the relation for the given port speeds.
func (r Relation) Residual(speeds map[string]float64) float64 {
	sum := 0.0
	for _, t := range r {
		sum += t.Coeff * speeds[t.Port]
	}
	return sum
}

// Constraint is a linear speed relation with one port designated as the
// dependent port expressible through the others.
type Constraint interface {
	Kind() Kind
	SpeedRelation() Relation
	DependentPort() string
	IndependentPorts() []string
}

// GearRatio enforces w_in - ratio*w_out = 0.
type GearRatio struct {
	InputPort  string
	OutputPort string
	Ratio      float64
	Efficiency float64
}

func NewGearRatio(in, out string, ratio, efficiency float64) *GearRatio {
	if efficiency == 0 {
		efficiency = 1
	}
	return &GearRatio{InputPort: in, OutputPort: out, Ratio: ratio, Efficiency: efficiency}
}

func (g *GearRatio) Kind() Kind { return KindGearRatio }

func (g *GearRatio) SpeedRelation() Relation {
	return Relation{
		{Port: g.InputPort, Coeff: 1},
		{Port: g.OutputPort, Coeff: -g.Ratio},
	}
}

func (g *GearRatio) DependentPort() string      { return g.OutputPort }
func (g *GearRatio) IndependentPorts() []string { return []string{g.InputPort} }

// TransformSpeed maps input speed to output speed.
func (g *GearRatio) TransformSpeed(omegaIn float64) float64 {
	return omegaIn / g.Ratio
}

// InverseTransformSpeed maps output speed back to input speed.
func (g *GearRatio) InverseTransformSpeed(omegaOut float64) float64 {
	return omegaOut * g.Ratio
}

// TransformTorque back-propagates an output torque to the input through the
// ratio and the mesh losses.
func (g *GearRatio) TransformTorque(torqueOut float64) float64 {
	return torqueOut / (g.Ratio * g.Efficiency)
}

func (g *GearRatio) ReflectedInertia(jOutput float64) float64 {
	return jOutput / (g.Ratio * g.Ratio)
}

// Willis is the planetary relation w_sun - (1+rho)*w_carrier + rho*w_ring = 0
// with rho = Z_ring/Z_sun. The sun is the dependent port.
type Willis struct {
	SunPort     string
	CarrierPort string
	RingPort    string
	Rho         float64
}

func NewWillis(sun, carrier, ring string, rho float64) *Willis {
	return &Willis{SunPort: sun, CarrierPort: carrier, RingPort: ring, Rho: rho}
}

func (w *Willis) Kind() Kind { return KindWillis }

func (w *Willis) SpeedRelation() Relation {
	return Relation{
		{Port: w.SunPort, Coeff: 1},
		{Port: w.CarrierPort, Coeff: -(1 + w.Rho)},
		{Port: w.RingPort, Coeff: w.Rho},
	}
}

func (w *Willis) DependentPort() string      { return w.SunPort }
func (w *Willis) IndependentPorts() []string { return []string{w.CarrierPort, w.RingPort} }

func (w *Willis) SunSpeed(carrier, ring float64) float64 {
	return (1+w.Rho)*carrier - w.Rho*ring
}

func (w *Willis) CarrierSpeed(sun, ring float64) float64 {
	return (sun + w.Rho*ring) / (1 + w.Rho)
}

func (w *Willis) RingSpeed(carrier, sun float64) float64 {
	return ((1+w.Rho)*carrier - sun) / w.Rho
}

// TorqueRatios returns sun:carrier:ring = 1 : -(1+rho) : rho.
func (w *Willis) TorqueRatios() (sun, carrier, ring float64) {
	return 1, -(1 + w.Rho), w.Rho
}

// InertiaCoefficients returns the carrier/ring coupling of a sun inertia once
// the sun speed is eliminated.
func (w *Willis) InertiaCoefficients(jSun float64) (cc, cr, rr float64) {
	k := 1 + w.Rho
	return k * k * jSun, -k * w.Rho * jSun, w.Rho * w.Rho * jSun
}

// Rigid forces w_a = w_b, with b dependent.
type Rigid struct {
	A string
	B string
}

func NewRigid(a, b string) *Rigid {
	return &Rigid{A: a, B: b}
}

func (r *Rigid) Kind() Kind { return KindRigid }

func (r *Rigid) SpeedRelation() Relation {
	return Relation{
		{Port: r.A, Coeff: 1},
		{Port: r.B, Coeff: -1},
	}
}

func (r *Rigid) DependentPort() string      { return r.B }
func (r *Rigid) IndependentPorts() []string { return []string{r.A} }
