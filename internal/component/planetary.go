package component

import "github.com/san-kum/drivesim/internal/port"

type PlanetaryParams struct {
	ZSun          float64 `yaml:"zSun" json:"zSun"`
	ZRing         float64 `yaml:"zRing" json:"zRing"`
	JSun          float64 `yaml:"jSun" json:"jSun"`
	JCarrier      float64 `yaml:"jCarrier" json:"jCarrier"`
	JRing         float64 `yaml:"jRing" json:"jRing"`
	EtaSunPlanet  float64 `yaml:"etaSunPlanet" json:"etaSunPlanet"`
	EtaPlanetRing float64 `yaml:"etaPlanetRing" json:"etaPlanetRing"`
	UseEfficiency bool    `yaml:"useEfficiency" json:"useEfficiency"`
}

func DefaultPlanetaryParams() PlanetaryParams {
	return PlanetaryParams{
		ZSun:          30,
		ZRing:         90,
		JSun:          0.5,
		JCarrier:      1,
		JRing:         0.5,
		EtaSunPlanet:  0.98,
		EtaPlanetRing: 0.98,
		UseEfficiency: true,
	}
}

// Planetary is a simple planetary gear set; its sun speed is fixed by the
// carrier and ring speeds through the Willis relation.
type Planetary struct {
	base
	Params PlanetaryParams

	willis *port.Willis
}

func NewPlanetary(name string, p PlanetaryParams) *Planetary {
	rho := 0.0
	if p.ZSun > 0 {
		rho = p.ZRing / p.ZSun
	}
	return &Planetary{
		base: base{
			name: name,
			ports: []port.Port{
				port.NewMechanical("sun", port.Bidirectional),
				port.NewMechanical("carrier", port.Bidirectional),
				port.NewMechanical("ring", port.Bidirectional),
			},
		},
		Params: p,
		willis: port.NewWillis("sun", "carrier", "ring", rho),
	}
}

func (p *Planetary) Kind() Kind   { return KindPlanetary }
func (p *Planetary) Rho() float64 { return p.willis.Rho }

func (p *Planetary) Eta() float64 {
	if !p.Params.UseEfficiency {
		return 1
	}
	return p.Params.EtaSunPlanet * p.Params.EtaPlanetRing
}

func (p *Planetary) Inertia(portName string) (float64, error) {
	switch portName {
	case "sun":
		return p.Params.JSun, nil
	case "carrier":
		return p.Params.JCarrier, nil
	case "ring":
		return p.Params.JRing, nil
	}
	return 0, p.unknownPort(portName)
}

func (p *Planetary) Constraints() []port.Constraint {
	return []port.Constraint{p.willis}
}

func (p *Planetary) SunSpeed(carrier, ring float64) float64 { return p.willis.SunSpeed(carrier, ring) }

func (p *Planetary) CarrierSpeed(sun, ring float64) float64 {
	return p.willis.CarrierSpeed(sun, ring)
}

func (p *Planetary) RingSpeed(carrier, sun float64) float64 { return p.willis.RingSpeed(carrier, sun) }

func (p *Planetary) TorqueRatios() (sun, carrier, ring float64) { return p.willis.TorqueRatios() }

// TorqueSplit distributes a carrier torque to the sun and the ring.
func (p *Planetary) TorqueSplit(tCarrier float64, withEfficiency bool) (tSun, tRing float64) {
	rho := p.Rho()
	tSun = -tCarrier / (1 + rho)
	tRing = tSun * rho
	if withEfficiency {
		tRing *= p.Eta()
	}
	return tSun, tRing
}

func (p *Planetary) InertiaCoefficients(jSun float64) (cc, cr, rr float64) {
	return p.willis.InertiaCoefficients(jSun)
}

func (p *Planetary) ComputeTorques(_, _, _ map[string]float64) map[string]float64 {
	return nil
}

func (p *Planetary) Validate() []string {
	var errs []string
	if p.Params.ZSun <= 0 || p.Params.ZRing <= 0 {
		errs = append(errs, "tooth counts must be positive")
	} else if p.Params.ZRing <= p.Params.ZSun {
		errs = append(errs, "ring must have more teeth than sun")
	}
	return errs
}
