// Package rimpull computes steady-state tractive effort curves straight
// from a graph document.
//
// The curves use closed-form torque envelopes per drivetrain archetype and
// never compile or integrate the drivetrain. The envelopes restate those of
// package component; a change to one must be carried to the other.
package rimpull

import (
	"fmt"
	"math"
	"slices"

	"github.com/san-kum/drivesim/internal/component"
	"github.com/san-kum/drivesim/internal/topology"
)

type Point struct {
	Velocity float64 `json:"velocity"`
	Force    float64 `json:"force"`
	Gear     int     `json:"gear,omitempty"`
}

type Curve struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
	Color  string  `json:"color"`
}

// Max returns the peak force of the curve.
func (c Curve) Max() float64 {
	peak := 0.0
	for _, p := range c.Points {
		peak = math.Max(peak, p.Force)
	}
	return peak
}

// At interpolates the force at velocity v; outside the curve it is zero.
func (c Curve) At(v float64) float64 {
	n := len(c.Points)
	if n == 0 || v < c.Points[0].Velocity || v > c.Points[n-1].Velocity {
		return 0
	}
	for i := 1; i < n; i++ {
		a, b := c.Points[i-1], c.Points[i]
		if v <= b.Velocity {
			if b.Velocity == a.Velocity {
				return b.Force
			}
			return a.Force + (b.Force-a.Force)*(v-a.Velocity)/(b.Velocity-a.Velocity)
		}
	}
	return c.Points[n-1].Force
}

type Archetype int

const (
	Unknown Archetype = iota
	Diesel
	ECVTSplit
	ECVTLockedSun
	Electric
)

func (a Archetype) String() string {
	switch a {
	case Diesel:
		return "diesel"
	case ECVTSplit:
		return "ecvt-split"
	case ECVTLockedSun:
		return "ecvt-locked-sun"
	case Electric:
		return "electric"
	}
	return "unknown"
}

const (
	g              = 9.81
	fixedReduction = 16.0
	dieselEta      = 0.92
	ecvtEngineRpm  = 1200.0
	ecvtRatedPower = 1_801_000.0
	ecvtVMax       = 60 / 3.6
	ecvtPoints     = 200
	curvePoints    = 50
	resistPoints   = 30
)

var (
	dieselColors     = []string{"#ef4444", "#f97316", "#eab308", "#22c55e", "#06b6d4", "#3b82f6", "#8b5cf6"}
	ecvtColors       = []string{"#3b82f6", "#ef4444"}
	lockedSunColors  = []string{"#8b5cf6", "#f97316"}
	electricColors   = []string{"#3b82f6", "#22c55e", "#f97316"}
	resistanceGrades = []float64{0, 0.05, 0.10, 0.15}
	resistanceColors = []string{"#555555", "#666666", "#888888", "#aaaaaa"}
)

func radPerSec(rpm float64) float64 { return rpm / component.RadPerSecToRpm }
func rpm(omega float64) float64     { return omega * component.RadPerSecToRpm }

// Detect classifies doc. A planetary with motors and an engine is a power
// split; with nothing on its sun it is a locked-sun split.
func Detect(doc *topology.GraphDoc) Archetype {
	engines := doc.NodesOfType(component.TypeEngine)
	motors := doc.NodesOfType(component.TypeMotor)
	planetaries := doc.NodesOfType(component.TypePlanetary)

	switch {
	case len(planetaries) > 0 && len(motors) > 0 && len(engines) > 0:
		if sunDriven(doc, planetaries[0].ID) {
			return ECVTSplit
		}
		return ECVTLockedSun
	case len(engines) > 0:
		return Diesel
	case len(motors) > 0:
		return Electric
	}
	return Unknown
}

func sunDriven(doc *topology.GraphDoc, planetary string) bool {
	for _, e := range doc.Edges {
		if (e.Source == planetary && e.SourceHandle == "sun") || (e.Target == planetary && e.TargetHandle == "sun") {
			return true
		}
	}
	return false
}

type vehicle struct {
	rWheel float64
	mass   float64
	cR     float64
}

// Compute returns the traction curves of doc's archetype followed by the
// resistance curves. A document without a vehicle yields no curves.
func Compute(doc *topology.GraphDoc) []Curve {
	vehicles := doc.NodesOfType(component.TypeVehicle)
	if len(vehicles) == 0 {
		return nil
	}
	vn := vehicles[0]
	v := vehicle{
		rWheel: vn.Param("rWheel", 1.78),
		mass:   vn.Param("mEmpty", 159_350) + vn.Param("mPayload", 190_000),
		cR:     vn.Param("cR", 0.025),
	}

	gearbox := transmission(doc)

	var curves []Curve
	switch Detect(doc) {
	case Diesel:
		curves = dieselCurves(doc.NodesOfType(component.TypeEngine)[0], gearbox, v)
	case ECVTSplit:
		curves = ecvtCurves(doc, gearbox, v, false)
	case ECVTLockedSun:
		curves = ecvtCurves(doc, gearbox, v, true)
	case Electric:
		curves = electricCurves(doc.NodesOfType(component.TypeMotor), gearbox, v)
	}
	return append(curves, Resistance(v.mass, v.cR)...)
}

// transmission is the first gearbox with more than one ratio, or the
// first gearbox when none is shiftable. Single-ratio reductions such as an
// MG1 reduction may precede the transmission in the node list.
func transmission(doc *topology.GraphDoc) *topology.Node {
	gbs := doc.NodesOfType(component.TypeGearbox)
	if len(gbs) == 0 {
		return nil
	}
	for i := range gbs {
		if len(gbs[i].ParamSlice("ratios", nil)) > 1 {
			return &gbs[i]
		}
	}
	return &gbs[0]
}

func dieselCurves(engine topology.Node, gearbox *topology.Node, v vehicle) []Curve {
	tPeak := engine.Param("tPeak", 11_220)
	pRated := engine.Param("pRated", 1_801_000)
	rpmIdle := engine.Param("rpmIdle", 700)
	rpmMax := engine.Param("rpmMax", 1800)
	omegaBase := pRated / tPeak

	ratios := []float64{1}
	if gearbox != nil {
		ratios = gearbox.ParamSlice("ratios", ratios)
	}

	curves := make([]Curve, 0, len(ratios))
	for gi, ratio := range ratios {
		total := ratio * fixedReduction
		vMin := radPerSec(rpmIdle) / total * v.rWheel
		vMax := radPerSec(rpmMax) / total * v.rWheel

		points := make([]Point, 0, curvePoints+1)
		for i := 0; i <= curvePoints; i++ {
			vel := vMin + (vMax-vMin)*float64(i)/curvePoints
			omega := vel / v.rWheel * total
			torque := tPeak
			if omega > omegaBase {
				torque = pRated / omega
			}
			points = append(points, Point{Velocity: vel, Force: torque * total * dieselEta / v.rWheel, Gear: gi + 1})
		}
		curves = append(curves, Curve{
			Name:   fmt.Sprintf("Gear %d (%.2f:1)", gi+1, ratio),
			Points: points,
			Color:  dieselColors[gi%len(dieselColors)],
		})
	}
	return curves
}

type machine struct {
	pMax, tMax, rpmMax, pBoost float64
}

// torqueAt is the constant torque / constant power envelope.
func (m machine) torqueAt(omega, power float64) float64 {
	omega = math.Abs(omega)
	if omega <= power/m.tMax {
		return m.tMax
	}
	return power / omega
}

// splitMachines orders motors by pMax: the smallest reacts on the sun (MG1),
// the next drives the ring (MG2).
func splitMachines(motors []topology.Node) (mg1, mg2 machine) {
	sorted := slices.Clone(motors)
	slices.SortStableFunc(sorted, func(a, b topology.Node) int {
		pa, pb := a.Param("pMax", 0), b.Param("pMax", 0)
		switch {
		case pa < pb:
			return -1
		case pa > pb:
			return 1
		}
		return 0
	})

	mg1 = machine{pMax: 200_000, tMax: 3000, rpmMax: 6000}
	mg2 = machine{pMax: 350_000, tMax: 2000, rpmMax: 6000, pBoost: 350_000}
	if len(sorted) > 0 {
		a, b := sorted[0], sorted[min(1, len(sorted)-1)]
		mg1 = machine{pMax: a.Param("pMax", 200_000), tMax: a.Param("tMax", 3000), rpmMax: a.Param("rpmMax", 6000)}
		mg2 = machine{pMax: b.Param("pMax", 350_000), tMax: b.Param("tMax", 2000), rpmMax: b.Param("rpmMax", 6000)}
		mg2.pBoost = b.Param("pBoost", mg2.pMax)
	}
	return mg1, mg2
}

func ecvtCurves(doc *topology.GraphDoc, gearbox *topology.Node, v vehicle, lockedSun bool) []Curve {
	engine := doc.NodesOfType(component.TypeEngine)[0]
	rpmEngMin := engine.Param("rpmIdle", 700)
	rpmEngMax := engine.Param("rpmMax", 1800)
	tEngMax := engine.Param("tPeak", 11_220)

	pl := doc.NodesOfType(component.TypePlanetary)[0]
	rho := pl.Param("zRing", 90) / pl.Param("zSun", 30)

	mg1, mg2 := splitMachines(doc.NodesOfType(component.TypeMotor))

	ratios := []float64{5.0, 0.67}
	effs := []float64{0.97, 0.97}
	if gearbox != nil {
		ratios = gearbox.ParamSlice("ratios", ratios)
		effs = gearbox.ParamSlice("efficiencies", effs)
	}

	engineTorque := func(omega float64) float64 {
		if omega <= ecvtRatedPower/tEngMax {
			return tEngMax
		}
		return ecvtRatedPower / omega
	}

	var curves []Curve
	for gi := 0; gi < min(len(ratios), 2); gi++ {
		eta := 0.97
		if gi < len(effs) && effs[gi] != 0 {
			eta = effs[gi]
		}
		kTotal := ratios[gi] * fixedReduction

		points := make([]Point, 0, ecvtPoints)
		for i := 1; i <= ecvtPoints; i++ {
			vel := ecvtVMax * float64(i) / ecvtPoints
			omegaRing := vel / v.rWheel * kTotal
			if rpm(omegaRing) > mg2.rpmMax {
				points = append(points, Point{Velocity: vel, Gear: gi + 1})
				continue
			}
			tMG2 := mg2.torqueAt(omegaRing, mg2.pBoost)

			var tEngine float64
			if lockedSun {
				tEngine = engineTorque(radPerSec(ecvtEngineRpm))
			} else {
				tEngine = splitEngineTorque(omegaRing, rho, rpmEngMin, rpmEngMax, mg1, engineTorque)
			}
			tRing := rho/(1+rho)*tEngine + tMG2
			force := tRing * kTotal * eta / v.rWheel
			points = append(points, Point{Velocity: vel, Force: math.Max(0, force), Gear: gi + 1})
		}

		name := "Low Gear"
		if gi == 1 {
			name = "High Gear"
		}
		color := ecvtColors[gi]
		if lockedSun {
			name += ", Locked Sun"
			color = lockedSunColors[gi]
		}
		curves = append(curves, Curve{
			Name:   fmt.Sprintf("%s (%.2f:1)", name, ratios[gi]),
			Points: points,
			Color:  color,
		})
	}
	return curves
}

// splitEngineTorque holds the engine near 1200 rpm, moves it as needed to
// keep MG1 inside its speed limit, and caps its torque at what MG1 can
// react through the sun.
func splitEngineTorque(omegaRing, rho, rpmMin, rpmMax float64, mg1 machine, engineTorque func(float64) float64) float64 {
	omegaEngine := radPerSec(ecvtEngineRpm)
	omegaMG1 := (1+rho)*omegaEngine - rho*omegaRing

	if math.Abs(rpm(omegaMG1)) > mg1.rpmMax {
		limit := radPerSec(math.Copysign(mg1.rpmMax, omegaMG1))
		omegaEngine = (limit + rho*omegaRing) / (1 + rho)
	}

	rpmEngine := math.Max(rpmMin, math.Min(rpmMax, rpm(omegaEngine)))
	omegaEngine = radPerSec(rpmEngine)
	omegaMG1 = (1+rho)*omegaEngine - rho*omegaRing

	tMG1 := mg1.torqueAt(omegaMG1, mg1.pMax)
	return math.Min(engineTorque(omegaEngine), (1+rho)*tMG1)
}

func electricCurves(motors []topology.Node, gearbox *topology.Node, v vehicle) []Curve {
	best := motors[0]
	for _, m := range motors[1:] {
		if m.Param("pMax", 0) > best.Param("pMax", 0) {
			best = m
		}
	}
	m := machine{pMax: best.Param("pMax", 350_000), tMax: best.Param("tMax", 3000), rpmMax: best.Param("rpmMax", 6000)}
	eta := best.Param("eta", 0.92)

	ratios := []float64{1}
	if gearbox != nil {
		ratios = gearbox.ParamSlice("ratios", ratios)
	}

	curves := make([]Curve, 0, len(ratios))
	for gi, ratio := range ratios {
		total := ratio * fixedReduction
		vMax := radPerSec(m.rpmMax) / total * v.rWheel

		points := make([]Point, 0, curvePoints)
		for i := 1; i <= curvePoints; i++ {
			vel := vMax * float64(i) / curvePoints
			omega := vel / v.rWheel * total
			torque := m.torqueAt(omega, m.pMax)
			points = append(points, Point{Velocity: vel, Force: torque * total * eta / v.rWheel, Gear: gi + 1})
		}
		curves = append(curves, Curve{
			Name:   fmt.Sprintf("Gear %d (%.2f:1)", gi+1, ratio),
			Points: points,
			Color:  electricColors[gi%len(electricColors)],
		})
	}
	return curves
}

// Resistance returns rolling plus grade resistance at 0, 5, 10 and 15 %
// grade up to 60 km/h. The force does not depend on velocity.
func Resistance(mass, cR float64) []Curve {
	rolling := mass * g * cR
	curves := make([]Curve, 0, len(resistanceGrades))
	for gi, grade := range resistanceGrades {
		force := rolling + mass*g*math.Sin(math.Atan(grade))
		points := make([]Point, 0, resistPoints+1)
		for i := 0; i <= resistPoints; i++ {
			points = append(points, Point{Velocity: ecvtVMax * float64(i) / resistPoints, Force: force})
		}
		name := "Rolling Resistance (0% grade)"
		if grade != 0 {
			name = fmt.Sprintf("Resistance (%.0f%% grade)", grade*100)
		}
		curves = append(curves, Curve{Name: name, Points: points, Color: resistanceColors[gi]})
	}
	return curves
}
