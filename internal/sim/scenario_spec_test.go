package sim_test

import (
	"context"
	"io"
	"log/slog"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/drivesim/internal/control"
	"github.com/san-kum/drivesim/internal/drivetrain"
	"github.com/san-kum/drivesim/internal/dynamo"
	"github.com/san-kum/drivesim/internal/sim"
	"github.com/san-kum/drivesim/internal/topology"
)

func build(name string) *drivetrain.Drivetrain {
	doc, ok := topology.Preset(name)
	Expect(ok).To(BeTrue())
	topo, err := doc.Build()
	Expect(err).NotTo(HaveOccurred())
	d, err := drivetrain.Compile(topo)
	Expect(err).NotTo(HaveOccurred())
	return d
}

var _ = Describe("Driving scenarios", func() {
	var (
		quiet *slog.Logger
		cfg   dynamo.Config
	)

	BeforeEach(func() {
		quiet = slog.New(slog.NewTextHandler(io.Discard, nil))
		cfg = dynamo.DefaultConfig()
		cfg.MaxStep = 0.01
	})

	Context("diesel haul truck on the flat", func() {
		var res *sim.Result

		BeforeEach(func() {
			d := build("diesel-793d")
			ctrl, err := control.NewConventionalDiesel(d, "engine", "gearbox")
			Expect(err).NotTo(HaveOccurred())
			ctrl.Target = 12

			res, err = sim.New(d, sim.WithLogger(quiet)).
				Simulate(context.Background(), sim.InitialState(d, 0), ctrl, sim.ConstantGrade(0), cfg)
			Expect(err).NotTo(HaveOccurred())
		})

		It("reaches the target speed", func() {
			v, ok := res.Final("velocity")
			Expect(ok).To(BeTrue())
			Expect(v).To(BeNumerically("~", 12, 0.5))
		})

		It("burns fuel and has no battery", func() {
			fuel, ok := res.FuelTotal()
			Expect(ok).To(BeTrue())
			Expect(fuel).To(BeNumerically(">", 0))

			_, hasSOC := res.SOC()
			Expect(hasSOC).To(BeFalse())
		})

		It("upshifts through the box", func() {
			Expect(res.Metadata["gear_shifts"]).To(BeNumerically(">=", 2))
			gear, _ := res.Final("gearbox.gear")
			Expect(gear).To(BeNumerically(">=", 2))
		})

		It("keeps the engine inside its speed range", func() {
			rpm := res.Outputs["rpm_engine"]
			Expect(rpm).To(HaveLen(res.NumPoints()))
			for _, r := range rpm[1:] {
				Expect(r).To(BeNumerically("<", 2050))
			}
		})
	})

	Context("eCVT power split", func() {
		It("satisfies the Willis relation at every sample", func() {
			d := build("ecvt-split")
			ctrl, err := control.NewSpeedController(d, control.DefaultSpeedKp, control.DefaultSpeedKi, nil)
			Expect(err).NotTo(HaveOccurred())
			ctrl.Target = 10

			cfg.TEnd = 20
			res, err := sim.New(d, sim.WithLogger(quiet)).
				Simulate(context.Background(), sim.InitialState(d, 1), ctrl, sim.ConstantGrade(0), cfg)
			Expect(err).NotTo(HaveOccurred())

			x := make(dynamo.State, len(res.StateNames))
			for k := range res.Time {
				for i, name := range res.StateNames {
					x[i] = res.States[name][k]
				}
				s := d.AllSpeeds(x)
				residual := s["planetary.sun"] + 3*s["planetary.ring"] - 4*s["planetary.carrier"]
				Expect(math.Abs(residual)).To(BeNumerically("<", 1e-6))
			}

			soc, ok := res.SOC()
			Expect(ok).To(BeTrue())
			Expect(soc).To(HaveLen(res.NumPoints()))
		})
	})

	Context("battery electric on a haul cycle", func() {
		It("follows the cycle's speed schedule", func() {
			d := build("electric")
			hc := sim.DefaultHaulCycle()
			hc.LoadGrade = 0.005
			hc.LoadSpeed = 4
			ctrl, err := control.NewSpeedController(d, control.DefaultSpeedKp, control.DefaultSpeedKi, hc.TargetSpeed)
			Expect(err).NotTo(HaveOccurred())

			cfg.TEnd = 30
			res, err := sim.New(d, sim.WithLogger(quiet)).
				Simulate(context.Background(), sim.InitialState(d, 4), ctrl, hc, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Success).To(BeTrue())

			grade := res.Outputs["grade"]
			Expect(grade[0]).To(BeNumerically("~", 0.005, 1e-12))
			v, _ := res.Final("velocity")
			Expect(v).To(BeNumerically("~", 4, 1))
		})
	})

	DescribeTable("async and synchronous runs agree",
		func(preset string, torque float64) {
			cfg.TEnd = 5
			cfg.DtOutput = 0.5
			ctrl := sim.ControlFunc(func(float64, map[string]float64, float64) dynamo.Control {
				return dynamo.Control{"T_traction": torque}
			})

			d1 := build(preset)
			syncRes, err := sim.New(d1, sim.WithLogger(quiet)).Simulate(context.Background(), sim.InitialState(d1, 4), ctrl, nil, cfg)
			Expect(err).NotTo(HaveOccurred())

			d2 := build(preset)
			async, err := sim.New(d2, sim.WithLogger(quiet)).SimulateAsync(context.Background(), sim.InitialState(d2, 4), ctrl, nil, cfg).Wait()
			Expect(err).NotTo(HaveOccurred())

			Expect(async.NumPoints()).To(Equal(syncRes.NumPoints()))
			a, _ := async.Final("velocity")
			s, _ := syncRes.Final("velocity")
			Expect(a).To(BeNumerically("~", s, 1e-6))
		},
		Entry("coasting", "electric", 0.0),
		Entry("motoring", "electric", 2500.0),
		Entry("regenerating", "electric", -1500.0),
	)
})
