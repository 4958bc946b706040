package drivetrain

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/drivesim/internal/component"
	"github.com/san-kum/drivesim/internal/dynamo"
	"github.com/san-kum/drivesim/internal/topology"
)

func gearOf(d *Drivetrain, name string) int {
	g, _ := d.Gear(name)
	return g
}

var _ = Describe("Gear shifting", func() {
	var (
		d *Drivetrain
		x dynamo.State
	)

	build := func(ratios ...float64) *Drivetrain {
		p := component.DefaultGearboxParams()
		p.Ratios = ratios
		p.Efficiencies = nil
		topo := topology.New("shift")
		for _, c := range []component.Component{
			component.NewEngine("engine", component.DefaultEngineParams()),
			component.NewGearbox("gearbox", p),
			component.NewFinalDrive("final_drive", 16, 0.96),
			component.NewVehicle("vehicle", component.DefaultVehicleParams()),
		} {
			Expect(topo.AddComponent(c)).To(Succeed())
		}
		Expect(topo.Connect("engine", "shaft", "gearbox", "input")).To(Succeed())
		Expect(topo.Connect("gearbox", "output", "final_drive", "input")).To(Succeed())
		Expect(topo.Connect("final_drive", "output", "vehicle", "wheels")).To(Succeed())
		Expect(topo.SetOutput("vehicle", "wheels")).To(Succeed())
		out, err := compile(topo)
		Expect(err).NotTo(HaveOccurred())
		return out
	}

	Context("with a powershift transmission", func() {
		BeforeEach(func() {
			d = build(4.59, 2.95, 1.94, 1.40, 1.0, 0.74, 0.65)
			x = dynamo.State{1500 / component.RadPerSecToRpm}
		})

		It("walks up every gear with falling engine speed", func() {
			for g := 1; g < 7; g++ {
				next, err := d.ShiftGear("gearbox", g, x)
				Expect(err).NotTo(HaveOccurred())
				Expect(next[0]).To(BeNumerically("<", x[0]))
				x = next
			}
			Expect(gearOf(d, "gearbox")).To(Equal(6))
		})

		It("clamps requests beyond the top gear", func() {
			_, err := d.ShiftGear("gearbox", 6, x)
			Expect(err).NotTo(HaveOccurred())
			next, err := d.ShiftGear("gearbox", 42, x)
			Expect(err).NotTo(HaveOccurred())
			Expect(next).To(Equal(x))
			Expect(gearOf(d, "gearbox")).To(Equal(6))
		})

		It("updates the reduced inertia", func() {
			before := d.InertiaMatrix()[0][0]
			_, err := d.ShiftGear("gearbox", 4, x)
			Expect(err).NotTo(HaveOccurred())
			Expect(d.InertiaMatrix()[0][0]).To(BeNumerically(">", before))
		})

		It("keeps the dynamics finite after a shift", func() {
			next, err := d.ShiftGear("gearbox", 3, x)
			Expect(err).NotTo(HaveOccurred())
			dx, err := d.Dynamics(0, next, dynamo.Control{"T_engine": 9000}, 0.1)
			Expect(err).NotTo(HaveOccurred())
			Expect(math.IsNaN(dx[0])).To(BeFalse())
		})
	})

	Context("when a gear would free a shaft", func() {
		BeforeEach(func() {
			d = build(2, 0)
			x = dynamo.State{100}
		})

		It("rejects the shift and keeps the old layout", func() {
			_, err := d.ShiftGear("gearbox", 1, x)
			Expect(err).To(MatchError(dynamo.ErrLayoutChanged))
			Expect(gearOf(d, "gearbox")).To(Equal(0))
			Expect(d.NumMechanicalDOFs()).To(Equal(1))

			gb, _ := d.Component("gearbox")
			Expect(gb.(*component.Gearbox).Gear()).To(Equal(0))
		})
	})
})

var _ = Describe("Compiled presets", func() {
	DescribeTable("satisfy every component constraint",
		func(name string) {
			doc, ok := topology.Preset(name)
			Expect(ok).To(BeTrue())
			topo, err := doc.Build()
			Expect(err).NotTo(HaveOccurred())
			d, err := Compile(topo)
			Expect(err).NotTo(HaveOccurred())

			x := make(dynamo.State, d.NumStates())
			for i := 0; i < d.NumMechanicalDOFs(); i++ {
				x[i] = 37.5 * float64(i+1)
			}
			speeds := d.AllSpeeds(x)
			for _, c := range d.Components() {
				local := map[string]float64{}
				for _, p := range component.MechanicalPorts(c) {
					local[p.Name] = speeds[c.Name()+"."+p.Name]
				}
				for _, con := range c.Constraints() {
					Expect(con.SpeedRelation().Residual(local)).To(BeNumerically("~", 0, 1e-9))
				}
			}
			for _, conn := range topo.Connections() {
				Expect(speeds[conn.FromComponent+"."+conn.FromPort]).To(
					BeNumerically("~", speeds[conn.ToComponent+"."+conn.ToPort], 1e-12))
			}
		},
		Entry("diesel 793D", "diesel-793d"),
		Entry("diesel 789D", "diesel-789d"),
		Entry("eCVT split", "ecvt-split"),
		Entry("eCVT detailed", "ecvt-detailed"),
		Entry("electric", "electric"),
	)
})
