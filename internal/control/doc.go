// Package control provides drivetrain controllers.
//
// Controllers map the named drivetrain state and the road grade to a
// control map of actuator torques (T_<name>) and gear requests
// (gear_<name>):
//
//   - [SpeedController]: PI speed loop shared equally among every engine
//     and motor, or by an explicit [Allocation], with speed-band gear
//     selection
//   - [ConventionalDiesel]: proportional engine torque with an rpm-derived
//     shift schedule for an engine and one powershift gearbox
//   - [ShiftController] and [MultiGearboxController]: schedule-driven
//     gear selection with shift lockout
//
// # Usage
//
//	ctrl, _ := control.NewSpeedController(d, 50000, 5000, nil)
//	ctrl.Target = 12
//	res, err := sim.New(d).Simulate(ctx, x0, ctrl, sim.ConstantGrade(0.05), cfg)
//
// Controllers exposing GetParams/SetParam support gain tuning.
package control
