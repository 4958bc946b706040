// Package dynamo provides the primitives shared by the drivetrain compiler,
// the integrators and the simulator.
//
//   - [State]: flat ODE state vector (shaft speeds, then internal states)
//   - [Control]: named control inputs such as T_engine or gear_gearbox
//   - [Func]: ODE right-hand side
//   - [Config]: output grid, integration method and step size of a run
//
// Errors raised anywhere in the core are one of the sentinel errors in this
// package, possibly wrapped; test for them with errors.Is.
package dynamo
