// Package dynamo provides the orbit propagation primitives used to judge a
// learned gravity field by the trajectories it produces.
//
// The package defines:
//
//   - [State]: position and velocity, [x y z vx vy vz]
//   - [System]: an ODE right-hand side dX/dt = f(X, t)
//   - [Field]: anything that yields an acceleration at a position
//   - [Orbit]: the [System] of a test particle in a [Field]
//   - [Simulator]: steps a [System] with an [Integrator]
//
// # Example
//
//	orbit := dynamo.NewOrbit(field)
//	sim := dynamo.New(orbit, integrators.NewRK4())
//	result, err := sim.Run(ctx, dynamo.Circular(3, 1), dynamo.DefaultConfig())
//
// # Thread Safety
//
// Simulator instances are NOT thread-safe and neither are learned fields.
// [Ensemble] builds a fresh system and integrator per run, so a learned
// field may back at most one of its runs.
package dynamo
