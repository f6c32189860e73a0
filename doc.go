// Package impulse3d is a real-time, impulse-based rigid body dynamics engine:
// semi-implicit Euler integration with optional substepping, speculative
// contacts, a constraint/motor plugin contract, and island-based sleeping.
//
// The package owns the simulation step pipeline and its data substrate: pools
// of bodies/contacts/constraints, a dynamic AABB broadphase, persistent
// contact manifolds, a sequential-impulse solver, and the world orchestrator
// that ties a frame together. Concrete convex shape geometry, the narrowphase
// MPR/EPA math, and everything outside the simulation core (renderers, asset
// loading, CLI) are explicitly out of scope; shapes are consumed through the
// Shape interface.
package impulse3d
