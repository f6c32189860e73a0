package impulse3d

import "math"

// Constraint is the plugin contract third-party joints and motors implement.
// The solver never special-cases a joint type; it only calls Prepare once
// per substep and Iterate the configured number of velocity-iteration
// passes, the same init/solve split contacts use internally, exposed as a
// single interface instead of an internal type switch.
type Constraint interface {
	// Prepare computes effective mass, bias, and warm-start impulse
	// application for the coming substep. bodies resolves a handle to its
	// hot record for direct velocity read/write.
	Prepare(dt float64, bodies func(BodyHandle) *bodyRecord)

	// Iterate applies one sequential-impulse correction pass.
	Iterate(bodies func(BodyHandle) *bodyRecord)

	// IsEnabled reports whether this constraint currently participates in
	// the solve; constraints can be disabled without removal.
	IsEnabled() bool

	// Bodies returns the one or two bodies this constraint couples, for
	// island-graph membership. A one-body constraint (anchored to the world)
	// returns the world anchor as its second body.
	Bodies() (BodyHandle, BodyHandle)

	Handle() ConstraintHandle
	setHandle(ConstraintHandle)
}

// ConstraintRow is one scalar row of a constraint's Jacobian, the unit every
// concrete constraint assembles Prepare/Iterate out of: an arbitrary
// linear+angular Jacobian pair, general enough to cover both contact
// normal/tangent rows and joint rows.
type ConstraintRow struct {
	JacobianLinearA, JacobianAngularA Vec3
	JacobianLinearB, JacobianAngularB Vec3

	EffectiveMass float64
	Bias          float64

	LowerBound, UpperBound float64
	AccumulatedImpulse     float64
}

// effectiveMass computes 1/(J * M^-1 * J^T) for this row against bodies a/b.
func (r *ConstraintRow) computeEffectiveMass(a, b *bodyRecord) {
	k := a.InverseMass*r.JacobianLinearA.Dot(r.JacobianLinearA) +
		mulVec3(a.InverseInertiaWorld, r.JacobianAngularA).Dot(r.JacobianAngularA) +
		b.InverseMass*r.JacobianLinearB.Dot(r.JacobianLinearB) +
		mulVec3(b.InverseInertiaWorld, r.JacobianAngularB).Dot(r.JacobianAngularB)
	if k > 1e-12 {
		r.EffectiveMass = 1.0 / k
	} else {
		r.EffectiveMass = 0
	}
}

// velocityError evaluates J*v for the current body velocities.
func (r *ConstraintRow) velocityError(a, b *bodyRecord) float64 {
	return r.JacobianLinearA.Dot(a.LinearVelocity) +
		r.JacobianAngularA.Dot(a.AngularVelocity) +
		r.JacobianLinearB.Dot(b.LinearVelocity) +
		r.JacobianAngularB.Dot(b.AngularVelocity)
}

// applyImpulse pushes a scalar impulse magnitude along this row's Jacobian
// into both bodies' velocity accumulators.
func (r *ConstraintRow) applyImpulse(magnitude float64, a, b *bodyRecord) {
	a.LinearVelocity = a.LinearVelocity.Add(r.JacobianLinearA.Mul(magnitude * a.InverseMass))
	a.AngularVelocity = a.AngularVelocity.Add(mulVec3(a.InverseInertiaWorld, r.JacobianAngularA.Mul(magnitude)))
	b.LinearVelocity = b.LinearVelocity.Add(r.JacobianLinearB.Mul(magnitude * b.InverseMass))
	b.AngularVelocity = b.AngularVelocity.Add(mulVec3(b.InverseInertiaWorld, r.JacobianAngularB.Mul(magnitude)))
}

// solve runs one clamped sequential-impulse correction for this row.
func (r *ConstraintRow) solve(a, b *bodyRecord) {
	if r.EffectiveMass == 0 {
		return
	}
	jv := r.velocityError(a, b)
	lambda := -r.EffectiveMass * (jv + r.Bias)

	old := r.AccumulatedImpulse
	next := old + lambda
	if next < r.LowerBound {
		next = r.LowerBound
	}
	if next > r.UpperBound {
		next = r.UpperBound
	}
	lambda = next - old
	r.AccumulatedImpulse = next

	r.applyImpulse(lambda, a, b)
}

// baseConstraint gives concrete constraint types their handle and enable
// bookkeeping so they only need to implement Prepare/Iterate/Bodies.
type baseConstraint struct {
	h       ConstraintHandle
	enabled bool
}

func (c *baseConstraint) Handle() ConstraintHandle     { return c.h }
func (c *baseConstraint) setHandle(h ConstraintHandle) { c.h = h }
func (c *baseConstraint) IsEnabled() bool              { return c.enabled }
func (c *baseConstraint) SetEnabled(v bool)            { c.enabled = v }

// DistanceConstraint holds two bodies at a fixed separation between two
// anchor points, one per body, local space: a single scalar row along the
// anchor-to-anchor axis, Baumgarte-stabilized rather than position-solved.
type DistanceConstraint struct {
	baseConstraint

	BodyA, BodyB     BodyHandle
	LocalAnchorA     Vec3
	LocalAnchorB     Vec3
	RestLength       float64
	BaumgarteBeta    float64 // default 0.2, shared with contacts
	row              ConstraintRow
	worldAnchorA     Vec3
	worldAnchorB     Vec3
}

func NewDistanceConstraint(bodyA, bodyB BodyHandle, localAnchorA, localAnchorB Vec3, restLength float64) *DistanceConstraint {
	return &DistanceConstraint{
		baseConstraint: baseConstraint{enabled: true},
		BodyA:          bodyA,
		BodyB:          bodyB,
		LocalAnchorA:   localAnchorA,
		LocalAnchorB:   localAnchorB,
		RestLength:     restLength,
		BaumgarteBeta:  0.2,
	}
}

func (d *DistanceConstraint) Bodies() (BodyHandle, BodyHandle) { return d.BodyA, d.BodyB }

func (d *DistanceConstraint) Prepare(dt float64, bodies func(BodyHandle) *bodyRecord) {
	a, b := bodies(d.BodyA), bodies(d.BodyB)

	d.worldAnchorA = a.Position.Add(mulVec3(a.Orientation, d.LocalAnchorA))
	d.worldAnchorB = b.Position.Add(mulVec3(b.Orientation, d.LocalAnchorB))

	delta := d.worldAnchorB.Sub(d.worldAnchorA)
	length := delta.Dot(delta)
	var axis Vec3
	if length > 1e-12 {
		length = math.Sqrt(length)
		axis = delta.Mul(1.0 / length)
	} else {
		length = 0
		axis = Vec3{0, 1, 0}
	}

	rA := d.worldAnchorA.Sub(a.Position)
	rB := d.worldAnchorB.Sub(b.Position)

	// Carry the previous substep's accumulated impulse into the rebuilt row
	// so the warm start below applies it.
	warmStart := d.row.AccumulatedImpulse
	d.row = ConstraintRow{
		JacobianLinearA:    axis.Mul(-1),
		JacobianAngularA:   rA.Cross(axis).Mul(-1),
		JacobianLinearB:    axis,
		JacobianAngularB:   rB.Cross(axis),
		LowerBound:         negInf,
		UpperBound:         posInf,
		AccumulatedImpulse: warmStart,
	}
	d.row.computeEffectiveMass(a, b)

	c := length - d.RestLength
	if dt > 0 {
		d.row.Bias = (d.BaumgarteBeta / dt) * c
	}

	d.row.applyImpulse(d.row.AccumulatedImpulse, a, b)
}

func (d *DistanceConstraint) Iterate(bodies func(BodyHandle) *bodyRecord) {
	a, b := bodies(d.BodyA), bodies(d.BodyB)
	d.row.solve(a, b)
}

const (
	posInf = 1e300
	negInf = -1e300
)
