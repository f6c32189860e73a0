package impulse3d

import "math"

// SolverConfig holds the knobs the solver exposes: substep count, velocity
// iteration count, and the stabilization terms contacts and constraints
// share. An explicit substep count is the primary stabilization strategy
// here, rather than a separate position-solver phase.
type SolverConfig struct {
	VelocityIterations int
	NumberSubsteps     int

	BaumgarteBeta        float64 // contact Baumgarte term, default 0.2
	PenetrationSlop      float64 // default 0.005 m, allowed resting overlap
	MaxBiasVelocity      float64 // default 4.0 m/s, caps the stabilization bias
	RestitutionThreshold float64 // default 1.0 m/s, below which restitution is skipped
}

// DefaultSolverConfig returns the stabilization constants tuned for this
// engine's substep/bias model.
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		VelocityIterations:   8,
		NumberSubsteps:       4,
		BaumgarteBeta:        0.2,
		PenetrationSlop:      0.005,
		MaxBiasVelocity:      4.0,
		RestitutionThreshold: 1.0,
	}
}

// contactConstraintPoint is one manifold point's solver-local working state,
// rebuilt every substep in Prepare. It carries two tangent rows instead of
// one since 3D friction needs a full tangent plane, not a single axis.
type contactConstraintPoint struct {
	normal  ConstraintRow
	tangent [2]ConstraintRow

	relativeVelocityAlongNormal float64
	restitutionBias             float64
}

// contactConstraint is the per-arbiter solver working set; built fresh each
// substep from the arbiter's persistent manifold.
type contactConstraint struct {
	arbiter *Arbiter
	bodyA   BodyHandle
	bodyB   BodyHandle
	points  [maxManifoldPoints]contactConstraintPoint
	count   int
}

// tangentBasis returns two vectors spanning the plane perpendicular to
// normal, used as the two friction directions, each with its own impulse
// accumulator.
func tangentBasis(normal Vec3) (Vec3, Vec3) {
	t1 := perpendicular(normal)
	if t1.Dot(t1) < 1e-18 {
		t1 = Vec3{1, 0, 0}
	}
	t1 = t1.Normalize()
	t2 := normal.Cross(t1)
	return t1, t2
}

// prepareContact builds the velocity-constraint rows for one arbiter's live
// points, computing effective mass and bias and applying each row's
// warm-start impulse immediately, folding stored impulses back into
// velocity before the first iteration.
func prepareContact(a *Arbiter, bodies func(BodyHandle) *bodyRecord, dt float64, cfg SolverConfig) contactConstraint {
	cc := contactConstraint{arbiter: a, bodyA: a.BodyA, bodyB: a.BodyB}
	bodyA := bodies(a.BodyA)
	bodyB := bodies(a.BodyB)

	for _, slot := range a.LivePoints() {
		p := &a.Points[slot]
		rA := mulVec3(bodyA.Orientation, p.RelativeA)
		rB := mulVec3(bodyB.Orientation, p.RelativeB)

		cp := contactConstraintPoint{}
		cp.normal = ConstraintRow{
			JacobianLinearA:  p.Normal.Mul(-1),
			JacobianAngularA: rA.Cross(p.Normal).Mul(-1),
			JacobianLinearB:  p.Normal,
			JacobianAngularB: rB.Cross(p.Normal),
			LowerBound:       0,
			UpperBound:       posInf,
		}
		cp.normal.computeEffectiveMass(bodyA, bodyB)
		cp.normal.AccumulatedImpulse = p.NormalImpulse

		closingVelocity := cp.normal.velocityError(bodyA, bodyB)
		cp.relativeVelocityAlongNormal = closingVelocity

		// Baumgarte bias stabilizes remaining penetration beyond the slop;
		// speculative (separated) points instead bias toward the predicted
		// time-of-impact gap — the predicted approach distance, not
		// penetration — so they don't generate impulse before contact.
		var bias float64
		if p.Speculative {
			bias = p.Penetration / dt
		} else {
			penetration := p.Penetration
			correction := math.Max(penetration-cfg.PenetrationSlop, 0)
			bias = -math.Min(cfg.BaumgarteBeta/dt*correction, cfg.MaxBiasVelocity)
		}

		if -closingVelocity > cfg.RestitutionThreshold {
			cp.restitutionBias = a.Restitution * closingVelocity
		}
		cp.normal.Bias = bias + cp.restitutionBias

		t1, t2 := tangentBasis(p.Normal)
		cp.tangent[0] = ConstraintRow{
			JacobianLinearA:  t1.Mul(-1),
			JacobianAngularA: rA.Cross(t1).Mul(-1),
			JacobianLinearB:  t1,
			JacobianAngularB: rB.Cross(t1),
		}
		cp.tangent[1] = ConstraintRow{
			JacobianLinearA:  t2.Mul(-1),
			JacobianAngularA: rA.Cross(t2).Mul(-1),
			JacobianLinearB:  t2,
			JacobianAngularB: rB.Cross(t2),
		}
		cp.tangent[0].computeEffectiveMass(bodyA, bodyB)
		cp.tangent[1].computeEffectiveMass(bodyA, bodyB)
		cp.tangent[0].AccumulatedImpulse = p.TangentImpulse[0]
		cp.tangent[1].AccumulatedImpulse = p.TangentImpulse[1]

		cp.normal.applyImpulse(cp.normal.AccumulatedImpulse, bodyA, bodyB)
		cp.tangent[0].applyImpulse(cp.tangent[0].AccumulatedImpulse, bodyA, bodyB)
		cp.tangent[1].applyImpulse(cp.tangent[1].AccumulatedImpulse, bodyA, bodyB)

		cc.points[cc.count] = cp
		cc.count++
	}
	return cc
}

// iterateContact runs one sequential-impulse pass: friction first against
// the *previous* iteration's normal impulse, clamped to mu*normalImpulse,
// then the normal row.
func iterateContact(cc *contactConstraint, bodies func(BodyHandle) *bodyRecord) {
	bodyA := bodies(cc.bodyA)
	bodyB := bodies(cc.bodyB)
	friction := cc.arbiter.Friction

	for i := 0; i < cc.count; i++ {
		p := &cc.points[i]
		maxFriction := friction * p.normal.AccumulatedImpulse

		for axis := 0; axis < 2; axis++ {
			row := &p.tangent[axis]
			row.LowerBound = -maxFriction
			row.UpperBound = maxFriction
			row.solve(bodyA, bodyB)
		}

		p.normal.solve(bodyA, bodyB)
	}
}

// writeBack copies accumulated impulses from the solver working set back
// into the persistent manifold for next frame's warm start.
func (cc *contactConstraint) writeBack() {
	live := cc.arbiter.LivePoints()
	for i := 0; i < cc.count && i < len(live); i++ {
		slot := live[i]
		cc.arbiter.Points[slot].NormalImpulse = cc.points[i].normal.AccumulatedImpulse
		cc.arbiter.Points[slot].TangentImpulse[0] = cc.points[i].tangent[0].AccumulatedImpulse
		cc.arbiter.Points[slot].TangentImpulse[1] = cc.points[i].tangent[1].AccumulatedImpulse
	}
}

// SolveIsland runs the full substepped sequential-impulse solve for one
// island's arbiters and constraints: substeps integrate forces and run
// velocity iterations each, then a final integration pass updates position
// and re-orthonormalizes orientation.
func SolveIsland(dt float64, bodies func(BodyHandle) *bodyRecord, gravity Vec3, arbiters []*Arbiter, constraints []Constraint, cfg SolverConfig) {
	handles := arbitersBodies(arbiters, constraints)
	dynamic := make([]*bodyRecord, 0, len(handles))
	for _, h := range handles {
		if b := bodies(h); b != nil && !b.Static {
			dynamic = append(dynamic, b)
		}
	}
	for _, b := range dynamic {
		lockBody(b)
	}
	defer func() {
		for _, b := range dynamic {
			unlockBody(b)
		}
	}()

	substeps := cfg.NumberSubsteps
	if substeps < 1 {
		substeps = 1
	}
	subDt := dt / float64(substeps)

	for step := 0; step < substeps; step++ {
		applyForces(bodies, arbitersBodies(arbiters, constraints), gravity, subDt)

		contactSolvers := make([]contactConstraint, 0, len(arbiters))
		for _, a := range arbiters {
			if !a.touching {
				continue
			}
			contactSolvers = append(contactSolvers, prepareContact(a, bodies, subDt, cfg))
		}
		for _, c := range constraints {
			if c.IsEnabled() {
				c.Prepare(subDt, bodies)
			}
		}

		iterations := cfg.VelocityIterations
		if iterations < 1 {
			iterations = 1
		}
		for it := 0; it < iterations; it++ {
			for i := range contactSolvers {
				iterateContact(&contactSolvers[i], bodies)
			}
			for _, c := range constraints {
				if c.IsEnabled() {
					c.Iterate(bodies)
				}
			}
		}

		for i := range contactSolvers {
			contactSolvers[i].writeBack()
		}

		integrate(bodies, arbitersBodies(arbiters, constraints), subDt)
	}
}

// arbitersBodies collects the distinct bodies touched by a set of arbiters
// and constraints, the per-substep iteration domain.
func arbitersBodies(arbiters []*Arbiter, constraints []Constraint) []BodyHandle {
	seen := make(map[BodyHandle]struct{})
	var out []BodyHandle
	add := func(h BodyHandle) {
		if _, ok := seen[h]; !ok {
			seen[h] = struct{}{}
			out = append(out, h)
		}
	}
	for _, a := range arbiters {
		add(a.BodyA)
		add(a.BodyB)
	}
	for _, c := range constraints {
		a, b := c.Bodies()
		add(a)
		add(b)
	}
	return out
}

// applyForces integrates external force/torque (gravity included) into
// velocity for this substep (semi-implicit Euler: velocity before position),
// then applies damping via the Pade approximation of the exponential decay
// solution to dv/dt = -damping*v: v2 = v1 * 1/(1 + damping*dt).
//
// A force or torque that produced a non-finite velocity (NaN or +/-Inf, from
// a bad constraint setup or degenerate mass properties upstream) is clamped
// away rather than propagated: the body's velocity and pending force/torque
// are reset to zero instead of being applied, and it is left exactly as
// active/inactive as it was before this call.
func applyForces(bodies func(BodyHandle) *bodyRecord, handles []BodyHandle, gravity Vec3, dt float64) {
	for _, h := range handles {
		b := bodies(h)
		if b == nil || b.staticOrInactive() {
			continue
		}
		g := Vec3{}
		if b.AffectedByGravity {
			g = gravity.Mul(b.GravityScale)
		}
		linearAccel := g.Add(b.Force.Mul(b.InverseMass))
		linear := b.LinearVelocity.Add(linearAccel.Mul(dt))
		angularAccel := mulVec3(b.InverseInertiaWorld, b.Torque)
		angular := b.AngularVelocity.Add(angularAccel.Mul(dt))

		if !finiteVec3(linear) || !finiteVec3(angular) {
			b.LinearVelocity = Vec3{}
			b.AngularVelocity = Vec3{}
			b.Force = Vec3{}
			b.Torque = Vec3{}
			continue
		}

		b.LinearVelocity = linear.Mul(1.0 / (1.0 + dt*b.LinearDamping))
		b.AngularVelocity = angular.Mul(1.0 / (1.0 + dt*b.AngularDamping))
	}
}

// integrate advances position/orientation by the now-corrected velocities
// (semi-implicit Euler: velocity already updated, position follows),
// re-orthonormalizing orientation afterward so accumulated integration error
// doesn't skew it off a rotation matrix.
//
// A non-finite result (NaN/Inf position or orientation) is clamped: the
// body's velocity is zeroed and its position/orientation are left at their
// last-known-good values rather than overwritten with garbage, and the body
// is not woken by this.
func integrate(bodies func(BodyHandle) *bodyRecord, handles []BodyHandle, dt float64) {
	for _, h := range handles {
		b := bodies(h)
		if b == nil || b.staticOrInactive() {
			continue
		}
		position := b.Position.Add(b.LinearVelocity.Mul(dt))

		orientation := b.Orientation
		omega := b.AngularVelocity
		angle := omega.Dot(omega)
		if angle > 1e-20 {
			angle = math.Sqrt(angle)
			axis := omega.Mul(1.0 / angle)
			delta := rotationFromAxisAngle(axis, angle*dt)
			orientation = Orthonormalize(mulMat3(delta, b.Orientation))
		}

		if !finiteVec3(position) || !finiteMat3(orientation) {
			b.LinearVelocity = Vec3{}
			b.AngularVelocity = Vec3{}
			b.Force = Vec3{}
			b.Torque = Vec3{}
			continue
		}

		b.Position = position
		b.Orientation = orientation
		b.Force = Vec3{}
		b.Torque = Vec3{}
	}
}

// rotationFromAxisAngle builds a Rodrigues rotation matrix for a small
// incremental rotation about axis by angle radians.
func rotationFromAxisAngle(axis Vec3, angle float64) Mat3 {
	c := math.Cos(angle)
	s := math.Sin(angle)
	t := 1 - c
	x, y, z := axis.X(), axis.Y(), axis.Z()

	return mat3FromRows(
		Vec3{t*x*x + c, t*x*y - s*z, t*x*z + s*y},
		Vec3{t*x*y + s*z, t*y*y + c, t*y*z - s*x},
		Vec3{t*x*z - s*y, t*y*z + s*x, t*z*z + c},
	)
}
