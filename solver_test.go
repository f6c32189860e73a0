package impulse3d

import (
	"testing"

	tassert "github.com/stretchr/testify/assert"
)

func dynamicBodyRecord(h BodyHandle, position Vec3) *bodyRecord {
	return &bodyRecord{
		Position:            position,
		Orientation:         identityMat3,
		InverseMass:         1.0,
		InverseInertiaWorld: identityMat3,
		Active:              true,
		GravityScale:        1,
		AffectedByGravity:   true,
		self:                h,
	}
}

func staticBodyRecord(h BodyHandle, position Vec3) *bodyRecord {
	return &bodyRecord{
		Position:    position,
		Orientation: identityMat3,
		Static:      true,
		self:        h,
	}
}

// TestSolveIslandRestsBodyOnStaticFloor runs a falling body into a resting
// contact against an immovable floor for many substepped steps and checks it
// settles rather than sinking through or exploding upward (spec §8 "Single
// cube on plane: settle to rest with bounded penetration").
func TestSolveIslandRestsBodyOnStaticFloor(t *testing.T) {
	cfg := DefaultSolverConfig()
	gravity := Vec3{0, -9.81, 0}

	dyn := dynamicBodyRecord(0, Vec3{0, 0.52, 0})
	floor := staticBodyRecord(1, Vec3{0, 0, 0})
	records := map[BodyHandle]*bodyRecord{0: dyn, 1: floor}
	bodies := func(h BodyHandle) *bodyRecord { return records[h] }

	arb := newArbiter(MakeArbiterKey(0, 1), 0, 1, 0, 1)
	arb.Friction = 0.3
	arb.touching = true

	dt := 1.0 / 60.0
	for step := 0; step < 180; step++ {
		// Re-derive the contact each step the way World.processPair would,
		// since the body is moving and the manifold should track it.
		separation := dyn.Position.Y() - 0.5
		arb.Points = [maxManifoldPoints]ManifoldPoint{}
		arb.Usage = 0
		arb.AddContact(NewContact{
			RelativeA:   Vec3{0, -0.5, 0},
			RelativeB:   Vec3{0, 0, 0},
			Normal:      Vec3{0, -1, 0}, // from body A (the falling body) to B (the floor)
			Penetration: -separation,
		})
		SolveIsland(dt, bodies, gravity, []*Arbiter{arb}, nil, cfg)
	}

	tassert.InDelta(t, 0.5, dyn.Position.Y(), 0.02, "body should settle near the floor's surface")
	tassert.InDelta(t, 0.0, dyn.LinearVelocity.Y(), 0.1, "resting body should have near-zero vertical velocity")
}

func TestConstraintRowClampsToBounds(t *testing.T) {
	a := dynamicBodyRecord(0, Vec3{0, 0, 0})
	b := dynamicBodyRecord(1, Vec3{1, 0, 0})
	a.LinearVelocity = Vec3{5, 0, 0}

	row := ConstraintRow{
		JacobianLinearA: Vec3{-1, 0, 0},
		JacobianLinearB: Vec3{1, 0, 0},
		LowerBound:      -1,
		UpperBound:      1,
	}
	row.computeEffectiveMass(a, b)
	row.solve(a, b)

	tassert.LessOrEqual(t, row.AccumulatedImpulse, 1.0)
	tassert.GreaterOrEqual(t, row.AccumulatedImpulse, -1.0)
}

func TestDistanceConstraintPullsBodiesTowardRestLength(t *testing.T) {
	a := dynamicBodyRecord(0, Vec3{0, 0, 0})
	b := dynamicBodyRecord(1, Vec3{3, 0, 0}) // stretched beyond rest length 1
	records := map[BodyHandle]*bodyRecord{0: a, 1: b}
	bodies := func(h BodyHandle) *bodyRecord { return records[h] }

	c := NewDistanceConstraint(0, 1, Vec3{}, Vec3{}, 1.0)

	dt := 1.0 / 60.0
	for i := 0; i < 30; i++ {
		c.Prepare(dt, bodies)
		for it := 0; it < 8; it++ {
			c.Iterate(bodies)
		}
		a.Position = a.Position.Add(a.LinearVelocity.Mul(dt))
		b.Position = b.Position.Add(b.LinearVelocity.Mul(dt))
	}

	separation := b.Position.Sub(a.Position).Dot(b.Position.Sub(a.Position))
	tassert.InDelta(t, 1.0, separation, 0.3, "distance constraint should pull separation back toward rest length")
}
