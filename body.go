package impulse3d

import (
	"github.com/impulse3d/impulse3d/internal/engerr"
)

// bodyRecord is the hot, contiguous record: only the fields the integrator
// and solver touch every substep, kept out of the cold fixture/adjacency/
// island bookkeeping in Body so a pool of bodyRecord can store transform,
// velocity, and mass data contiguously.
type bodyRecord struct {
	Position    Vec3
	Orientation Mat3 // maintained orthonormal; re-orthonormalized after integration

	LinearVelocity  Vec3
	AngularVelocity Vec3

	Force  Vec3
	Torque Vec3

	InverseMass         float64
	InverseInertiaWorld Mat3 // zero for static bodies

	// LinearDamping/AngularDamping/GravityScale are consulted every substep
	// by applyForces, so they live on the hot record rather than the cold
	// Body wrapper, avoiding an extra indirection on that path.
	LinearDamping     float64
	AngularDamping    float64
	GravityScale      float64
	AffectedByGravity bool

	Active bool
	Static bool

	// lock is asserted-only in debug builds: islands partition bodies so two
	// concurrent island solves should never write the same body, and this
	// catches a violation of that invariant instead of enforcing it with a
	// real mutex on the hot path.
	lock uint32

	self BodyHandle
}

func (b *bodyRecord) staticOrInactive() bool {
	return b.Static || !b.Active
}

// Body is the cold, owning wrapper: everything that changes rarely —
// attached shapes, adjacency, island membership, sleep bookkeeping — kept
// out of the hot bodyRecord so the per-substep fields stay contiguous.
type Body struct {
	handle BodyHandle
	world  *World

	shapes      []ShapeHandle
	contacts    map[ArbiterKey]struct{}
	constraints map[ConstraintHandle]struct{}

	island IslandHandle

	sleepTime float64
	// LinearSleepThreshold2/AngularSleepThreshold2 are squared velocity
	// thresholds; DeactivationTime is how long both must stay below
	// threshold before the body's island is eligible to sleep.
	LinearSleepThreshold2  float64
	AngularSleepThreshold2 float64
	DeactivationTime       float64

	localInertia Mat3 // local-space inertia, summed across attached shapes
	localMass    float64
}

// Handle returns the body's stable handle.
func (b *Body) Handle() BodyHandle { return b.handle }

// Island returns the handle of the island this body currently belongs to.
func (b *Body) Island() IslandHandle { return b.island }

const (
	defaultLinearSleepTolerance  = 0.01 // m/s, squared below
	defaultAngularSleepTolerance = 0.0174533
	defaultDeactivationTime      = 0.5 // seconds
)

func newBody(handle BodyHandle, w *World) *Body {
	return &Body{
		handle:                 handle,
		world:                  w,
		contacts:               make(map[ArbiterKey]struct{}),
		constraints:            make(map[ConstraintHandle]struct{}),
		island:                 IslandHandle(InvalidHandle),
		LinearSleepThreshold2:  defaultLinearSleepTolerance * defaultLinearSleepTolerance,
		AngularSleepThreshold2: defaultAngularSleepTolerance * defaultAngularSleepTolerance,
		DeactivationTime:       defaultDeactivationTime,
		localMass:              1,
	}
}

// AttachShape binds shape to this body and recomputes mass/inertia by
// summing every attached shape's contribution and dividing by total mass.
func (b *Body) AttachShape(s Shape, allowZeroMass bool) error {
	if s.Mass() <= 0 && !allowZeroMass {
		return engerr.Wrap(engerr.ErrZeroMassShape, "shape has non-positive mass")
	}
	if err := s.AttachRigidBody(b.handle); err != nil {
		return err
	}
	b.shapes = append(b.shapes, s.handle())
	b.recomputeMass()
	return nil
}

// DetachShape removes shape from this body and recomputes mass/inertia.
func (b *Body) DetachShape(s Shape) error {
	for i, sh := range b.shapes {
		if sh == s.handle() {
			b.shapes = append(b.shapes[:i], b.shapes[i+1:]...)
			s.DetachRigidBody()
			b.recomputeMass()
			return nil
		}
	}
	return engerr.Wrap(engerr.ErrShapeNotPresent, "shape not attached to this body")
}

func (b *Body) recomputeMass() {
	var totalMass float64
	var inertia Mat3
	for _, sh := range b.shapes {
		s := b.world.shapeOf(sh)
		if s == nil {
			continue
		}
		totalMass += s.Mass()
		inertia = addMat3(inertia, s.Inertia())
	}
	if totalMass <= 0 {
		totalMass = 1
	}
	b.localMass = totalMass
	b.localInertia = inertia

	rec := b.world.bodies.Get(int32(b.handle))
	if rec == nil || rec.Static {
		return
	}
	rec.InverseMass = 1.0 / totalMass
	rec.InverseInertiaWorld = worldInverseInertia(inertia, rec.Orientation)
}

// worldInverseInertia rotates a local inertia tensor into world space and
// inverts it: I_world^-1 = R * I_local^-1 * R^T.
func worldInverseInertia(localInertia Mat3, orientation Mat3) Mat3 {
	localInv, ok := invertMat3(localInertia)
	if !ok {
		return Mat3{}
	}
	return mulMat3(mulMat3(orientation, localInv), transposeMat3(orientation))
}
