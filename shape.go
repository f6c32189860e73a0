package impulse3d

import "github.com/impulse3d/impulse3d/internal/engerr"

// Shape is the consumer-provided contract the narrowphase and broadphase
// consume: geometry itself (box, sphere, capsule, hull, mesh...) is out of
// scope here, everything routes through a support mapping so the collision
// pipeline stays generic across shape kinds.
type Shape interface {
	// Support returns the point on the shape, in world space, furthest along
	// direction. The sole geometric primitive the narrowphase calls.
	Support(direction Vec3) Vec3

	// LocalBoundingBox returns the shape's AABB in its own local frame.
	LocalBoundingBox() AABB

	// Mass returns the shape's mass contribution.
	Mass() float64

	// Inertia returns the shape's inertia tensor about its own origin, local space.
	Inertia() Mat3

	// UpdateWorldBoundingBox recomputes the shape's world AABB from the given
	// body transform (position + orientation).
	UpdateWorldBoundingBox(position Vec3, orientation Mat3)

	// WorldBoundingBox returns the most recently computed world AABB.
	WorldBoundingBox() AABB

	// AttachRigidBody/DetachRigidBody bind this shape to exactly one body at a
	// time; AttachRigidBody fails with ErrShapeAlreadyAttached if already bound.
	AttachRigidBody(body BodyHandle) error
	DetachRigidBody()

	attachedBody() (BodyHandle, bool)
	handle() ShapeHandle
	setHandle(ShapeHandle)
	proxy() proxyID
	setProxy(proxyID)
}

// baseShape implements the bookkeeping every concrete shape shares: attach
// state, handle, broadphase proxy, and cached world AABB. Concrete shapes
// embed it rather than duplicating this bookkeeping per shape kind.
type baseShape struct {
	h        ShapeHandle
	body     BodyHandle
	hasBody  bool
	proxyID  proxyID
	worldBox AABB

	// position/orientation cache the owning body's transform as of the last
	// UpdateWorldBoundingBox call, so Support can map a world-space direction
	// through the shape's local geometry without the narrowphase driver
	// threading a transform through every call.
	position    Vec3
	orientation Mat3
}

func (s *baseShape) handle() ShapeHandle     { return s.h }
func (s *baseShape) setHandle(h ShapeHandle) { s.h = h }
func (s *baseShape) proxy() proxyID          { return s.proxyID }
func (s *baseShape) setProxy(p proxyID)      { s.proxyID = p }
func (s *baseShape) WorldBoundingBox() AABB  { return s.worldBox }

func (s *baseShape) cacheTransform(position Vec3, orientation Mat3) {
	s.position, s.orientation = position, orientation
}

// toWorld maps a local support point through the cached transform.
func (s *baseShape) toWorld(localPoint Vec3) Vec3 {
	return s.position.Add(mulVec3(s.orientation, localPoint))
}

// toLocalDirection maps a world-space direction into the shape's local frame.
func (s *baseShape) toLocalDirection(worldDirection Vec3) Vec3 {
	return mulVec3(transposeMat3(s.orientation), worldDirection)
}

func (s *baseShape) attachedBody() (BodyHandle, bool) { return s.body, s.hasBody }

func (s *baseShape) AttachRigidBody(body BodyHandle) error {
	if s.hasBody {
		return engerr.Wrap(engerr.ErrShapeAlreadyAttached, "shape already bound to a body")
	}
	s.body = body
	s.hasBody = true
	return nil
}

func (s *baseShape) DetachRigidBody() {
	s.hasBody = false
}

// SphereShape is a minimal convex shape supplied so end-to-end scenarios are
// runnable; concrete shape geometry is a fixture for exercising the support-
// mapping core, not part of that core itself.
type SphereShape struct {
	baseShape
	Radius float64
	mass   float64
}

func NewSphereShape(radius, mass float64) *SphereShape {
	s := &SphereShape{Radius: radius, mass: mass}
	s.orientation = identityMat3
	return s
}

func (s *SphereShape) Support(direction Vec3) Vec3 {
	d := direction
	if d.Dot(d) < 1e-20 {
		return s.toWorld(Vec3{s.Radius, 0, 0})
	}
	return s.toWorld(d.Normalize().Mul(s.Radius))
}

func (s *SphereShape) LocalBoundingBox() AABB {
	r := Vec3{s.Radius, s.Radius, s.Radius}
	return AABB{Lower: r.Mul(-1), Upper: r}
}

func (s *SphereShape) Mass() float64 { return s.mass }

func (s *SphereShape) Inertia() Mat3 {
	i := 0.4 * s.mass * s.Radius * s.Radius
	return Mat3{i, 0, 0, 0, i, 0, 0, 0, i}
}

func (s *SphereShape) UpdateWorldBoundingBox(position Vec3, orientation Mat3) {
	s.cacheTransform(position, orientation)
	local := s.LocalBoundingBox()
	s.worldBox = AABB{Lower: local.Lower.Add(position), Upper: local.Upper.Add(position)}
}

// BoxShape is a minimal convex box shape, used by the stack/pyramid scenarios.
type BoxShape struct {
	baseShape
	HalfExtents Vec3
	mass        float64
}

func NewBoxShape(halfExtents Vec3, mass float64) *BoxShape {
	b := &BoxShape{HalfExtents: halfExtents, mass: mass}
	b.orientation = identityMat3
	return b
}

func (b *BoxShape) Support(direction Vec3) Vec3 {
	local := b.toLocalDirection(direction)
	sign := func(v float64) float64 {
		if v < 0 {
			return -1
		}
		return 1
	}
	localPoint := Vec3{
		sign(local.X()) * b.HalfExtents.X(),
		sign(local.Y()) * b.HalfExtents.Y(),
		sign(local.Z()) * b.HalfExtents.Z(),
	}
	return b.toWorld(localPoint)
}

func (b *BoxShape) LocalBoundingBox() AABB {
	return AABB{Lower: b.HalfExtents.Mul(-1), Upper: b.HalfExtents}
}

func (b *BoxShape) Mass() float64 { return b.mass }

func (b *BoxShape) Inertia() Mat3 {
	e := b.HalfExtents.Mul(2)
	c := b.mass / 12.0
	ixx := c * (e.Y()*e.Y() + e.Z()*e.Z())
	iyy := c * (e.X()*e.X() + e.Z()*e.Z())
	izz := c * (e.X()*e.X() + e.Y()*e.Y())
	return Mat3{ixx, 0, 0, 0, iyy, 0, 0, 0, izz}
}

func (b *BoxShape) UpdateWorldBoundingBox(position Vec3, orientation Mat3) {
	b.cacheTransform(position, orientation)
	// Rotate the eight corners' extents via the absolute-value trick: the
	// world half-extent along each axis is |R| * localHalfExtents.
	abs := func(v float64) float64 {
		if v < 0 {
			return -v
		}
		return v
	}
	ar := Mat3{
		abs(orientation[0]), abs(orientation[1]), abs(orientation[2]),
		abs(orientation[3]), abs(orientation[4]), abs(orientation[5]),
		abs(orientation[6]), abs(orientation[7]), abs(orientation[8]),
	}
	worldExtents := mulVec3(ar, b.HalfExtents)
	b.worldBox = AABB{Lower: position.Sub(worldExtents), Upper: position.Add(worldExtents)}
}
