package impulse3d

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Vec3 and Mat3 are the engine's linear algebra types. We lean on mgl64 for
// the primitive arithmetic (Add/Sub/Cross/Dot/Normalize, matrix-vector
// products) and keep only the AABB type and the handful of rigid-body-
// specific helpers that mgl64 doesn't provide.
type Vec3 = mgl64.Vec3
type Mat3 = mgl64.Mat3

var identityMat3 = Mat3{1, 0, 0, 0, 1, 0, 0, 0, 1}

// AABB is an axis-aligned bounding box in world space, lower/upper corners
// in 3D.
type AABB struct {
	Lower, Upper Vec3
}

func NewAABB(lower, upper Vec3) AABB {
	return AABB{Lower: lower, Upper: upper}
}

// Center returns the midpoint of the box.
func (b AABB) Center() Vec3 {
	return b.Lower.Add(b.Upper).Mul(0.5)
}

// Extents returns the half-widths of the box.
func (b AABB) Extents() Vec3 {
	return b.Upper.Sub(b.Lower).Mul(0.5)
}

// SurfaceArea returns the total surface area of the box, used by the dynamic
// tree's SAH insertion heuristic.
func (b AABB) SurfaceArea() float64 {
	d := b.Upper.Sub(b.Lower)
	return 2.0 * (d.X()*d.Y() + d.Y()*d.Z() + d.Z()*d.X())
}

// Combine returns the union of two boxes.
func Combine(a, b AABB) AABB {
	return AABB{
		Lower: componentMin(a.Lower, b.Lower),
		Upper: componentMax(a.Upper, b.Upper),
	}
}

// CombineInPlace unions other into b.
func (b *AABB) CombineInPlace(other AABB) {
	*b = Combine(*b, other)
}

// Contains reports whether b fully contains other.
func (b AABB) Contains(other AABB) bool {
	return b.Lower.X() <= other.Lower.X() && b.Lower.Y() <= other.Lower.Y() && b.Lower.Z() <= other.Lower.Z() &&
		other.Upper.X() <= b.Upper.X() && other.Upper.Y() <= b.Upper.Y() && other.Upper.Z() <= b.Upper.Z()
}

// Overlaps reports whether b and other intersect (slab test).
func (b AABB) Overlaps(other AABB) bool {
	if b.Upper.X() < other.Lower.X() || other.Upper.X() < b.Lower.X() {
		return false
	}
	if b.Upper.Y() < other.Lower.Y() || other.Upper.Y() < b.Lower.Y() {
		return false
	}
	if b.Upper.Z() < other.Lower.Z() || other.Upper.Z() < b.Lower.Z() {
		return false
	}
	return true
}

// Fatten inflates the box by margin on every axis; used when inserting or
// updating broadphase proxies.
func (b AABB) Fatten(margin float64) AABB {
	m := Vec3{margin, margin, margin}
	return AABB{Lower: b.Lower.Sub(m), Upper: b.Upper.Add(m)}
}

func componentMin(a, b Vec3) Vec3 {
	return Vec3{min(a.X(), b.X()), min(a.Y(), b.Y()), min(a.Z(), b.Z())}
}

func componentMax(a, b Vec3) Vec3 {
	return Vec3{max(a.X(), b.X()), max(a.Y(), b.Y()), max(a.Z(), b.Z())}
}

// Orthonormalize re-orthogonalizes a rotation matrix via Gram-Schmidt so
// accumulated integration error doesn't skew a body's orientation; called
// after every integration step.
func Orthonormalize(m Mat3) Mat3 {
	c0 := Vec3{m[0], m[1], m[2]}
	c1 := Vec3{m[3], m[4], m[5]}
	c2 := Vec3{m[6], m[7], m[8]}

	if c0.Dot(c0) < 1e-20 {
		c0 = Vec3{1, 0, 0}
	}
	c0 = c0.Normalize()

	c1 = c1.Sub(c0.Mul(c0.Dot(c1)))
	if c1.Dot(c1) < 1e-20 {
		c1 = c0.Cross(Vec3{0, 1, 0})
		if c1.Dot(c1) < 1e-20 {
			c1 = c0.Cross(Vec3{1, 0, 0})
		}
	}
	c1 = c1.Normalize()

	c2 = c0.Cross(c1)

	return Mat3{c0.X(), c0.Y(), c0.Z(), c1.X(), c1.Y(), c1.Z(), c2.X(), c2.Y(), c2.Z()}
}

// mat3FromRows builds a column-major Mat3 (mgl64's storage order) from three
// row vectors, so call sites can reason in the usual row-major math notation.
func mat3FromRows(r0, r1, r2 Vec3) Mat3 {
	return Mat3{
		r0.X(), r1.X(), r2.X(),
		r0.Y(), r1.Y(), r2.Y(),
		r0.Z(), r1.Z(), r2.Z(),
	}
}

// skewSymmetric returns the 3x3 matrix S such that S*v == r.Cross(v).
func skewSymmetric(r Vec3) Mat3 {
	return mat3FromRows(
		Vec3{0, -r.Z(), r.Y()},
		Vec3{r.Z(), 0, -r.X()},
		Vec3{-r.Y(), r.X(), 0},
	)
}

// mulVec3 computes m*v for a column-major Mat3.
func mulVec3(m Mat3, v Vec3) Vec3 {
	return Vec3{
		m[0]*v.X() + m[3]*v.Y() + m[6]*v.Z(),
		m[1]*v.X() + m[4]*v.Y() + m[7]*v.Z(),
		m[2]*v.X() + m[5]*v.Y() + m[8]*v.Z(),
	}
}

// mulMat3 computes a*b for column-major Mat3 operands.
func mulMat3(a, b Mat3) Mat3 {
	col := func(m Mat3, i int) Vec3 { return Vec3{m[i*3], m[i*3+1], m[i*3+2]} }
	c0 := mulVec3(a, col(b, 0))
	c1 := mulVec3(a, col(b, 1))
	c2 := mulVec3(a, col(b, 2))
	return Mat3{c0.X(), c0.Y(), c0.Z(), c1.X(), c1.Y(), c1.Z(), c2.X(), c2.Y(), c2.Z()}
}

// addMat3 computes a+b component-wise for column-major Mat3 operands.
func addMat3(a, b Mat3) Mat3 {
	var out Mat3
	for i := range out {
		out[i] = a[i] + b[i]
	}
	return out
}

// transposeMat3 returns the transpose of a column-major Mat3.
func transposeMat3(m Mat3) Mat3 {
	return Mat3{m[0], m[3], m[6], m[1], m[4], m[7], m[2], m[5], m[8]}
}

// finiteVec3 reports whether every component of v is a finite float: neither
// NaN nor +/-Inf.
func finiteVec3(v Vec3) bool {
	return !math.IsNaN(v.X()) && !math.IsInf(v.X(), 0) &&
		!math.IsNaN(v.Y()) && !math.IsInf(v.Y(), 0) &&
		!math.IsNaN(v.Z()) && !math.IsInf(v.Z(), 0)
}

// finiteMat3 reports whether every entry of m is a finite float.
func finiteMat3(m Mat3) bool {
	for _, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// toBodyLocal maps a world-space point into a body's local frame:
// R^-1 * (worldPoint - position). Orientation is kept orthonormal, so the
// inverse is its transpose.
func toBodyLocal(position Vec3, orientation Mat3, worldPoint Vec3) Vec3 {
	return mulVec3(transposeMat3(orientation), worldPoint.Sub(position))
}

// invertMat3 returns the inverse of m via the adjugate/determinant formula,
// and false if m is singular (used to derive world-space inverse inertia and
// to guard against degenerate shapes contributing zero inertia).
func invertMat3(m Mat3) (Mat3, bool) {
	a, b, c := m[0], m[3], m[6]
	d, e, f := m[1], m[4], m[7]
	g, h, i := m[2], m[5], m[8]

	det := a*(e*i-f*h) - b*(d*i-f*g) + c*(d*h-e*g)
	if det > -1e-18 && det < 1e-18 {
		return Mat3{}, false
	}
	invDet := 1.0 / det

	return Mat3{
		(e*i - f*h) * invDet, (c*h - b*i) * invDet, (b*f - c*e) * invDet,
		(f*g - d*i) * invDet, (a*i - c*g) * invDet, (c*d - a*f) * invDet,
		(d*h - e*g) * invDet, (b*g - a*h) * invDet, (a*e - b*d) * invDet,
	}, true
}
