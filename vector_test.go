package impulse3d

import (
	"testing"

	tassert "github.com/stretchr/testify/assert"
)

func TestAABBCombineAndOverlap(t *testing.T) {
	a := AABB{Lower: Vec3{0, 0, 0}, Upper: Vec3{1, 1, 1}}
	b := AABB{Lower: Vec3{0.5, 0.5, 0.5}, Upper: Vec3{2, 2, 2}}

	combined := Combine(a, b)
	tassert.Equal(t, Vec3{0, 0, 0}, combined.Lower)
	tassert.Equal(t, Vec3{2, 2, 2}, combined.Upper)

	tassert.True(t, a.Overlaps(b))

	c := AABB{Lower: Vec3{5, 5, 5}, Upper: Vec3{6, 6, 6}}
	tassert.False(t, a.Overlaps(c))
}

func TestAABBContainsAndFatten(t *testing.T) {
	a := AABB{Lower: Vec3{0, 0, 0}, Upper: Vec3{1, 1, 1}}
	fattened := a.Fatten(0.1)
	tassert.True(t, fattened.Contains(a))
	tassert.False(t, a.Contains(fattened))
}

func TestOrthonormalizeFixesDrift(t *testing.T) {
	// A matrix whose columns have drifted slightly out of orthonormality.
	drifted := Mat3{1.001, 0.01, 0, -0.01, 0.999, 0.02, 0, -0.02, 1.002}
	fixed := Orthonormalize(drifted)

	c0 := Vec3{fixed[0], fixed[1], fixed[2]}
	c1 := Vec3{fixed[3], fixed[4], fixed[5]}
	c2 := Vec3{fixed[6], fixed[7], fixed[8]}

	tassert.InDelta(t, 1.0, c0.Dot(c0), 1e-9)
	tassert.InDelta(t, 1.0, c1.Dot(c1), 1e-9)
	tassert.InDelta(t, 1.0, c2.Dot(c2), 1e-9)
	tassert.InDelta(t, 0.0, c0.Dot(c1), 1e-9)
	tassert.InDelta(t, 0.0, c1.Dot(c2), 1e-9)
	tassert.InDelta(t, 0.0, c0.Dot(c2), 1e-9)
}

func TestInvertMat3RoundTrip(t *testing.T) {
	m := Mat3{2, 0, 0, 0, 3, 0, 0, 0, 4}
	inv, ok := invertMat3(m)
	tassert.True(t, ok)

	product := mulMat3(m, inv)
	tassert.InDelta(t, 1.0, product[0], 1e-9)
	tassert.InDelta(t, 1.0, product[4], 1e-9)
	tassert.InDelta(t, 1.0, product[8], 1e-9)
}

func TestInvertMat3Singular(t *testing.T) {
	_, ok := invertMat3(Mat3{})
	tassert.False(t, ok)
}

func TestMulVec3Identity(t *testing.T) {
	v := Vec3{1, 2, 3}
	tassert.Equal(t, v, mulVec3(identityMat3, v))
}

func TestTransposeMat3(t *testing.T) {
	m := Mat3{1, 2, 3, 4, 5, 6, 7, 8, 9}
	tp := transposeMat3(m)
	tassert.Equal(t, Mat3{1, 4, 7, 2, 5, 8, 3, 6, 9}, tp)
}
