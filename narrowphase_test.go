package impulse3d

import (
	"testing"

	tassert "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectOverlappingSpheresHits(t *testing.T) {
	a := NewSphereShape(1.0, 1.0)
	a.UpdateWorldBoundingBox(Vec3{0, 0, 0}, identityMat3)
	b := NewSphereShape(1.0, 1.0)
	b.UpdateWorldBoundingBox(Vec3{1.5, 0, 0}, identityMat3)

	result := Detect(a, b, NarrowphaseOptions{})
	require.True(t, result.Hit)
	tassert.Greater(t, result.Contact.Penetration, 0.0)
}

func TestDetectSeparatedSpheresMisses(t *testing.T) {
	a := NewSphereShape(1.0, 1.0)
	a.UpdateWorldBoundingBox(Vec3{0, 0, 0}, identityMat3)
	b := NewSphereShape(1.0, 1.0)
	b.UpdateWorldBoundingBox(Vec3{10, 0, 0}, identityMat3)

	result := Detect(a, b, NarrowphaseOptions{})
	tassert.False(t, result.Hit)
}

func TestDetectForceEPAUsesEPA(t *testing.T) {
	a := NewBoxShape(Vec3{1, 1, 1}, 1.0)
	a.UpdateWorldBoundingBox(Vec3{0, 0, 0}, identityMat3)
	b := NewBoxShape(Vec3{1, 1, 1}, 1.0)
	b.UpdateWorldBoundingBox(Vec3{1.5, 0, 0}, identityMat3)

	result := Detect(a, b, NarrowphaseOptions{ForceEPA: true})
	require.True(t, result.Hit)
	tassert.True(t, result.UsedEPA)
}

func TestEdgeFilterRejectsOffNormalContacts(t *testing.T) {
	a := NewBoxShape(Vec3{1, 1, 1}, 1.0)
	a.UpdateWorldBoundingBox(Vec3{0, 0, 0}, identityMat3)
	b := NewBoxShape(Vec3{1, 1, 1}, 1.0)
	b.UpdateWorldBoundingBox(Vec3{1.9, 0, 0}, identityMat3)

	result := Detect(a, b, NarrowphaseOptions{
		HasFaceNormal:    true,
		FaceNormalHint:   Vec3{0, 1, 0}, // a face normal orthogonal to the actual contact normal
		EdgeFilterCosine: 0.9,
	})
	tassert.False(t, result.Hit, "a contact whose normal disagrees with the supplied face normal should be filtered")
}

func TestAuxiliaryManifoldPointsSamplesAroundNormal(t *testing.T) {
	a := NewBoxShape(Vec3{1, 1, 1}, 1.0)
	a.UpdateWorldBoundingBox(Vec3{0, 0, 0}, identityMat3)
	b := NewBoxShape(Vec3{1, 1, 1}, 1.0)
	b.UpdateWorldBoundingBox(Vec3{0, 1.9, 0}, identityMat3)

	normal := Vec3{0, 1, 0}
	base := NewContact{Normal: normal, Penetration: 0.1}
	points := AuxiliaryManifoldPoints(a, b, normal, base, 0.5)
	tassert.NotEmpty(t, points)
}
