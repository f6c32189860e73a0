package impulse3d

import (
	"testing"

	tassert "github.com/stretchr/testify/assert"
)

func TestArbiterAddContactFillsFreeSlots(t *testing.T) {
	a := newArbiter(MakeArbiterKey(1, 2), 1, 2, 10, 11)

	for i := 0; i < 4; i++ {
		a.AddContact(NewContact{RelativeA: Vec3{float64(i), 0, 0}, Normal: Vec3{0, 1, 0}, Penetration: 0.01})
	}

	tassert.Equal(t, []int{0, 1, 2, 3}, a.LivePoints())
}

func TestArbiterReductionKeepsDeepestPoint(t *testing.T) {
	a := newArbiter(MakeArbiterKey(1, 2), 1, 2, 10, 11)

	corners := []Vec3{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}}
	for _, c := range corners {
		a.AddContact(NewContact{RelativeA: c, Normal: Vec3{0, 1, 0}, Penetration: 0.01})
	}

	// A fifth, much deeper point should survive reduction.
	a.AddContact(NewContact{RelativeA: Vec3{0.5, 0.5, 0}, Normal: Vec3{0, 1, 0}, Penetration: 5.0})

	found := false
	for _, slot := range a.LivePoints() {
		if a.Points[slot].Penetration == 5.0 {
			found = true
		}
	}
	tassert.True(t, found, "deepest point must survive 4-point reduction")
	tassert.Len(t, a.LivePoints(), 4)
}

func TestArbiterReductionPreservesWarmStartOnRetainedPoints(t *testing.T) {
	a := newArbiter(MakeArbiterKey(1, 2), 1, 2, 10, 11)
	corners := []Vec3{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}}
	for _, c := range corners {
		a.AddContact(NewContact{RelativeA: c, Normal: Vec3{0, 1, 0}, Penetration: 0.01})
	}
	// Warm start the deepest-so-far corner (index 0, the one picked as
	// "deepest" among equal penetrations is implementation-defined, so warm
	// start all slots to a recognizable value and verify at least one
	// survives with its impulse intact after a reduction that doesn't
	// introduce a strictly deeper point).
	for i := range a.Points {
		a.Points[i].NormalImpulse = 7.0
	}

	// Adding a fifth point with a shallower penetration than the corners'
	// existing deepest should not evict every prior slot.
	a.AddContact(NewContact{RelativeA: Vec3{0.5, 0.5, 0}, Normal: Vec3{0, 1, 0}, Penetration: 0.005})

	survivedWithImpulse := false
	for _, slot := range a.LivePoints() {
		if a.Points[slot].NormalImpulse == 7.0 {
			survivedWithImpulse = true
		}
	}
	tassert.True(t, survivedWithImpulse)
}

func TestArbiterRefreshDropsSeparatedNonSpeculativePoint(t *testing.T) {
	a := newArbiter(MakeArbiterKey(1, 2), 1, 2, 10, 11)
	a.AddContact(NewContact{RelativeA: Vec3{0, 0, 0}, RelativeB: Vec3{0, 0, 0}, Normal: Vec3{0, 1, 0}, Penetration: 0.01})

	worldA := func(rel Vec3) Vec3 { return rel }
	worldB := func(rel Vec3) Vec3 { return rel.Add(Vec3{0, 10, 0}) } // now far apart

	a.Refresh(worldA, worldB, 0.02, 0.01)
	tassert.Empty(t, a.LivePoints())
}

func TestArbiterRefreshKeepsSpeculativeSeparatedPoint(t *testing.T) {
	a := newArbiter(MakeArbiterKey(1, 2), 1, 2, 10, 11)
	a.AddContact(NewContact{RelativeA: Vec3{0, 0, 0}, RelativeB: Vec3{0, 0, 0}, Normal: Vec3{0, 1, 0}, Penetration: 0.01, Speculative: true})

	worldA := func(rel Vec3) Vec3 { return rel }
	worldB := func(rel Vec3) Vec3 { return rel.Add(Vec3{0, 0.05, 0}) }

	a.Refresh(worldA, worldB, 0.02, 0.01)
	tassert.Len(t, a.LivePoints(), 1)
}

func TestUsageMaskOnlyLowFourBits(t *testing.T) {
	var m UsageMask
	m.set(0)
	m.set(3)
	tassert.True(t, m.has(0))
	tassert.True(t, m.has(3))
	tassert.False(t, m.has(1))
	m.clear(0)
	tassert.False(t, m.has(0))
}
