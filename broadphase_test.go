package impulse3d

import (
	"testing"

	tassert "github.com/stretchr/testify/assert"
)

func box(center Vec3, half float64) AABB {
	h := Vec3{half, half, half}
	return AABB{Lower: center.Sub(h), Upper: center.Add(h)}
}

func TestDynamicTreeEnumeratesOverlappingPairs(t *testing.T) {
	tree := NewDynamicTree(0.01)

	p1 := tree.AddProxy(ShapeHandle(1), box(Vec3{0, 0, 0}, 0.5))
	p2 := tree.AddProxy(ShapeHandle(2), box(Vec3{0.5, 0, 0}, 0.5))
	_ = tree.AddProxy(ShapeHandle(3), box(Vec3{100, 100, 100}, 0.5))

	var pairs [][2]ShapeHandle
	tree.EnumerateOverlaps(nil, func(a, b ShapeHandle) {
		pairs = append(pairs, [2]ShapeHandle{a, b})
	})

	tassert.Len(t, pairs, 1)
	tassert.ElementsMatch(t, []ShapeHandle{1, 2}, []ShapeHandle{pairs[0][0], pairs[0][1]})
	_ = p1
	_ = p2
}

func TestDynamicTreeFilterRejectsPairs(t *testing.T) {
	tree := NewDynamicTree(0.01)
	tree.AddProxy(ShapeHandle(1), box(Vec3{0, 0, 0}, 0.5))
	tree.AddProxy(ShapeHandle(2), box(Vec3{0.5, 0, 0}, 0.5))

	called := false
	tree.EnumerateOverlaps(func(a, b ShapeHandle) bool { return false }, func(a, b ShapeHandle) {
		called = true
	})
	tassert.False(t, called)
}

func TestDynamicTreeUpdateNoOpWithinFattenedMargin(t *testing.T) {
	tree := NewDynamicTree(0.5)
	id := tree.AddProxy(ShapeHandle(1), box(Vec3{0, 0, 0}, 0.1))

	// A tiny shift stays inside the fattened AABB, so Update should be a no-op.
	moved := tree.Update(id, box(Vec3{0.05, 0, 0}, 0.1))
	tassert.False(t, moved)

	// A large shift must trigger reinsertion.
	moved = tree.Update(id, box(Vec3{50, 0, 0}, 0.1))
	tassert.True(t, moved)
}

func TestDynamicTreeRemoveProxy(t *testing.T) {
	tree := NewDynamicTree(0.01)
	p1 := tree.AddProxy(ShapeHandle(1), box(Vec3{0, 0, 0}, 0.5))
	p2 := tree.AddProxy(ShapeHandle(2), box(Vec3{0.4, 0, 0}, 0.5))

	tree.RemoveProxy(p1)

	var count int
	tree.EnumerateOverlaps(nil, func(a, b ShapeHandle) { count++ })
	tassert.Equal(t, 0, count)
	_ = p2
}

func TestDynamicTreeRayCastHitsOverlappingLeaf(t *testing.T) {
	tree := NewDynamicTree(0.01)
	tree.AddProxy(ShapeHandle(1), box(Vec3{5, 0, 0}, 0.5))

	var hits []ShapeHandle
	tree.RayCast(RayCastInput{Origin: Vec3{0, 0, 0}, Direction: Vec3{1, 0, 0}, MaxFraction: 100}, func(shape ShapeHandle) float64 {
		hits = append(hits, shape)
		return 100
	})
	tassert.Equal(t, []ShapeHandle{1}, hits)
}

func TestDynamicTreeManyInsertionsStayBalanced(t *testing.T) {
	tree := NewDynamicTree(0.01)
	for i := 0; i < 64; i++ {
		tree.AddProxy(ShapeHandle(i), box(Vec3{float64(i) * 2, 0, 0}, 0.4))
	}

	maxDepth := 0
	tree.EnumerateAll(func(_ AABB, depth int, leaf bool) {
		if leaf && depth > maxDepth {
			maxDepth = depth
		}
	}, 1000)

	// 64 leaves balanced should stay well under a linear-chain depth of 64.
	tassert.Less(t, maxDepth, 20)
}
