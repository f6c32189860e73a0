package impulse3d

import "math"

const maxManifoldPoints = 4

// ManifoldPoint is one contact slot in a persistent manifold. RelativeA/
// RelativeB are body-local so warm-started impulses and positions stay valid
// as both bodies move frame to frame; in 3D a contact isn't guaranteed
// coincident between two separately-tracked faces, so each body gets its own
// local point rather than sharing a single one.
type ManifoldPoint struct {
	RelativeA, RelativeB Vec3 // body-local, relative to each body's center of mass
	Normal               Vec3 // world space, points from A to B
	Penetration          float64
	Speculative          bool // positive separation, predicted collision

	NormalImpulse  float64 // warm-start accumulator
	TangentImpulse [2]float64

	live bool
}

// UsageMask marks which of the four slots are live. Only bits 0-3 are ever
// read or written; the mask is 32 bits wide purely for alignment.
type UsageMask uint32

func (m UsageMask) has(slot int) bool { return m&(1<<uint(slot)) != 0 }
func (m *UsageMask) set(slot int)     { *m |= UsageMask(1 << uint(slot)) }
func (m *UsageMask) clear(slot int)   { *m &^= UsageMask(1 << uint(slot)) }

// Arbiter is the persistent manifold between two specific shapes, keyed by
// ArbiterKey. It is never reallocated per step: warm-start impulses live in
// Points across frames.
type Arbiter struct {
	Key ArbiterKey

	ShapeA, ShapeB ShapeHandle
	BodyA, BodyB   BodyHandle

	Points [maxManifoldPoints]ManifoldPoint
	Usage  UsageMask

	Friction    float64
	Restitution float64

	touching bool
	// markedForRemoval is set when narrowphase no longer finds an overlap;
	// actual removal is deferred to the sequential phase rather than mutating
	// the arbiter set mid-solve.
	markedForRemoval bool
}

func newArbiter(key ArbiterKey, shapeA, shapeB ShapeHandle, bodyA, bodyB BodyHandle) *Arbiter {
	return &Arbiter{Key: key, ShapeA: shapeA, ShapeB: shapeB, BodyA: bodyA, BodyB: bodyB}
}

// NewContact is what the narrowphase driver reports for a candidate point,
// before it's merged into the persistent manifold. RelativeA/RelativeB are
// world-space here (the narrowphase only sees shapes, not body transforms);
// the caller converts them to each body's local frame before calling
// AddContact, at which point they satisfy ManifoldPoint's contract.
type NewContact struct {
	RelativeA, RelativeB Vec3
	Normal               Vec3
	Penetration          float64
	Speculative          bool
}

// Refresh recomputes each existing contact's world positions and drops ones
// whose tangential drift or separation invalidates them. worldA and worldB
// must return the current world position of a point given relative to body A
// and body B respectively.
func (a *Arbiter) Refresh(worldA, worldB func(rel Vec3) Vec3, driftTolerance, separationTolerance float64) {
	for i := 0; i < maxManifoldPoints; i++ {
		if !a.Usage.has(i) {
			continue
		}
		p := &a.Points[i]
		wa := worldA(p.RelativeA)
		wb := worldB(p.RelativeB)

		separation := wb.Sub(wa).Dot(p.Normal)
		tangentialDrift := wb.Sub(wa).Sub(p.Normal.Mul(separation))

		if tangentialDrift.Dot(tangentialDrift) > driftTolerance*driftTolerance ||
			(!p.Speculative && separation > separationTolerance) {
			a.Usage.clear(i)
			p.live = false
		}
	}
}

// AddContact merges a freshly-detected contact into the manifold, taking a
// free slot if one exists or reducing to the best four otherwise. Warm-start
// impulses on retained contacts are preserved; new slots start at zero.
func (a *Arbiter) AddContact(c NewContact) {
	for i := 0; i < maxManifoldPoints; i++ {
		if !a.Usage.has(i) {
			a.Points[i] = ManifoldPoint{
				RelativeA: c.RelativeA, RelativeB: c.RelativeB,
				Normal: c.Normal, Penetration: c.Penetration,
				Speculative: c.Speculative, live: true,
			}
			a.Usage.set(i)
			return
		}
	}
	a.reduceAndInsert(c)
}

// reduceAndInsert chooses four contacts from the existing four plus the
// candidate that maximize the area of the quadrilateral they span, always
// keeping the deepest point, via greedy selection:
//  1. keep deepest
//  2. pick second by max distance from the first
//  3. pick third by max triangle area with the first two
//  4. pick fourth by max signed-quadrilateral contribution
func (a *Arbiter) reduceAndInsert(c NewContact) {
	type candidate struct {
		point ManifoldPoint
		isNew bool
	}
	candidates := make([]candidate, 0, maxManifoldPoints+1)
	for i := 0; i < maxManifoldPoints; i++ {
		candidates = append(candidates, candidate{point: a.Points[i]})
	}
	candidates = append(candidates, candidate{
		point: ManifoldPoint{
			RelativeA: c.RelativeA, RelativeB: c.RelativeB,
			Normal: c.Normal, Penetration: c.Penetration,
			Speculative: c.Speculative, live: true,
		},
		isNew: true,
	})

	pos := func(ca candidate) Vec3 { return ca.point.RelativeA }

	deepestIdx := 0
	for i, ca := range candidates {
		if ca.point.Penetration > candidates[deepestIdx].point.Penetration {
			deepestIdx = i
		}
	}
	chosen := []int{deepestIdx}

	secondIdx := -1
	bestDist := -1.0
	for i := range candidates {
		if i == deepestIdx {
			continue
		}
		d := pos(candidates[i]).Sub(pos(candidates[deepestIdx])).Dot(pos(candidates[i]).Sub(pos(candidates[deepestIdx])))
		if d > bestDist {
			bestDist = d
			secondIdx = i
		}
	}
	chosen = append(chosen, secondIdx)

	thirdIdx := -1
	bestArea := -1.0
	for i := range candidates {
		if i == deepestIdx || i == secondIdx {
			continue
		}
		area := triangleArea(pos(candidates[deepestIdx]), pos(candidates[secondIdx]), pos(candidates[i]))
		if area > bestArea {
			bestArea = area
			thirdIdx = i
		}
	}
	chosen = append(chosen, thirdIdx)

	fourthIdx := -1
	bestQuad := -math.MaxFloat64
	for i := range candidates {
		skip := false
		for _, ci := range chosen {
			if i == ci {
				skip = true
			}
		}
		if skip {
			continue
		}
		quad := signedQuadContribution(pos(candidates[deepestIdx]), pos(candidates[secondIdx]), pos(candidates[thirdIdx]), pos(candidates[i]))
		if quad > bestQuad {
			bestQuad = quad
			fourthIdx = i
		}
	}
	chosen = append(chosen, fourthIdx)

	var next [maxManifoldPoints]ManifoldPoint
	for slot, ci := range chosen {
		if ci < 0 {
			continue
		}
		next[slot] = candidates[ci].point
		next[slot].live = true
		if candidates[ci].isNew {
			next[slot].NormalImpulse = 0
			next[slot].TangentImpulse = [2]float64{0, 0}
		}
	}
	a.Points = next
	a.Usage = 0
	for slot := range chosen {
		a.Usage.set(slot)
	}
}

func triangleArea(p0, p1, p2 Vec3) float64 {
	return p1.Sub(p0).Cross(p2.Sub(p0)).Dot(p1.Sub(p0).Cross(p2.Sub(p0)))
}

// signedQuadContribution estimates how much adding p4 to the triangle
// (p0,p1,p2) grows the spanned quadrilateral's area.
func signedQuadContribution(p0, p1, p2, p4 Vec3) float64 {
	return triangleArea(p0, p1, p4) + triangleArea(p1, p2, p4) + triangleArea(p2, p0, p4)
}

// LivePoints returns the indices of currently-live manifold slots.
func (a *Arbiter) LivePoints() []int {
	out := make([]int, 0, maxManifoldPoints)
	for i := 0; i < maxManifoldPoints; i++ {
		if a.Usage.has(i) {
			out = append(out, i)
		}
	}
	return out
}
