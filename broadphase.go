package impulse3d

// DynamicTree is the broadphase: a binary tree of AABB nodes whose leaves
// hold a proxy id for a shape and whose internal nodes hold only the union
// of their children's boxes. Nodes are addressed by index rather than
// pointer so the whole tree lives in one contiguous slice.
type DynamicTree struct {
	nodes     []treeNode
	root      proxyID
	freeList  proxyID
	nodeCount int
	margin    float64
}

type treeNode struct {
	box      AABB
	userData ShapeHandle
	parent   proxyID
	next     proxyID // free-list link when not allocated
	child1   proxyID
	child2   proxyID
	height   int // -1: free, 0: leaf, >0: internal
}

func (n treeNode) isLeaf() bool { return n.child1 == nullProxy }

// NewDynamicTree constructs an empty tree. margin is the fattening distance
// applied to every inserted/updated proxy AABB.
func NewDynamicTree(margin float64) *DynamicTree {
	t := &DynamicTree{root: nullProxy, freeList: nullProxy, margin: margin}
	t.growCapacity(16)
	return t
}

func (t *DynamicTree) growCapacity(newCap int) {
	old := len(t.nodes)
	if newCap <= old {
		return
	}
	nodes := make([]treeNode, newCap)
	copy(nodes, t.nodes)
	for i := old; i < newCap-1; i++ {
		nodes[i] = treeNode{next: proxyID(i + 1), height: -1}
	}
	nodes[newCap-1] = treeNode{next: nullProxy, height: -1}
	t.nodes = nodes
	t.freeList = proxyID(old)
	if old == 0 {
		t.freeList = 0
	}
}

func (t *DynamicTree) allocateNode() proxyID {
	if t.freeList == nullProxy {
		t.growCapacity(max(2*len(t.nodes), len(t.nodes)+16))
	}
	id := t.freeList
	t.freeList = t.nodes[id].next
	t.nodes[id] = treeNode{height: 0, parent: nullProxy, child1: nullProxy, child2: nullProxy}
	t.nodeCount++
	return id
}

func (t *DynamicTree) freeNode(id proxyID) {
	t.nodes[id] = treeNode{next: t.freeList, height: -1}
	t.freeList = id
	t.nodeCount--
}

// AddProxy inserts a leaf for shape with a fattened world AABB and returns
// its proxy id.
func (t *DynamicTree) AddProxy(shape ShapeHandle, box AABB) proxyID {
	id := t.allocateNode()
	t.nodes[id].box = box.Fatten(t.margin)
	t.nodes[id].userData = shape
	t.nodes[id].height = 0
	t.insertLeaf(id)
	return id
}

// RemoveProxy removes a leaf and repairs ancestor AABBs.
func (t *DynamicTree) RemoveProxy(id proxyID) {
	t.removeLeaf(id)
	t.freeNode(id)
}

// Update re-inserts a proxy if its fattened AABB no longer contains the new
// world AABB; otherwise it's a no-op.
func (t *DynamicTree) Update(id proxyID, worldBox AABB) bool {
	if t.nodes[id].box.Contains(worldBox) {
		return false
	}
	t.removeLeaf(id)
	t.nodes[id].box = worldBox.Fatten(t.margin)
	t.insertLeaf(id)
	return true
}

func (t *DynamicTree) insertLeaf(leaf proxyID) {
	t.insertionCountHook()
	if t.root == nullProxy {
		t.root = leaf
		t.nodes[leaf].parent = nullProxy
		return
	}

	leafBox := t.nodes[leaf].box
	index := t.root
	for !t.nodes[index].isLeaf() {
		child1 := t.nodes[index].child1
		child2 := t.nodes[index].child2

		area := t.nodes[index].box.SurfaceArea()
		combined := Combine(t.nodes[index].box, leafBox)
		combinedArea := combined.SurfaceArea()

		cost := 2.0 * combinedArea
		inheritCost := 2.0 * (combinedArea - area)

		cost1 := childCost(t, child1, leafBox) + inheritCost
		cost2 := childCost(t, child2, leafBox) + inheritCost

		if cost < cost1 && cost < cost2 {
			break
		}
		if cost1 < cost2 {
			index = child1
		} else {
			index = child2
		}
	}

	sibling := index
	oldParent := t.nodes[sibling].parent
	newParent := t.allocateNode()
	t.nodes[newParent].parent = oldParent
	t.nodes[newParent].box = Combine(leafBox, t.nodes[sibling].box)
	t.nodes[newParent].height = t.nodes[sibling].height + 1

	if oldParent != nullProxy {
		if t.nodes[oldParent].child1 == sibling {
			t.nodes[oldParent].child1 = newParent
		} else {
			t.nodes[oldParent].child2 = newParent
		}
		t.nodes[newParent].child1 = sibling
		t.nodes[newParent].child2 = leaf
		t.nodes[sibling].parent = newParent
		t.nodes[leaf].parent = newParent
	} else {
		t.nodes[newParent].child1 = sibling
		t.nodes[newParent].child2 = leaf
		t.nodes[sibling].parent = newParent
		t.nodes[leaf].parent = newParent
		t.root = newParent
	}

	t.fixupAncestors(t.nodes[leaf].parent)
}

// childCost is the surface-area-heuristic cost of descending into child when
// inserting leafBox: minimize the sum of expanded internal areas.
func childCost(t *DynamicTree, child proxyID, leafBox AABB) float64 {
	if t.nodes[child].isLeaf() {
		return Combine(leafBox, t.nodes[child].box).SurfaceArea()
	}
	oldArea := t.nodes[child].box.SurfaceArea()
	newArea := Combine(leafBox, t.nodes[child].box).SurfaceArea()
	return newArea - oldArea
}

func (t *DynamicTree) removeLeaf(leaf proxyID) {
	if leaf == t.root {
		t.root = nullProxy
		return
	}

	parent := t.nodes[leaf].parent
	grandParent := t.nodes[parent].parent
	var sibling proxyID
	if t.nodes[parent].child1 == leaf {
		sibling = t.nodes[parent].child2
	} else {
		sibling = t.nodes[parent].child1
	}

	if grandParent != nullProxy {
		if t.nodes[grandParent].child1 == parent {
			t.nodes[grandParent].child1 = sibling
		} else {
			t.nodes[grandParent].child2 = sibling
		}
		t.nodes[sibling].parent = grandParent
		t.freeNode(parent)
		t.fixupAncestors(grandParent)
	} else {
		t.root = sibling
		t.nodes[sibling].parent = nullProxy
		t.freeNode(parent)
	}
}

// fixupAncestors walks from index to the root, refitting each ancestor's AABB
// and rebalancing via rotation where a subtree's children heights diverge
// beyond a threshold of 1.
func (t *DynamicTree) fixupAncestors(index proxyID) {
	for index != nullProxy {
		index = t.balance(index)

		child1 := t.nodes[index].child1
		child2 := t.nodes[index].child2
		t.nodes[index].height = 1 + max(t.nodes[child1].height, t.nodes[child2].height)
		t.nodes[index].box = Combine(t.nodes[child1].box, t.nodes[child2].box)

		index = t.nodes[index].parent
	}
}

// balance performs a single AVL-style rotation at iA if its children's
// heights differ by more than one, returning the new subtree root.
func (t *DynamicTree) balance(iA proxyID) proxyID {
	a := &t.nodes[iA]
	if a.isLeaf() || a.height < 2 {
		return iA
	}

	iB, iC := a.child1, a.child2
	b, c := &t.nodes[iB], &t.nodes[iC]
	balanceFactor := c.height - b.height

	if balanceFactor > 1 {
		return t.rotate(iA, iC, iB)
	}
	if balanceFactor < -1 {
		return t.rotate(iA, iB, iC)
	}
	return iA
}

// rotate promotes iHeavy (the taller child of iA) to iA's position, pushing
// iA down as one of iHeavy's children.
func (t *DynamicTree) rotate(iA, iHeavy, iLight proxyID) proxyID {
	heavy := &t.nodes[iHeavy]
	f1, f2 := heavy.child1, heavy.child2

	heavy.child1 = iA
	heavy.parent = t.nodes[iA].parent
	t.nodes[iA].parent = iHeavy

	if heavy.parent != nullProxy {
		if t.nodes[heavy.parent].child1 == iA {
			t.nodes[heavy.parent].child1 = iHeavy
		} else {
			t.nodes[heavy.parent].child2 = iHeavy
		}
	} else {
		t.root = iHeavy
	}

	var keep, move proxyID
	if t.nodes[f1].height > t.nodes[f2].height {
		keep, move = f1, f2
	} else {
		keep, move = f2, f1
	}
	heavy.child2 = keep
	t.nodes[iA].child2 = move
	t.nodes[move].parent = iA

	t.nodes[iA].box = Combine(t.nodes[iLight].box, t.nodes[move].box)
	t.nodes[iA].height = 1 + max(t.nodes[iLight].height, t.nodes[move].height)
	heavy.box = Combine(t.nodes[iA].box, t.nodes[keep].box)
	heavy.height = 1 + max(t.nodes[iA].height, t.nodes[keep].height)

	return iHeavy
}

func (t *DynamicTree) insertionCountHook() {}

// PairFilter rejects candidate pairs the caller doesn't want enumerated
// (e.g. to reject same-body pairs).
type PairFilter func(a, b ShapeHandle) bool

// EnumerateOverlaps emits every pair of overlapping leaf proxies, excluding
// pairs rejected by filter. O(n log n) via a simple self-query of the tree.
func (t *DynamicTree) EnumerateOverlaps(filter PairFilter, emit func(a, b ShapeHandle)) {
	if t.root == nullProxy {
		return
	}
	var stack []proxyID
	for leaf := proxyID(0); leaf < proxyID(len(t.nodes)); leaf++ {
		if t.nodes[leaf].height != 0 {
			continue
		}
		stack = stack[:0]
		stack = append(stack, t.root)
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if n == nullProxy || !t.nodes[n].box.Overlaps(t.nodes[leaf].box) {
				continue
			}
			if t.nodes[n].isLeaf() {
				if n > leaf { // visit each unordered pair once
					a, b := t.nodes[leaf].userData, t.nodes[n].userData
					if filter == nil || filter(a, b) {
						emit(a, b)
					}
				}
				continue
			}
			stack = append(stack, t.nodes[n].child1, t.nodes[n].child2)
		}
	}
}

// RayCastInput bundles a ray query.
type RayCastInput struct {
	Origin, Direction Vec3
	MaxFraction       float64
}

// RayCast descends the tree using slab tests, calling hit for every leaf
// whose fattened AABB the ray intersects within MaxFraction.
func (t *DynamicTree) RayCast(input RayCastInput, hit func(shape ShapeHandle) float64) {
	if t.root == nullProxy {
		return
	}
	maxFraction := input.MaxFraction
	var stack []proxyID
	stack = append(stack, t.root)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == nullProxy {
			continue
		}
		if !rayIntersectsAABB(input.Origin, input.Direction, maxFraction, t.nodes[n].box) {
			continue
		}
		if t.nodes[n].isLeaf() {
			f := hit(t.nodes[n].userData)
			if f <= 0 {
				return
			}
			if f < maxFraction {
				maxFraction = f
			}
			continue
		}
		stack = append(stack, t.nodes[n].child1, t.nodes[n].child2)
	}
}

func rayIntersectsAABB(origin, dir Vec3, maxFraction float64, box AABB) bool {
	tmin, tmax := 0.0, maxFraction
	ro := [3]float64{origin.X(), origin.Y(), origin.Z()}
	rd := [3]float64{dir.X(), dir.Y(), dir.Z()}
	lo := [3]float64{box.Lower.X(), box.Lower.Y(), box.Lower.Z()}
	hi := [3]float64{box.Upper.X(), box.Upper.Y(), box.Upper.Z()}

	for axis := 0; axis < 3; axis++ {
		if rd[axis] == 0 {
			if ro[axis] < lo[axis] || ro[axis] > hi[axis] {
				return false
			}
			continue
		}
		inv := 1.0 / rd[axis]
		t1 := (lo[axis] - ro[axis]) * inv
		t2 := (hi[axis] - ro[axis]) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tmin {
			tmin = t1
		}
		if t2 < tmax {
			tmax = t2
		}
		if tmin > tmax {
			return false
		}
	}
	return true
}

// EnumerateAll visits every node up to maxDepth, for debug views.
func (t *DynamicTree) EnumerateAll(visitor func(box AABB, depth int, leaf bool), maxDepth int) {
	if t.root == nullProxy {
		return
	}
	t.walk(t.root, 0, maxDepth, visitor)
}

func (t *DynamicTree) walk(n proxyID, depth, maxDepth int, visitor func(AABB, int, bool)) {
	if n == nullProxy || depth > maxDepth {
		return
	}
	node := t.nodes[n]
	visitor(node.box, depth, node.isLeaf())
	if !node.isLeaf() {
		t.walk(node.child1, depth+1, maxDepth, visitor)
		t.walk(node.child2, depth+1, maxDepth, visitor)
	}
}
