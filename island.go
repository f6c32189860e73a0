package impulse3d

// Island is a maximal connected subgraph of bodies under contacts/constraints.
// It is the unit of sleeping and of parallel solve. Rather than rebuilding an
// equivalent grouping from scratch every step by flooding from awake bodies,
// the graph is maintained incrementally with a light union-find, since
// warm-starting and sleep-time accounting need island identity to persist
// across frames.
type Island struct {
	handle IslandHandle
	bodies map[BodyHandle]struct{}

	markedAsActive bool
	needsUpdate    bool
}

// IslandGraph owns every island and the union-find-like bookkeeping that
// merges/splits them as arbiters and constraints come and go.
type IslandGraph struct {
	islands map[IslandHandle]*Island
	next    IslandHandle

	// owner maps a body to the island that currently holds it; a union-find
	// "find" is just owner[body] since we eagerly relabel every member on a
	// merge rather than keeping parent pointers — islands stay small enough
	// in practice (bounded by contact graph locality) for this to be cheap,
	// and it keeps Bodies-of-island enumeration O(1) instead of O(find) per body.
	owner map[BodyHandle]IslandHandle

	dirty map[IslandHandle]struct{} // needsUpdate split-candidates, flushed once per step
}

func newIslandGraph() *IslandGraph {
	return &IslandGraph{
		islands: make(map[IslandHandle]*Island),
		owner:   make(map[BodyHandle]IslandHandle),
		dirty:   make(map[IslandHandle]struct{}),
	}
}

// BodyAdded creates a fresh singleton island for a newly created body.
func (g *IslandGraph) BodyAdded(body BodyHandle, startActive bool) IslandHandle {
	h := g.next
	g.next++
	g.islands[h] = &Island{
		handle:         h,
		bodies:         map[BodyHandle]struct{}{body: {}},
		markedAsActive: startActive,
	}
	g.owner[body] = h
	return h
}

// BodyRemoved drops body from its island and deletes the island when body
// was its only member. It does not check that body is the sole member: a
// multi-member island keeps its other bodies and only loses this one.
func (g *IslandGraph) BodyRemoved(body BodyHandle) {
	h, ok := g.owner[body]
	if !ok {
		return
	}
	island := g.islands[h]
	if island != nil && len(island.bodies) == 1 {
		delete(g.islands, h)
		delete(g.dirty, h)
	} else if island != nil {
		delete(island.bodies, body)
	}
	delete(g.owner, body)
}

// merge folds b's island into a's island (arbitrary direction), relabeling
// every member's owner entry.
func (g *IslandGraph) merge(a, b IslandHandle) IslandHandle {
	if a == b {
		return a
	}
	ia, ib := g.islands[a], g.islands[b]
	if ia == nil {
		return b
	}
	if ib == nil {
		return a
	}
	if len(ib.bodies) > len(ia.bodies) {
		a, b = b, a
		ia, ib = ib, ia
	}
	for body := range ib.bodies {
		ia.bodies[body] = struct{}{}
		g.owner[body] = a
	}
	ia.markedAsActive = ia.markedAsActive || ib.markedAsActive
	delete(g.islands, b)
	delete(g.dirty, b)
	return a
}

// ArbiterCreated merges a and b's islands if distinct.
func (g *IslandGraph) ArbiterCreated(a, b BodyHandle) {
	ha, hb := g.owner[a], g.owner[b]
	g.merge(ha, hb)
}

// ConstraintCreated merges a and b's islands if distinct.
func (g *IslandGraph) ConstraintCreated(a, b BodyHandle) {
	g.ArbiterCreated(a, b)
}

// ArbiterRemoved marks both endpoints' islands dirty; actual repartitioning
// is deferred to FlushSplits, never performed mid-solve.
func (g *IslandGraph) ArbiterRemoved(a, b BodyHandle) {
	if h, ok := g.owner[a]; ok {
		g.markDirty(h)
	}
	if h, ok := g.owner[b]; ok {
		g.markDirty(h)
	}
}

// ConstraintRemoved marks both endpoints' islands dirty.
func (g *IslandGraph) ConstraintRemoved(a, b BodyHandle) {
	g.ArbiterRemoved(a, b)
}

func (g *IslandGraph) markDirty(h IslandHandle) {
	if island := g.islands[h]; island != nil {
		island.needsUpdate = true
		g.dirty[h] = struct{}{}
	}
}

// edgeSource supplies the current live edges (contacts ∪ constraints) used to
// repartition a dirty island.
type edgeSource interface {
	liveNeighbors(body BodyHandle) []BodyHandle
}

// FlushSplits repartitions every island marked needsUpdate via a graph
// traversal over remaining edges, run once per step in the sequential phase
// rather than mid-solve.
func (g *IslandGraph) FlushSplits(edges edgeSource) {
	for h := range g.dirty {
		island := g.islands[h]
		if island == nil {
			continue
		}
		g.splitIsland(island, edges)
	}
	g.dirty = make(map[IslandHandle]struct{})
}

func (g *IslandGraph) splitIsland(island *Island, edges edgeSource) {
	remaining := make(map[BodyHandle]struct{}, len(island.bodies))
	for b := range island.bodies {
		remaining[b] = struct{}{}
	}

	first := true
	for len(remaining) > 0 {
		var seed BodyHandle
		for b := range remaining {
			seed = b
			break
		}

		component := map[BodyHandle]struct{}{seed: {}}
		delete(remaining, seed)
		queue := []BodyHandle{seed}
		for len(queue) > 0 {
			b := queue[0]
			queue = queue[1:]
			for _, n := range edges.liveNeighbors(b) {
				if _, inRemaining := remaining[n]; inRemaining {
					component[n] = struct{}{}
					delete(remaining, n)
					queue = append(queue, n)
				}
			}
		}

		if first {
			island.bodies = component
			for b := range component {
				g.owner[b] = island.handle
			}
			island.needsUpdate = false
			first = false
			continue
		}

		nh := g.next
		g.next++
		newIsland := &Island{handle: nh, bodies: component, markedAsActive: island.markedAsActive}
		g.islands[nh] = newIsland
		for b := range component {
			g.owner[b] = nh
		}
	}
}

// OwnerOf returns the island currently holding body.
func (g *IslandGraph) OwnerOf(body BodyHandle) (IslandHandle, bool) {
	h, ok := g.owner[body]
	return h, ok
}

// Get returns the island for handle, or nil.
func (g *IslandGraph) Get(handle IslandHandle) *Island {
	return g.islands[handle]
}

// ActiveIslands returns every island currently flagged active, the unit the
// solver and sleep evaluation iterate over.
func (g *IslandGraph) ActiveIslands() []*Island {
	out := make([]*Island, 0, len(g.islands))
	for _, isl := range g.islands {
		if isl.markedAsActive {
			out = append(out, isl)
		}
	}
	return out
}
