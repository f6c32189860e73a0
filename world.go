package impulse3d

import (
	"context"

	"github.com/impulse3d/impulse3d/internal/engerr"
	"github.com/impulse3d/impulse3d/internal/enginelog"
)

// WorldConfig bundles every tunable World.Step consults. Values left at zero
// fall back to DefaultWorldConfig's defaults where NewWorld fills them in,
// rather than forcing every embedder to specify every knob.
type WorldConfig struct {
	Gravity Vec3

	Solver SolverConfig

	AllowDeactivation bool
	UseFullEPASolver  bool // force EPA over MPR for every contact
	EdgeFilterCosine  float64

	ThreadModel ThreadModel
	WorkerCount int

	BodyCapacity       int
	ShapeCapacity      int
	ConstraintCapacity int

	BroadphaseMargin float64

	Logger enginelog.Logger
}

// DefaultWorldConfig returns sensible gravity/iteration defaults for this
// engine's substep model.
func DefaultWorldConfig() WorldConfig {
	return WorldConfig{
		Gravity:            Vec3{0, -9.81, 0},
		Solver:             DefaultSolverConfig(),
		AllowDeactivation:  true,
		EdgeFilterCosine:   0.99,
		ThreadModel:        ThreadModelRegular,
		BodyCapacity:       1024,
		ShapeCapacity:      1024,
		ConstraintCapacity: 256,
		BroadphaseMargin:   0.1,
	}
}

// World is the simulation orchestrator: owns every body, shape, arbiter,
// constraint, the broadphase tree, and the island graph, and drives Step
// across the island-parallel scheduler rather than a single-threaded fixed
// pipeline.
type World struct {
	cfg WorldConfig
	log enginelog.Logger

	bodies     *Pool[bodyRecord]
	bodyByH    map[BodyHandle]*Body
	shapeByH   map[ShapeHandle]Shape
	nextShape  ShapeHandle
	nextConstr ConstraintHandle

	tree *DynamicTree

	arbiters map[ArbiterKey]*Arbiter

	constraints map[ConstraintHandle]Constraint

	islands *IslandGraph

	scheduler *Scheduler

	nullBody BodyHandle

	pendingRemoveArbiters []ArbiterKey
}

// NewWorld constructs a World from cfg, filling any zero-valued fields from
// DefaultWorldConfig.
func NewWorld(cfg WorldConfig) *World {
	def := DefaultWorldConfig()
	if cfg.Solver.NumberSubsteps == 0 {
		cfg.Solver = def.Solver
	}
	if cfg.BodyCapacity == 0 {
		cfg.BodyCapacity = def.BodyCapacity
	}
	if cfg.ShapeCapacity == 0 {
		cfg.ShapeCapacity = def.ShapeCapacity
	}
	if cfg.ConstraintCapacity == 0 {
		cfg.ConstraintCapacity = def.ConstraintCapacity
	}
	if cfg.BroadphaseMargin == 0 {
		cfg.BroadphaseMargin = def.BroadphaseMargin
	}
	if cfg.EdgeFilterCosine == 0 {
		cfg.EdgeFilterCosine = def.EdgeFilterCosine
	}
	log := cfg.Logger
	if log == nil {
		log = enginelog.Noop()
	}

	w := &World{
		cfg:         cfg,
		log:         log,
		bodies:      NewPool[bodyRecord](cfg.BodyCapacity),
		bodyByH:     make(map[BodyHandle]*Body),
		shapeByH:    make(map[ShapeHandle]Shape),
		tree:        NewDynamicTree(cfg.BroadphaseMargin),
		arbiters:    make(map[ArbiterKey]*Arbiter),
		constraints: make(map[ConstraintHandle]Constraint),
		islands:     newIslandGraph(),
		scheduler:   NewScheduler(cfg.ThreadModel, cfg.WorkerCount),
	}
	w.nullBody = w.createNullBody()
	return w
}

// Close releases scheduler resources (persistent worker goroutines).
func (w *World) Close() { w.scheduler.Close() }

// NullBody returns the handle of the package-managed static anchor body,
// used as the second body of a one-body constraint.
func (w *World) NullBody() BodyHandle { return w.nullBody }

func (w *World) createNullBody() BodyHandle {
	h, err := w.bodies.Allocate(false)
	if err != nil {
		panic(err) // capacity for one static anchor is assumed available
	}
	bh := BodyHandle(h)
	rec := w.bodies.Get(h)
	*rec = bodyRecord{Orientation: identityMat3, Static: true, Active: false, GravityScale: 1, self: bh}
	body := newBody(bh, w)
	w.bodyByH[bh] = body
	body.island = w.islands.BodyAdded(bh, false)
	return bh
}

// CreateBody allocates a new body, active by default, and returns its
// wrapper.
func (w *World) CreateBody(position Vec3, static bool) (*Body, error) {
	h, err := w.bodies.Allocate(!static)
	if err != nil {
		return nil, err
	}
	bh := BodyHandle(h)
	rec := w.bodies.Get(h)
	*rec = bodyRecord{
		Position:          position,
		Orientation:       identityMat3,
		Static:            static,
		Active:            !static,
		GravityScale:      1,
		AffectedByGravity: true,
		self:              bh,
	}
	body := newBody(bh, w)
	w.bodyByH[bh] = body
	body.island = w.islands.BodyAdded(bh, !static)
	return body, nil
}

// RemoveBody removes every arbiter and constraint referencing body, detaches
// its shapes, drops it from its island via IslandGraph.BodyRemoved, and frees
// its slot. The caller does not need to remove arbiters or constraints first.
func (w *World) RemoveBody(handle BodyHandle) error {
	body, ok := w.bodyByH[handle]
	if !ok {
		return engerr.Wrap(engerr.ErrInvalidArgument, "unknown body handle")
	}
	for key := range body.contacts {
		w.removeArbiter(key)
	}
	for ch := range body.constraints {
		w.RemoveConstraint(ch)
	}
	for _, sh := range append([]ShapeHandle{}, body.shapes...) {
		if s := w.shapeByH[sh]; s != nil {
			w.removeShapeProxy(s)
			delete(w.shapeByH, sh)
		}
	}
	w.islands.BodyRemoved(handle)
	w.bodies.Free(int32(handle))
	delete(w.bodyByH, handle)
	return nil
}

// BodyOf returns the cold wrapper for handle, or nil.
func (w *World) BodyOf(handle BodyHandle) *Body { return w.bodyByH[handle] }

func (w *World) bodyRecordOf(handle BodyHandle) *bodyRecord {
	return w.bodies.Get(int32(handle))
}

// shapeOf resolves a shape handle, used by Body.recomputeMass and the
// narrowphase driver.
func (w *World) shapeOf(handle ShapeHandle) Shape { return w.shapeByH[handle] }

// AttachShape attaches shape to body and inserts its broadphase proxy.
func (w *World) AttachShape(body *Body, shape Shape, allowZeroMass bool) error {
	h := w.nextShape
	w.nextShape++
	shape.setHandle(h)
	// Registered before body.AttachShape so recomputeMass's shapeOf lookup
	// (triggered synchronously inside AttachShape) finds this shape too.
	w.shapeByH[h] = shape
	if err := body.AttachShape(shape, allowZeroMass); err != nil {
		delete(w.shapeByH, h)
		w.nextShape--
		return err
	}

	rec := w.bodyRecordOf(body.handle)
	shape.UpdateWorldBoundingBox(rec.Position, rec.Orientation)
	proxy := w.tree.AddProxy(h, shape.WorldBoundingBox())
	shape.setProxy(proxy)
	return nil
}

func (w *World) removeShapeProxy(shape Shape) {
	w.tree.RemoveProxy(shape.proxy())
}

// CreateConstraint registers constraint, assigns it a handle, and merges its
// two bodies' islands. Rejects a constraint between two unknown bodies, or
// between two static bodies: wake only activates dynamic bodies' islands, so
// a constraint with no dynamic endpoint would sit in w.constraints forever
// without its island ever going active, and Prepare would never run for it.
func (w *World) CreateConstraint(c Constraint) (ConstraintHandle, error) {
	a, b := c.Bodies()
	recA, recB := w.bodyRecordOf(a), w.bodyRecordOf(b)
	if recA == nil || recB == nil {
		return 0, engerr.Wrap(engerr.ErrInvalidArgument, "constraint references an unknown body")
	}
	if recA.Static && recB.Static {
		return 0, engerr.Wrap(engerr.ErrMissingConstraintInitialization, "constraint has no dynamic body and would never be prepared")
	}

	h := w.nextConstr
	w.nextConstr++
	c.setHandle(h)
	w.constraints[h] = c

	if bodyA := w.bodyByH[a]; bodyA != nil {
		bodyA.constraints[h] = struct{}{}
	}
	if bodyB := w.bodyByH[b]; bodyB != nil {
		bodyB.constraints[h] = struct{}{}
	}
	w.islands.ConstraintCreated(a, b)
	w.wake(a)
	w.wake(b)
	return h, nil
}

// RemoveConstraint unregisters a constraint and marks its bodies' islands
// dirty for the next FlushSplits pass.
func (w *World) RemoveConstraint(h ConstraintHandle) {
	c, ok := w.constraints[h]
	if !ok {
		return
	}
	a, b := c.Bodies()
	if bodyA := w.bodyByH[a]; bodyA != nil {
		delete(bodyA.constraints, h)
	}
	if bodyB := w.bodyByH[b]; bodyB != nil {
		delete(bodyB.constraints, h)
	}
	w.islands.ConstraintRemoved(a, b)
	delete(w.constraints, h)
}

func (w *World) wake(handle BodyHandle) {
	body := w.bodyByH[handle]
	rec := w.bodyRecordOf(handle)
	if body == nil || rec == nil || rec.Static {
		return
	}
	if !rec.Active {
		rec.Active = true
		w.bodies.MoveActive(int32(handle), true)
	}
	body.sleepTime = 0
	if isl := w.islands.Get(body.island); isl != nil {
		isl.markedAsActive = true
	}
}

// liveNeighbors implements edgeSource for IslandGraph.FlushSplits, walking a
// body's current contact and constraint adjacency.
func (w *World) liveNeighbors(body BodyHandle) []BodyHandle {
	b := w.bodyByH[body]
	if b == nil {
		return nil
	}
	var out []BodyHandle
	for key := range b.contacts {
		arb := w.arbiters[key]
		if arb == nil {
			continue
		}
		if arb.BodyA == body {
			out = append(out, arb.BodyB)
		} else {
			out = append(out, arb.BodyA)
		}
	}
	for ch := range b.constraints {
		c := w.constraints[ch]
		if c == nil {
			continue
		}
		a, bb := c.Bodies()
		if a == body {
			out = append(out, bb)
		} else {
			out = append(out, a)
		}
	}
	return out
}

// Step advances the simulation by dt seconds:
//  1. broadphase proxy update + pair enumeration
//  2. narrowphase on candidate pairs, arbiter creation/refresh
//  3. island-parallel solve (substepped sequential impulse) via the scheduler
//  4. sleep/wake evaluation
//  5. deferred island split flush
func (w *World) Step(ctx context.Context, dt float64) error {
	if dt <= 0 {
		return engerr.Wrap(engerr.ErrInvalidArgument, "dt must be positive")
	}

	w.updateBroadphase()
	w.runNarrowphase()
	w.flushRemovedArbiters()

	if err := w.solveActiveIslands(ctx, dt); err != nil {
		return err
	}

	if w.cfg.AllowDeactivation {
		w.evaluateSleep(dt)
	}

	w.islands.FlushSplits(w)
	return nil
}

func (w *World) updateBroadphase() {
	for _, s := range w.shapeByH {
		body, ok := s.attachedBody()
		if !ok {
			continue
		}
		rec := w.bodyRecordOf(body)
		if rec == nil || rec.staticOrInactive() {
			continue
		}
		s.UpdateWorldBoundingBox(rec.Position, rec.Orientation)
		w.tree.Update(s.proxy(), s.WorldBoundingBox())
	}
}

func (w *World) runNarrowphase() {
	w.tree.EnumerateOverlaps(w.broadphaseFilter, func(a, b ShapeHandle) {
		w.processPair(a, b)
	})

	for key, arb := range w.arbiters {
		if arb.markedForRemoval {
			continue
		}
		bodyA := w.bodyRecordOf(arb.BodyA)
		bodyB := w.bodyRecordOf(arb.BodyB)
		if bodyA == nil || bodyB == nil {
			arb.markedForRemoval = true
			w.pendingRemoveArbiters = append(w.pendingRemoveArbiters, key)
			continue
		}
		if bodyA.staticOrInactive() && bodyB.staticOrInactive() {
			continue
		}
		shapeA, shapeB := w.shapeByH[key.a], w.shapeByH[key.b]
		if shapeA == nil || shapeB == nil {
			continue
		}
		arb.Refresh(
			func(rel Vec3) Vec3 { return bodyA.Position.Add(mulVec3(bodyA.Orientation, rel)) },
			func(rel Vec3) Vec3 { return bodyB.Position.Add(mulVec3(bodyB.Orientation, rel)) },
			w.cfg.BroadphaseMargin*0.5,
			w.cfg.Solver.PenetrationSlop,
		)
	}
}

// broadphaseFilter drops pairs that can't generate a contact: both static,
// same body, or neither awake.
func (w *World) broadphaseFilter(a, b ShapeHandle) bool {
	sa, sb := w.shapeByH[a], w.shapeByH[b]
	if sa == nil || sb == nil {
		return false
	}
	ba, okA := sa.attachedBody()
	bb, okB := sb.attachedBody()
	if !okA || !okB || ba == bb {
		return false
	}
	recA, recB := w.bodyRecordOf(ba), w.bodyRecordOf(bb)
	if recA == nil || recB == nil {
		return false
	}
	if recA.staticOrInactive() && recB.staticOrInactive() {
		return false
	}
	return true
}

// auxiliaryManifoldFlatnessCosine bounds how far an auxiliary sample
// direction may tilt from the primary contact normal before it's rejected as
// no longer representative of the same face pair (passed through to
// AuxiliaryManifoldPoints' flatnessCosine parameter).
const auxiliaryManifoldFlatnessCosine = 0.85

func (w *World) processPair(a, b ShapeHandle) {
	key := MakeArbiterKey(a, b)
	arb, existed := w.arbiters[key]

	shapeA, shapeB := w.shapeByH[key.a], w.shapeByH[key.b]
	if shapeA == nil || shapeB == nil {
		return
	}

	result := Detect(shapeA, shapeB, NarrowphaseOptions{ForceEPA: w.cfg.UseFullEPASolver})
	if result.Hit && result.UsedEPA && !w.cfg.UseFullEPASolver {
		w.log.Debug("narrowphase fell back to EPA", "shapeA", int32(a), "shapeB", int32(b))
	}
	if !result.Hit {
		if existed {
			arb.markedForRemoval = true
			w.pendingRemoveArbiters = append(w.pendingRemoveArbiters, key)
		}
		return
	}

	bodyA, _ := shapeA.attachedBody()
	bodyB, _ := shapeB.attachedBody()
	recA, recB := w.bodyRecordOf(bodyA), w.bodyRecordOf(bodyB)
	if recA == nil || recB == nil {
		return
	}

	if !existed {
		arb = newArbiter(key, key.a, key.b, bodyA, bodyB)
		arb.Friction = 0.3
		arb.Restitution = 0
		w.arbiters[key] = arb
		if bwA := w.bodyByH[bodyA]; bwA != nil {
			bwA.contacts[key] = struct{}{}
		}
		if bwB := w.bodyByH[bodyB]; bwB != nil {
			bwB.contacts[key] = struct{}{}
		}
		w.islands.ArbiterCreated(bodyA, bodyB)
	}
	arb.touching = true

	// Detect and AuxiliaryManifoldPoints report world-space contact points
	// (they only see shapes, not the owning bodies' transforms); Arbiter
	// manifold points are body-local so warm-started impulses stay valid as
	// both bodies move, so every point is converted here before insertion.
	worldContact := result.Contact
	arb.AddContact(toLocalContact(worldContact, recA, recB))

	for _, aux := range AuxiliaryManifoldPoints(shapeA, shapeB, worldContact.Normal, worldContact, auxiliaryManifoldFlatnessCosine) {
		arb.AddContact(toLocalContact(aux, recA, recB))
	}

	if !recA.staticOrInactive() || !recB.staticOrInactive() {
		w.wake(bodyA)
		w.wake(bodyB)
	}
}

// toLocalContact rewrites a world-space contact's points into each body's
// local frame.
func toLocalContact(c NewContact, recA, recB *bodyRecord) NewContact {
	c.RelativeA = toBodyLocal(recA.Position, recA.Orientation, c.RelativeA)
	c.RelativeB = toBodyLocal(recB.Position, recB.Orientation, c.RelativeB)
	return c
}

func (w *World) flushRemovedArbiters() {
	for _, key := range w.pendingRemoveArbiters {
		w.removeArbiter(key)
	}
	w.pendingRemoveArbiters = w.pendingRemoveArbiters[:0]
}

func (w *World) removeArbiter(key ArbiterKey) {
	arb, ok := w.arbiters[key]
	if !ok {
		return
	}
	if bwA := w.bodyByH[arb.BodyA]; bwA != nil {
		delete(bwA.contacts, key)
	}
	if bwB := w.bodyByH[arb.BodyB]; bwB != nil {
		delete(bwB.contacts, key)
	}
	w.islands.ArbiterRemoved(arb.BodyA, arb.BodyB)
	delete(w.arbiters, key)
}

func (w *World) solveActiveIslands(ctx context.Context, dt float64) error {
	islands := w.islands.ActiveIslands()
	bodies := func(h BodyHandle) *bodyRecord { return w.bodyRecordOf(h) }

	return w.scheduler.RunIslands(ctx, islands, func(isl *Island) error {
		var arbiters []*Arbiter
		var constraints []Constraint
		for body := range isl.bodies {
			if bw := w.bodyByH[body]; bw != nil {
				for key := range bw.contacts {
					if arb := w.arbiters[key]; arb != nil && arb.BodyA == body {
						arbiters = append(arbiters, arb)
					}
				}
				for ch := range bw.constraints {
					if c := w.constraints[ch]; c != nil {
						a, _ := c.Bodies()
						if a == body {
							constraints = append(constraints, c)
						}
					}
				}
			}
		}
		if len(arbiters) == 0 && len(constraints) == 0 {
			// No contacts or constraints: the island's bodies only take
			// forces and integrate, substep by substep like SolveIsland.
			handles := make([]BodyHandle, 0, len(isl.bodies))
			for body := range isl.bodies {
				handles = append(handles, body)
			}
			substeps := max(w.cfg.Solver.NumberSubsteps, 1)
			subDt := dt / float64(substeps)
			for i := 0; i < substeps; i++ {
				applyForces(bodies, handles, w.cfg.Gravity, subDt)
				integrate(bodies, handles, subDt)
			}
			return nil
		}
		SolveIsland(dt, bodies, w.cfg.Gravity, arbiters, constraints, w.cfg.Solver)
		return nil
	})
}

// evaluateSleep advances each active island's accumulated below-threshold
// time and deactivates it once every member has stayed below both velocity
// thresholds for DeactivationTime. The timer accumulates the outer step's
// dt, not the substep dt.
func (w *World) evaluateSleep(dt float64) {
	for _, isl := range w.islands.ActiveIslands() {
		canSleep := true
		for body := range isl.bodies {
			rec := w.bodyRecordOf(body)
			bw := w.bodyByH[body]
			if rec == nil || bw == nil || rec.Static {
				continue
			}
			linSq := rec.LinearVelocity.Dot(rec.LinearVelocity)
			angSq := rec.AngularVelocity.Dot(rec.AngularVelocity)
			if linSq > bw.LinearSleepThreshold2 || angSq > bw.AngularSleepThreshold2 {
				bw.sleepTime = 0
				canSleep = false
				continue
			}
			bw.sleepTime += dt
			if bw.sleepTime < bw.DeactivationTime {
				canSleep = false
			}
		}
		if canSleep {
			w.deactivateIsland(isl)
		}
	}
}

func (w *World) deactivateIsland(isl *Island) {
	isl.markedAsActive = false
	for body := range isl.bodies {
		rec := w.bodyRecordOf(body)
		if rec == nil || rec.Static {
			continue
		}
		rec.Active = false
		rec.LinearVelocity = Vec3{}
		rec.AngularVelocity = Vec3{}
		w.bodies.MoveActive(int32(body), false)
	}
}
