package impulse3d

import "github.com/impulse3d/impulse3d/internal/engerr"

// Pool is a fixed-capacity contiguous buffer of POD records with an "active
// prefix" invariant: slots [0, activeCount) are the active partition,
// [activeCount, len) is the inactive suffix. Allocate/Free/MoveActive all
// maintain the partition with an O(1) boundary swap, so bulk loops over
// Active() never touch sleeping records.
//
// The container is generic over the record type; the world uses it for body
// records (tree nodes live in a plain slice in broadphase.go). The partition/swap algorithm is the standard swap-with-last
// trick for keeping a dense array free of holes after removal.
type Pool[T any] struct {
	records []T
	// slotOf[i] is the slot a logical handle resolves to; index i into
	// slotOf is the stable handle value returned by Allocate.
	slotOf []int32
	// handleOf[slot] is the handle currently occupying that slot, the
	// inverse of slotOf, kept so swaps can repair both directions in O(1).
	handleOf []int32
	free     []int32
	count    int   // number of slots in use (active + inactive)
	active   int   // number of used slots in the active prefix
	next     int32 // next never-before-issued handle value
}

// NewPool constructs a pool with the given fixed capacity.
func NewPool[T any](capacity int) *Pool[T] {
	p := &Pool[T]{
		records:  make([]T, capacity),
		slotOf:   make([]int32, capacity),
		handleOf: make([]int32, capacity),
	}
	for i := range p.slotOf {
		p.slotOf[i] = -1
	}
	return p
}

func (p *Pool[T]) Cap() int { return len(p.records) }

// Len returns the number of slots currently in use.
func (p *Pool[T]) Len() int { return p.count }

// ActiveLen returns the number of slots in the active prefix.
func (p *Pool[T]) ActiveLen() int { return p.active }

// Allocate reserves a slot, placing it in the active prefix if active is
// true, else the inactive tail, and returns a stable handle for it.
func (p *Pool[T]) Allocate(active bool) (int32, error) {
	if p.count >= len(p.records) {
		return 0, engerr.Wrap(engerr.ErrCapacityExceeded, "pool exhausted")
	}

	var handle int32
	if n := len(p.free); n > 0 {
		handle = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		handle = p.next
		p.next++
	}

	var slot int32
	if active {
		// New active record goes at the end of the active prefix: swap
		// whatever currently occupies that boundary slot into the new tail.
		slot = int32(p.active)
		if slot != int32(p.count) {
			// The tail slot holds no live handle yet; register the new handle
			// there first so the swap repairs slotOf/handleOf for both.
			p.handleOf[p.count] = handle
			p.slotOf[handle] = int32(p.count)
			p.swapSlots(slot, int32(p.count))
		}
		p.active++
	} else {
		slot = int32(p.count)
	}

	p.count++
	p.slotOf[handle] = slot
	p.handleOf[slot] = handle
	var zero T
	p.records[slot] = zero
	return handle, nil
}

// Free releases handle's slot, swapping it with the last used slot (respecting
// the active/inactive partition boundary) so the occupied range stays dense.
func (p *Pool[T]) Free(handle int32) {
	slot := p.slotOf[handle]
	if slot < 0 {
		return
	}

	if slot < int32(p.active) {
		// Freed an active slot: pull in the last active slot, then that
		// slot's old occupant (if any) shuffles down from the inactive tail.
		lastActive := int32(p.active - 1)
		if slot != lastActive {
			p.swapSlots(slot, lastActive)
			slot = lastActive
		}
		p.active--
		lastUsed := int32(p.count - 1)
		if slot != lastUsed {
			p.swapSlots(slot, lastUsed)
		}
	} else {
		lastUsed := int32(p.count - 1)
		if slot != lastUsed {
			p.swapSlots(slot, lastUsed)
		}
	}

	p.count--
	p.slotOf[handle] = -1
	p.free = append(p.free, handle)
}

// MoveActive transitions handle between the active prefix and inactive
// suffix with a single O(1) boundary swap.
func (p *Pool[T]) MoveActive(handle int32, active bool) {
	slot := p.slotOf[handle]
	if slot < 0 {
		return
	}
	isActive := slot < int32(p.active)
	if isActive == active {
		return
	}

	if active {
		boundary := int32(p.active)
		p.swapSlots(slot, boundary)
		p.active++
	} else {
		boundary := int32(p.active - 1)
		p.swapSlots(slot, boundary)
		p.active--
	}
}

func (p *Pool[T]) swapSlots(a, b int32) {
	if a == b {
		return
	}
	p.records[a], p.records[b] = p.records[b], p.records[a]
	ha, hb := p.handleOf[a], p.handleOf[b]
	p.handleOf[a], p.handleOf[b] = hb, ha
	p.slotOf[ha], p.slotOf[hb] = b, a
}

// Get returns a pointer to handle's record, valid until the next structural
// mutation (Allocate/Free/MoveActive) of this pool.
func (p *Pool[T]) Get(handle int32) *T {
	slot := p.slotOf[handle]
	if slot < 0 {
		return nil
	}
	return &p.records[slot]
}

// IsActive reports whether handle currently lives in the active prefix.
func (p *Pool[T]) IsActive(handle int32) bool {
	slot := p.slotOf[handle]
	return slot >= 0 && slot < int32(p.active)
}

// Active returns a view over the active-prefix records for bulk loops.
func (p *Pool[T]) Active() []T { return p.records[:p.active] }

// Elements returns a view over every used record, active and inactive.
func (p *Pool[T]) Elements() []T { return p.records[:p.count] }
