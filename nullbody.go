package impulse3d

import "github.com/impulse3d/impulse3d/internal/engerr"

// Every World carries exactly one null body: an immovable, infinite-mass
// anchor a one-body constraint can target as its second body, so a joint
// that only constrains one real body (a mouse-drag anchor, say) has a
// well-defined second endpoint without special-casing single-body
// constraints throughout the solver.
//
// AnchorConstraint is a convenience DistanceConstraint constructor that pins
// bodyA to a fixed world-space point via the world's null body, so callers
// don't need to reason about the null body's handle directly.
func (w *World) AnchorConstraint(body BodyHandle, localAnchor, worldPoint Vec3) (*DistanceConstraint, error) {
	rec := w.bodyRecordOf(w.nullBody)
	if rec == nil {
		return nil, engerr.Wrap(engerr.ErrInvalidArgument, "world has no null body")
	}
	localOnAnchor := worldPoint.Sub(rec.Position)
	c := NewDistanceConstraint(body, w.nullBody, localAnchor, localOnAnchor, 0)
	return c, nil
}
