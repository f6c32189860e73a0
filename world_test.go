package impulse3d

import (
	"context"
	"testing"

	tassert "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorldSingleCubeSettlesOnFloor(t *testing.T) {
	w := NewWorld(WorldConfig{Gravity: Vec3{0, -9.81, 0}})
	defer w.Close()

	floor, err := w.CreateBody(Vec3{0, -0.5, 0}, true)
	require.NoError(t, err)
	require.NoError(t, w.AttachShape(floor, NewBoxShape(Vec3{10, 0.5, 10}, 0), true))

	cube, err := w.CreateBody(Vec3{0, 2, 0}, false)
	require.NoError(t, err)
	require.NoError(t, w.AttachShape(cube, NewBoxShape(Vec3{0.5, 0.5, 0.5}, 1), false))

	ctx := context.Background()
	dt := 1.0 / 60.0
	for i := 0; i < 300; i++ {
		require.NoError(t, w.Step(ctx, dt))
	}

	rec := w.bodyRecordOf(cube.Handle())
	require.NotNil(t, rec)
	tassert.InDelta(t, 0.5, rec.Position.Y(), 0.1, "cube should settle resting on the floor's top face")
}

func TestWorldBodySleepsAfterSettling(t *testing.T) {
	cfg := DefaultWorldConfig()
	cfg.AllowDeactivation = true
	w := NewWorld(cfg)
	defer w.Close()

	floor, _ := w.CreateBody(Vec3{0, -0.5, 0}, true)
	_ = w.AttachShape(floor, NewBoxShape(Vec3{10, 0.5, 10}, 0), true)

	cube, _ := w.CreateBody(Vec3{0, 0.51, 0}, false)
	_ = w.AttachShape(cube, NewBoxShape(Vec3{0.5, 0.5, 0.5}, 1), false)

	ctx := context.Background()
	dt := 1.0 / 60.0
	for i := 0; i < 120; i++ {
		require.NoError(t, w.Step(ctx, dt))
	}

	rec := w.bodyRecordOf(cube.Handle())
	require.NotNil(t, rec)
	tassert.False(t, rec.Active, "a body resting below sleep thresholds for DeactivationTime should deactivate")
}

func TestWorldRemoveBodyForgetsBody(t *testing.T) {
	w := NewWorld(DefaultWorldConfig())
	defer w.Close()

	a, _ := w.CreateBody(Vec3{0, 0, 0}, false)
	_ = w.AttachShape(a, NewSphereShape(0.5, 1), false)

	err := w.RemoveBody(a.Handle())
	tassert.NoError(t, err)
	tassert.Nil(t, w.BodyOf(a.Handle()))
}

func TestWorldStepRejectsNonPositiveDt(t *testing.T) {
	w := NewWorld(DefaultWorldConfig())
	defer w.Close()

	err := w.Step(context.Background(), 0)
	tassert.Error(t, err)
}

func TestWorldAnchorConstraintHoldsBodyNearWorldPoint(t *testing.T) {
	w := NewWorld(WorldConfig{Gravity: Vec3{0, -9.81, 0}})
	defer w.Close()

	body, _ := w.CreateBody(Vec3{0, 5, 0}, false)
	_ = w.AttachShape(body, NewSphereShape(0.25, 1), false)

	anchor, err := w.AnchorConstraint(body.Handle(), Vec3{}, Vec3{0, 5, 0})
	require.NoError(t, err)
	_, err = w.CreateConstraint(anchor)
	require.NoError(t, err)

	ctx := context.Background()
	dt := 1.0 / 60.0
	for i := 0; i < 120; i++ {
		require.NoError(t, w.Step(ctx, dt))
	}

	rec := w.bodyRecordOf(body.Handle())
	require.NotNil(t, rec)
	tassert.InDelta(t, 5.0, rec.Position.Y(), 0.5, "anchored body should stay near its anchor point despite gravity")
}
