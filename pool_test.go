package impulse3d

import (
	"testing"

	tassert "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolAllocateActiveVsInactive(t *testing.T) {
	p := NewPool[int](4)

	active, err := p.Allocate(true)
	require.NoError(t, err)
	inactive, err := p.Allocate(false)
	require.NoError(t, err)

	tassert.True(t, p.IsActive(active))
	tassert.False(t, p.IsActive(inactive))
	tassert.Equal(t, 1, p.ActiveLen())
	tassert.Equal(t, 2, p.Len())
}

func TestPoolCapacityExceeded(t *testing.T) {
	p := NewPool[int](1)
	_, err := p.Allocate(true)
	require.NoError(t, err)

	_, err = p.Allocate(true)
	tassert.Error(t, err)
}

func TestPoolFreeReusesHandleAndCompacts(t *testing.T) {
	p := NewPool[int](3)
	a, _ := p.Allocate(true)
	b, _ := p.Allocate(true)
	c, _ := p.Allocate(true)

	*p.Get(a) = 10
	*p.Get(b) = 20
	*p.Get(c) = 30

	p.Free(b)
	tassert.Equal(t, 2, p.Len())
	tassert.Nil(t, p.Get(b))
	tassert.Equal(t, 10, *p.Get(a))
	tassert.Equal(t, 30, *p.Get(c))

	reused, err := p.Allocate(true)
	tassert.NoError(t, err)
	tassert.Equal(t, b, reused, "freed handle should be reused via the LIFO free list")
}

func TestPoolMoveActivePartitionsCorrectly(t *testing.T) {
	p := NewPool[int](3)
	a, _ := p.Allocate(true)
	b, _ := p.Allocate(true)
	c, _ := p.Allocate(false)

	p.MoveActive(a, false)
	tassert.False(t, p.IsActive(a))
	tassert.True(t, p.IsActive(b))
	tassert.False(t, p.IsActive(c))
	tassert.Equal(t, 1, p.ActiveLen())

	p.MoveActive(c, true)
	tassert.True(t, p.IsActive(c))
	tassert.Equal(t, 2, p.ActiveLen())
}

func TestPoolActiveViewExcludesInactive(t *testing.T) {
	p := NewPool[int](3)
	a, _ := p.Allocate(true)
	_, _ = p.Allocate(false)

	*p.Get(a) = 42
	active := p.Active()
	require.Len(t, active, 1)
	tassert.Equal(t, 42, active[0])
}
