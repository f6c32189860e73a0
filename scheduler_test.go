package impulse3d

import (
	"context"
	"sync/atomic"
	"testing"

	tassert "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeIslands(n int) []*Island {
	islands := make([]*Island, n)
	for i := range islands {
		islands[i] = &Island{handle: IslandHandle(i), bodies: map[BodyHandle]struct{}{BodyHandle(i): {}}}
	}
	return islands
}

func TestSchedulerRegularRunsEveryIsland(t *testing.T) {
	s := NewScheduler(ThreadModelRegular, 4)
	defer s.Close()

	var count int64
	islands := makeIslands(10)
	err := s.RunIslands(context.Background(), islands, func(isl *Island) error {
		atomic.AddInt64(&count, 1)
		return nil
	})
	require.NoError(t, err)
	tassert.Equal(t, int64(10), count)
}

func TestSchedulerPersistentRunsEveryIsland(t *testing.T) {
	s := NewScheduler(ThreadModelPersistent, 3)
	defer s.Close()

	var count int64
	islands := makeIslands(20)
	err := s.RunIslands(context.Background(), islands, func(isl *Island) error {
		atomic.AddInt64(&count, 1)
		return nil
	})
	require.NoError(t, err)
	tassert.Equal(t, int64(20), count)
}

func TestSchedulerPropagatesFirstError(t *testing.T) {
	s := NewScheduler(ThreadModelRegular, 2)
	defer s.Close()

	sentinel := tassert.AnError
	islands := makeIslands(5)
	err := s.RunIslands(context.Background(), islands, func(isl *Island) error {
		if isl.handle == 2 {
			return sentinel
		}
		return nil
	})
	tassert.ErrorIs(t, err, sentinel)
}
