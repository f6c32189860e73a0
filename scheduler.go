package impulse3d

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ThreadModel selects how World.Step fans island work out across goroutines:
// a pool built fresh per tick versus a long-lived pool of parked workers
// woken via a channel handoff.
type ThreadModel int

const (
	// ThreadModelRegular spins up a bounded errgroup per Step call, the
	// simplest correct option for fanning a per-island solve across
	// goroutines.
	ThreadModelRegular ThreadModel = iota

	// ThreadModelPersistent keeps a fixed ring of goroutines parked on a job
	// channel across steps, avoiding goroutine-spawn overhead on every tick.
	ThreadModelPersistent
)

// Scheduler dispatches island-parallel work (solve, narrowphase, integration)
// according to the configured ThreadModel.
type Scheduler struct {
	model       ThreadModel
	workerCount int

	jobs chan func()
	quit chan struct{}
}

// NewScheduler builds a Scheduler with workerCount goroutines (persistent
// mode only; regular mode ignores workerCount beyond capping concurrency).
// workerCount<=0 defaults to runtime.GOMAXPROCS(0).
func NewScheduler(model ThreadModel, workerCount int) *Scheduler {
	if workerCount <= 0 {
		workerCount = runtime.GOMAXPROCS(0)
	}
	s := &Scheduler{model: model, workerCount: workerCount}
	if model == ThreadModelPersistent {
		s.jobs = make(chan func())
		s.quit = make(chan struct{})
		for i := 0; i < workerCount; i++ {
			go s.worker()
		}
	}
	return s
}

func (s *Scheduler) worker() {
	for {
		select {
		case job := <-s.jobs:
			job()
		case <-s.quit:
			return
		}
	}
}

// Close stops a persistent scheduler's workers; a no-op in regular mode.
func (s *Scheduler) Close() {
	if s.model == ThreadModelPersistent {
		close(s.quit)
	}
}

// RunIslands executes fn once per island, bounding concurrency to
// workerCount, and returns the first error encountered. Island solves are
// independent by construction, so any subset may run concurrently.
func (s *Scheduler) RunIslands(ctx context.Context, islands []*Island, fn func(*Island) error) error {
	if len(islands) == 0 {
		return nil
	}
	switch s.model {
	case ThreadModelPersistent:
		return s.runPersistent(islands, fn)
	default:
		return s.runRegular(ctx, islands, fn)
	}
}

func (s *Scheduler) runRegular(ctx context.Context, islands []*Island, fn func(*Island) error) error {
	group, _ := errgroup.WithContext(ctx)
	group.SetLimit(s.workerCount)
	for _, isl := range islands {
		isl := isl
		group.Go(func() error {
			return fn(isl)
		})
	}
	return group.Wait()
}

// runPersistent hands every island to the parked worker ring and blocks
// until all complete. When no worker is ready to take a job, it yields once
// via runtime.Gosched and then blocks on the send until a worker takes it.
func (s *Scheduler) runPersistent(islands []*Island, fn func(*Island) error) error {
	results := make(chan error, len(islands))
	for _, isl := range islands {
		isl := isl
		job := func() { results <- fn(isl) }
		select {
		case s.jobs <- job:
		default:
			// All workers busy: yield, then wait for a worker to free up
			// (islands outnumbering workers queue behind the blocking send).
			runtime.Gosched()
			s.jobs <- job
		}
	}
	var first error
	for i := 0; i < len(islands); i++ {
		if err := <-results; err != nil && first == nil {
			first = err
		}
	}
	return first
}
