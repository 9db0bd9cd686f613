package pool

import (
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Group delegates to an errgroup with a fixed concurrency limit, the
// library-backed counterpart to SharedQueue.
type Group struct {
	group *errgroup.Group
}

// NewGroup builds an errgroup-backed pool limited to n concurrent jobs.
func NewGroup(n int) (*Group, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: worker count must be positive, got %d", ErrBuild, n)
	}
	group := &errgroup.Group{}
	group.SetLimit(n)
	return &Group{group: group}, nil
}

// Spawn submits a job, blocking while n jobs are already running.
func (p *Group) Spawn(job func()) {
	p.group.Go(func() error {
		runJob(job)
		return nil
	})
}

// Shutdown waits for all submitted jobs to finish.
func (p *Group) Shutdown() {
	// Errors are impossible here; jobs recover their own panics.
	_ = p.group.Wait()
}
