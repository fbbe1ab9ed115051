// Package worker bounds pipeline concurrency. Jobs are dispatched FIFO to a
// fixed-size goroutine pool, and a job id is held by at most one worker at a
// time.
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"

	"hookforge/internal/domain"
)

// JobRunner executes a single job to a terminal state or a recorded
// interruption.
type JobRunner interface {
	Run(ctx context.Context, jobID string) error
}

// UnfinishedLister exposes the jobs the registry still owes work to.
type UnfinishedLister interface {
	ListUnfinishedJobs(ctx context.Context) ([]*domain.Job, error)
}

// Pool accepts job ids and runs them through a JobRunner with bounded
// parallelism. Enqueueing an id that is already waiting or running is a
// no-op, so callers can enqueue freely without double-running a job.
type Pool struct {
	runner JobRunner
	pool   *ants.Pool
	logger zerolog.Logger

	mu     sync.Mutex
	queue  []string
	queued map[string]bool
	active map[string]bool

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(runner JobRunner, maxParallel int, logger zerolog.Logger) (*Pool, error) {
	if maxParallel < 1 {
		maxParallel = 1
	}
	ap, err := ants.NewPool(maxParallel, ants.WithPanicHandler(func(v any) {
		logger.Error().Err(fmt.Errorf("%v", v)).Msg("panic in job worker")
	}))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		runner: runner,
		pool:   ap,
		logger: logger,
		queued: make(map[string]bool),
		active: make(map[string]bool),
		wake:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}
	p.wg.Add(1)
	go p.dispatch()
	return p, nil
}

// Enqueue queues jobID for execution. It reports false when the job is
// already waiting or running.
func (p *Pool) Enqueue(jobID string) bool {
	p.mu.Lock()
	if p.queued[jobID] || p.active[jobID] {
		p.mu.Unlock()
		return false
	}
	p.queue = append(p.queue, jobID)
	p.queued[jobID] = true
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return true
}

// IsActive reports whether jobID is currently waiting or running.
func (p *Pool) IsActive(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queued[jobID] || p.active[jobID]
}

// Recover enqueues every unfinished job in registry order, picking up work
// interrupted by a previous process.
func (p *Pool) Recover(ctx context.Context, lister UnfinishedLister) (int, error) {
	jobs, err := lister.ListUnfinishedJobs(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, job := range jobs {
		if p.Enqueue(job.ID) {
			n++
		}
	}
	if n > 0 {
		p.logger.Info().Int("count", n).Msg("re-enqueued unfinished jobs")
	}
	return n, nil
}

// Close stops the dispatcher, cancels running jobs and waits for workers to
// return. Interrupted jobs keep their recorded status and resume on the
// next start.
func (p *Pool) Close() {
	p.cancel()
	p.wg.Wait()
	p.pool.Release()
}

func (p *Pool) dispatch() {
	defer p.wg.Done()
	for {
		jobID, ok := p.next()
		if !ok {
			select {
			case <-p.ctx.Done():
				return
			case <-p.wake:
			}
			continue
		}

		// Submit blocks while all workers are busy, which keeps queue
		// order and parallelism bounded by the pool size.
		id := jobID
		err := p.pool.Submit(func() {
			defer p.finish(id)
			if err := p.runner.Run(p.ctx, id); err != nil && p.ctx.Err() == nil {
				p.logger.Error().Err(err).Str("job_id", id).Msg("job run failed")
			}
		})
		if err != nil {
			p.finish(id)
			if p.ctx.Err() != nil {
				return
			}
			p.logger.Error().Err(err).Str("job_id", id).Msg("submit job to pool")
		}
	}
}

// next pops the queue head and moves it to the active set.
func (p *Pool) next() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return "", false
	}
	jobID := p.queue[0]
	p.queue = p.queue[1:]
	delete(p.queued, jobID)
	p.active[jobID] = true
	return jobID, true
}

func (p *Pool) finish(jobID string) {
	p.mu.Lock()
	delete(p.active, jobID)
	p.mu.Unlock()
}
