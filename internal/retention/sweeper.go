// Package retention prunes old jobs and their artifact directories.
package retention

import (
	"context"

	"github.com/rs/zerolog"

	"hookforge/internal/domain"
	"hookforge/internal/registry"
	"hookforge/internal/storage"
)

// ActiveChecker reports whether a job is currently waiting or running.
type ActiveChecker interface {
	IsActive(jobID string) bool
}

// Sweeper deletes all but the newest jobs, skipping anything a worker still
// holds. Job rows and artifact directories go together.
type Sweeper struct {
	registry *registry.Registry
	store    *storage.FileStore
	active   ActiveChecker
	logger   zerolog.Logger
}

func NewSweeper(reg *registry.Registry, store *storage.FileStore, active ActiveChecker, logger zerolog.Logger) *Sweeper {
	return &Sweeper{registry: reg, store: store, active: active, logger: logger}
}

// Cleanup removes every job older than the keepLatest newest ones and
// returns the ids it deleted. Jobs are ranked by creation time regardless of
// status; active jobs are skipped, not counted against keepLatest.
func (s *Sweeper) Cleanup(ctx context.Context, keepLatest int) ([]string, error) {
	if keepLatest < 0 {
		keepLatest = 0
	}
	jobs, err := s.registry.ListJobs(ctx)
	if err != nil {
		return nil, err
	}
	if len(jobs) <= keepLatest {
		return nil, nil
	}

	removed := make([]string, 0, len(jobs)-keepLatest)
	for _, job := range jobs[keepLatest:] {
		// Re-check right before deleting: the job may have been picked
		// up since the listing.
		if s.active.IsActive(job.ID) || job.Status.IsRunning() {
			continue
		}
		if err := s.deleteJob(ctx, job); err != nil {
			s.logger.Error().Err(err).Str("job_id", job.ID).Msg("cleanup job")
			continue
		}
		removed = append(removed, job.ID)
	}
	if len(removed) > 0 {
		s.logger.Info().Int("removed", len(removed)).Int("keep_latest", keepLatest).Msg("cleanup swept jobs")
	}
	return removed, nil
}

// Delete removes one job and its artifacts, refusing while a worker holds
// it.
func (s *Sweeper) Delete(ctx context.Context, jobID string, force bool) error {
	job, err := s.registry.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if !force && (s.active.IsActive(job.ID) || job.Status.IsRunning()) {
		return domain.ErrJobActive
	}
	return s.deleteJob(ctx, job)
}

func (s *Sweeper) deleteJob(ctx context.Context, job *domain.Job) error {
	if err := s.registry.DeleteJob(ctx, job.ID); err != nil {
		return err
	}
	return s.store.RemoveAll(storage.JobDir(job.ID))
}
