package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"hookforge/internal/domain"
	"hookforge/internal/infra"
	"hookforge/internal/sqlinline"
)

// Registry is the durable job store. Every status transition appends an
// event in the same transaction that mutates the job row, so the event log
// is always a faithful history of what the job went through.
type Registry struct {
	runner *infra.SQLRunner
	logger zerolog.Logger

	// hook is invoked after a transaction that appended events has
	// committed. Durability always precedes broadcast.
	hook func(domain.JobEvent)
}

func New(runner *infra.SQLRunner, logger zerolog.Logger) *Registry {
	return &Registry{runner: runner, logger: logger}
}

// Init creates the schema if it does not exist yet.
func (r *Registry) Init(ctx context.Context) error {
	_, err := r.runner.Exec(ctx, sqlinline.QSchema)
	return err
}

// SetEventHook registers a callback fired for every appended event, after
// the enclosing transaction commits. Must be called before the registry is
// shared across goroutines.
func (r *Registry) SetEventHook(fn func(domain.JobEvent)) {
	r.hook = fn
}

func (r *Registry) emit(events []domain.JobEvent) {
	if r.hook == nil {
		return
	}
	for _, ev := range events {
		r.hook(ev)
	}
}

// CreateJob inserts the job and its initial event in one transaction. The
// job's ID and timestamps must already be set by the caller; Status is
// forced to queued.
func (r *Registry) CreateJob(ctx context.Context, job *domain.Job) error {
	job.Status = domain.StatusQueued
	now := time.Now().UnixNano()
	job.CreatedAt = now
	job.UpdatedAt = now

	artifacts, err := encodeArtifacts(job.Artifacts)
	if err != nil {
		return err
	}
	meta, err := encodeMeta(job.Meta)
	if err != nil {
		return err
	}

	var created []domain.JobEvent
	err = r.runner.InTx(ctx, func(tx infra.SQLExecutor) error {
		_, err := tx.Exec(ctx, sqlinline.QInsertJob,
			job.ID, job.ProjectName, job.InputFilename, job.SourcePath,
			job.ASRClipSeconds, job.HookClipSeconds, string(job.Status),
			artifacts, meta, job.CreatedAt, job.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		ev, err := appendEvent(ctx, tx, job.ID, string(domain.StatusQueued), "job accepted", now)
		if err != nil {
			return err
		}
		created = append(created, ev)
		return nil
	})
	if err != nil {
		return err
	}
	r.emit(created)
	return nil
}

// GetJob returns the job or domain.ErrJobNotFound.
func (r *Registry) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	row := r.runner.QueryRow(ctx, sqlinline.QGetJob, id)
	return scanJob(row)
}

// ListJobs returns all jobs, newest first.
func (r *Registry) ListJobs(ctx context.Context) ([]*domain.Job, error) {
	rows, err := r.runner.Query(ctx, sqlinline.QListJobs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ListUnfinishedJobs returns jobs whose status is not terminal, oldest
// first, so startup recovery requeues in submission order.
func (r *Registry) ListUnfinishedJobs(ctx context.Context) ([]*domain.Job, error) {
	rows, err := r.runner.Query(ctx, sqlinline.QListUnfinishedJobs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

// DeleteJob removes the job row; its events follow via the cascade.
func (r *Registry) DeleteJob(ctx context.Context, id string) error {
	res, err := r.runner.Exec(ctx, sqlinline.QDeleteJob, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// SetStatus moves the job to status and appends an event, atomically.
func (r *Registry) SetStatus(ctx context.Context, id string, status domain.JobStatus, message string) error {
	now := time.Now().UnixNano()
	var created []domain.JobEvent
	err := r.runner.InTx(ctx, func(tx infra.SQLExecutor) error {
		if err := execOne(ctx, tx, sqlinline.QSetJobStatus, string(status), now, id); err != nil {
			return err
		}
		ev, err := appendEvent(ctx, tx, id, string(status), message, now)
		if err != nil {
			return err
		}
		created = append(created, ev)
		return nil
	})
	if err != nil {
		return err
	}
	r.emit(created)
	return nil
}

// SetError moves the job to failed with the given message, atomically with
// the failure event.
func (r *Registry) SetError(ctx context.Context, id string, message string) error {
	now := time.Now().UnixNano()
	var created []domain.JobEvent
	err := r.runner.InTx(ctx, func(tx infra.SQLExecutor) error {
		if err := execOne(ctx, tx, sqlinline.QSetJobError, string(domain.StatusFailed), message, now, id); err != nil {
			return err
		}
		ev, err := appendEvent(ctx, tx, id, string(domain.StatusFailed), message, now)
		if err != nil {
			return err
		}
		created = append(created, ev)
		return nil
	})
	if err != nil {
		return err
	}
	r.emit(created)
	return nil
}

// CommitStage persists a finished stage's outputs and the transition to the
// next status in a single transaction: new artifact keys merge into the
// index, the meta patch merges into job meta, status advances, and the
// transition event is appended. A crash before commit leaves the job at the
// previous status with none of the stage's writes visible.
func (r *Registry) CommitStage(ctx context.Context, id string, next domain.JobStatus, message string, artifacts map[domain.ArtifactKind]string, metaPatch map[string]any) error {
	now := time.Now().UnixNano()
	var created []domain.JobEvent
	err := r.runner.InTx(ctx, func(tx infra.SQLExecutor) error {
		job, err := scanJob(tx.QueryRow(ctx, sqlinline.QGetJob, id))
		if err != nil {
			return err
		}

		if len(artifacts) > 0 {
			if job.Artifacts == nil {
				job.Artifacts = make(map[domain.ArtifactKind]string, len(artifacts))
			}
			for kind, key := range artifacts {
				job.Artifacts[kind] = key
			}
			enc, err := encodeArtifacts(job.Artifacts)
			if err != nil {
				return err
			}
			if err := execOne(ctx, tx, sqlinline.QSetJobArtifacts, enc, now, id); err != nil {
				return err
			}
		}

		if len(metaPatch) > 0 {
			if job.Meta == nil {
				job.Meta = make(map[string]any, len(metaPatch))
			}
			for k, v := range metaPatch {
				job.Meta[k] = v
			}
			enc, err := encodeMeta(job.Meta)
			if err != nil {
				return err
			}
			if err := execOne(ctx, tx, sqlinline.QSetJobMeta, enc, now, id); err != nil {
				return err
			}
		}

		if err := execOne(ctx, tx, sqlinline.QSetJobStatus, string(next), now, id); err != nil {
			return err
		}
		ev, err := appendEvent(ctx, tx, id, string(next), message, now)
		if err != nil {
			return err
		}
		created = append(created, ev)
		return nil
	})
	if err != nil {
		return err
	}
	r.emit(created)
	return nil
}

// PutArtifact records a single artifact key without changing status.
func (r *Registry) PutArtifact(ctx context.Context, id string, kind domain.ArtifactKind, key string) error {
	now := time.Now().UnixNano()
	return r.runner.InTx(ctx, func(tx infra.SQLExecutor) error {
		job, err := scanJob(tx.QueryRow(ctx, sqlinline.QGetJob, id))
		if err != nil {
			return err
		}
		if job.Artifacts == nil {
			job.Artifacts = make(map[domain.ArtifactKind]string, 1)
		}
		job.Artifacts[kind] = key
		enc, err := encodeArtifacts(job.Artifacts)
		if err != nil {
			return err
		}
		return execOne(ctx, tx, sqlinline.QSetJobArtifacts, enc, now, id)
	})
}

// PatchMeta merges the patch into job meta without changing status.
func (r *Registry) PatchMeta(ctx context.Context, id string, patch map[string]any) error {
	now := time.Now().UnixNano()
	return r.runner.InTx(ctx, func(tx infra.SQLExecutor) error {
		job, err := scanJob(tx.QueryRow(ctx, sqlinline.QGetJob, id))
		if err != nil {
			return err
		}
		if job.Meta == nil {
			job.Meta = make(map[string]any, len(patch))
		}
		for k, v := range patch {
			job.Meta[k] = v
		}
		enc, err := encodeMeta(job.Meta)
		if err != nil {
			return err
		}
		return execOne(ctx, tx, sqlinline.QSetJobMeta, enc, now, id)
	})
}

// AppendEvent records an informational event without a status change.
func (r *Registry) AppendEvent(ctx context.Context, id string, status domain.JobStatus, message string) error {
	now := time.Now().UnixNano()
	var created []domain.JobEvent
	err := r.runner.InTx(ctx, func(tx infra.SQLExecutor) error {
		ev, err := appendEvent(ctx, tx, id, string(status), message, now)
		if err != nil {
			return err
		}
		created = append(created, ev)
		return nil
	})
	if err != nil {
		return err
	}
	r.emit(created)
	return nil
}

// ListEvents returns the job's events with id greater than after, in append
// order.
func (r *Registry) ListEvents(ctx context.Context, id string, after int64) ([]domain.JobEvent, error) {
	rows, err := r.runner.Query(ctx, sqlinline.QListEventsAfter, id, after)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.JobEvent
	for rows.Next() {
		var ev domain.JobEvent
		if err := rows.Scan(&ev.ID, &ev.JobID, &ev.Status, &ev.Message, &ev.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// RequestCancel flags the job for cooperative cancellation.
func (r *Registry) RequestCancel(ctx context.Context, id string) error {
	res, err := r.runner.Exec(ctx, sqlinline.QRequestCancel, time.Now().UnixNano(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// CancelRequested reports whether cancellation has been requested.
func (r *Registry) CancelRequested(ctx context.Context, id string) (bool, error) {
	var flag int
	if err := r.runner.QueryRow(ctx, sqlinline.QGetCancelRequested, id).Scan(&flag); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, domain.ErrJobNotFound
		}
		return false, err
	}
	return flag != 0, nil
}

func appendEvent(ctx context.Context, tx infra.SQLExecutor, jobID, status, message string, now int64) (domain.JobEvent, error) {
	res, err := tx.Exec(ctx, sqlinline.QInsertEvent, jobID, status, message, now)
	if err != nil {
		return domain.JobEvent{}, fmt.Errorf("append event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.JobEvent{}, err
	}
	return domain.JobEvent{ID: id, JobID: jobID, Status: domain.JobStatus(status), Message: message, CreatedAt: now}, nil
}

func execOne(ctx context.Context, tx infra.SQLExecutor, query string, args ...any) error {
	res, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func scanJob(row infra.RowScanner) (*domain.Job, error) {
	var (
		job             domain.Job
		status          string
		cancelRequested int
		artifacts       string
		meta            string
	)
	err := row.Scan(
		&job.ID, &job.ProjectName, &job.InputFilename, &job.SourcePath,
		&job.ASRClipSeconds, &job.HookClipSeconds, &status,
		&job.ErrorMessage, &cancelRequested, &artifacts, &meta,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	job.CancelRequested = cancelRequested != 0
	if err := json.Unmarshal([]byte(artifacts), &job.Artifacts); err != nil {
		return nil, fmt.Errorf("decode artifacts: %w", err)
	}
	if err := json.Unmarshal([]byte(meta), &job.Meta); err != nil {
		return nil, fmt.Errorf("decode meta: %w", err)
	}
	return &job, nil
}

func collectJobs(rows *sql.Rows) ([]*domain.Job, error) {
	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func encodeArtifacts(m map[domain.ArtifactKind]string) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode artifacts: %w", err)
	}
	return string(b), nil
}

func encodeMeta(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode meta: %w", err)
	}
	return string(b), nil
}
