package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/google/uuid"

	"hookforge/internal/config"
	"hookforge/internal/domain"
	"hookforge/internal/storage"
)

// ErrMissingPrerequisite reports a rerun request whose source job lacks an
// artifact (or the poll handle) that the chosen start stage depends on.
var ErrMissingPrerequisite = errors.New("missing rerun prerequisite")

// Rerun creates derived jobs that resume the pipeline mid-sequence, reusing
// a finished job's artifacts instead of recomputing the prefix.
type Rerun struct {
	registry jobRegistry
	store    *storage.FileStore
}

// jobRegistry is the slice of the registry the coordinator needs.
type jobRegistry interface {
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	CreateJob(ctx context.Context, job *domain.Job) error
	AppendEvent(ctx context.Context, id string, status domain.JobStatus, message string) error
	CommitStage(ctx context.Context, id string, next domain.JobStatus, message string, artifacts map[domain.ArtifactKind]string, metaPatch map[string]any) error
}

func NewRerun(reg jobRegistry, store *storage.FileStore) *Rerun {
	return &Rerun{registry: reg, store: store}
}

// Create validates and materializes a rerun of parentID starting at
// startStage. Validation fails fast, before any job row exists: every
// artifact produced by stages before the start stage must be present on the
// parent, on disk, and a video_polling start additionally needs the
// parent's task handle. cfg is snapshotted into the new job.
//
// The parent's source video is referenced, not copied; all other reused
// artifacts are copied into the new job's directory so retention can delete
// either job independently.
func (c *Rerun) Create(ctx context.Context, parentID, startStage string, cfg config.Config) (*domain.Job, error) {
	stage, err := domain.ParseStartStage(startStage)
	if err != nil {
		return nil, err
	}
	parent, err := c.registry.GetJob(ctx, parentID)
	if err != nil {
		return nil, err
	}

	prereqs := domain.PrerequisiteKinds(stage)
	for _, kind := range prereqs {
		key, ok := parent.Artifacts[kind]
		if !ok {
			return nil, fmt.Errorf("%w: job %s has no %s artifact", ErrMissingPrerequisite, parentID, kind)
		}
		if !c.store.Exists(key) {
			return nil, fmt.Errorf("%w: artifact %s file is gone: %s", ErrMissingPrerequisite, kind, key)
		}
	}
	taskID := parent.MetaString(domain.MetaVideoTaskID)
	if stage == domain.StageVideoPolling && taskID == "" {
		return nil, fmt.Errorf("%w: job %s recorded no video task id", ErrMissingPrerequisite, parentID)
	}

	job := &domain.Job{
		ID:              uuid.NewString(),
		ProjectName:     parent.ProjectName,
		InputFilename:   parent.InputFilename,
		SourcePath:      parent.SourcePath,
		ASRClipSeconds:  parent.ASRClipSeconds,
		HookClipSeconds: parent.HookClipSeconds,
		Meta: map[string]any{
			domain.MetaConfigSnapshot:  cfg,
			domain.MetaRerunOfJobID:    parentID,
			domain.MetaRerunStartStage: string(stage),
		},
	}
	if sourceMeta, ok := parent.Meta[domain.MetaSourceMeta]; ok {
		job.Meta[domain.MetaSourceMeta] = sourceMeta
	}

	if err := c.registry.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	if err := c.registry.AppendEvent(ctx, job.ID, domain.StatusQueued,
		fmt.Sprintf("rerun of %s starting at %s", parentID, stage)); err != nil {
		return nil, err
	}

	if stage == domain.StagePreprocessing {
		// Nothing to reuse; the runner takes it from queued.
		return c.registry.GetJob(ctx, job.ID)
	}

	artifacts := make(map[domain.ArtifactKind]string, len(prereqs))
	for _, kind := range prereqs {
		parentKey := parent.Artifacts[kind]
		if kind == domain.ArtifactSourceVideo {
			artifacts[kind] = parentKey
			continue
		}
		copied, err := c.store.CopyFile(ctx, parentKey, storage.JobKey(job.ID, path.Base(parentKey)))
		if err != nil {
			return nil, fmt.Errorf("copy %s: %w", kind, err)
		}
		artifacts[kind] = copied
	}

	meta := map[string]any{}
	if stageAfterSubmit(stage) && taskID != "" {
		meta[domain.MetaVideoTaskID] = taskID
	}

	if err := c.registry.CommitStage(ctx, job.ID, domain.JobStatus(stage),
		"reused artifacts from "+parentID, artifacts, meta); err != nil {
		return nil, err
	}
	return c.registry.GetJob(ctx, job.ID)
}

func stageAfterSubmit(stage domain.Stage) bool {
	return domain.StageIndex(stage) > domain.StageIndex(domain.StageVideoSubmit)
}
