// Package pipeline drives a job through the fixed stage sequence, committing
// each stage's outputs atomically and resuming from the recorded status
// after a crash or rerun.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"hookforge/internal/config"
	"hookforge/internal/domain"
	"hookforge/internal/providers/media"
	"hookforge/internal/providers/videogen"
	"hookforge/internal/registry"
	"hookforge/internal/storage"
)

// ASRClient transcribes an audio clip.
type ASRClient interface {
	Recognize(ctx context.Context, cfg config.ASRConfig, audio []byte) (string, error)
}

// LLMClient generates text from a system+user prompt pair.
type LLMClient interface {
	GenerateText(ctx context.Context, cfg config.LLMConfig, systemPrompt, userPrompt string) (string, error)
}

// VideoClient manages provider-side generation tasks.
type VideoClient interface {
	Submit(ctx context.Context, cfg config.VideoConfig, prompt string, durationSeconds, width, height int) (string, error)
	Poll(ctx context.Context, cfg config.VideoConfig, taskID string) (videogen.PollResult, error)
	Download(ctx context.Context, url string, w io.Writer) error
}

// MediaTool runs local media processing.
type MediaTool interface {
	Available(ctx context.Context) bool
	ProbeAvailable(ctx context.Context) bool
	Probe(ctx context.Context, path string) (media.Meta, error)
	ExtractClipWAV(ctx context.Context, sourceVideo string, clipSeconds int, wavOutput string) error
	NormalizeSource(ctx context.Context, sourceVideo string, target media.Meta, outputVideo string) error
	NormalizeHook(ctx context.Context, hookVideoRaw string, target media.Meta, hookSeconds int, outputVideo string) (bool, error)
	Concat(ctx context.Context, hookVideo, sourceVideo, outputVideo string) error
}

// errCancelRequested aborts stage execution when the job's cancel flag is
// observed mid-stage (between poll iterations).
var errCancelRequested = errors.New("cancel requested")

type stageResult struct {
	Message   string
	Artifacts map[domain.ArtifactKind]string
	Meta      map[string]any
}

type Runner struct {
	registry *registry.Registry
	store    *storage.FileStore
	asr      ASRClient
	llm      LLMClient
	video    VideoClient
	media    MediaTool
	logger   zerolog.Logger

	retryInitial time.Duration
}

type RunnerOptions struct {
	Registry *registry.Registry
	Store    *storage.FileStore
	ASR      ASRClient
	LLM      LLMClient
	Video    VideoClient
	Media    MediaTool
	Logger   zerolog.Logger
}

func NewRunner(opts RunnerOptions) *Runner {
	return &Runner{
		registry:     opts.Registry,
		store:        opts.Store,
		asr:          opts.ASR,
		llm:          opts.LLM,
		video:        opts.Video,
		media:        opts.Media,
		logger:       opts.Logger,
		retryInitial: initialBackoff,
	}
}

// Run executes the job from the stage its status names. A queued job starts
// at the first stage; any other non-terminal status resumes mid-sequence,
// which makes crash recovery and rerun the same code path. Stage failures
// are recorded on the job, not returned: a non-nil error means the runner
// itself could not make progress (registry unavailable, context canceled).
func (r *Runner) Run(ctx context.Context, jobID string) error {
	job, err := r.registry.GetJob(ctx, jobID)
	if errors.Is(err, domain.ErrJobNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return nil
	}

	cfg := r.snapshotConfig(job)
	log := r.logger.With().Str("job_id", jobID).Logger()

	idx := 0
	switch job.Status {
	case domain.StatusQueued:
		if stop, err := r.stopIfCancelRequested(ctx, jobID); stop || err != nil {
			return err
		}
		if err := r.registry.SetStatus(ctx, jobID, domain.StatusPreprocessing, "pipeline started"); err != nil {
			return err
		}
	default:
		idx = domain.StageIndex(domain.Stage(job.Status))
		if idx < 0 {
			return fmt.Errorf("job %s has unexpected status %s", jobID, job.Status)
		}
		if err := r.registry.AppendEvent(ctx, jobID, job.Status, "resuming at "+string(job.Status)); err != nil {
			return err
		}
	}

	for idx < len(domain.StageTable) {
		if stop, err := r.stopIfCancelRequested(ctx, jobID); stop || err != nil {
			return err
		}

		job, err = r.registry.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		desc := domain.StageTable[idx]
		log.Info().Str("stage", string(desc.Stage)).Msg("stage started")

		result, stageErr := r.executeStage(ctx, job, cfg, desc)
		if stageErr != nil {
			if errors.Is(stageErr, errCancelRequested) {
				return r.registry.SetStatus(ctx, jobID, domain.StatusCanceled, "canceled")
			}
			if ctx.Err() != nil {
				// Status still names the owed stage; recovery resumes it.
				return ctx.Err()
			}
			msg := fmt.Sprintf("%s: %v", desc.Stage, stageErr)
			log.Error().Err(stageErr).Str("stage", string(desc.Stage)).Msg("stage failed")
			return r.registry.SetError(ctx, jobID, msg)
		}

		if err := r.registry.CommitStage(ctx, jobID, domain.NextStatus(idx), result.Message, result.Artifacts, result.Meta); err != nil {
			return err
		}
		idx++
	}

	log.Info().Msg("job completed")
	return nil
}

func (r *Runner) executeStage(ctx context.Context, job *domain.Job, cfg config.Config, desc domain.StageDescriptor) (stageResult, error) {
	for _, kind := range desc.Consumes {
		key, ok := job.Artifacts[kind]
		if !ok || !r.store.Exists(key) {
			return stageResult{}, fmt.Errorf("missing input artifact %s", kind)
		}
	}

	switch desc.Stage {
	case domain.StagePreprocessing:
		return r.runPreprocessing(ctx, job)
	case domain.StageASR:
		return r.runASR(ctx, job, cfg)
	case domain.StageTranscriptPolish:
		return r.runTranscriptPolish(ctx, job, cfg)
	case domain.StageScriptGen:
		return r.runScriptGen(ctx, job, cfg)
	case domain.StageVideoSubmit:
		return r.runVideoSubmit(ctx, job, cfg)
	case domain.StageVideoPolling:
		return r.runVideoPolling(ctx, job, cfg)
	case domain.StagePostprocess:
		return r.runPostprocess(ctx, job, cfg)
	default:
		return stageResult{}, fmt.Errorf("unknown stage %s", desc.Stage)
	}
}

// stopIfCancelRequested moves the job to canceled when its cancel flag is
// set. Cancellation is cooperative and observed at stage boundaries.
func (r *Runner) stopIfCancelRequested(ctx context.Context, jobID string) (bool, error) {
	requested, err := r.registry.CancelRequested(ctx, jobID)
	if err != nil {
		return false, err
	}
	if !requested {
		return false, nil
	}
	return true, r.registry.SetStatus(ctx, jobID, domain.StatusCanceled, "canceled")
}

// snapshotConfig decodes the configuration captured at submission. Jobs
// always carry a snapshot; the built-in defaults only cover rows predating
// it.
func (r *Runner) snapshotConfig(job *domain.Job) config.Config {
	raw, ok := job.Meta[domain.MetaConfigSnapshot]
	if !ok {
		return config.Default()
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return config.Default()
	}
	cfg := config.Default()
	if err := json.Unmarshal(encoded, &cfg); err != nil {
		return config.Default()
	}
	return cfg
}
