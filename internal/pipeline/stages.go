package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"hookforge/internal/config"
	"hookforge/internal/domain"
	"hookforge/internal/providers/jsonx"
	"hookforge/internal/providers/media"
	"hookforge/internal/providers/videogen"
	"hookforge/internal/storage"
)

func (r *Runner) runPreprocessing(ctx context.Context, job *domain.Job) (stageResult, error) {
	if !r.media.Available(ctx) || !r.media.ProbeAvailable(ctx) {
		return stageResult{}, fmt.Errorf("ffmpeg or ffprobe is not available")
	}
	if !r.store.Exists(job.SourcePath) {
		return stageResult{}, fmt.Errorf("source video missing: %s", job.SourcePath)
	}

	abs, err := r.store.AbsPath(job.SourcePath)
	if err != nil {
		return stageResult{}, err
	}
	meta, err := r.media.Probe(ctx, abs)
	if err != nil {
		return stageResult{}, err
	}

	return stageResult{
		Message:   fmt.Sprintf("source probed: %dx%d %.1ffps %.1fs", meta.Width, meta.Height, meta.FPS, meta.Duration),
		Artifacts: map[domain.ArtifactKind]string{domain.ArtifactSourceVideo: job.SourcePath},
		Meta:      map[string]any{domain.MetaSourceMeta: meta},
	}, nil
}

func (r *Runner) runASR(ctx context.Context, job *domain.Job, cfg config.Config) (stageResult, error) {
	sourceAbs, err := r.store.AbsPath(job.Artifacts[domain.ArtifactSourceVideo])
	if err != nil {
		return stageResult{}, err
	}
	clipKey := storage.JobKey(job.ID, "asr_clip.wav")
	clipAbs, err := r.store.AbsPath(clipKey)
	if err != nil {
		return stageResult{}, err
	}
	if err := r.media.ExtractClipWAV(ctx, sourceAbs, job.ASRClipSeconds, clipAbs); err != nil {
		return stageResult{}, err
	}

	audio, err := r.store.Read(ctx, clipKey)
	if err != nil {
		return stageResult{}, err
	}

	var transcript string
	err = r.withRetry(ctx, job.ID, domain.StageASR, func() error {
		var recErr error
		transcript, recErr = r.asr.Recognize(ctx, cfg.ASR, audio)
		return recErr
	})
	if err != nil {
		return stageResult{}, err
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return stageResult{}, fmt.Errorf("recognition produced an empty transcript")
	}

	rawKey, err := r.store.Write(ctx, storage.JobKey(job.ID, "transcript_raw.txt"), []byte(transcript))
	if err != nil {
		return stageResult{}, err
	}

	return stageResult{
		Message: fmt.Sprintf("transcript ready (%d chars)", len([]rune(transcript))),
		Artifacts: map[domain.ArtifactKind]string{
			domain.ArtifactASRClipAudio:  clipKey,
			domain.ArtifactTranscriptRaw: rawKey,
		},
	}, nil
}

func (r *Runner) runTranscriptPolish(ctx context.Context, job *domain.Job, cfg config.Config) (stageResult, error) {
	raw, err := r.store.Read(ctx, job.Artifacts[domain.ArtifactTranscriptRaw])
	if err != nil {
		return stageResult{}, err
	}
	rawText := strings.TrimSpace(string(raw))

	message := "transcript polish skipped (disabled)"
	polished := rawText
	if cfg.Pipeline.EnableTranscriptPolish {
		// Polishing wants determinism more than creativity.
		polishCfg := cfg.LLM
		polishCfg.Temperature = 0.2

		var out string
		err = r.withRetry(ctx, job.ID, domain.StageTranscriptPolish, func() error {
			var genErr error
			out, genErr = r.llm.GenerateText(ctx, polishCfg, cfg.LLM.PolishSystemPrompt, buildPolishPrompt(rawText))
			return genErr
		})
		if err != nil {
			return stageResult{}, err
		}
		if trimmed := strings.TrimSpace(out); trimmed != "" {
			polished = trimmed
		}
		message = "transcript polished"
	}

	key, err := r.store.Write(ctx, storage.JobKey(job.ID, "transcript_polished.txt"), []byte(polished))
	if err != nil {
		return stageResult{}, err
	}
	return stageResult{
		Message:   message,
		Artifacts: map[domain.ArtifactKind]string{domain.ArtifactTranscriptPolished: key},
	}, nil
}

func (r *Runner) runScriptGen(ctx context.Context, job *domain.Job, cfg config.Config) (stageResult, error) {
	polished, err := r.store.Read(ctx, job.Artifacts[domain.ArtifactTranscriptPolished])
	if err != nil {
		return stageResult{}, err
	}

	var out string
	err = r.withRetry(ctx, job.ID, domain.StageScriptGen, func() error {
		var genErr error
		out, genErr = r.llm.GenerateText(ctx, cfg.LLM, cfg.LLM.ScriptSystemPrompt,
			buildScriptPrompt(strings.TrimSpace(string(polished)), job.HookClipSeconds))
		return genErr
	})
	if err != nil {
		return stageResult{}, err
	}

	payload, err := jsonx.ExtractFirstJSONObject(out)
	if err != nil {
		return stageResult{}, fmt.Errorf("script output: %w", err)
	}
	script, err := domain.ParseHookScript(payload)
	if err != nil {
		return stageResult{}, fmt.Errorf("script output: %w", err)
	}

	encoded, err := json.MarshalIndent(script, "", "  ")
	if err != nil {
		return stageResult{}, err
	}
	key, err := r.store.Write(ctx, storage.JobKey(job.ID, "hook_script.json"), encoded)
	if err != nil {
		return stageResult{}, err
	}

	return stageResult{
		Message:   fmt.Sprintf("hook script generated: %s", script.HookTitle),
		Artifacts: map[domain.ArtifactKind]string{domain.ArtifactHookScript: key},
	}, nil
}

func (r *Runner) runVideoSubmit(ctx context.Context, job *domain.Job, cfg config.Config) (stageResult, error) {
	script, err := r.readHookScript(ctx, job)
	if err != nil {
		return stageResult{}, err
	}
	sourceMeta, err := r.sourceMeta(ctx, job)
	if err != nil {
		return stageResult{}, err
	}

	prompt := buildVideoPrompt(cfg.Video.SystemPrompt, script)
	var taskID string
	err = r.withRetry(ctx, job.ID, domain.StageVideoSubmit, func() error {
		var subErr error
		taskID, subErr = r.video.Submit(ctx, cfg.Video, prompt, job.HookClipSeconds, sourceMeta.Width, sourceMeta.Height)
		return subErr
	})
	if err != nil {
		return stageResult{}, err
	}

	return stageResult{
		Message: "video task submitted: " + taskID,
		Meta:    map[string]any{domain.MetaVideoTaskID: taskID},
	}, nil
}

func (r *Runner) runVideoPolling(ctx context.Context, job *domain.Job, cfg config.Config) (stageResult, error) {
	taskID := job.MetaString(domain.MetaVideoTaskID)
	if taskID == "" {
		return stageResult{}, fmt.Errorf("no video task id recorded")
	}

	interval := time.Duration(max(1, cfg.Video.PollIntervalSeconds)) * time.Second
	deadline := time.Now().Add(time.Duration(max(1, cfg.Video.TimeoutSeconds)) * time.Second)

	for {
		if requested, err := r.registry.CancelRequested(ctx, job.ID); err != nil {
			return stageResult{}, err
		} else if requested {
			return stageResult{}, errCancelRequested
		}

		var result videogen.PollResult
		err := r.withRetry(ctx, job.ID, domain.StageVideoPolling, func() error {
			var pollErr error
			result, pollErr = r.video.Poll(ctx, cfg.Video, taskID)
			return pollErr
		})
		if err != nil {
			return stageResult{}, err
		}

		switch result.State {
		case videogen.StateReady:
			return r.downloadHookVideo(ctx, job, result.VideoURL)
		case videogen.StateFailed:
			return stageResult{}, fmt.Errorf("video generation failed: status=%s", result.Status)
		}

		if time.Now().After(deadline) {
			return stageResult{}, fmt.Errorf("video generation timed out after %ds", cfg.Video.TimeoutSeconds)
		}
		select {
		case <-ctx.Done():
			return stageResult{}, ctx.Err()
		case <-time.After(interval):
		}
	}
}

func (r *Runner) downloadHookVideo(ctx context.Context, job *domain.Job, url string) (stageResult, error) {
	key := storage.JobKey(job.ID, "hook_video_raw.mp4")
	abs, err := r.store.AbsPath(key)
	if err != nil {
		return stageResult{}, err
	}

	err = r.withRetry(ctx, job.ID, domain.StageVideoPolling, func() error {
		f, createErr := os.Create(abs)
		if createErr != nil {
			return createErr
		}
		defer f.Close()
		return r.video.Download(ctx, url, f)
	})
	if err != nil {
		return stageResult{}, err
	}

	return stageResult{
		Message:   "hook video downloaded",
		Artifacts: map[domain.ArtifactKind]string{domain.ArtifactHookVideoRaw: key},
	}, nil
}

func (r *Runner) runPostprocess(ctx context.Context, job *domain.Job, cfg config.Config) (stageResult, error) {
	sourceMeta, err := r.sourceMeta(ctx, job)
	if err != nil {
		return stageResult{}, err
	}
	sourceAbs, err := r.store.AbsPath(job.Artifacts[domain.ArtifactSourceVideo])
	if err != nil {
		return stageResult{}, err
	}
	hookRawAbs, err := r.store.AbsPath(job.Artifacts[domain.ArtifactHookVideoRaw])
	if err != nil {
		return stageResult{}, err
	}

	sourceNormAbs, err := r.store.AbsPath(storage.JobKey(job.ID, "source_video_norm.mp4"))
	if err != nil {
		return stageResult{}, err
	}
	if err := r.media.NormalizeSource(ctx, sourceAbs, sourceMeta, sourceNormAbs); err != nil {
		return stageResult{}, err
	}

	hookNormKey := storage.JobKey(job.ID, "hook_video_norm.mp4")
	hookNormAbs, err := r.store.AbsPath(hookNormKey)
	if err != nil {
		return stageResult{}, err
	}
	silence, err := r.media.NormalizeHook(ctx, hookRawAbs, sourceMeta, job.HookClipSeconds, hookNormAbs)
	if silence {
		if evErr := r.registry.AppendEvent(ctx, job.ID, domain.StatusPostprocess,
			"hook video has no audio track, synthesized silence"); evErr != nil {
			r.logger.Error().Err(evErr).Msg("append silence event")
		}
	}
	if err != nil {
		return stageResult{}, err
	}

	finalKey := storage.JobKey(job.ID, "final_video.mp4")
	finalAbs, err := r.store.AbsPath(finalKey)
	if err != nil {
		return stageResult{}, err
	}
	if err := r.media.Concat(ctx, hookNormAbs, sourceNormAbs, finalAbs); err != nil {
		return stageResult{}, err
	}

	return stageResult{
		Message: "final video assembled",
		Artifacts: map[domain.ArtifactKind]string{
			domain.ArtifactHookVideoNorm: hookNormKey,
			domain.ArtifactFinalVideo:    finalKey,
		},
	}, nil
}

func (r *Runner) readHookScript(ctx context.Context, job *domain.Job) (domain.HookScript, error) {
	raw, err := r.store.Read(ctx, job.Artifacts[domain.ArtifactHookScript])
	if err != nil {
		return domain.HookScript{}, err
	}
	var script domain.HookScript
	if err := json.Unmarshal(raw, &script); err != nil {
		return domain.HookScript{}, fmt.Errorf("decode hook script: %w", err)
	}
	return script, nil
}

// sourceMeta reads the probe result captured during preprocessing, falling
// back to probing the source again when the meta entry is unusable.
func (r *Runner) sourceMeta(ctx context.Context, job *domain.Job) (media.Meta, error) {
	if raw, ok := job.Meta[domain.MetaSourceMeta]; ok {
		encoded, err := json.Marshal(raw)
		if err == nil {
			var meta media.Meta
			if err := json.Unmarshal(encoded, &meta); err == nil && meta.Width > 0 && meta.Height > 0 {
				if meta.FPS < 1 {
					meta.FPS = 30
				}
				return meta, nil
			}
		}
	}
	abs, err := r.store.AbsPath(job.Artifacts[domain.ArtifactSourceVideo])
	if err != nil {
		return media.Meta{}, err
	}
	return r.media.Probe(ctx, abs)
}

func buildPolishPrompt(rawTranscript string) string {
	return "The following is a raw speech recognition transcript. Correct " +
		"recognition errors, fix sentence breaks and lightly improve " +
		"readability. Do not expand the content, change facts or invent " +
		"story.\n\nOriginal text:\n" + rawTranscript
}

func buildScriptPrompt(polishedTranscript string, hookSeconds int) string {
	return fmt.Sprintf(
		"Based on the text below, write a cold-open hook script for a short "+
			"video, targeting %d seconds. Style: absurd, funny, eye-catching, "+
			"fast paced, visually striking.\n\n"+
			"The output must be a strict JSON object with these fields:\n"+
			"hook_title: string\n"+
			"visual_prompt: string\n"+
			"shot_list: string[]\n"+
			"narration: string\n"+
			"style_tags: string[]\n"+
			"safety_notes: string\n\n"+
			"Input text:\n%s",
		hookSeconds, polishedTranscript)
}

func buildVideoPrompt(videoSystemPrompt string, script domain.HookScript) string {
	var shots strings.Builder
	for _, shot := range script.ShotList {
		shots.WriteString("- ")
		shots.WriteString(shot)
		shots.WriteString("\n")
	}
	return strings.TrimSpace(fmt.Sprintf(
		"%s\n\nTitle: %s\nVisuals: %s\nShot list:\n%s\nNarration: %s\nStyle tags: %s\nSafety constraints: %s",
		videoSystemPrompt,
		script.HookTitle,
		script.VisualPrompt,
		shots.String(),
		script.Narration,
		strings.Join(script.StyleTags, ", "),
		script.SafetyNotes))
}
