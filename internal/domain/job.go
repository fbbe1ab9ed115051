package domain

// JobStatus enumerates job lifecycle states. The non-terminal, non-queued
// values double as the names of the pipeline stages currently owed to the
// job, so a crashed run can resume exactly where the last commit left it.
type JobStatus string

const (
	StatusQueued           JobStatus = "queued"
	StatusPreprocessing    JobStatus = "preprocessing"
	StatusASR              JobStatus = "asr"
	StatusTranscriptPolish JobStatus = "transcript_polish"
	StatusScriptGen        JobStatus = "script_gen"
	StatusVideoSubmit      JobStatus = "video_submit"
	StatusVideoPolling     JobStatus = "video_polling"
	StatusPostprocess      JobStatus = "postprocess"
	StatusCompleted        JobStatus = "completed"
	StatusFailed           JobStatus = "failed"
	StatusCanceled         JobStatus = "canceled"
)

// RunningStatuses are the states a job passes through while a runner owns it.
var RunningStatuses = []JobStatus{
	StatusPreprocessing,
	StatusASR,
	StatusTranscriptPolish,
	StatusScriptGen,
	StatusVideoSubmit,
	StatusVideoPolling,
	StatusPostprocess,
}

// IsTerminal reports whether the status ends a job's lifecycle.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// IsRunning reports whether the status names an in-flight pipeline stage.
func (s JobStatus) IsRunning() bool {
	for _, r := range RunningStatuses {
		if s == r {
			return true
		}
	}
	return false
}

// ArtifactKind identifies one durable stage output. The set is closed.
type ArtifactKind string

const (
	ArtifactSourceVideo        ArtifactKind = "source_video"
	ArtifactASRClipAudio       ArtifactKind = "asr_clip_audio"
	ArtifactTranscriptRaw      ArtifactKind = "transcript_raw"
	ArtifactTranscriptPolished ArtifactKind = "transcript_polished"
	ArtifactHookScript         ArtifactKind = "hook_script_json"
	ArtifactHookVideoRaw       ArtifactKind = "hook_video_raw"
	ArtifactHookVideoNorm      ArtifactKind = "hook_video_norm"
	ArtifactFinalVideo         ArtifactKind = "final_video"
)

// ArtifactKinds lists every defined kind in production order.
var ArtifactKinds = []ArtifactKind{
	ArtifactSourceVideo,
	ArtifactASRClipAudio,
	ArtifactTranscriptRaw,
	ArtifactTranscriptPolished,
	ArtifactHookScript,
	ArtifactHookVideoRaw,
	ArtifactHookVideoNorm,
	ArtifactFinalVideo,
}

// ValidArtifactKind reports whether kind belongs to the closed set.
func ValidArtifactKind(kind string) bool {
	for _, k := range ArtifactKinds {
		if string(k) == kind {
			return true
		}
	}
	return false
}

// Job is the durable record of one pipeline submission. The registry owns
// it; a runner holds a working copy and commits mutations per stage.
type Job struct {
	ID              string
	ProjectName     string
	InputFilename   string
	SourcePath      string
	ASRClipSeconds  int
	HookClipSeconds int
	Status          JobStatus
	ErrorMessage    string
	CancelRequested bool
	Artifacts       map[ArtifactKind]string
	Meta            map[string]any
	CreatedAt       int64
	UpdatedAt       int64
}

// MetaString returns a string-valued meta entry, or "" when absent.
func (j *Job) MetaString(key string) string {
	if v, ok := j.Meta[key].(string); ok {
		return v
	}
	return ""
}

// JobEvent is one entry of a job's append-only event log. IDs increase
// strictly per job and reflect registry commit order. Timestamps are
// UnixNano, matching the integer columns they are stored in.
type JobEvent struct {
	ID        int64
	JobID     string
	Status    JobStatus
	Message   string
	CreatedAt int64
}

// Meta keys written by the pipeline and the rerun coordinator.
const (
	MetaConfigSnapshot  = "config"
	MetaSourceMeta      = "source_meta"
	MetaVideoTaskID     = "video_task_id"
	MetaRerunOfJobID    = "rerun_of_job_id"
	MetaRerunStartStage = "rerun_start_stage"
)
