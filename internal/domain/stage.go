package domain

import "fmt"

// Stage names one step of the fixed pipeline sequence. Stage names equal
// the JobStatus value a job carries while that stage is owed to it.
type Stage string

const (
	StagePreprocessing    Stage = Stage(StatusPreprocessing)
	StageASR              Stage = Stage(StatusASR)
	StageTranscriptPolish Stage = Stage(StatusTranscriptPolish)
	StageScriptGen        Stage = Stage(StatusScriptGen)
	StageVideoSubmit      Stage = Stage(StatusVideoSubmit)
	StageVideoPolling     Stage = Stage(StatusVideoPolling)
	StagePostprocess      Stage = Stage(StatusPostprocess)
)

// StageDescriptor declares one stage's artifact contract. The table below is
// process-wide and read-only at runtime; the runner dispatches on it rather
// than on per-stage types.
type StageDescriptor struct {
	Stage     Stage
	Consumes  []ArtifactKind
	Produces  []ArtifactKind
	Skippable bool
}

// StageTable is the fixed, ordered stage sequence.
var StageTable = []StageDescriptor{
	{
		Stage:    StagePreprocessing,
		Produces: []ArtifactKind{ArtifactSourceVideo},
	},
	{
		Stage:    StageASR,
		Consumes: []ArtifactKind{ArtifactSourceVideo},
		Produces: []ArtifactKind{ArtifactASRClipAudio, ArtifactTranscriptRaw},
	},
	{
		Stage:     StageTranscriptPolish,
		Consumes:  []ArtifactKind{ArtifactTranscriptRaw},
		Produces:  []ArtifactKind{ArtifactTranscriptPolished},
		Skippable: true,
	},
	{
		Stage:    StageScriptGen,
		Consumes: []ArtifactKind{ArtifactTranscriptPolished},
		Produces: []ArtifactKind{ArtifactHookScript},
	},
	{
		Stage:    StageVideoSubmit,
		Consumes: []ArtifactKind{ArtifactHookScript},
		// Output is the provider-side task handle, kept in job meta.
	},
	{
		Stage:    StageVideoPolling,
		Produces: []ArtifactKind{ArtifactHookVideoRaw},
	},
	{
		Stage:    StagePostprocess,
		Consumes: []ArtifactKind{ArtifactSourceVideo, ArtifactHookVideoRaw},
		Produces: []ArtifactKind{ArtifactHookVideoNorm, ArtifactFinalVideo},
	},
}

// StageIndex returns the position of stage in StageTable, or -1.
func StageIndex(stage Stage) int {
	for i, d := range StageTable {
		if d.Stage == stage {
			return i
		}
	}
	return -1
}

// NextStatus returns the status a job moves to once the stage at idx has
// committed: the next stage's name, or completed for the last stage.
func NextStatus(idx int) JobStatus {
	if idx+1 < len(StageTable) {
		return JobStatus(StageTable[idx+1].Stage)
	}
	return StatusCompleted
}

// ParseStartStage validates a rerun start-stage value against the closed
// stage set. Values outside the set are a client error.
func ParseStartStage(value string) (Stage, error) {
	for _, d := range StageTable {
		if string(d.Stage) == value {
			return d.Stage, nil
		}
	}
	return "", fmt.Errorf("invalid start_stage %q", value)
}

// PrerequisiteKinds returns every artifact kind produced by stages strictly
// before start. A rerun from start requires all of them on the source job.
func PrerequisiteKinds(start Stage) []ArtifactKind {
	idx := StageIndex(start)
	var kinds []ArtifactKind
	for i := 0; i < idx; i++ {
		kinds = append(kinds, StageTable[i].Produces...)
	}
	return kinds
}
