package parsestate

// Stage is one phase of the structuring pipeline.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageMetadata   Stage = "metadata"
	StageCharacters Stage = "characters"
	StageScenes     Stage = "scenes"
	StageItems      Stage = "items"
	StageShots      Stage = "shots"
	StageCompleted  Stage = "completed"
	StageError      Stage = "error"
)

// stageWeights allocates the share of overall progress each stage owns. The
// bands are cumulative: a stage's band starts where the previous stage's
// ends.
var stageWeights = []struct {
	stage  Stage
	weight float64
}{
	{StageMetadata, 10},
	{StageCharacters, 30},
	{StageScenes, 30},
	{StageItems, 5},
	{StageShots, 25},
}

// IsTerminal reports whether the stage ends a session.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageError
}

// band returns the [start, start+weight) progress interval owned by s.
func (s Stage) band() (start, weight float64) {
	for _, w := range stageWeights {
		if w.stage == s {
			return start, w.weight
		}
		start += w.weight
	}
	if s == StageCompleted {
		return 100, 0
	}
	return 0, 0
}

// OverallProgress interpolates the session-wide percentage from the current
// stage and the completion percentage within it.
func OverallProgress(stage Stage, stagePercent float64) float64 {
	if stage == StageCompleted {
		return 100
	}
	if stagePercent < 0 {
		stagePercent = 0
	}
	if stagePercent > 100 {
		stagePercent = 100
	}
	start, weight := stage.band()
	return start + weight*stagePercent/100
}
