package domain

import "strings"

// Stage identifies one step of a part's routing across the floor.
type Stage string

const (
	StagePress     Stage = "press"
	StageSinter    Stage = "sinter"
	StageAssembly  Stage = "assembly"
	StageMolding   Stage = "molding"
	StageSecondary Stage = "secondary"
)

// NormalizeStage maps free-form stage values to canonical stages.
func NormalizeStage(value string) Stage {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(StagePress), "pressing":
		return StagePress
	case string(StageSinter), "sintering":
		return StageSinter
	case string(StageAssembly):
		return StageAssembly
	case string(StageMolding):
		return StageMolding
	case string(StageSecondary), "secondary_ops":
		return StageSecondary
	default:
		return ""
	}
}

// NextStage answers which stage consumes the output of the given stage.
// Terminal stages have no downstream and return false.
func NextStage(stage Stage) (Stage, bool) {
	switch stage {
	case StagePress:
		return StageSinter, true
	case StageSinter:
		return StageAssembly, true
	case StageMolding:
		return StageSecondary, true
	default:
		return "", false
	}
}
