package model

import (
	"time"

	"gorm.io/datatypes"
)

// GenerationRun records one invocation of the generation engine: how many
// rules were due, how many instances came out and which rules failed. Kept
// for back office observability; the engine never reads it back.
type GenerationRun struct {
	ID         string `gorm:"primaryKey"`
	StartedAt  time.Time
	FinishedAt time.Time
	RulesDue   int
	Generated  int
	Skipped    int
	Failed     int
	Errors     datatypes.JSON
}
