package domain

import (
	"errors"
	"strings"
	"time"
)

// Run represents one execution of a part through a production stage, bounded
// by login and logout. A run with EndedAt == nil is open. Rows with
// StartedAt == nil were seeded by the scheduler and have not begun.
type Run struct {
	ID               string
	Stage            Stage
	ProductionNumber string
	RunNumber        string
	Part             string
	Component        string
	SkidNumber       *int
	Operator         string
	Machine          string
	StartedAt        *time.Time
	EndedAt          *time.Time
	StartCount       *int64
	EndCount         *int64
	ScrapCount       *int64
	Notes            string
	Open             bool
}

// Skid is a numbered sub-batch within a run, bounded by a piece-count read at
// start and end. Within a run, skid numbers form a contiguous sequence from 1
// and at most one skid is open at a time.
type Skid struct {
	ID               string
	RunID            string
	ProductionNumber string
	Part             string
	SkidNumber       int
	StartCount       *int64
	EndCount         *int64
	StartedAt        time.Time
	EndedAt          *time.Time
	Notes            string
}

func (r Run) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("run id is required")
	}
	if NormalizeStage(string(r.Stage)) == "" {
		return errors.New("stage is required")
	}
	if strings.TrimSpace(r.ProductionNumber) == "" {
		return errors.New("production number is required")
	}
	if strings.TrimSpace(r.Part) == "" {
		return errors.New("part is required")
	}
	if strings.TrimSpace(r.Operator) == "" {
		return errors.New("operator is required")
	}
	if strings.TrimSpace(r.Machine) == "" {
		return errors.New("machine is required")
	}
	return nil
}

func (s Skid) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("skid id is required")
	}
	if strings.TrimSpace(s.RunID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(s.ProductionNumber) == "" {
		return errors.New("production number is required")
	}
	if strings.TrimSpace(s.Part) == "" {
		return errors.New("part is required")
	}
	if s.SkidNumber < 1 {
		return errors.New("skid number must be >= 1")
	}
	return nil
}

// IsOpen reports whether the run has started and has not been closed.
func (r Run) IsOpen() bool {
	return r.StartedAt != nil && r.EndedAt == nil
}

// IsOpen reports whether the skid is still accumulating pieces.
func (s Skid) IsOpen() bool {
	return s.EndedAt == nil
}
