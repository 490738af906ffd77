package repo

import (
	"context"
	"errors"
	"time"

	"github.com/prestec-labs/floortrack/internal/domain"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

type RunFilter struct {
	Stage            domain.Stage
	ProductionNumber string
	Part             string
	Machine          string
	OpenOnly         bool
	Limit            int
}

// RunRepository manages stage run ledger rows. Runs are never deleted, only
// closed; closing an already-closed run affects zero rows.
type RunRepository interface {
	CreateRun(ctx context.Context, run domain.Run) error
	GetRun(ctx context.Context, id string) (domain.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]domain.Run, error)
	CloseRun(ctx context.Context, id string, endedAt time.Time, endCount, scrap *int64, notes string) (bool, error)
}

// SkidRepository manages skids within a run. ClaimNext assigns the next
// contiguous skid number atomically; the unique (run, number) index is the
// source of truth under concurrent starts.
type SkidRepository interface {
	ClaimNext(ctx context.Context, skid domain.Skid) (domain.Skid, error)
	OpenSkid(ctx context.Context, runID string) (domain.Skid, error)
	CloseSkid(ctx context.Context, runID string, skidNumber int, endCount *int64, notes string, endedAt time.Time) (bool, error)
	ListByRun(ctx context.Context, runID string) ([]domain.Skid, error)
}

// SetupRepository manages machine changeover sessions.
type SetupRepository interface {
	CreateSession(ctx context.Context, session domain.SetupSession) error
	CloseSession(ctx context.Context, part, runNumber string, startedAt, endedAt time.Time, difficulty, assistance, assistedBy, notes string, open bool) (bool, error)
	CloseForRun(ctx context.Context, machine, runNumber string, endedAt time.Time) (bool, error)
}

// ScheduleRepository is the scheduling collaborator surface consumed when a
// setup completes.
type ScheduleRepository interface {
	CloseEntry(ctx context.Context, runNumber string, closedAt time.Time) (bool, error)
}

// StageFlagRepository writes the downstream eligibility flag. It only ever
// clears the open flag on rows that have not started; it never reads it back.
type StageFlagRepository interface {
	ClearOpen(ctx context.Context, stage domain.Stage, productionNumber, part string, skidNumber *int) (int64, error)
}
