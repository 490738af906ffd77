package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/prestec-labs/floortrack/internal/domain"
)

// StageFlagStore clears the open flag on downstream ledger rows. The guard on
// started_at keeps it from touching work an operator has already begun.
type StageFlagStore struct {
	db DB
}

const (
	clearOpenBySkidQuery = `UPDATE stage_runs
		 SET open = FALSE
		 WHERE stage = $1 AND production_number = $2 AND part = $3
		   AND skid_number = $4 AND started_at IS NULL`

	clearOpenByRunQuery = `UPDATE stage_runs
		 SET open = FALSE
		 WHERE stage = $1 AND production_number = $2 AND part = $3
		   AND started_at IS NULL`
)

func NewStageFlagStore(db DB) *StageFlagStore {
	if db == nil {
		return nil
	}
	return &StageFlagStore{db: db}
}

func (s *StageFlagStore) ClearOpen(ctx context.Context, stage domain.Stage, productionNumber, part string, skidNumber *int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("stage flag store not initialized")
	}
	if stage == "" {
		return 0, fmt.Errorf("stage is required")
	}
	productionNumber = strings.TrimSpace(productionNumber)
	if productionNumber == "" {
		return 0, fmt.Errorf("production number is required")
	}
	part = strings.TrimSpace(part)
	if part == "" {
		return 0, fmt.Errorf("part is required")
	}

	var err error
	var res interface{ RowsAffected() (int64, error) }
	if skidNumber != nil {
		res, err = s.db.ExecContext(ctx, clearOpenBySkidQuery, string(stage), productionNumber, part, *skidNumber)
	} else {
		res, err = s.db.ExecContext(ctx, clearOpenByRunQuery, string(stage), productionNumber, part)
	}
	if err != nil {
		return 0, fmt.Errorf("clear open flag: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear open flag: %w", err)
	}
	return affected, nil
}
