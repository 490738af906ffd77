package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/prestec-labs/floortrack/internal/domain"
	"github.com/prestec-labs/floortrack/internal/repo"
)

type SkidStore struct {
	db DB
}

const (
	skidColumns = `skid_id, run_id, production_number, part, skid_number,
		start_count, end_count, started_at, ended_at, notes`

	// The unique (run_id, skid_number) index makes the number claim atomic:
	// a losing racer inserts zero rows and retries against the fresh maximum.
	claimSkidQuery = `INSERT INTO skids (
		skid_id,
		run_id,
		production_number,
		part,
		skid_number,
		start_count,
		started_at
	)
	SELECT $1, $2, $3, $4, COALESCE(MAX(skid_number), 0) + 1, $5, $6
	  FROM skids
	 WHERE run_id = $2
	ON CONFLICT (run_id, skid_number) DO NOTHING
	RETURNING ` + skidColumns

	selectOpenSkidQuery = `SELECT ` + skidColumns + `
		 FROM skids
		 WHERE run_id = $1 AND ended_at IS NULL
		 ORDER BY skid_number DESC
		 LIMIT 1`

	closeSkidQuery = `UPDATE skids
		 SET end_count = $1, notes = COALESCE(NULLIF($2, ''), notes), ended_at = $3
		 WHERE run_id = $4 AND skid_number = $5 AND ended_at IS NULL`

	listSkidsByRunQuery = `SELECT ` + skidColumns + `
		 FROM skids
		 WHERE run_id = $1
		 ORDER BY skid_number ASC`
)

const claimAttempts = 3

func NewSkidStore(db DB) *SkidStore {
	if db == nil {
		return nil
	}
	return &SkidStore{db: db}
}

// ClaimNext inserts the next skid for a run, assigning the lowest unused
// number. The skid's SkidNumber field is ignored on input.
func (s *SkidStore) ClaimNext(ctx context.Context, skid domain.Skid) (domain.Skid, error) {
	if s == nil || s.db == nil {
		return domain.Skid{}, fmt.Errorf("skid store not initialized")
	}
	runID := strings.TrimSpace(skid.RunID)
	if runID == "" {
		return domain.Skid{}, fmt.Errorf("run id is required")
	}
	productionNumber := strings.TrimSpace(skid.ProductionNumber)
	if productionNumber == "" {
		return domain.Skid{}, fmt.Errorf("production number is required")
	}
	part := strings.TrimSpace(skid.Part)
	if part == "" {
		return domain.Skid{}, fmt.Errorf("part is required")
	}

	id := strings.TrimSpace(skid.ID)
	if id == "" {
		id = uuid.NewString()
	}
	startedAt := normalizeTime(skid.StartedAt)

	var lastErr error
	for attempt := 0; attempt < claimAttempts; attempt++ {
		row := s.db.QueryRowContext(
			ctx,
			claimSkidQuery,
			id,
			runID,
			productionNumber,
			part,
			nullInt64(skid.StartCount),
			startedAt,
		)
		claimed, err := scanSkid(row)
		if err == nil {
			return claimed, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return domain.Skid{}, fmt.Errorf("claim skid: %w", err)
		}
		lastErr = err
	}
	return domain.Skid{}, fmt.Errorf("claim skid: contention not resolved: %w", lastErr)
}

// OpenSkid returns the highest-numbered skid of the run with no end stamp.
func (s *SkidStore) OpenSkid(ctx context.Context, runID string) (domain.Skid, error) {
	if s == nil || s.db == nil {
		return domain.Skid{}, fmt.Errorf("skid store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return domain.Skid{}, fmt.Errorf("run id is required")
	}
	row := s.db.QueryRowContext(ctx, selectOpenSkidQuery, runID)
	return scanSkid(row)
}

// CloseSkid stamps the end of an open skid. Closing a skid that is already
// closed, or a number that does not exist, affects zero rows.
func (s *SkidStore) CloseSkid(ctx context.Context, runID string, skidNumber int, endCount *int64, notes string, endedAt time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("skid store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return false, fmt.Errorf("run id is required")
	}
	if skidNumber < 1 {
		return false, fmt.Errorf("skid number must be >= 1")
	}
	res, err := s.db.ExecContext(
		ctx,
		closeSkidQuery,
		nullInt64(endCount),
		strings.TrimSpace(notes),
		normalizeTime(endedAt),
		runID,
		skidNumber,
	)
	if err != nil {
		return false, fmt.Errorf("close skid: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close skid: %w", err)
	}
	return affected > 0, nil
}

func (s *SkidStore) ListByRun(ctx context.Context, runID string) ([]domain.Skid, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("skid store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	rows, err := s.db.QueryContext(ctx, listSkidsByRunQuery, runID)
	if err != nil {
		return nil, fmt.Errorf("list skids: %w", err)
	}
	defer rows.Close()

	skids := make([]domain.Skid, 0)
	for rows.Next() {
		skid, err := scanSkid(rows)
		if err != nil {
			return nil, err
		}
		skids = append(skids, skid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list skids: %w", err)
	}
	return skids, nil
}

func scanSkid(scanner rowScanner) (domain.Skid, error) {
	var skid domain.Skid
	var startCount sql.NullInt64
	var endCount sql.NullInt64
	var endedAt sql.NullTime
	var notes sql.NullString
	if err := scanner.Scan(
		&skid.ID,
		&skid.RunID,
		&skid.ProductionNumber,
		&skid.Part,
		&skid.SkidNumber,
		&startCount,
		&endCount,
		&skid.StartedAt,
		&endedAt,
		&notes,
	); err != nil {
		return domain.Skid{}, handleNotFound(err)
	}
	skid.StartCount = int64Ptr(startCount)
	skid.EndCount = int64Ptr(endCount)
	skid.EndedAt = timePtr(endedAt)
	skid.Notes = strings.TrimSpace(notes.String)
	return skid, nil
}
