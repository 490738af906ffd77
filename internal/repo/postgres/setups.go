package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/prestec-labs/floortrack/internal/domain"
)

type SetupStore struct {
	db DB
}

const (
	insertSetupQuery = `INSERT INTO setup_sessions (
		session_id,
		production_number,
		part,
		component,
		run_number,
		operator,
		machine,
		started_at,
		ended_at,
		difficulty,
		assistance,
		assisted_by,
		notes,
		open
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`

	closeSetupQuery = `UPDATE setup_sessions
		 SET ended_at = $1, difficulty = $2, assistance = $3, assisted_by = $4,
		     notes = COALESCE(NULLIF($5, ''), notes), open = $6
		 WHERE part = $7 AND run_number = $8 AND started_at = $9 AND ended_at IS NULL`

	closeSetupForRunQuery = `UPDATE setup_sessions
		 SET ended_at = COALESCE(ended_at, $1), open = TRUE
		 WHERE machine = $2 AND run_number = $3`
)

func NewSetupStore(db DB) *SetupStore {
	if db == nil {
		return nil
	}
	return &SetupStore{db: db}
}

func (s *SetupStore) CreateSession(ctx context.Context, session domain.SetupSession) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("setup store not initialized")
	}
	if err := session.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		insertSetupQuery,
		strings.TrimSpace(session.ID),
		strings.TrimSpace(session.ProductionNumber),
		strings.TrimSpace(session.Part),
		nullIfEmpty(session.Component),
		strings.TrimSpace(session.RunNumber),
		strings.TrimSpace(session.Operator),
		strings.TrimSpace(session.Machine),
		normalizeTime(session.StartedAt),
		nullTime(session.EndedAt),
		nullIfEmpty(session.Difficulty),
		nullIfEmpty(session.Assistance),
		nullIfEmpty(session.AssistedBy),
		nullIfEmpty(session.Notes),
		session.Open,
	)
	if err != nil {
		return fmt.Errorf("insert setup session: %w", err)
	}
	return nil
}

// CloseSession stamps the end of an in-progress session identified by the
// operator's original (part, run, started-at) triple.
func (s *SetupStore) CloseSession(ctx context.Context, part, runNumber string, startedAt, endedAt time.Time, difficulty, assistance, assistedBy, notes string, open bool) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("setup store not initialized")
	}
	part = strings.TrimSpace(part)
	if part == "" {
		return false, fmt.Errorf("part is required")
	}
	runNumber = strings.TrimSpace(runNumber)
	if runNumber == "" {
		return false, fmt.Errorf("run number is required")
	}
	if startedAt.IsZero() {
		return false, fmt.Errorf("started at is required")
	}
	res, err := s.db.ExecContext(
		ctx,
		closeSetupQuery,
		normalizeTime(endedAt),
		nullIfEmpty(difficulty),
		nullIfEmpty(assistance),
		nullIfEmpty(assistedBy),
		strings.TrimSpace(notes),
		open,
		part,
		runNumber,
		startedAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("close setup session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close setup session: %w", err)
	}
	return affected > 0, nil
}

// CloseForRun marks the machine's session for a run ended and the machine
// idle again. Invoked from the end-run cascade; repeat calls keep the
// original end stamp.
func (s *SetupStore) CloseForRun(ctx context.Context, machine, runNumber string, endedAt time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("setup store not initialized")
	}
	machine = strings.TrimSpace(machine)
	if machine == "" {
		return false, fmt.Errorf("machine is required")
	}
	runNumber = strings.TrimSpace(runNumber)
	if runNumber == "" {
		return false, fmt.Errorf("run number is required")
	}
	res, err := s.db.ExecContext(
		ctx,
		closeSetupForRunQuery,
		sql.NullTime{Time: normalizeTime(endedAt), Valid: true},
		machine,
		runNumber,
	)
	if err != nil {
		return false, fmt.Errorf("close setup for run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close setup for run: %w", err)
	}
	return affected > 0, nil
}
