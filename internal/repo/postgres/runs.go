package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/prestec-labs/floortrack/internal/domain"
	"github.com/prestec-labs/floortrack/internal/repo"
)

type RunStore struct {
	db DB
}

const (
	runColumns = `run_id, stage, production_number, run_number, part, component, skid_number,
		operator, machine, started_at, ended_at, start_count, end_count, scrap_count, notes, open`

	insertRunQuery = `INSERT INTO stage_runs (
		run_id,
		stage,
		production_number,
		run_number,
		part,
		component,
		skid_number,
		operator,
		machine,
		started_at,
		ended_at,
		start_count,
		end_count,
		scrap_count,
		notes,
		open
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`

	selectRunQuery = `SELECT ` + runColumns + `
		 FROM stage_runs
		 WHERE run_id = $1`

	closeRunQuery = `UPDATE stage_runs
		 SET ended_at = $1, end_count = $2, scrap_count = $3, notes = $4, open = FALSE
		 WHERE run_id = $5 AND ended_at IS NULL`
)

func NewRunStore(db DB) *RunStore {
	if db == nil {
		return nil
	}
	return &RunStore{db: db}
}

func (s *RunStore) CreateRun(ctx context.Context, run domain.Run) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	if err := run.Validate(); err != nil {
		return err
	}
	startedAt := nullTime(run.StartedAt)
	if run.StartedAt == nil {
		startedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}
	_, err := s.db.ExecContext(
		ctx,
		insertRunQuery,
		strings.TrimSpace(run.ID),
		string(run.Stage),
		strings.TrimSpace(run.ProductionNumber),
		strings.TrimSpace(run.RunNumber),
		strings.TrimSpace(run.Part),
		nullIfEmpty(run.Component),
		nullInt32(run.SkidNumber),
		strings.TrimSpace(run.Operator),
		strings.TrimSpace(run.Machine),
		startedAt,
		nullTime(run.EndedAt),
		nullInt64(run.StartCount),
		nullInt64(run.EndCount),
		nullInt64(run.ScrapCount),
		nullIfEmpty(run.Notes),
		run.Open,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *RunStore) GetRun(ctx context.Context, id string) (domain.Run, error) {
	if s == nil || s.db == nil {
		return domain.Run{}, fmt.Errorf("run store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Run{}, fmt.Errorf("run id is required")
	}
	row := s.db.QueryRowContext(ctx, selectRunQuery, id)
	return scanRun(row)
}

func (s *RunStore) ListRuns(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("run store not initialized")
	}
	clauses := make([]string, 0, 5)
	args := make([]any, 0, 5)

	if filter.Stage != "" {
		args = append(args, string(filter.Stage))
		clauses = append(clauses, fmt.Sprintf("stage = $%d", len(args)))
	}
	if strings.TrimSpace(filter.ProductionNumber) != "" {
		args = append(args, strings.TrimSpace(filter.ProductionNumber))
		clauses = append(clauses, fmt.Sprintf("production_number = $%d", len(args)))
	}
	if strings.TrimSpace(filter.Part) != "" {
		args = append(args, strings.TrimSpace(filter.Part))
		clauses = append(clauses, fmt.Sprintf("part = $%d", len(args)))
	}
	if strings.TrimSpace(filter.Machine) != "" {
		args = append(args, strings.TrimSpace(filter.Machine))
		clauses = append(clauses, fmt.Sprintf("machine = $%d", len(args)))
	}
	if filter.OpenOnly {
		clauses = append(clauses, "started_at IS NOT NULL AND ended_at IS NULL")
	}

	query := `SELECT ` + runColumns + ` FROM stage_runs`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY started_at DESC NULLS LAST"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]domain.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// CloseRun stamps the end of an open run. A run that is already closed (or
// does not exist) affects zero rows and reports false without error.
func (s *RunStore) CloseRun(ctx context.Context, id string, endedAt time.Time, endCount, scrap *int64, notes string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("run store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, fmt.Errorf("run id is required")
	}
	res, err := s.db.ExecContext(
		ctx,
		closeRunQuery,
		normalizeTime(endedAt),
		nullInt64(endCount),
		nullInt64(scrap),
		nullIfEmpty(notes),
		id,
	)
	if err != nil {
		return false, fmt.Errorf("close run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close run: %w", err)
	}
	return affected > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(scanner rowScanner) (domain.Run, error) {
	var run domain.Run
	var stage string
	var component sql.NullString
	var skidNumber sql.NullInt32
	var startedAt sql.NullTime
	var endedAt sql.NullTime
	var startCount sql.NullInt64
	var endCount sql.NullInt64
	var scrapCount sql.NullInt64
	var notes sql.NullString
	if err := scanner.Scan(
		&run.ID,
		&stage,
		&run.ProductionNumber,
		&run.RunNumber,
		&run.Part,
		&component,
		&skidNumber,
		&run.Operator,
		&run.Machine,
		&startedAt,
		&endedAt,
		&startCount,
		&endCount,
		&scrapCount,
		&notes,
		&run.Open,
	); err != nil {
		return domain.Run{}, handleNotFound(err)
	}
	run.Stage = domain.Stage(stage)
	run.Component = strings.TrimSpace(component.String)
	run.SkidNumber = intPtr(skidNumber)
	run.StartedAt = timePtr(startedAt)
	run.EndedAt = timePtr(endedAt)
	run.StartCount = int64Ptr(startCount)
	run.EndCount = int64Ptr(endCount)
	run.ScrapCount = int64Ptr(scrapCount)
	run.Notes = strings.TrimSpace(notes.String)
	return run, nil
}
