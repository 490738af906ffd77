// Package runledger owns the lifecycle of production runs: open on login,
// closed on logout or end-run. EndRun is the only entry point that
// guarantees full cleanup: it closes any dangling skid, then the run, then
// the machine's setup session, in that order, and none of those closures is
// ever blocked by counter unavailability.
package runledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/prestec-labs/floortrack/internal/domain"
	"github.com/prestec-labs/floortrack/internal/platform/auditlog"
	"github.com/prestec-labs/floortrack/internal/repo"
)

// ErrOpenSkid rejects a plain logout while a skid is still open; EndRun is
// the path that cleans up.
var ErrOpenSkid = errors.New("run has an open skid")

// Counter is the device surface the ledger needs: a read for count stamps
// and a reset when a fresh run begins.
type Counter interface {
	Read(ctx context.Context, machineID string) (domain.Count, error)
	Reset(ctx context.Context, machineID string) error
}

// Propagator pushes a closed run's eligibility signal downstream.
type Propagator interface {
	PropagateRun(ctx context.Context, from domain.Stage, productionNumber, part string) error
}

type Service struct {
	runs    repo.RunRepository
	skids   repo.SkidRepository
	setups  repo.SetupRepository
	counter Counter
	gate    Propagator
	audit   auditlog.Appender
	logger  *slog.Logger
}

func New(runs repo.RunRepository, skids repo.SkidRepository, setups repo.SetupRepository, counter Counter, gate Propagator, audit auditlog.Appender, logger *slog.Logger) *Service {
	if runs == nil || skids == nil || setups == nil || counter == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		runs:    runs,
		skids:   skids,
		setups:  setups,
		counter: counter,
		gate:    gate,
		audit:   audit,
		logger:  logger,
	}
}

type LoginParams struct {
	Stage            domain.Stage
	ProductionNumber string
	RunNumber        string
	Part             string
	Component        string
	SkidNumber       *int
	Operator         string
	Machine          string
}

// Login opens a run. The machine id must resolve before anything is
// written; the device's current count is stamped as the run's start count
// (null when unreadable) and the counter is zeroed afterwards, so a failed
// reset can never orphan the run row. Concurrent logins for the same part on
// different machines are legal.
func (s *Service) Login(ctx context.Context, params LoginParams) (domain.Run, error) {
	stage := domain.NormalizeStage(string(params.Stage))
	if stage == "" {
		return domain.Run{}, fmt.Errorf("login: unknown stage %q", params.Stage)
	}

	reading, err := s.counter.Read(ctx, params.Machine)
	if err != nil {
		return domain.Run{}, fmt.Errorf("login: %w", err)
	}

	now := time.Now().UTC()
	run := domain.Run{
		ID:               uuid.NewString(),
		Stage:            stage,
		ProductionNumber: params.ProductionNumber,
		RunNumber:        params.RunNumber,
		Part:             params.Part,
		Component:        params.Component,
		SkidNumber:       params.SkidNumber,
		Operator:         params.Operator,
		Machine:          params.Machine,
		StartedAt:        &now,
		StartCount:       reading.Ptr(),
		Open:             true,
	}
	if err := run.Validate(); err != nil {
		return domain.Run{}, fmt.Errorf("login: %w", err)
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return domain.Run{}, fmt.Errorf("login: %w", err)
	}

	if err := s.counter.Reset(ctx, params.Machine); err != nil {
		s.logger.Warn("counter reset failed after login",
			"run_id", run.ID,
			"machine", params.Machine,
			"error", err,
		)
	}

	s.appendAudit(ctx, params.Operator, "run.login", run, map[string]any{
		"stage":             string(stage),
		"production_number": params.ProductionNumber,
		"machine":           params.Machine,
		"start_count_known": reading.Known,
	})
	return run, nil
}

// Logout closes a run that never subdivided into skids. A run with an open
// skid is rejected; a run already closed is a no-op.
func (s *Service) Logout(ctx context.Context, runID string, endCount, scrap *int64, notes, operator string) (bool, error) {
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return false, fmt.Errorf("logout: %w", err)
	}

	_, err = s.skids.OpenSkid(ctx, runID)
	switch {
	case err == nil:
		return false, fmt.Errorf("logout run %s: %w", runID, ErrOpenSkid)
	case errors.Is(err, repo.ErrNotFound):
	default:
		return false, fmt.Errorf("logout: %w", err)
	}

	closed, err := s.runs.CloseRun(ctx, runID, time.Now().UTC(), endCount, scrap, notes)
	if err != nil {
		return false, fmt.Errorf("logout: %w", err)
	}
	if !closed {
		return false, nil
	}

	s.propagateRun(ctx, run)
	s.appendAudit(ctx, operator, "run.logout", run, map[string]any{
		"production_number": run.ProductionNumber,
		"part":              run.Part,
	})
	return true, nil
}

// EndRun force-closes a run: any still-open skid is stamped from a fresh
// device read and closed, the run is closed with the operator's counts, and
// the machine's setup session is marked ended and idle again. Device
// failures cost only the count; they never block the cascade. Calling
// EndRun on an already-closed run is a no-op at every step.
func (s *Service) EndRun(ctx context.Context, runID string, endCount, scrap *int64, notes, operator string) (bool, error) {
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return false, fmt.Errorf("end run: %w", err)
	}

	now := time.Now().UTC()

	open, err := s.skids.OpenSkid(ctx, runID)
	switch {
	case err == nil:
		reading, readErr := s.counter.Read(ctx, run.Machine)
		if readErr != nil {
			s.logger.Warn("skid close count unavailable",
				"run_id", runID,
				"machine", run.Machine,
				"error", readErr,
			)
			reading = domain.UnknownCount()
		}
		if _, err := s.skids.CloseSkid(ctx, runID, open.SkidNumber, reading.Ptr(), "", now); err != nil {
			return false, fmt.Errorf("end run: close skid: %w", err)
		}
	case errors.Is(err, repo.ErrNotFound):
	default:
		return false, fmt.Errorf("end run: %w", err)
	}

	closed, err := s.runs.CloseRun(ctx, runID, now, endCount, scrap, notes)
	if err != nil {
		return false, fmt.Errorf("end run: %w", err)
	}

	if _, err := s.setups.CloseForRun(ctx, run.Machine, run.RunNumber, now); err != nil {
		s.logger.Warn("setup close failed after run end",
			"run_id", runID,
			"machine", run.Machine,
			"error", err,
		)
	}

	if !closed {
		return false, nil
	}

	s.propagateRun(ctx, run)
	s.appendAudit(ctx, operator, "run.ended", run, map[string]any{
		"production_number": run.ProductionNumber,
		"part":              run.Part,
		"machine":           run.Machine,
	})
	return true, nil
}

func (s *Service) GetRun(ctx context.Context, runID string) (domain.Run, error) {
	return s.runs.GetRun(ctx, runID)
}

func (s *Service) ListRuns(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error) {
	return s.runs.ListRuns(ctx, filter)
}

func (s *Service) propagateRun(ctx context.Context, run domain.Run) {
	if s.gate == nil {
		return
	}
	if err := s.gate.PropagateRun(ctx, run.Stage, run.ProductionNumber, run.Part); err != nil {
		s.logger.Warn("downstream propagation failed",
			"run_id", run.ID,
			"stage", string(run.Stage),
			"error", err,
		)
	}
}

func (s *Service) appendAudit(ctx context.Context, operator, action string, run domain.Run, payload map[string]any) {
	if s.audit == nil {
		return
	}
	event := auditlog.Event{
		OccurredAt:   time.Now().UTC(),
		Actor:        operator,
		Action:       action,
		ResourceType: "run",
		ResourceID:   run.ID,
		Payload:      payload,
	}
	if err := s.audit.Append(ctx, event); err != nil {
		s.logger.Warn("audit append failed", "action", action, "error", err)
	}
}
