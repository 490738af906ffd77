// Package skidtracker owns the lifecycle of skids within a run: contiguous
// numbering from 1, at most one open skid per run, and a piece-count read
// bracketing every skid boundary.
package skidtracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prestec-labs/floortrack/internal/domain"
	"github.com/prestec-labs/floortrack/internal/platform/auditlog"
	"github.com/prestec-labs/floortrack/internal/repo"
)

// ErrRunClosed rejects skid operations on a run that has already been
// closed; a corrected run is opened anew, never reopened.
var ErrRunClosed = errors.New("run is closed")

// CounterReader reads the piece counter wired to a machine. An unknown
// count is a legitimate result; only an unmapped machine id is an error.
type CounterReader interface {
	Read(ctx context.Context, machineID string) (domain.Count, error)
}

// Propagator pushes a completed skid's eligibility signal downstream.
type Propagator interface {
	PropagateSkid(ctx context.Context, from domain.Stage, productionNumber, part string, skidNumber int) error
}

type Service struct {
	runs    repo.RunRepository
	skids   repo.SkidRepository
	counter CounterReader
	gate    Propagator
	audit   auditlog.Appender
	logger  *slog.Logger
}

func New(runs repo.RunRepository, skids repo.SkidRepository, counter CounterReader, gate Propagator, audit auditlog.Appender, logger *slog.Logger) *Service {
	if runs == nil || skids == nil || counter == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		runs:    runs,
		skids:   skids,
		counter: counter,
		gate:    gate,
		audit:   audit,
		logger:  logger,
	}
}

// StartSkid opens the next skid of a run. If a skid is currently open it is
// closed first; a single device read brackets the boundary, stamping the
// closing skid's end count and the new skid's start count. A device that
// cannot be read leaves both counts null and never blocks the operator.
func (s *Service) StartSkid(ctx context.Context, runID, operator string) (domain.Skid, error) {
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return domain.Skid{}, fmt.Errorf("start skid: %w", err)
	}
	if run.EndedAt != nil {
		return domain.Skid{}, fmt.Errorf("start skid: run %s: %w", runID, ErrRunClosed)
	}

	// The only fatal device failure is an unmapped machine; it must surface
	// before any state change.
	boundary, err := s.counter.Read(ctx, run.Machine)
	if err != nil {
		return domain.Skid{}, fmt.Errorf("start skid: %w", err)
	}

	now := time.Now().UTC()

	open, err := s.skids.OpenSkid(ctx, run.ID)
	switch {
	case err == nil:
		closed, err := s.skids.CloseSkid(ctx, run.ID, open.SkidNumber, boundary.Ptr(), "", now)
		if err != nil {
			return domain.Skid{}, fmt.Errorf("close open skid: %w", err)
		}
		if closed {
			s.appendAudit(ctx, operator, "skid.closed", run, open.SkidNumber, boundary)
		}
	case errors.Is(err, repo.ErrNotFound):
		// First skid of the run, nothing to close.
	default:
		return domain.Skid{}, fmt.Errorf("find open skid: %w", err)
	}

	claimed, err := s.skids.ClaimNext(ctx, domain.Skid{
		RunID:            run.ID,
		ProductionNumber: run.ProductionNumber,
		Part:             run.Part,
		StartCount:       boundary.Ptr(),
		StartedAt:        now,
	})
	if err != nil {
		return domain.Skid{}, fmt.Errorf("claim skid: %w", err)
	}

	s.appendAudit(ctx, operator, "skid.started", run, claimed.SkidNumber, boundary)
	return claimed, nil
}

type EndSkidParams struct {
	RunID            string
	ProductionNumber string
	Part             string
	SkidNumber       int
	Pieces           int64
	Notes            string
	Operator         string
	Machine          string
	Stage            domain.Stage
}

// EndSkid closes a specific, named skid and signals the downstream stage.
// Closing a skid that is already closed is a no-op, reported as false.
// Propagation failures are logged and never abort the closure.
func (s *Service) EndSkid(ctx context.Context, params EndSkidParams) (bool, error) {
	if params.SkidNumber < 1 {
		return false, fmt.Errorf("end skid: skid number must be >= 1")
	}
	pieces := params.Pieces
	closed, err := s.skids.CloseSkid(ctx, params.RunID, params.SkidNumber, &pieces, params.Notes, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("end skid: %w", err)
	}
	if !closed {
		s.logger.Info("end skid affected no rows",
			"run_id", params.RunID,
			"skid_number", params.SkidNumber,
		)
		return false, nil
	}

	if s.gate != nil {
		if err := s.gate.PropagateSkid(ctx, params.Stage, params.ProductionNumber, params.Part, params.SkidNumber); err != nil {
			s.logger.Warn("downstream propagation failed",
				"run_id", params.RunID,
				"skid_number", params.SkidNumber,
				"error", err,
			)
		}
	}

	if s.audit != nil {
		event := auditlog.Event{
			OccurredAt:   time.Now().UTC(),
			Actor:        params.Operator,
			Action:       "skid.closed",
			ResourceType: "skid",
			ResourceID:   fmt.Sprintf("%s/%d", params.RunID, params.SkidNumber),
			Payload: map[string]any{
				"production_number": params.ProductionNumber,
				"part":              params.Part,
				"skid_number":       params.SkidNumber,
				"pieces":            params.Pieces,
				"stage":             string(params.Stage),
			},
		}
		if err := s.audit.Append(ctx, event); err != nil {
			s.logger.Warn("audit append failed", "action", event.Action, "error", err)
		}
	}
	return true, nil
}

// ListSkids returns a run's skids in number order.
func (s *Service) ListSkids(ctx context.Context, runID string) ([]domain.Skid, error) {
	return s.skids.ListByRun(ctx, runID)
}

func (s *Service) appendAudit(ctx context.Context, operator, action string, run domain.Run, skidNumber int, boundary domain.Count) {
	if s.audit == nil {
		return
	}
	payload := map[string]any{
		"production_number": run.ProductionNumber,
		"part":              run.Part,
		"machine":           run.Machine,
		"skid_number":       skidNumber,
		"count_known":       boundary.Known,
	}
	if boundary.Known {
		payload["count"] = boundary.Value
	}
	event := auditlog.Event{
		OccurredAt:   time.Now().UTC(),
		Actor:        operator,
		Action:       action,
		ResourceType: "skid",
		ResourceID:   fmt.Sprintf("%s/%d", run.ID, skidNumber),
		Payload:      payload,
	}
	if err := s.audit.Append(ctx, event); err != nil {
		s.logger.Warn("audit append failed", "action", action, "error", err)
	}
}
