// Package setupstation tracks machine changeover sessions that precede a
// press run. A session opens with the machine torn down and closes either
// complete (machine idle and ready) or abandoned.
package setupstation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/prestec-labs/floortrack/internal/domain"
	"github.com/prestec-labs/floortrack/internal/platform/auditlog"
	"github.com/prestec-labs/floortrack/internal/repo"
)

type Service struct {
	setups   repo.SetupRepository
	schedule repo.ScheduleRepository
	audit    auditlog.Appender
	logger   *slog.Logger
}

func New(setups repo.SetupRepository, schedule repo.ScheduleRepository, audit auditlog.Appender, logger *slog.Logger) *Service {
	if setups == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{setups: setups, schedule: schedule, audit: audit, logger: logger}
}

type LoginParams struct {
	ProductionNumber string
	Part             string
	Component        string
	RunNumber        string
	Operator         string
	Machine          string
}

// Login records the start of a changeover. The session begins in-progress:
// not ended, and the machine not yet open for a run.
func (s *Service) Login(ctx context.Context, params LoginParams) (domain.SetupSession, error) {
	session := domain.SetupSession{
		ID:               uuid.NewString(),
		ProductionNumber: params.ProductionNumber,
		Part:             params.Part,
		Component:        params.Component,
		RunNumber:        params.RunNumber,
		Operator:         params.Operator,
		Machine:          params.Machine,
		StartedAt:        time.Now().UTC(),
		Open:             false,
	}
	if err := session.Validate(); err != nil {
		return domain.SetupSession{}, fmt.Errorf("setup login: %w", err)
	}
	if err := s.setups.CreateSession(ctx, session); err != nil {
		return domain.SetupSession{}, fmt.Errorf("setup login: %w", err)
	}
	return session, nil
}

type LogoutParams struct {
	Part          string
	RunNumber     string
	StartedAt     time.Time
	Difficulty    string
	Assistance    string
	AssistedBy    string
	SetupComplete string
	Notes         string
	Operator      string
}

// Logout ends the session. A completed setup opens the machine and retires
// the matching schedule entry; an abandoned one leaves the machine closed.
// The schedule write is best effort and never fails the closure.
func (s *Service) Logout(ctx context.Context, params LogoutParams) (bool, error) {
	now := time.Now().UTC()
	complete := strings.EqualFold(strings.TrimSpace(params.SetupComplete), "yes")

	closed, err := s.setups.CloseSession(ctx, params.Part, params.RunNumber, params.StartedAt, now,
		params.Difficulty, params.Assistance, params.AssistedBy, params.Notes, complete)
	if err != nil {
		return false, fmt.Errorf("setup logout: %w", err)
	}
	if !closed {
		return false, nil
	}

	if complete && s.schedule != nil {
		if _, err := s.schedule.CloseEntry(ctx, params.RunNumber, now); err != nil {
			s.logger.Warn("schedule close failed after setup completion",
				"run_number", params.RunNumber,
				"error", err,
			)
		}
	}

	s.appendAudit(ctx, params, complete, now)
	return true, nil
}

func (s *Service) appendAudit(ctx context.Context, params LogoutParams, complete bool, occurredAt time.Time) {
	if s.audit == nil {
		return
	}
	event := auditlog.Event{
		OccurredAt:   occurredAt,
		Actor:        params.Operator,
		Action:       "setup.logout",
		ResourceType: "setup_session",
		ResourceID:   params.RunNumber,
		Payload: map[string]any{
			"part":     params.Part,
			"complete": complete,
		},
	}
	if err := s.audit.Append(ctx, event); err != nil {
		s.logger.Warn("audit append failed", "action", event.Action, "error", err)
	}
}
