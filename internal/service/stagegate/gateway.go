// Package stagegate propagates stage completion downstream. When a run or
// skid closes in one stage, the matching not-yet-started rows in the next
// stage's ledger have their open flag cleared. Propagation runs after the
// upstream closure has committed and a failure here never rolls that
// closure back.
package stagegate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prestec-labs/floortrack/internal/domain"
	"github.com/prestec-labs/floortrack/internal/repo"
)

type Gateway struct {
	flags  repo.StageFlagRepository
	logger *slog.Logger
}

func New(flags repo.StageFlagRepository, logger *slog.Logger) *Gateway {
	if flags == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{flags: flags, logger: logger}
}

// PropagateSkid flags the downstream rows matching one closed skid.
// Terminal stages have no downstream and propagate nowhere.
func (g *Gateway) PropagateSkid(ctx context.Context, from domain.Stage, productionNumber, part string, skidNumber int) error {
	if g == nil || g.flags == nil {
		return fmt.Errorf("stage gateway not initialized")
	}
	downstream, ok := domain.NextStage(from)
	if !ok {
		return nil
	}
	affected, err := g.flags.ClearOpen(ctx, downstream, productionNumber, part, &skidNumber)
	if err != nil {
		return fmt.Errorf("propagate skid completion: %w", err)
	}
	g.logger.Info("stage completion propagated",
		"from", string(from),
		"to", string(downstream),
		"production_number", productionNumber,
		"part", part,
		"skid_number", skidNumber,
		"rows", affected,
	)
	return nil
}

// PropagateRun flags downstream rows for a skid-less closure, matching on
// production number and part alone.
func (g *Gateway) PropagateRun(ctx context.Context, from domain.Stage, productionNumber, part string) error {
	if g == nil || g.flags == nil {
		return fmt.Errorf("stage gateway not initialized")
	}
	downstream, ok := domain.NextStage(from)
	if !ok {
		return nil
	}
	affected, err := g.flags.ClearOpen(ctx, downstream, productionNumber, part, nil)
	if err != nil {
		return fmt.Errorf("propagate run completion: %w", err)
	}
	g.logger.Info("stage completion propagated",
		"from", string(from),
		"to", string(downstream),
		"production_number", productionNumber,
		"part", part,
		"rows", affected,
	)
	return nil
}
