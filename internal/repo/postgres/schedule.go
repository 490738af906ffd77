package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ScheduleStore owns nothing but the close-out of schedule entries; the rest
// of the scheduling concept lives with the scheduling service.
type ScheduleStore struct {
	db DB
}

const closeScheduleEntryQuery = `UPDATE schedule_entries
	 SET closed = TRUE, closed_at = $1
	 WHERE run_number = $2 AND closed = FALSE`

func NewScheduleStore(db DB) *ScheduleStore {
	if db == nil {
		return nil
	}
	return &ScheduleStore{db: db}
}

func (s *ScheduleStore) CloseEntry(ctx context.Context, runNumber string, closedAt time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("schedule store not initialized")
	}
	runNumber = strings.TrimSpace(runNumber)
	if runNumber == "" {
		return false, fmt.Errorf("run number is required")
	}
	res, err := s.db.ExecContext(ctx, closeScheduleEntryQuery, normalizeTime(closedAt), runNumber)
	if err != nil {
		return false, fmt.Errorf("close schedule entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close schedule entry: %w", err)
	}
	return affected > 0, nil
}
