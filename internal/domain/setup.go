package domain

import (
	"errors"
	"strings"
	"time"
)

// SetupSession tracks the machine-changeover activity preceding a run.
// Open == true means the machine is set up and idle, ready for a run;
// Open == false with EndedAt == nil means setup is still in progress.
type SetupSession struct {
	ID               string
	ProductionNumber string
	Part             string
	Component        string
	RunNumber        string
	Operator         string
	Machine          string
	StartedAt        time.Time
	EndedAt          *time.Time
	Difficulty       string
	Assistance       string
	AssistedBy       string
	Notes            string
	Open             bool
}

func (s SetupSession) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("session id is required")
	}
	if strings.TrimSpace(s.Part) == "" {
		return errors.New("part is required")
	}
	if strings.TrimSpace(s.RunNumber) == "" {
		return errors.New("run number is required")
	}
	if strings.TrimSpace(s.Operator) == "" {
		return errors.New("operator is required")
	}
	if strings.TrimSpace(s.Machine) == "" {
		return errors.New("machine is required")
	}
	return nil
}
