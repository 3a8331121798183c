package entities

import "time"

// ProjectStatus is the final state of one project within a run
type ProjectStatus string

// Project statuses reported at the end of a run
const (
	ProjectCompleted ProjectStatus = "completed"
	ProjectSkipped   ProjectStatus = "skipped"
	ProjectAborted   ProjectStatus = "aborted"
)

// ProjectOutcome records how processing of one project ended
type ProjectOutcome struct {
	ProjectID   string        `json:"project_id"`
	ProjectName string        `json:"project_name"`
	Status      ProjectStatus `json:"status"`
	Findings    int           `json:"findings"`
	Definitions int           `json:"definitions"`
	Emitted     bool          `json:"emitted"`
	Error       string        `json:"error,omitempty"`
}

// RunSummary collects the outcomes of a connector run
type RunSummary struct {
	Connector  string           `json:"connector"`
	StartedAt  time.Time        `json:"started_at"`
	Duration   time.Duration    `json:"duration"`
	Outcomes   []ProjectOutcome `json:"outcomes"`
	Aborted    bool             `json:"aborted"`
	KickedOff  bool             `json:"kicked_off"`
	AbortCause string           `json:"abort_cause,omitempty"`
}

// Count returns how many projects ended with status
func (s *RunSummary) Count(status ProjectStatus) int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}
