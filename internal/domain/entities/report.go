package entities

import "time"

// ReportStatus is the vendor-reported state of an asynchronously generated report
type ReportStatus string

// Report generation states as seen by the poller
const (
	ReportPending ReportStatus = "pending"
	ReportReady   ReportStatus = "ready"
	ReportFailed  ReportStatus = "failed"
)

// PollState is the poller state machine position
type PollState string

// Poller states
const (
	PollRequested  PollState = "requested"
	PollGenerating PollState = "generating"
	PollReady      PollState = "ready"
	PollFailed     PollState = "failed"
)

// PollResult describes one report poll from request to terminal state
type PollResult struct {
	ScanID   string
	ReportID string
	State    PollState
	Attempts int
	Elapsed  time.Duration
	Document *RawDocument
}

// DefinitionInfo is the knowledge-base detail of one vendor weakness identifier
type DefinitionInfo struct {
	ID          string `json:"id"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	CWE         string `json:"cwe,omitempty"`
}
