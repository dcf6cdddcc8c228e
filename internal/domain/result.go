package domain

import "time"

type CaseOutcome string

const (
	OutcomeSent      CaseOutcome = "sent"
	OutcomeAdvanced  CaseOutcome = "advanced"
	OutcomeCompleted CaseOutcome = "completed"
	OutcomeSkipped   CaseOutcome = "skipped"
	OutcomePaused    CaseOutcome = "paused"
	OutcomeError     CaseOutcome = "error"
)

// CaseResult is what one unit of work reports back to the batch orchestrator.
type CaseResult struct {
	CollectionID string
	Outcome      CaseOutcome
	Reason       RateLimitReason
	MessageID    string
	Error        error
}

// RunSummary is returned by every batch invocation for operational logging.
type RunSummary struct {
	Processed int  `json:"processed"`
	Skipped   int  `json:"skipped"`
	Errors    int  `json:"errors"`
	LockHeld  bool `json:"lockHeld"`

	Sent      int           `json:"sent"`
	Completed int           `json:"completed"`
	Advanced  int           `json:"advanced"`
	Duration  time.Duration `json:"duration"`
}

// Add folds a single case result into the summary.
func (s *RunSummary) Add(r CaseResult) {
	switch r.Outcome {
	case OutcomeSent:
		s.Processed++
		s.Sent++
	case OutcomeAdvanced:
		s.Processed++
		s.Advanced++
	case OutcomeCompleted:
		s.Processed++
		s.Completed++
	case OutcomeSkipped:
		s.Skipped++
	default:
		s.Errors++
	}
}

// Total is the number of cases the run looked at.
func (s RunSummary) Total() int {
	return s.Processed + s.Skipped + s.Errors
}
