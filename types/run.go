package types

import (
	"fmt"
	"time"

	"github.com/ethereum-optimism/infra/op-testrun/exitcodes"
)

// ResultStats tracks suite counts for a run
type ResultStats struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
	Errors int `json:"errors"`
}

// Add counts one suite status.
func (s *ResultStats) Add(status TestStatus) {
	s.Total++
	switch status {
	case TestStatusPass:
		s.Passed++
	case TestStatusFail:
		s.Failed++
	default:
		s.Errors++
	}
}

// RunResult is the outcome of running every selected suite once.
type RunResult struct {
	RunID     string         `json:"run_id"`
	Status    TestStatus     `json:"status"`
	Suites    []*SuiteResult `json:"-"`
	Failures  []string       `json:"failures,omitempty"` // "name (exit code: N)" per fatal suite
	Stats     ResultStats    `json:"stats"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
	Cancelled bool           `json:"cancelled,omitempty"`
}

// Add records a suite result and updates the run status. The run is an
// error if any suite was fatal, a failure if any suite failed, else a pass.
func (r *RunResult) Add(s *SuiteResult) {
	r.Suites = append(r.Suites, s)
	r.Stats.Add(s.Status)
	if entry := s.FailureEntry(); entry != "" {
		r.Failures = append(r.Failures, entry)
	}
	if r.Status == "" {
		r.Status = TestStatusPass
	}
	r.Status = StatusFromOutcome(exitcodes.Worse(r.Status.Outcome(), s.Status.Outcome()))
}

// ExitCode is the exit code op-testrun reports for this run.
func (r *RunResult) ExitCode() int {
	if r.Status == "" {
		return exitcodes.Success
	}
	return r.Status.Outcome().Code()
}

func (r *RunResult) String() string {
	return fmt.Sprintf("RunResult{RunID: %s, Status: %s, Total: %d, Passed: %d, Failed: %d, Errors: %d, Duration: %s}",
		r.RunID, r.Status, r.Stats.Total, r.Stats.Passed, r.Stats.Failed, r.Stats.Errors, r.Duration)
}
