package types

import (
	"fmt"
	"time"

	"github.com/ethereum-optimism/infra/op-testrun/execution"
	"github.com/ethereum-optimism/infra/op-testrun/exitcodes"
)

// TestStatus represents the possible states of a suite or a whole run
type TestStatus string

const (
	TestStatusPass  TestStatus = "pass"
	TestStatusFail  TestStatus = "fail"
	TestStatusError TestStatus = "error"
)

// StatusFromOutcome maps an exit code outcome to a status.
func StatusFromOutcome(o exitcodes.Outcome) TestStatus {
	switch o {
	case exitcodes.OutcomePass:
		return TestStatusPass
	case exitcodes.OutcomeFail:
		return TestStatusFail
	default:
		return TestStatusError
	}
}

// Outcome maps a status back to its exit code outcome.
func (s TestStatus) Outcome() exitcodes.Outcome {
	switch s {
	case TestStatusPass:
		return exitcodes.OutcomePass
	case TestStatusFail:
		return exitcodes.OutcomeFail
	default:
		return exitcodes.OutcomeFatal
	}
}

// SuiteResult captures the outcome of a single suite run
type SuiteResult struct {
	Metadata SuiteMetadata
	Status   TestStatus
	Result   *execution.Result // never nil, launch failures included
	Error    error             // launch failure or timeout, nil otherwise
	Duration time.Duration
	TimedOut bool
}

// Message is the one-line verdict shown in the live feed and the logs.
func (r *SuiteResult) Message() string {
	name := r.Metadata.Name
	switch {
	case r.Result.LaunchFailed:
		return fmt.Sprintf("Test suite %s could not be started: %v", name, r.Error)
	case r.TimedOut:
		return fmt.Sprintf("Test suite %s timed out after %s", name, r.Metadata.Timeout)
	case r.Status == TestStatusPass:
		return fmt.Sprintf("Test suite %s completed successfully", name)
	case r.Status == TestStatusFail:
		return fmt.Sprintf("Test suite %s completed with some test failures", name)
	default:
		return fmt.Sprintf("Test suite %s failed with exit code %d", name, r.Result.ExitCode)
	}
}

// FailureEntry is the suite's line in the execution failures list. Only
// fatal suites are execution failures; test failures are not.
func (r *SuiteResult) FailureEntry() string {
	if r.Status != TestStatusError {
		return ""
	}
	return fmt.Sprintf("%s (exit code: %d)", r.Metadata.Name, r.Result.ExitCode)
}
