// Package exitcodes defines the exit codes used by op-testrun and the
// convention it applies to the exit codes of the suites it runs.
package exitcodes

// Exit code constants used by op-testrun and expected from suite processes:
//
// * Success (0): all tests passed
// * TestFailure (1): one or more tests failed, the run itself worked
// * RuntimeErr (2): anything above 1 is fatal, e.g. a crash, a launch failure or bad configuration
const (
	Success     = 0 // All tests pass
	TestFailure = 1 // Test failures
	RuntimeErr  = 2 // Runtime errors or timeouts
)

// Outcome is how a suite exit code is interpreted.
type Outcome string

const (
	OutcomePass  Outcome = "pass"
	OutcomeFail  Outcome = "fail"
	OutcomeFatal Outcome = "fatal"
)

// Classify maps a process exit code to an outcome. Negative codes (the
// process was killed by a signal) are fatal.
func Classify(code int) Outcome {
	switch code {
	case Success:
		return OutcomePass
	case TestFailure:
		return OutcomeFail
	default:
		return OutcomeFatal
	}
}

// Code is the process exit code op-testrun itself uses for an outcome.
func (o Outcome) Code() int {
	switch o {
	case OutcomePass:
		return Success
	case OutcomeFail:
		return TestFailure
	default:
		return RuntimeErr
	}
}

// Worse returns the more severe of two outcomes.
func Worse(a, b Outcome) Outcome {
	if a.Code() >= b.Code() {
		return a
	}
	return b
}
