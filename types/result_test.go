package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ethereum-optimism/infra/op-testrun/execution"
	"github.com/ethereum-optimism/infra/op-testrun/exitcodes"
)

func TestStatusOutcomeMapping(t *testing.T) {
	for _, o := range []exitcodes.Outcome{exitcodes.OutcomePass, exitcodes.OutcomeFail, exitcodes.OutcomeFatal} {
		assert.Equal(t, o, StatusFromOutcome(o).Outcome())
	}
	assert.Equal(t, TestStatusError, StatusFromOutcome(exitcodes.OutcomeFatal))
}

func TestSuiteResultMessages(t *testing.T) {
	meta := SuiteMetadata{Name: "smoke"}
	tests := []struct {
		name        string
		result      SuiteResult
		wantMessage string
		wantEntry   string
	}{
		{
			name:        "pass",
			result:      SuiteResult{Metadata: meta, Status: TestStatusPass, Result: &execution.Result{ExitCode: 0}},
			wantMessage: "Test suite smoke completed successfully",
			wantEntry:   "",
		},
		{
			name:        "fail",
			result:      SuiteResult{Metadata: meta, Status: TestStatusFail, Result: &execution.Result{ExitCode: 1}},
			wantMessage: "Test suite smoke completed with some test failures",
			wantEntry:   "",
		},
		{
			name:        "fatal",
			result:      SuiteResult{Metadata: meta, Status: TestStatusError, Result: &execution.Result{ExitCode: 3}},
			wantMessage: "Test suite smoke failed with exit code 3",
			wantEntry:   "smoke (exit code: 3)",
		},
		{
			name: "launch failure",
			result: SuiteResult{
				Metadata: meta,
				Status:   TestStatusError,
				Result:   execution.LaunchFailedResult(errors.New("no such file")),
				Error:    errors.New("no such file"),
			},
			wantMessage: "Test suite smoke could not be started: no such file",
			wantEntry:   "smoke (exit code: 2)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMessage, tt.result.Message())
			assert.Equal(t, tt.wantEntry, tt.result.FailureEntry())
		})
	}
}
