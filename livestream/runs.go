package livestream

import (
	"slices"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ethereum-optimism/infra/op-testrun/types"
)

const DefaultRunIndexSize = 64

// SuiteSummary is the per-suite part of a RunSummary.
type SuiteSummary struct {
	Name         string           `json:"name"`
	Status       types.TestStatus `json:"status"`
	ExitCode     int              `json:"exit_code"`
	Message      string           `json:"message"`
	StdoutLines  int              `json:"stdout_lines"`
	StderrLines  int              `json:"stderr_lines"`
	LaunchFailed bool             `json:"launch_failed,omitempty"`
	TimedOut     bool             `json:"timed_out,omitempty"`
	Duration     time.Duration    `json:"duration"`
}

// RunSummary is what viewers and the /runs endpoints see of a run.
type RunSummary struct {
	RunID     string            `json:"run_id"`
	Status    types.TestStatus  `json:"status"`
	ExitCode  int               `json:"exit_code"`
	Stats     types.ResultStats `json:"stats"`
	Failures  []string          `json:"failures,omitempty"`
	Suites    []SuiteSummary    `json:"suites"`
	StartedAt time.Time         `json:"started_at"`
	Duration  time.Duration     `json:"duration"`
	Cancelled bool              `json:"cancelled,omitempty"`
}

// NewRunSummary condenses a run result.
func NewRunSummary(run *types.RunResult) *RunSummary {
	s := &RunSummary{
		RunID:     run.RunID,
		Status:    run.Status,
		ExitCode:  run.ExitCode(),
		Stats:     run.Stats,
		Failures:  slices.Clone(run.Failures),
		StartedAt: run.StartedAt,
		Duration:  run.Duration,
		Cancelled: run.Cancelled,
		Suites:    make([]SuiteSummary, 0, len(run.Suites)),
	}
	for _, suite := range run.Suites {
		s.Suites = append(s.Suites, SuiteSummary{
			Name:         suite.Metadata.Name,
			Status:       suite.Status,
			ExitCode:     suite.Result.ExitCode,
			Message:      suite.Message(),
			StdoutLines:  len(suite.Result.Stdout),
			StderrLines:  len(suite.Result.Stderr),
			LaunchFailed: suite.Result.LaunchFailed,
			TimedOut:     suite.TimedOut,
			Duration:     suite.Duration,
		})
	}
	return s
}

// RunIndex keeps the most recent run summaries.
type RunIndex struct {
	cache *lru.Cache[string, *RunSummary]
}

// NewRunIndex keeps at most size runs; size <= 0 uses DefaultRunIndexSize.
func NewRunIndex(size int) (*RunIndex, error) {
	if size <= 0 {
		size = DefaultRunIndexSize
	}
	cache, err := lru.New[string, *RunSummary](size)
	if err != nil {
		return nil, err
	}
	return &RunIndex{cache: cache}, nil
}

func (i *RunIndex) Add(s *RunSummary) {
	i.cache.Add(s.RunID, s)
}

func (i *RunIndex) Get(runID string) (*RunSummary, bool) {
	return i.cache.Get(runID)
}

// List returns the stored runs, most recently added or viewed first.
func (i *RunIndex) List() []*RunSummary {
	runs := i.cache.Values()
	slices.Reverse(runs)
	return runs
}
