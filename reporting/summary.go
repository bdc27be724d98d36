package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-testrun/types"
)

// SummaryTable renders a run as a table, one row per suite. Colors are only
// used for terminal output.
func SummaryTable(run *types.RunResult, colored bool) string {
	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("Test Run Results %s (%s)", run.RunID, FormatDuration(run.Duration)))
	t.AppendHeader(table.Row{"Suite", "Duration", "Exit Code", "Stdout", "Stderr", "Status", "Details"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Suite", WidthMax: 40, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Exit Code", Align: text.AlignRight},
		{Name: "Stdout", Align: text.AlignRight},
		{Name: "Stderr", Align: text.AlignRight},
		{Name: "Details", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, s := range run.Suites {
		details := ""
		if s.Status != types.TestStatusPass {
			details = s.Message()
		}
		t.AppendRow(table.Row{
			s.Metadata.Name,
			FormatDuration(s.Duration),
			s.Result.ExitCode,
			len(s.Result.Stdout),
			len(s.Result.Stderr),
			StatusString(s.Status),
			details,
		})
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		FormatDuration(run.Duration),
		run.ExitCode(),
		"",
		fmt.Sprintf("%d/%d passed", run.Stats.Passed, run.Stats.Total),
		StatusString(run.Status),
		strings.Join(run.Failures, ", "),
	})

	if colored {
		switch run.Status {
		case types.TestStatusPass:
			t.SetStyle(table.StyleColoredBlackOnGreenWhite)
		case types.TestStatusFail:
			t.SetStyle(table.StyleColoredBlackOnYellowWhite)
		default:
			t.SetStyle(table.StyleColoredBlackOnRedWhite)
		}
	} else {
		t.SetStyle(table.StyleLight)
	}
	t.Style().Title.Format = text.FormatDefault
	t.Style().Format.Footer = text.FormatDefault
	return t.Render()
}

// StatusString is the display form of a status.
func StatusString(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass:
		return "✓ pass"
	case types.TestStatusFail:
		return "✗ fail"
	case types.TestStatusError:
		return "! error"
	default:
		return "? " + string(status)
	}
}

// FormatDuration formats the duration for display
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(10 * time.Millisecond).String()
}

// TextSummarySink collects suite results and writes summary.log into the
// run directory when the run completes.
type TextSummarySink struct {
	runDir string

	mu      sync.Mutex
	results map[string]*types.RunResult
}

// NewTextSummarySink writes into runDir.
func NewTextSummarySink(runDir string) *TextSummarySink {
	return &TextSummarySink{
		runDir:  runDir,
		results: make(map[string]*types.RunResult),
	}
}

// Consume collects a suite result for later summary generation
func (s *TextSummarySink) Consume(result *types.SuiteResult, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.results[runID]
	if !ok {
		run = &types.RunResult{RunID: runID}
		s.results[runID] = run
	}
	run.Add(result)
	run.Duration += result.Duration
	return nil
}

// Complete writes the summary table and the execution failures list.
func (s *TextSummarySink) Complete(runID string) error {
	s.mu.Lock()
	run, ok := s.results[runID]
	delete(s.results, runID)
	s.mu.Unlock()
	if !ok {
		run = &types.RunResult{RunID: runID}
	}

	if err := os.MkdirAll(s.runDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", s.runDir, err)
	}

	var content strings.Builder
	content.WriteString(SummaryTable(run, false))
	content.WriteString("\n")
	if len(run.Failures) > 0 {
		fmt.Fprintf(&content, "\nCritical execution failures: %s\n", strings.Join(run.Failures, ", "))
	}

	summaryFile := filepath.Join(s.runDir, "summary.log")
	if err := os.WriteFile(summaryFile, []byte(content.String()), 0644); err != nil {
		return fmt.Errorf("failed to write summary file: %w", err)
	}
	return nil
}
