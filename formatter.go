package testrun

import (
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-testrun/reporting"
	"github.com/ethereum-optimism/infra/op-testrun/types"
)

// ResultFormatter is responsible for formatting and displaying run results.
type ResultFormatter interface {
	FormatResults(result *types.RunResult) error
}

// ConsoleResultFormatter prints the run table and verdict.
type ConsoleResultFormatter struct {
	logger  log.Logger
	out     io.Writer
	colored bool
}

func NewConsoleResultFormatter(logger log.Logger, out io.Writer, colored bool) *ConsoleResultFormatter {
	return &ConsoleResultFormatter{
		logger:  logger,
		out:     out,
		colored: colored,
	}
}

func (f *ConsoleResultFormatter) FormatResults(result *types.RunResult) error {
	f.logger.Info("Printing results...")
	var b strings.Builder
	b.WriteString(reporting.SummaryTable(result, f.colored))
	b.WriteString("\n")
	b.WriteString(result.String())
	b.WriteString("\n")
	if len(result.Failures) > 0 {
		fmt.Fprintf(&b, "Critical execution failures: %s\n", strings.Join(result.Failures, ", "))
	}
	if result.Cancelled {
		b.WriteString("Run was cancelled before all suites finished\n")
	}
	_, err := io.WriteString(f.out, b.String())
	return err
}
