package testrun

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-testrun/flags"
)

// LiveConfig configures the live output server.
type LiveConfig struct {
	Enabled         bool
	Addr            string
	AllowAllOrigins bool
	RunHistory      int
}

// Config holds the application configuration
type Config struct {
	SuitesFile         string
	SuitesFilter       string
	ResultsDir         string
	RunInterval        time.Duration // Interval between runs
	RunOnce            bool          // Exit after one run
	DefaultTimeout     time.Duration // Suite timeout when the suites file sets none
	OutputRealtimeLogs bool          // Echo child output to the log as it arrives
	PollInterval       time.Duration
	JoinTimeout        time.Duration
	TerminateGrace     time.Duration
	Live               LiveConfig
	HealthzAddr        string
	MetricsEnabled     bool
	MetricsAddr        string
	Log                log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	suitesFile := ctx.String(flags.SuitesFile.Name)
	absSuitesFile, err := filepath.Abs(suitesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for suites file '%s': %w", suitesFile, err)
	}

	resultsDir := ctx.String(flags.ResultsDir.Name)
	if resultsDir == "" {
		resultsDir = "results"
	}
	absResultsDir, err := filepath.Abs(resultsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for results directory '%s': %w", resultsDir, err)
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	if runInterval < 0 {
		return nil, fmt.Errorf("run interval must not be negative: %s", runInterval)
	}

	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	if metricsCfg.Enabled {
		if err := metricsCfg.Check(); err != nil {
			return nil, fmt.Errorf("invalid metrics config: %w", err)
		}
	}

	return &Config{
		SuitesFile:         absSuitesFile,
		SuitesFilter:       ctx.String(flags.SuitesFilter.Name),
		ResultsDir:         absResultsDir,
		RunInterval:        runInterval,
		RunOnce:            runInterval == 0,
		DefaultTimeout:     ctx.Duration(flags.DefaultTimeout.Name),
		OutputRealtimeLogs: ctx.Bool(flags.OutputRealtimeLogs.Name),
		PollInterval:       ctx.Duration(flags.PollInterval.Name),
		JoinTimeout:        ctx.Duration(flags.JoinTimeout.Name),
		TerminateGrace:     ctx.Duration(flags.TerminateGrace.Name),
		Live: LiveConfig{
			Enabled:         ctx.Bool(flags.LiveEnabled.Name),
			Addr:            ctx.String(flags.LiveAddr.Name),
			AllowAllOrigins: ctx.Bool(flags.LiveAllowAllOrigins.Name),
			RunHistory:      ctx.Int(flags.LiveRunHistory.Name),
		},
		HealthzAddr:    ctx.String(flags.HealthzAddr.Name),
		MetricsEnabled: metricsCfg.Enabled,
		MetricsAddr:    net.JoinHostPort(metricsCfg.ListenAddr, strconv.Itoa(metricsCfg.ListenPort)),
		Log:            log,
	}, nil
}
