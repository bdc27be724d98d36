package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-testrun/execution"
	"github.com/ethereum-optimism/infra/op-testrun/exitcodes"
	"github.com/ethereum-optimism/infra/op-testrun/logging"
	"github.com/ethereum-optimism/infra/op-testrun/metrics"
	"github.com/ethereum-optimism/infra/op-testrun/registry"
	"github.com/ethereum-optimism/infra/op-testrun/reporting"
	"github.com/ethereum-optimism/infra/op-testrun/types"
)

const (
	ExecutionStartedMessage   = "=== Test execution started ==="
	ExecutionCompletedMessage = "=== Test execution phase completed ==="
)

// LiveFeed receives every child output line and the run's progress messages.
type LiveFeed interface {
	execution.EventSink
	Info(msg string) error
}

// TestRunner runs the registered suites.
type TestRunner interface {
	RunAllSuites(ctx context.Context) (*types.RunResult, error)
}

// Config holds configuration for creating a new runner
type Config struct {
	Registry   *registry.Registry
	Executor   *execution.Executor
	ResultsDir string
	Log        log.Logger
	// Live is optional. When set it gets every line of suites with emit enabled.
	Live LiveFeed
	// OnRunComplete is called with the finished run, after artifacts are written.
	OnRunComplete func(*types.RunResult)
	NoiseFilter   *reporting.NoiseFilter
	// OutputRealtimeLogs also echoes child lines to the structured logger.
	OutputRealtimeLogs bool
}

type runner struct {
	registry   *registry.Registry
	executor   *execution.Executor
	resultsDir string
	log        log.Logger
	live       LiveFeed
	onComplete func(*types.RunResult)
	filter     *reporting.NoiseFilter
	echo       bool
	tracer     trace.Tracer
}

// NewTestRunner creates a new test runner instance
func NewTestRunner(cfg Config) (TestRunner, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.ResultsDir == "" {
		return nil, fmt.Errorf("results directory is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if len(cfg.Registry.GetSuites()) == 0 {
		return nil, fmt.Errorf("no suites found")
	}
	if cfg.Executor == nil {
		cfg.Executor = execution.NewExecutor(cfg.Log)
	}

	cfg.Log.Debug("NewTestRunner()", "resultsDir", cfg.ResultsDir,
		"suites", len(cfg.Registry.GetSuites()), "live", cfg.Live != nil, "realtimeLogs", cfg.OutputRealtimeLogs)

	return &runner{
		registry:   cfg.Registry,
		executor:   cfg.Executor,
		resultsDir: cfg.ResultsDir,
		log:        cfg.Log,
		live:       cfg.Live,
		onComplete: cfg.OnRunComplete,
		filter:     cfg.NoiseFilter,
		echo:       cfg.OutputRealtimeLogs,
		tracer:     otel.Tracer("test runner"),
	}, nil
}

// RunAllSuites runs every selected suite once, in order. Cancelling ctx
// terminates the running suite and skips the rest; the partial run is still
// returned and its artifacts written.
func (r *runner) RunAllSuites(ctx context.Context) (*types.RunResult, error) {
	runID := uuid.New().String()
	ctx, span := r.tracer.Start(ctx, "run", trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	fileLogger, err := logging.NewFileLogger(r.resultsDir, runID, r.filter)
	if err != nil {
		return nil, fmt.Errorf("failed to create file logger: %w", err)
	}

	start := time.Now()
	run := &types.RunResult{RunID: runID, Status: types.TestStatusPass, StartedAt: start}
	r.log.Info("Running all suites", "run_id", runID, "dir", fileLogger.GetBaseDir())
	r.info(ExecutionStartedMessage)

	p := types.Placeholders{ResultsDir: fileLogger.GetBaseDir(), RunID: runID}
	for _, suite := range r.registry.GetSuites() {
		if ctx.Err() != nil {
			run.Cancelled = true
			break
		}
		result := r.runSuite(ctx, suite, p)
		run.Add(result)
		if err := fileLogger.LogSuiteResult(result, runID); err != nil {
			r.log.Error("Failed to write suite artifacts", "suite", suite.Name, "err", err)
		}
		if ctx.Err() != nil {
			run.Cancelled = true
		}
	}

	run.Duration = time.Since(start)
	if err := fileLogger.Complete(runID); err != nil {
		r.log.Error("Failed to complete run artifacts", "run_id", runID, "err", err)
	}

	r.info(ExecutionCompletedMessage)
	metrics.RecordRunStatus(runID, string(run.Status))
	span.SetAttributes(attribute.String("status", string(run.Status)))
	if run.Status != types.TestStatusPass {
		span.SetStatus(codes.Error, fmt.Sprintf("run %s", run.Status))
	}
	if r.onComplete != nil {
		r.onComplete(run)
	}

	r.log.Info("Run finished", "run_id", runID, "status", run.Status,
		"total", run.Stats.Total, "passed", run.Stats.Passed, "failed", run.Stats.Failed,
		"errors", run.Stats.Errors, "cancelled", run.Cancelled, "duration", run.Duration)
	return run, nil
}

func (r *runner) runSuite(ctx context.Context, suite types.SuiteMetadata, p types.Placeholders) *types.SuiteResult {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("suite %s", suite.Name))
	defer span.End()

	suiteCtx := ctx
	if suite.Timeout > 0 {
		var cancel context.CancelFunc
		suiteCtx, cancel = context.WithTimeout(ctx, suite.Timeout)
		defer cancel()
	}

	spec := suite.CommandSpec(p)
	r.log.Info("Running suite", "suite", suite.Name, "argv", spec.Argv, "dir", spec.Dir)

	start := time.Now()
	res, err := r.executor.Execute(suiteCtx, spec, r.sink())
	result := &types.SuiteResult{Metadata: suite}

	switch {
	case err != nil:
		res = execution.LaunchFailedResult(err)
		result.Status = types.TestStatusError
		result.Error = err
	case res.Cancelled:
		result.Status = types.TestStatusError
		if ctx.Err() == nil && errors.Is(suiteCtx.Err(), context.DeadlineExceeded) {
			result.TimedOut = true
			result.Error = fmt.Errorf("suite %s timed out after %s", suite.Name, suite.Timeout)
		} else {
			result.Error = fmt.Errorf("suite %s cancelled: %w", suite.Name, context.Cause(ctx))
		}
	default:
		result.Status = types.StatusFromOutcome(exitcodes.Classify(res.ExitCode))
	}
	result.Result = res
	result.Duration = time.Since(start)

	metrics.RecordSuiteResult(suite.Name, string(result.Status.Outcome()))
	span.SetAttributes(
		attribute.String("status", string(result.Status)),
		attribute.Int("exit_code", res.ExitCode),
	)
	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, result.Error.Error())
	}

	msg := result.Message()
	r.info(msg)
	if result.Status == types.TestStatusPass {
		r.log.Info(msg, "suite", suite.Name, "duration", result.Duration)
	} else {
		r.log.Warn(msg, "suite", suite.Name, "exit_code", res.ExitCode, "duration", result.Duration, "err", result.Error)
	}
	return result
}

func (r *runner) sink() execution.EventSink {
	var sinks []execution.EventSink
	if r.live != nil {
		sinks = append(sinks, r.live)
	}
	if r.echo {
		sinks = append(sinks, execution.LogSink{Log: r.log})
	}
	return execution.NewMultiSink(sinks...)
}

func (r *runner) info(msg string) {
	if r.live == nil {
		return
	}
	if err := r.live.Info(msg); err != nil {
		r.log.Debug("Could not send live message", "msg", msg, "err", err)
	}
}
