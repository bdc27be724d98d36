package testrun

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"

	"github.com/ethereum-optimism/infra/op-testrun/execution"
	"github.com/ethereum-optimism/infra/op-testrun/exitcodes"
	"github.com/ethereum-optimism/infra/op-testrun/livestream"
	"github.com/ethereum-optimism/infra/op-testrun/registry"
	"github.com/ethereum-optimism/infra/op-testrun/reporting"
	"github.com/ethereum-optimism/infra/op-testrun/runner"
	"github.com/ethereum-optimism/infra/op-testrun/service"
	"github.com/ethereum-optimism/infra/op-testrun/types"
)

var _ cliapp.Lifecycle = &testRun{}

type testRun struct {
	config    *Config
	version   string
	registry  *registry.Registry
	runner    runner.TestRunner
	live      *livestream.Server
	svc       *service.Service
	formatter ResultFormatter

	mu        sync.Mutex
	result    *types.RunResult
	cancelRun context.CancelFunc

	running atomic.Bool
	done    chan struct{}
	trigger chan struct{}
	wg      sync.WaitGroup

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*testRun, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating op-testrun with config",
		"suitesFile", config.SuitesFile,
		"resultsDir", config.ResultsDir,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce,
		"live", config.Live.Enabled)

	reg, err := registry.NewRegistry(registry.Config{
		Log:            config.Log,
		SuitesFile:     config.SuitesFile,
		Filter:         config.SuitesFilter,
		DefaultTimeout: config.DefaultTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	filter, err := reporting.NewNoiseFilter(reg.GetNoisePatterns())
	if err != nil {
		return nil, fmt.Errorf("failed to create noise filter: %w", err)
	}

	executor := execution.NewExecutor(config.Log)
	executor.PollInterval = config.PollInterval
	executor.JoinTimeout = config.JoinTimeout
	executor.TerminateGrace = config.TerminateGrace

	t := &testRun{
		config:           config,
		version:          version,
		registry:         reg,
		formatter:        NewConsoleResultFormatter(config.Log, os.Stdout, true),
		done:             make(chan struct{}),
		trigger:          make(chan struct{}, 1),
		shutdownCallback: shutdownCallback,
	}

	runnerCfg := runner.Config{
		Registry:           reg,
		Executor:           executor,
		ResultsDir:         config.ResultsDir,
		Log:                config.Log,
		NoiseFilter:        filter,
		OutputRealtimeLogs: config.OutputRealtimeLogs,
	}
	if config.Live.Enabled {
		t.live, err = livestream.NewServer(livestream.Config{
			Log:             config.Log,
			Addr:            config.Live.Addr,
			AllowAllOrigins: config.Live.AllowAllOrigins,
			RunIndexSize:    config.Live.RunHistory,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create live server: %w", err)
		}
		t.live.Hub().OnStartRequest(t.requestRun)
		runnerCfg.Live = t.live.Hub()
		runnerCfg.OnRunComplete = t.live.RecordRun
	}

	t.runner, err = runner.NewTestRunner(runnerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create test runner: %w", err)
	}

	t.svc = service.New(service.Config{
		Log:            config.Log,
		HealthzAddr:    config.HealthzAddr,
		MetricsEnabled: config.MetricsEnabled,
		MetricsAddr:    config.MetricsAddr,
	})
	config.Log.Info("testrun.New: created registry and test runner", "suites", len(reg.GetSuites()))
	return t, nil
}

func (t *testRun) Start(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			t.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()
	// The lifecycle is not stopped when Start fails, so release the servers here.
	defer func() {
		if err != nil {
			_ = t.Stop(context.Background())
		}
	}()

	t.done = make(chan struct{})
	t.running.Store(true)

	if err := t.svc.Start(ctx); err != nil {
		return NewRuntimeError(fmt.Errorf("failed to start service: %w", err))
	}
	if t.live != nil {
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			if err := t.live.Start(); err != nil {
				t.config.Log.Error("Live stream server failed", "err", err)
			}
		}()
	}

	if t.config.RunOnce {
		t.config.Log.Info("Starting op-testrun in run-once mode")
	} else {
		t.config.Log.Info("Starting op-testrun in continuous mode", "interval", t.config.RunInterval)
	}

	result, err := t.runSuites(ctx)
	if err != nil {
		t.config.Log.Error("Runtime error running suites", "error", err)
		return err
	}

	if t.config.RunOnce {
		t.config.Log.Info("Suites completed, exiting (run-once mode)")
		if err := runOnceError(result); err != nil {
			t.config.Log.Warn("Run-once run did not pass", "status", result.Status, "exit_code", result.ExitCode())
			return err
		}
		go func() {
			t.shutdownCallback(nil)
		}()
		return nil
	}

	t.wg.Add(1)
	go t.loop(ctx)
	t.config.Log.Debug("op-testrun started successfully")
	return nil
}

// loop runs the suites every RunInterval, or sooner when a live viewer asks
// for a run.
func (t *testRun) loop(ctx context.Context) {
	defer t.wg.Done()
	t.config.Log.Debug("Starting periodic runner goroutine", "interval", t.config.RunInterval)

	timer := time.NewTimer(t.config.RunInterval)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
		case <-t.trigger:
			t.config.Log.Info("Run requested by live client")
		case <-t.done:
			t.config.Log.Debug("Done signal received, stopping periodic runner")
			return
		case <-ctx.Done():
			t.config.Log.Debug("Context canceled, stopping periodic runner")
			t.running.Store(false)
			return
		}
		if !t.running.Load() {
			return
		}

		t.config.Log.Info("Running periodic suites")
		if _, err := t.runSuites(ctx); err != nil {
			t.config.Log.Error("Error running periodic suites", "error", err)
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(t.config.RunInterval)
	}
}

func (t *testRun) requestRun() {
	select {
	case t.trigger <- struct{}{}:
	default:
	}
}

func (t *testRun) runSuites(ctx context.Context) (*types.RunResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	t.mu.Lock()
	t.cancelRun = cancel
	t.mu.Unlock()

	t.config.Log.Info("Running all suites...")
	result, err := t.runner.RunAllSuites(ctx)
	if err != nil {
		return nil, NewRuntimeError(err)
	}

	t.mu.Lock()
	t.result = result
	t.cancelRun = nil
	t.mu.Unlock()

	if err := t.formatter.FormatResults(result); err != nil {
		t.config.Log.Warn("Failed to print results", "err", err)
	}
	t.config.Log.Info("Test run completed", "run_id", result.RunID, "status", result.Status)
	return result, nil
}

// runOnceError maps a run to the error that carries its exit code.
func runOnceError(result *types.RunResult) error {
	switch result.Status {
	case types.TestStatusPass:
		if result.Cancelled {
			return NewRuntimeError(errors.New("run was cancelled"))
		}
		return nil
	case types.TestStatusFail:
		return NewTestFailureError(result.String())
	default:
		return NewRuntimeError(fmt.Errorf("execution failures: %s", strings.Join(result.Failures, ", ")))
	}
}

// LastResult returns the most recent finished run, or nil.
func (t *testRun) LastResult() *types.RunResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

func (t *testRun) Stop(ctx context.Context) error {
	t.config.Log.Info("Stopping op-testrun")

	if !t.running.Load() {
		t.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}
	t.running.Store(false)

	t.config.Log.Debug("Sending done signal to goroutines")
	close(t.done)
	t.mu.Lock()
	if t.cancelRun != nil {
		t.cancelRun()
	}
	t.mu.Unlock()

	var errs []error
	if t.live != nil {
		errs = append(errs, t.live.Shutdown(ctx))
	}
	t.wg.Wait()
	errs = append(errs, t.svc.Shutdown(ctx))

	t.config.Log.Info("op-testrun stopped successfully")
	return errors.Join(errs...)
}

func (t *testRun) Stopped() bool {
	return !t.running.Load()
}
