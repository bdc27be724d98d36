package execution

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-testrun/exitcodes"
	"github.com/ethereum-optimism/infra/op-testrun/metrics"
)

const (
	DefaultPollInterval   = 100 * time.Millisecond
	DefaultJoinTimeout    = 5 * time.Second
	DefaultTerminateGrace = 5 * time.Second
)

// Result is the outcome of one execution. Stdout and Stderr hold every line
// read from the child, in order, whether or not they were forwarded live.
type Result struct {
	Argv         []string      `json:"argv"`
	Stdout       []Line        `json:"stdout"`
	Stderr       []Line        `json:"stderr"`
	ExitCode     int           `json:"exit_code"`
	LaunchFailed bool          `json:"launch_failed"`
	Cancelled    bool          `json:"cancelled"`
	JoinTimedOut bool          `json:"join_timed_out"`
	SinkFailures int           `json:"sink_failures"`
	State        State         `json:"state"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
}

// Succeeded reports a clean zero exit.
func (r *Result) Succeeded() bool {
	return !r.LaunchFailed && !r.Cancelled && r.ExitCode == exitcodes.Success
}

// StdoutText joins the stdout lines with newlines.
func (r *Result) StdoutText() string {
	return joinLines(r.Stdout)
}

// StderrText joins the stderr lines with newlines.
func (r *Result) StderrText() string {
	return joinLines(r.Stderr)
}

func joinLines(lines []Line) string {
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(l.Text)
	}
	return b.String()
}

// LaunchFailedResult is the record stored for an execution that never
// started. The launch error text becomes its only stderr line.
func LaunchFailedResult(err error) *Result {
	res := &Result{
		ExitCode:     exitcodes.RuntimeErr,
		LaunchFailed: true,
		State:        StateLaunchFailed,
		StartedAt:    time.Now(),
	}
	var launchErr *LaunchError
	if errors.As(err, &launchErr) {
		res.Argv = slices.Clone(launchErr.Argv)
	}
	if err != nil {
		res.Stderr = []Line{{Stream: Stderr, Text: err.Error()}}
	}
	return res
}

// Executor runs child processes with live line forwarding. The zero value is
// usable; unset fields take the package defaults.
type Executor struct {
	Launcher       Launcher
	Log            log.Logger
	PollInterval   time.Duration
	JoinTimeout    time.Duration
	TerminateGrace time.Duration
	Observer       StateObserver
}

// NewExecutor returns an executor with default timings that logs to lgr.
func NewExecutor(lgr log.Logger) *Executor {
	return &Executor{
		Launcher:       ExecLauncher{},
		Log:            lgr,
		PollInterval:   DefaultPollInterval,
		JoinTimeout:    DefaultJoinTimeout,
		TerminateGrace: DefaultTerminateGrace,
	}
}

// Execute runs spec with the default executor.
func Execute(ctx context.Context, spec CommandSpec, live EventSink) (*Result, error) {
	return NewExecutor(log.Root()).Execute(ctx, spec, live)
}

// Execute launches spec, forwards every line to live (when spec.Emit is set
// and live is non-nil) while accumulating all lines, and returns once the
// process has exited and both readers have finished.
//
// The only error returned is a *LaunchError, with a nil Result. Cancelling
// ctx terminates the child and returns the partial Result with Cancelled set.
func (e *Executor) Execute(ctx context.Context, spec CommandSpec, live EventSink) (*Result, error) {
	e = e.withDefaults()
	spec = spec.clone()

	tracker := &stateTracker{state: StateNotStarted, observer: e.Observer, log: e.Log}
	tracker.move(StateLaunching)

	start := time.Now()
	handle, err := e.Launcher.Launch(spec)
	if err != nil {
		tracker.move(StateLaunchFailed)
		e.Log.Error("Failed to launch process", "argv", spec.Argv, "dir", spec.Dir, "err", err)
		metrics.RecordErrorDetails("launch", err)
		metrics.RecordExecution(StateLaunchFailed.String(), time.Since(start))
		return nil, err
	}
	e.Log.Debug("Process started", "pid", handle.Pid(), "argv", spec.Argv, "dir", spec.Dir)
	tracker.move(StateDraining)

	var sink *guardedSink
	if spec.Emit {
		sink = newGuardedSink(live, e.Log)
	}
	agg := &aggregator{}
	d := &drainer{
		stdout: handle.Stdout(),
		stderr: handle.Stderr(),
		sink:   sink,
		agg:    agg,
		poll:   e.PollInterval,
	}

	res := &Result{Argv: spec.Argv, StartedAt: start}
	if cancelled := d.run(ctx); cancelled {
		tracker.move(StateCancelled)
		e.Log.Warn("Execution cancelled, terminating process", "pid", handle.Pid(), "grace", e.TerminateGrace)
		if err := handle.Terminate(e.TerminateGrace); err != nil {
			e.Log.Warn("Failed to signal process", "pid", handle.Pid(), "err", err)
		}
		res.Cancelled = true
	} else {
		tracker.move(StateJoining)
	}

	agg.finish(handle, e.JoinTimeout, e.Log, res)
	if !res.Cancelled {
		tracker.move(StateCompleted)
	}
	res.SinkFailures = sink.close()
	res.State = tracker.state
	res.Duration = time.Since(start)

	if res.JoinTimedOut {
		metrics.RecordJoinTimeout()
	}
	metrics.RecordLines(Stdout.String(), len(res.Stdout))
	metrics.RecordLines(Stderr.String(), len(res.Stderr))
	metrics.RecordSinkFailures(res.SinkFailures)
	metrics.RecordExecution(res.State.String(), res.Duration)

	e.Log.Debug("Process finished",
		"pid", handle.Pid(),
		"exit_code", res.ExitCode,
		"state", res.State,
		"stdout_lines", len(res.Stdout),
		"stderr_lines", len(res.Stderr),
		"sink_failures", res.SinkFailures,
		"duration", res.Duration)
	return res, nil
}

func (e *Executor) withDefaults() *Executor {
	c := *e
	e = &c
	if e.Launcher == nil {
		e.Launcher = ExecLauncher{}
	}
	if e.Log == nil {
		e.Log = log.Root()
	}
	if e.PollInterval <= 0 {
		e.PollInterval = DefaultPollInterval
	}
	if e.JoinTimeout <= 0 {
		e.JoinTimeout = DefaultJoinTimeout
	}
	if e.TerminateGrace <= 0 {
		e.TerminateGrace = DefaultTerminateGrace
	}
	return e
}
