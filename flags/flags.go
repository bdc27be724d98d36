package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "OP_TESTRUN"

var (
	// Enforced by CheckRequired so the exec subcommand can run without it.
	SuitesFile = &cli.StringFlag{
		Name:    "suites",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SUITES"),
		Usage:   "Path to the suites file (eg. 'suites.yaml' or 'suites.toml'). Required unless running exec.",
	}
	ResultsDir = &cli.StringFlag{
		Name:    "results-dir",
		Value:   "results",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RESULTS_DIR"),
		Usage:   "Directory in which each run gets its own testrun-<id> directory",
	}
	SuitesFilter = &cli.StringFlag{
		Name:    "suites-filter",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SUITES_FILTER"),
		Usage:   "Glob selecting the suites to run by name (eg. 'smoke-*'). Empty runs all suites.",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	DefaultTimeout = &cli.DurationFlag{
		Name:    "default-timeout",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DEFAULT_TIMEOUT"),
		Usage:   "Timeout for suites that set none, here or in the suites file. 0 disables it.",
	}
	OutputRealtimeLogs = &cli.BoolFlag{
		Name:    "output-realtime-logs",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "OUTPUT_REALTIME_LOGS"),
		Usage:   "Echo every child output line to the log as it arrives",
	}
	PollInterval = &cli.DurationFlag{
		Name:    "poll-interval",
		Value:   100 * time.Millisecond,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "POLL_INTERVAL"),
		Usage:   "Longest wait for output before checking for cancellation again",
	}
	JoinTimeout = &cli.DurationFlag{
		Name:    "join-timeout",
		Value:   5 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "JOIN_TIMEOUT"),
		Usage:   "How long to wait for the output readers once both streams are drained",
	}
	TerminateGrace = &cli.DurationFlag{
		Name:    "terminate-grace",
		Value:   5 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TERMINATE_GRACE"),
		Usage:   "Time between SIGTERM and SIGKILL when a suite is cancelled or times out",
	}
	LiveEnabled = &cli.BoolFlag{
		Name:    "live.enabled",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LIVE_ENABLED"),
		Usage:   "Serve the live output websocket and the recent runs API",
	}
	LiveAddr = &cli.StringFlag{
		Name:    "live.addr",
		Value:   "0.0.0.0:5050",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LIVE_ADDR"),
		Usage:   "Listen address of the live output server",
	}
	LiveAllowAllOrigins = &cli.BoolFlag{
		Name:    "live.allow-all-origins",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LIVE_ALLOW_ALL_ORIGINS"),
		Usage:   "Accept websocket connections from any origin",
	}
	LiveRunHistory = &cli.IntFlag{
		Name:    "live.run-history",
		Value:   64,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LIVE_RUN_HISTORY"),
		Usage:   "Number of recent run summaries served by the runs API",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz.addr",
		Value:   "0.0.0.0:8080",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ADDR"),
		Usage:   "Listen address of the healthz server",
	}
)

var requiredFlags = []cli.Flag{
	SuitesFile,
}

var optionalFlags = []cli.Flag{
	ResultsDir,
	SuitesFilter,
	RunInterval,
	DefaultTimeout,
	OutputRealtimeLogs,
	PollInterval,
	JoinTimeout,
	TerminateGrace,
	LiveEnabled,
	LiveAddr,
	LiveAllowAllOrigins,
	LiveRunHistory,
	HealthzAddr,
}

// ExecFlags are the flags of the exec subcommand.
var ExecFlags = []cli.Flag{
	PollInterval,
	JoinTimeout,
	TerminateGrace,
}

var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return opflags.CheckRequiredXor(ctx)
}
