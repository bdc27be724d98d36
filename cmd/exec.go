package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"

	"github.com/ethereum-optimism/infra/op-testrun/execution"
	"github.com/ethereum-optimism/infra/op-testrun/exitcodes"
	"github.com/ethereum-optimism/infra/op-testrun/flags"
)

var logLinesFlag = &cli.BoolFlag{
	Name:  "log-lines",
	Usage: "Send child output through the structured logger instead of copying it verbatim",
}

var execFlags = append([]cli.Flag{logLinesFlag}, flags.ExecFlags...)

// execCommand runs one command and exits with its exit code.
func execCommand(ctx *cli.Context) error {
	lgr := setupLogger(ctx)
	if ctx.NArg() == 0 {
		return cli.Exit("exec needs a command to run", exitcodes.RuntimeErr)
	}

	runCtx, cancel := context.WithCancel(ctx.Context)
	defer cancel()
	runCtx = ctxinterrupt.WithCancelOnInterrupt(runCtx)

	executor := execution.NewExecutor(lgr)
	executor.PollInterval = ctx.Duration(flags.PollInterval.Name)
	executor.JoinTimeout = ctx.Duration(flags.JoinTimeout.Name)
	executor.TerminateGrace = ctx.Duration(flags.TerminateGrace.Name)

	var sink execution.EventSink = &execution.WriterSink{Stdout: os.Stdout, Stderr: os.Stderr}
	if ctx.Bool(logLinesFlag.Name) {
		sink = execution.LogSink{Log: lgr}
	}

	res, err := executor.Execute(runCtx, execution.NewCommandSpec(ctx.Args().Slice()), sink)
	if err != nil {
		return cli.Exit(err.Error(), exitcodes.RuntimeErr)
	}
	lgr.Debug("Command finished", "exit_code", res.ExitCode, "state", res.State, "duration", res.Duration)

	switch {
	case res.Cancelled:
		return cli.Exit("command cancelled", exitcodes.RuntimeErr)
	case res.ExitCode < 0:
		// killed by a signal we did not send
		return cli.Exit("command terminated by signal", exitcodes.RuntimeErr)
	case res.ExitCode != 0:
		return cli.Exit("", res.ExitCode)
	}
	return nil
}
