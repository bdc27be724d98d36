package execution

import (
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// aggregator accumulates the lines the drainer hands it and, once draining
// is over, settles the process and assembles the Result.
type aggregator struct {
	stdout []Line
	stderr []Line
}

func (a *aggregator) add(line Line) {
	if line.Stream == Stderr {
		a.stderr = append(a.stderr, line)
		return
	}
	a.stdout = append(a.stdout, line)
}

// finish joins the readers (bounded by joinTimeout), reaps the process and
// releases the handle. Whatever was accumulated goes into the result even
// when the join times out.
func (a *aggregator) finish(h *RunHandle, joinTimeout time.Duration, lgr log.Logger, res *Result) {
	if err := h.JoinReaders(joinTimeout); err != nil {
		lgr.Warn("Stream readers did not finish in time, continuing with partial output",
			"pid", h.Pid(), "timeout", joinTimeout, "err", err)
		res.JoinTimedOut = true
	}

	code, err := h.Wait()
	if err != nil {
		lgr.Warn("Error waiting for process", "pid", h.Pid(), "err", err)
	}
	res.ExitCode = code

	// Wait released the pipes, so the readers are finishing or already gone.
	h.Release()

	res.Stdout = a.stdout
	res.Stderr = a.stderr
}
