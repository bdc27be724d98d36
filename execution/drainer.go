package execution

import (
	"context"
	"time"
)

// drainer consumes both line queues on the calling goroutine until both
// streams have ended or ctx is cancelled. Every real line is forwarded to the
// sink (when set) and to the aggregator, in per-stream FIFO order.
type drainer struct {
	stdout *LineQueue
	stderr *LineQueue
	sink   *guardedSink
	agg    *aggregator
	poll   time.Duration
}

// run returns true when it stopped because ctx was cancelled.
func (d *drainer) run(ctx context.Context) bool {
	var stdoutDone, stderrDone bool

	timer := time.NewTimer(d.poll)
	defer timer.Stop()

	for !stdoutDone || !stderrDone {
		if ctx.Err() != nil {
			return true
		}

		// One line from each unfinished stream per pass, stdout first.
		progressed := false
		if !stdoutDone && d.take(d.stdout, &stdoutDone) {
			progressed = true
		}
		if !stderrDone && d.take(d.stderr, &stderrDone) {
			progressed = true
		}
		if progressed {
			continue
		}

		var stdoutReady, stderrReady <-chan struct{}
		if !stdoutDone {
			stdoutReady = d.stdout.Ready()
		}
		if !stderrDone {
			stderrReady = d.stderr.Ready()
		}
		timer.Reset(d.poll)
		select {
		case <-ctx.Done():
		case <-stdoutReady:
		case <-stderrReady:
		case <-timer.C:
		}
		timer.Stop()
	}
	return false
}

// take pops at most one entry from q. It reports whether anything was popped.
func (d *drainer) take(q *LineQueue, done *bool) bool {
	line, eos, ok := q.TryPop()
	if !ok {
		return false
	}
	if eos {
		*done = true
		return true
	}
	if d.sink != nil {
		d.sink.emit(line)
	}
	d.agg.add(line)
	return true
}
