package execution

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ethereum/go-ethereum/log"
)

// EventSink receives every line of an execution as it is read. Emit is called
// from the draining goroutine only. A returned error or panic never affects
// the execution; it is counted and logged.
type EventSink interface {
	Emit(line Line) error
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(Line) error

func (f SinkFunc) Emit(line Line) error {
	return f(line)
}

// MultiSink forwards each line to every sink and joins their errors.
type MultiSink []EventSink

// NewMultiSink drops nil sinks. It returns nil when none are left.
func NewMultiSink(sinks ...EventSink) EventSink {
	var out MultiSink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

func (m MultiSink) Emit(line Line) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(line); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink echoes each line to a structured logger.
type LogSink struct {
	Log log.Logger
}

func (s LogSink) Emit(line Line) error {
	if line.Stream == Stderr {
		s.Log.Warn(line.Text, "stream", line.Stream)
		return nil
	}
	s.Log.Info(line.Text, "stream", line.Stream)
	return nil
}

// WriterSink copies stdout lines to Stdout and stderr lines to Stderr, one
// line per write.
type WriterSink struct {
	mu     sync.Mutex
	Stdout io.Writer
	Stderr io.Writer
}

func (s *WriterSink) Emit(line Line) error {
	w := s.Stdout
	if line.Stream == Stderr {
		w = s.Stderr
	}
	if w == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(w, line.Text+"\n")
	return err
}

// guardedSink shields the drainer from a live sink. Failures are logged once
// per burst; the number of failures suppressed in a burst is logged when the
// sink recovers or the execution ends.
type guardedSink struct {
	sink EventSink
	log  log.Logger

	failures   int
	inBurst    bool
	suppressed int
}

func newGuardedSink(sink EventSink, lgr log.Logger) *guardedSink {
	if sink == nil {
		return nil
	}
	return &guardedSink{sink: sink, log: lgr}
}

func (g *guardedSink) emit(line Line) {
	if g == nil {
		return
	}
	err := g.deliver(line)
	if err == nil {
		if g.inBurst {
			g.endBurst()
		}
		return
	}
	g.failures++
	if g.inBurst {
		g.suppressed++
		return
	}
	g.inBurst = true
	g.log.Warn("Live sink delivery failed", "err", &SinkDeliveryError{Line: line, Err: err})
}

func (g *guardedSink) deliver(line Line) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return g.sink.Emit(line)
}

func (g *guardedSink) endBurst() {
	if g.suppressed > 0 {
		g.log.Warn("Live sink failures suppressed", "count", g.suppressed)
	}
	g.inBurst = false
	g.suppressed = 0
}

// close flushes an open burst and returns the total failure count.
func (g *guardedSink) close() int {
	if g == nil {
		return 0
	}
	if g.inBurst {
		g.endBurst()
	}
	return g.failures
}
