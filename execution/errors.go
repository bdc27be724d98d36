package execution

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyArgv is returned (wrapped in a LaunchError) when a spec has no command.
	ErrEmptyArgv = errors.New("empty argv")

	// ErrJoinTimeout is logged when a stream reader fails to finish within the join bound.
	ErrJoinTimeout = errors.New("stream reader join timed out")
)

// LaunchError means the child could not be started at all. It is the only
// failure Execute returns; no Result accompanies it.
type LaunchError struct {
	Argv []string
	Dir  string
	Err  error
}

func (e *LaunchError) Error() string {
	name := "<none>"
	if len(e.Argv) > 0 {
		name = e.Argv[0]
	}
	if e.Dir != "" {
		return fmt.Sprintf("launch %s (dir %s): %v", name, e.Dir, e.Err)
	}
	return fmt.Sprintf("launch %s: %v", name, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// IsLaunchError checks if the error is or wraps a LaunchError.
func IsLaunchError(err error) bool {
	var launchErr *LaunchError
	return err != nil && errors.As(err, &launchErr)
}

// StreamReadError is an I/O failure while reading one of the child's pipes.
// It never escapes a reader; its text becomes a synthetic line in that stream.
type StreamReadError struct {
	Stream Stream
	Err    error
}

func (e *StreamReadError) Error() string {
	return fmt.Sprintf("[%s read error: %v]", e.Stream, e.Err)
}

func (e *StreamReadError) Unwrap() error {
	return e.Err
}

// IsStreamReadLine reports whether text is a synthetic read-error line.
func IsStreamReadLine(text string) bool {
	return strings.HasPrefix(text, "[stdout read error: ") || strings.HasPrefix(text, "[stderr read error: ")
}

// SinkDeliveryError wraps a failure to forward a line to the live sink.
type SinkDeliveryError struct {
	Line Line
	Err  error
}

func (e *SinkDeliveryError) Error() string {
	return fmt.Sprintf("deliver %s line %d: %v", e.Line.Stream, e.Line.Index, e.Err)
}

func (e *SinkDeliveryError) Unwrap() error {
	return e.Err
}
