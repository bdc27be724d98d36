package execution

import (
	"fmt"
)

// Stream identifies which file descriptor of the child produced a line.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	switch s {
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return fmt.Sprintf("stream(%d)", int(s))
	}
}

// MarshalText lets streams be used as JSON values and map keys.
func (s Stream) MarshalText() ([]byte, error) {
	switch s {
	case Stdout, Stderr:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("unknown stream %d", int(s))
	}
}

// UnmarshalText parses "stdout" or "stderr".
func (s *Stream) UnmarshalText(b []byte) error {
	switch string(b) {
	case "stdout":
		*s = Stdout
	case "stderr":
		*s = Stderr
	default:
		return fmt.Errorf("unknown stream %q", string(b))
	}
	return nil
}

// Line is a single line of child output. Text never contains the line terminator.
// Index is the zero-based position of the line within its own stream.
type Line struct {
	Stream Stream `json:"stream"`
	Text   string `json:"text"`
	Index  int    `json:"index"`
}

// Event is the wire form of a line pushed to live viewers:
// {"type": "stdout"|"stderr", "data": "<line>"}.
type Event struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// Event converts the line into its live event.
func (l Line) Event() Event {
	return Event{Type: l.Stream.String(), Data: l.Text}
}
