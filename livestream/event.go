package livestream

import (
	"encoding/json"

	"github.com/ethereum-optimism/infra/op-testrun/execution"
)

// Event types pushed to live viewers.
const (
	TypeStdout            = "stdout"
	TypeStderr            = "stderr"
	TypeInfo              = "info"
	TypeStatus            = "status"
	TypeTerminalClear     = "terminal_clear"
	TypeExecutionComplete = "execution_complete"
)

// Client request types.
const (
	RequestStartExecution = "start_execution"
	RequestClearTerminal  = "clear_terminal"
)

const (
	ConnectedMessage = "Connected to terminal stream"
	ExecutionStarted = "=== Test execution started ==="
)

// Event is one message to a viewer: {"type": ..., "data": ...}. Data is a
// string for line, info and clear events, a StatusData for status and a run
// summary for execution_complete.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// LineEvent wraps a child output line.
func LineEvent(line execution.Line) Event {
	ev := line.Event()
	return Event{Type: ev.Type, Data: ev.Data}
}

func InfoEvent(msg string) Event {
	return Event{Type: TypeInfo, Data: msg}
}

// StatusData is the payload of a status event.
type StatusData struct {
	Msg string `json:"msg"`
}

func StatusEvent(msg string) Event {
	return Event{Type: TypeStatus, Data: StatusData{Msg: msg}}
}

func ClearEvent() Event {
	return Event{Type: TypeTerminalClear, Data: ""}
}

func CompleteEvent(summary *RunSummary) Event {
	return Event{Type: TypeExecutionComplete, Data: summary}
}

func (e Event) encode() ([]byte, error) {
	return json.Marshal(e)
}

// request is a message sent by a viewer.
type request struct {
	Type string `json:"type"`
}
