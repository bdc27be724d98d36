package livestream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-testrun/execution"
	"github.com/ethereum-optimism/infra/op-testrun/types"
)

type wireEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (e wireEvent) text(t *testing.T) string {
	var s string
	require.NoError(t, json.Unmarshal(e.Data, &s))
	return s
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	s, err := NewServer(Config{
		Log:             log.NewLogger(log.DiscardHandler()),
		AllowAllOrigins: true,
	})
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Hub().Close()
		ts.Close()
	})
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev wireEvent
	require.NoError(t, json.Unmarshal(msg, &ev))
	return ev
}

func waitForClients(t *testing.T, h *Hub, n int) {
	require.Eventually(t, func() bool { return h.Clients() == n }, 5*time.Second, 10*time.Millisecond)
}

func TestConnectAndReceiveLines(t *testing.T) {
	s, ts := newTestServer(t)
	conn := dial(t, ts)

	ev := readEvent(t, conn)
	assert.Equal(t, TypeStatus, ev.Type)
	var status StatusData
	require.NoError(t, json.Unmarshal(ev.Data, &status))
	assert.Equal(t, ConnectedMessage, status.Msg)
	assert.JSONEq(t, `{"msg":"`+ConnectedMessage+`"}`, string(ev.Data))

	waitForClients(t, s.Hub(), 1)
	require.NoError(t, s.Hub().Emit(execution.Line{Stream: execution.Stdout, Text: "hello"}))
	require.NoError(t, s.Hub().Emit(execution.Line{Stream: execution.Stderr, Text: "oops"}))

	ev = readEvent(t, conn)
	assert.Equal(t, TypeStdout, ev.Type)
	assert.Equal(t, "hello", ev.text(t))
	ev = readEvent(t, conn)
	assert.Equal(t, TypeStderr, ev.Type)
	assert.Equal(t, "oops", ev.text(t))
}

func TestBroadcastReachesEveryClient(t *testing.T) {
	s, ts := newTestServer(t)
	a := dial(t, ts)
	b := dial(t, ts)
	readEvent(t, a)
	readEvent(t, b)
	waitForClients(t, s.Hub(), 2)

	require.NoError(t, s.Hub().Info("suite started"))
	for _, conn := range []*websocket.Conn{a, b} {
		ev := readEvent(t, conn)
		assert.Equal(t, TypeInfo, ev.Type)
		assert.Equal(t, "suite started", ev.text(t))
	}
}

func TestClientRequests(t *testing.T) {
	s, ts := newTestServer(t)
	var started atomic.Int32
	s.Hub().OnStartRequest(func() { started.Add(1) })

	conn := dial(t, ts)
	readEvent(t, conn)
	waitForClients(t, s.Hub(), 1)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": RequestClearTerminal}))
	ev := readEvent(t, conn)
	assert.Equal(t, TypeTerminalClear, ev.Type)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": RequestStartExecution}))
	ev = readEvent(t, conn)
	assert.Equal(t, TypeInfo, ev.Type)
	assert.Equal(t, ExecutionStarted, ev.text(t))
	require.Eventually(t, func() bool { return started.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	// unknown and malformed requests are ignored
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "bogus"}))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": RequestClearTerminal}))
	ev = readEvent(t, conn)
	assert.Equal(t, TypeTerminalClear, ev.Type)
}

func TestClientDisconnectUnregisters(t *testing.T) {
	s, ts := newTestServer(t)
	conn := dial(t, ts)
	readEvent(t, conn)
	waitForClients(t, s.Hub(), 1)

	require.NoError(t, conn.Close())
	waitForClients(t, s.Hub(), 0)
	require.NoError(t, s.Hub().Info("nobody listening"))
}

func TestClosedHubRejectsEmit(t *testing.T) {
	h := NewHub(log.NewLogger(log.DiscardHandler()))
	require.NoError(t, h.Emit(execution.Line{Text: "before"}))
	h.Close()
	h.Close()
	require.ErrorIs(t, h.Emit(execution.Line{Text: "after"}), ErrHubClosed)
}

func TestClientEnqueueNeverBlocks(t *testing.T) {
	c := &client{send: make(chan []byte, 1), done: make(chan struct{})}
	assert.True(t, c.enqueue([]byte("a")))
	assert.False(t, c.enqueue([]byte("b")))
	close(c.done)
	assert.True(t, c.enqueue([]byte("c")))
}

func TestSlowClientNeverBlocksEmit(t *testing.T) {
	s, err := NewServer(Config{
		Log:             log.NewLogger(log.DiscardHandler()),
		AllowAllOrigins: true,
		SendBuffer:      4,
	})
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Hub().Close()
		ts.Close()
	})

	// connected but never reads
	dial(t, ts)
	waitForClients(t, s.Hub(), 1)

	big := strings.Repeat("x", 64*1024)
	var worst time.Duration
	for i := 0; i < 400 && s.Hub().Clients() > 0; i++ {
		start := time.Now()
		require.NoError(t, s.Hub().Emit(execution.Line{Stream: execution.Stdout, Text: big, Index: i}))
		worst = max(worst, time.Since(start))
	}
	assert.Equal(t, 0, s.Hub().Clients(), "slow client should be dropped")
	assert.Less(t, worst, execution.DefaultPollInterval, "emit must not wait on a slow client")
}

func TestStopDoesNotWaitForWriter(t *testing.T) {
	s, ts := newTestServer(t)
	dial(t, ts)
	waitForClients(t, s.Hub(), 1)

	start := time.Now()
	s.Hub().Close()
	assert.Less(t, time.Since(start), execution.DefaultPollInterval)
	assert.Equal(t, 0, s.Hub().Clients())
}

func testRun(id string) *types.RunResult {
	run := &types.RunResult{RunID: id, StartedAt: time.Now()}
	run.Add(&types.SuiteResult{
		Metadata: types.SuiteMetadata{Name: "smoke"},
		Status:   types.TestStatusPass,
		Result: &execution.Result{
			Stdout: []execution.Line{{Text: "ok"}},
		},
	})
	run.Add(&types.SuiteResult{
		Metadata: types.SuiteMetadata{Name: "regression"},
		Status:   types.TestStatusFail,
		Result:   &execution.Result{ExitCode: 1},
	})
	return run
}

func TestNewRunSummary(t *testing.T) {
	sum := NewRunSummary(testRun("run-1"))
	assert.Equal(t, "run-1", sum.RunID)
	assert.Equal(t, types.TestStatusFail, sum.Status)
	assert.Equal(t, 1, sum.ExitCode)
	assert.Equal(t, 2, sum.Stats.Total)
	require.Len(t, sum.Suites, 2)
	assert.Equal(t, "smoke", sum.Suites[0].Name)
	assert.Equal(t, 1, sum.Suites[0].StdoutLines)
	assert.Equal(t, 1, sum.Suites[1].ExitCode)
	assert.Equal(t, "Test suite regression completed with some test failures", sum.Suites[1].Message)
}

func TestRunIndexEvictsOldest(t *testing.T) {
	idx, err := NewRunIndex(2)
	require.NoError(t, err)
	idx.Add(&RunSummary{RunID: "a"})
	idx.Add(&RunSummary{RunID: "b"})
	idx.Add(&RunSummary{RunID: "c"})

	_, ok := idx.Get("a")
	assert.False(t, ok)
	runs := idx.List()
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].RunID)
	assert.Equal(t, "b", runs[1].RunID)
}

func TestRunEndpoints(t *testing.T) {
	s, ts := newTestServer(t)
	conn := dial(t, ts)
	readEvent(t, conn)
	waitForClients(t, s.Hub(), 1)

	s.RecordRun(testRun("run-42"))

	ev := readEvent(t, conn)
	assert.Equal(t, TypeExecutionComplete, ev.Type)
	var pushed RunSummary
	require.NoError(t, json.Unmarshal(ev.Data, &pushed))
	assert.Equal(t, "run-42", pushed.RunID)

	resp, err := http.Get(ts.URL + "/runs")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var runs []RunSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "run-42", runs[0].RunID)

	resp2, err := http.Get(ts.URL + "/runs/run-42")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	var one RunSummary
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&one))
	assert.Equal(t, 2, one.Stats.Total)

	resp3, err := http.Get(ts.URL + "/runs/missing")
	require.NoError(t, err)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp3.StatusCode)
}

func TestServerStartAndShutdown(t *testing.T) {
	s, err := NewServer(Config{Log: log.NewLogger(log.DiscardHandler()), Addr: "127.0.0.1:0"})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()
	require.Eventually(t, func() bool { return s.Addr() != "127.0.0.1:0" }, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + s.Addr() + "/runs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Shutdown(context.Background()))
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	require.ErrorIs(t, s.Hub().Info("late"), ErrHubClosed)
}

func TestServerShutdownBeforeStart(t *testing.T) {
	s, err := NewServer(Config{Log: log.NewLogger(log.DiscardHandler()), Addr: "127.0.0.1:0"})
	require.NoError(t, err)
	require.NoError(t, s.Shutdown(context.Background()))
	require.NoError(t, s.Start())
}
