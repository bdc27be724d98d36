package execution

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProcess ignores Terminate and only exits when killed or released.
type fakeProcess struct {
	exit       chan int
	terminated atomic.Int32
	killed     atomic.Int32
	onExit     func()
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{exit: make(chan int, 1)}
}

func (f *fakeProcess) Pid() int { return 4242 }

func (f *fakeProcess) Wait() (int, error) {
	code := <-f.exit
	if f.onExit != nil {
		f.onExit()
	}
	return code, nil
}

func (f *fakeProcess) Terminate() error {
	f.terminated.Add(1)
	return nil
}

func (f *fakeProcess) Kill() error {
	if f.killed.Add(1) == 1 {
		f.exit <- -1
	}
	return nil
}

type launcherFunc func(CommandSpec) (*RunHandle, error)

func (f launcherFunc) Launch(spec CommandSpec) (*RunHandle, error) { return f(spec) }

// stuckHandle builds a handle whose pipes stay open until the process is reaped,
// like a child whose grandchild keeps the pipes after being signalled.
func stuckHandle(spec CommandSpec) (*RunHandle, *fakeProcess, *io.PipeWriter) {
	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	proc := newFakeProcess()
	proc.onExit = func() {
		_ = outW.Close()
		_ = errW.Close()
	}
	return newRunHandle(spec, proc, outR, errR), proc, outW
}

func TestRunHandleTerminateEscalates(t *testing.T) {
	h, proc, _ := stuckHandle(NewCommandSpec([]string{"fake"}))
	require.NoError(t, h.Terminate(50*time.Millisecond))
	require.NoError(t, h.Terminate(50*time.Millisecond), "second call is a no-op")

	code, err := h.Wait()
	require.NoError(t, err)
	require.Equal(t, -1, code)
	h.Release()

	assert.Equal(t, int32(1), proc.terminated.Load())
	assert.Equal(t, int32(1), proc.killed.Load())
}

func TestRunHandleJoinTimeout(t *testing.T) {
	h, proc, _ := stuckHandle(NewCommandSpec([]string{"fake"}))
	require.ErrorIs(t, h.JoinReaders(20*time.Millisecond), ErrJoinTimeout)

	proc.exit <- 0
	code, err := h.Wait()
	require.NoError(t, err)
	require.Equal(t, 0, code)
	h.Release()
	require.NoError(t, h.JoinReaders(time.Second))
}

func TestExecuteJoinTimeoutReturnsPartialResult(t *testing.T) {
	e := testExecutor()
	e.JoinTimeout = 100 * time.Millisecond
	e.TerminateGrace = 200 * time.Millisecond

	var proc *fakeProcess
	e.Launcher = launcherFunc(func(spec CommandSpec) (*RunHandle, error) {
		h, p, out := stuckHandle(spec)
		proc = p
		go func() { _, _ = out.Write([]byte("partial\n")) }()
		return h, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(300*time.Millisecond, cancel)

	res, err := e.Execute(ctx, NewCommandSpec([]string{"fake"}), nil)
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.True(t, res.JoinTimedOut)
	assert.Equal(t, -1, res.ExitCode)
	assert.Equal(t, []string{"partial"}, texts(res.Stdout))
	assert.Equal(t, int32(1), proc.killed.Load())
}
