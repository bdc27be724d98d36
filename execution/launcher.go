package execution

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Launcher starts a child process for a spec. It returns as soon as the
// process is running; it never waits for it.
type Launcher interface {
	Launch(spec CommandSpec) (*RunHandle, error)
}

// process is the part of an OS process a RunHandle needs. It exists so the
// handle can be driven by a fake in tests.
type process interface {
	Pid() int
	// Wait blocks until the process exits and reports its exit code; -1 means
	// the process was ended by a signal.
	Wait() (int, error)
	Terminate() error
	Kill() error
}

// RunHandle owns the OS process, both stream readers and both line queues of
// one execution. A handle is never reused.
type RunHandle struct {
	spec CommandSpec
	proc process

	stdout *LineQueue
	stderr *LineQueue

	readers     sync.WaitGroup
	readersDone chan struct{}

	exited   chan struct{}
	waitOnce sync.Once
	exitCode int
	waitErr  error

	terminateOnce sync.Once
}

func newRunHandle(spec CommandSpec, proc process, stdout, stderr io.Reader) *RunHandle {
	h := &RunHandle{
		spec:        spec,
		proc:        proc,
		stdout:      NewLineQueue(),
		stderr:      NewLineQueue(),
		readersDone: make(chan struct{}),
		exited:      make(chan struct{}),
	}
	NewStreamReader(Stdout, stdout, h.stdout).Start(&h.readers)
	NewStreamReader(Stderr, stderr, h.stderr).Start(&h.readers)
	go func() {
		h.readers.Wait()
		close(h.readersDone)
	}()
	return h
}

// Spec returns the spec the handle was launched with.
func (h *RunHandle) Spec() CommandSpec {
	return h.spec
}

// Pid returns the OS process id of the child.
func (h *RunHandle) Pid() int {
	return h.proc.Pid()
}

// Stdout returns the queue fed by the stdout reader.
func (h *RunHandle) Stdout() *LineQueue {
	return h.stdout
}

// Stderr returns the queue fed by the stderr reader.
func (h *RunHandle) Stderr() *LineQueue {
	return h.stderr
}

// JoinReaders waits up to timeout for both stream readers to finish.
func (h *RunHandle) JoinReaders(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-h.readersDone:
		return nil
	case <-timer.C:
		return ErrJoinTimeout
	}
}

// Wait reaps the process and returns its exit code. It is safe to call more
// than once. Wait releases the pipes, so readers that are still running after
// it returns finish promptly.
func (h *RunHandle) Wait() (int, error) {
	h.waitOnce.Do(func() {
		h.exitCode, h.waitErr = h.proc.Wait()
		close(h.exited)
	})
	<-h.exited
	return h.exitCode, h.waitErr
}

// Exited is closed once Wait has reaped the process.
func (h *RunHandle) Exited() <-chan struct{} {
	return h.exited
}

// Release waits for both readers to exit. It must only be called after Wait.
func (h *RunHandle) Release() {
	<-h.readersDone
}

// Terminate asks the child to stop and kills it if it is still running after
// grace. It returns immediately; the escalation runs in the background and
// ends as soon as the process has been reaped.
func (h *RunHandle) Terminate(grace time.Duration) error {
	var err error
	h.terminateOnce.Do(func() {
		err = h.proc.Terminate()
		go func() {
			timer := time.NewTimer(grace)
			defer timer.Stop()
			select {
			case <-h.exited:
			case <-timer.C:
				_ = h.proc.Kill()
			}
		}()
	})
	return err
}

// ExecLauncher launches real OS processes with os/exec.
type ExecLauncher struct{}

var _ Launcher = ExecLauncher{}

// Launch starts spec.Argv with the merged environment and working directory.
// Stdin is the null device. Any failure before the process is running is
// returned as a *LaunchError.
func (ExecLauncher) Launch(spec CommandSpec) (*RunHandle, error) {
	spec = spec.clone()
	fail := func(err error) (*RunHandle, error) {
		return nil, &LaunchError{Argv: spec.Argv, Dir: spec.Dir, Err: err}
	}

	if err := spec.Validate(); err != nil {
		return fail(err)
	}
	if spec.Dir != "" {
		info, err := os.Stat(spec.Dir)
		if err != nil {
			return fail(fmt.Errorf("working directory: %w", err))
		}
		if !info.IsDir() {
			return fail(fmt.Errorf("working directory %s is not a directory", spec.Dir))
		}
	}

	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	if cmd.Err != nil {
		return fail(cmd.Err)
	}
	cmd.Dir = spec.Dir
	cmd.Env = spec.Environ()
	setProcAttr(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fail(fmt.Errorf("stdout pipe: %w", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fail(fmt.Errorf("stderr pipe: %w", err))
	}
	if err := cmd.Start(); err != nil {
		return fail(err)
	}

	return newRunHandle(spec, &execProcess{cmd: cmd}, stdout, stderr), nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	if p.cmd.ProcessState == nil {
		return -1, err
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return p.cmd.ProcessState.ExitCode(), err
	}
	return p.cmd.ProcessState.ExitCode(), nil
}

func (p *execProcess) Terminate() error {
	return terminateProcess(p.cmd.Process)
}

func (p *execProcess) Kill() error {
	return killProcess(p.cmd.Process)
}
