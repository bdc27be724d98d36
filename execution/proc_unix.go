//go:build !windows

package execution

import (
	"os"
	"os/exec"
	"syscall"
)

// setProcAttr puts the child in its own process group so that termination
// also reaches the workers it spawns.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminateProcess(p *os.Process) error {
	return signalGroup(p, syscall.SIGTERM)
}

func killProcess(p *os.Process) error {
	return signalGroup(p, syscall.SIGKILL)
}

func signalGroup(p *os.Process, sig syscall.Signal) error {
	if err := syscall.Kill(-p.Pid, sig); err != nil {
		// The group may already be gone; fall back to the leader alone.
		return p.Signal(sig)
	}
	return nil
}
