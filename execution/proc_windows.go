//go:build windows

package execution

import (
	"os"
	"os/exec"
)

func setProcAttr(cmd *exec.Cmd) {}

// Windows has no SIGTERM; termination is immediate.
func terminateProcess(p *os.Process) error {
	return p.Kill()
}

func killProcess(p *os.Process) error {
	return p.Kill()
}
