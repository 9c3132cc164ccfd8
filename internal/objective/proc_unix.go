//go:build unix

package objective

import (
	"os/exec"
	"syscall"
)

// setProcessGroup starts the command as a process group leader so that
// cancelling kills the whole tree, not only the direct child.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
