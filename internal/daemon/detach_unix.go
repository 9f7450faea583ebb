//go:build !windows
// +build !windows

package daemon

import (
	"os/exec"
	"syscall"
)

// detach sets the process group so pantryd survives its parent exiting,
// the same Setpgid technique internal/process uses for supervised children.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
