//go:build windows
// +build windows

package daemon

import (
	"os/exec"
	"syscall"
)

// detach forces a new process group, the same flag the teacher's daemon
// connector uses when forking turbod on Windows.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}
