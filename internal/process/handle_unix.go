//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// gracefulSignal sends SIGTERM, the POSIX graceful-termination signal.
func gracefulSignal(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
}
