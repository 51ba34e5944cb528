//go:build unix

package procdriver

import (
	"log/slog"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcessGroup places the subprocess in its own process group so the
// whole tree can be signalled at once.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killTree terminates the subprocess and everything it spawned by
// signalling the process group.
func killTree(cmd *exec.Cmd, logger *slog.Logger) {
	if cmd.Process == nil {
		return
	}
	pgid, err := unix.Getpgid(cmd.Process.Pid)
	if err != nil {
		logger.Warn("process group lookup failed, killing leader only", "pid", cmd.Process.Pid, "error", err)
		cmd.Process.Kill()
		return
	}
	if err := unix.Kill(-pgid, unix.SIGKILL); err != nil {
		logger.Warn("process group kill failed", "pgid", pgid, "error", err)
		cmd.Process.Kill()
	}
}
