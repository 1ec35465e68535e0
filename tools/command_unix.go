//go:build unix

package tools

import (
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// setProcessGroup starts the command in a new process group so terminal
// signals aimed at quill do not reach it and the whole tree can be killed.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminateGroup sends SIGTERM to the command's process group and escalates
// to SIGKILL if it has not exited within a second.
func terminateGroup(cmd *exec.Cmd, done <-chan error) {
	if cmd.Process == nil {
		return
	}
	pgid := -cmd.Process.Pid
	_ = unix.Kill(pgid, unix.SIGTERM)
	select {
	case <-done:
		return
	case <-time.After(time.Second):
	}
	_ = unix.Kill(pgid, unix.SIGKILL)
	<-done
}
