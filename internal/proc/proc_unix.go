//go:build !windows

package proc

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

func sendSignal(pid int, signum int, group bool) error {
	target := pid
	if group {
		target = -pid
	}
	return syscall.Kill(target, syscall.Signal(signum))
}

func alive(pid int) bool {
	err := syscall.Kill(pid, 0)
	// nil: the process exists and is signalable. EPERM: it exists but
	// belongs to another user. Anything else (ESRCH) means it is gone.
	return err == nil || err == syscall.EPERM
}

func abort() {
	fmt.Fprintln(os.Stderr, "warden: aborting")
	_ = syscall.Kill(os.Getpid(), syscall.SIGABRT)
}

func groupAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
