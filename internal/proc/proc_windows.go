//go:build windows

package proc

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/shirou/gopsutil/v4/process"
)

// Windows has no process groups in the POSIX sense, so group delivery falls
// back to the single process, and only termination-style signals can be
// emulated.
func sendSignal(pid int, signum int, _ bool) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	switch syscall.Signal(signum) {
	case syscall.SIGKILL, syscall.SIGTERM, syscall.SIGQUIT:
		return p.Kill()
	case syscall.SIGINT:
		return p.Signal(os.Interrupt)
	default:
		return fmt.Errorf("signal %d is not supported on windows", signum)
	}
}

func alive(pid int) bool {
	// os.FindProcess always succeeds on Windows, so ask gopsutil, which
	// uses OpenProcess under the hood and handles stale pids correctly.
	exists, err := process.PidExists(int32(pid))
	return err == nil && exists
}

func abort() {
	fmt.Fprintln(os.Stderr, "warden: aborting")
	// Match the C runtime's abort() exit status.
	os.Exit(3)
}

func groupAttr(_ *exec.Cmd) {}
