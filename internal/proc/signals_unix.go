//go:build !windows

package proc

import "syscall"

// signalTable lists the signals operators may address by name. Numeric
// values come from the platform so architecture-specific numbering is
// handled by the toolchain.
var signalTable = map[string]int{
	"HUP":  int(syscall.SIGHUP),
	"INT":  int(syscall.SIGINT),
	"QUIT": int(syscall.SIGQUIT),
	"ABRT": int(syscall.SIGABRT),
	"KILL": int(syscall.SIGKILL),
	"USR1": int(syscall.SIGUSR1),
	"USR2": int(syscall.SIGUSR2),
	"TERM": int(syscall.SIGTERM),
	"CONT": int(syscall.SIGCONT),
	"STOP": int(syscall.SIGSTOP),
}
