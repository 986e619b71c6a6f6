//go:build windows

package proc

import "syscall"

// signalTable is restricted to the signals the windows port of the runtime
// understands.
var signalTable = map[string]int{
	"HUP":  int(syscall.SIGHUP),
	"INT":  int(syscall.SIGINT),
	"QUIT": int(syscall.SIGQUIT),
	"ABRT": int(syscall.SIGABRT),
	"KILL": int(syscall.SIGKILL),
	"TERM": int(syscall.SIGTERM),
}
