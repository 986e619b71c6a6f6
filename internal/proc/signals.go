package proc

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseSignal resolves a signal given as a number ("15") or a conventional
// name ("TERM", "SIGTERM") to its numeric value on this platform.
func ParseSignal(s string) (int, error) {
	in := strings.ToUpper(strings.TrimSpace(s))
	if in == "" {
		return 0, fmt.Errorf("empty signal")
	}
	if n, err := strconv.Atoi(in); err == nil {
		if n <= 0 || n >= 64 {
			return 0, fmt.Errorf("signal number %d out of range", n)
		}
		return n, nil
	}
	name := strings.TrimPrefix(in, "SIG")
	if num, ok := signalTable[name]; ok {
		return num, nil
	}
	return 0, fmt.Errorf("unknown signal %q", s)
}

// SignalName returns the conventional SIG-prefixed name for a signal number
// known on this platform, falling back to the decimal form.
func SignalName(signum int) string {
	for name, num := range signalTable {
		if num == signum {
			return "SIG" + name
		}
	}
	return strconv.Itoa(signum)
}
