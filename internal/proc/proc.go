package proc

import (
	"os/exec"

	"github.com/shirou/gopsutil/v4/process"
)

// Signal delivers the numbered signal to the process identified by pid. When
// group is true the signal is addressed to the whole process group led by
// pid on platforms that support it; platforms without process groups fall
// back to the single process. The raw OS error is returned unwrapped so
// callers can inspect the errno.
func Signal(pid int, signum int, group bool) error {
	return sendSignal(pid, signum, group)
}

// Alive reports whether a process with the given pid currently exists. A
// process owned by another user counts as alive even though we may not be
// permitted to signal it.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return alive(pid)
}

// Abort terminates the calling process with the most severe mechanism the
// platform offers, dumping runtime state where possible. It never returns.
func Abort() {
	abort()
	// The signal is delivered asynchronously; block until it lands.
	select {}
}

// GroupAttr configures cmd so the child leads its own process group where
// the platform supports it.
func GroupAttr(cmd *exec.Cmd) {
	groupAttr(cmd)
}

// Stat is a point-in-time sample of a process's resource usage.
type Stat struct {
	CPUPercent float64
	RSSBytes   uint64
}

// ReadStat samples CPU and resident memory for the given pid. Fields that
// cannot be read on the platform are left zero.
func ReadStat(pid int) (Stat, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return Stat{}, err
	}
	var st Stat
	if cpu, err := p.CPUPercent(); err == nil {
		st.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		st.RSSBytes = mem.RSS
	}
	return st, nil
}
