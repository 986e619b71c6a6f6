package admin

import (
	"fmt"

	"github.com/wardenhq/warden/internal/registry"
)

// Target classifies what a pid resolved to.
type Target int

const (
	// TargetNotFound means the pid matched nothing we manage. It is an
	// expected outcome, not an error: the process may have exited between
	// being listed and being targeted.
	TargetNotFound Target = iota
	// TargetSupervisor is the daemon itself. The supervisor is never
	// tracked in the registry but is still a legitimate signal target.
	TargetSupervisor
	// TargetWorker is a registered worker process.
	TargetWorker
	// TargetAuxiliary is a registered auxiliary process.
	TargetAuxiliary
)

func (t Target) String() string {
	switch t {
	case TargetSupervisor:
		return "supervisor"
	case TargetWorker:
		return "worker"
	case TargetAuxiliary:
		return "auxiliary"
	default:
		return "not found"
	}
}

// Resolution is the result of mapping an untrusted pid onto the processes
// the daemon manages. Entry is populated for workers and auxiliaries only,
// and reflects the registry at the instant of the lookup.
type Resolution struct {
	Target Target
	PID    int
	Entry  registry.Entry
}

func (r Resolution) String() string {
	if r.Target == TargetWorker || r.Target == TargetAuxiliary {
		return fmt.Sprintf("%s %q (pid %d)", r.Target, r.Entry.Name, r.PID)
	}
	return fmt.Sprintf("%s (pid %d)", r.Target, r.PID)
}

// Resolve maps pid to a managed process. The supervisor's own pid short
// circuits the registry; otherwise the worker table is consulted before the
// auxiliary table. Resolve performs no side effects and holds nothing: the
// result is a snapshot that may be stale by the time it is used.
func (s *Service) Resolve(pid int) Resolution {
	if pid == s.registry.SupervisorPID() {
		return Resolution{Target: TargetSupervisor, PID: pid}
	}
	if entry, ok := s.registry.FindWorkerByPID(pid); ok {
		return Resolution{Target: TargetWorker, PID: pid, Entry: entry}
	}
	if entry, ok := s.registry.FindAuxiliaryByPID(pid); ok {
		return Resolution{Target: TargetAuxiliary, PID: pid, Entry: entry}
	}
	return Resolution{Target: TargetNotFound, PID: pid}
}
