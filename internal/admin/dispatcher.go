package admin

import (
	"fmt"

	"github.com/wardenhq/warden/internal/identity"
	"github.com/wardenhq/warden/internal/journal"
	"github.com/wardenhq/warden/internal/metrics"
)

// SignalOutcome reports one delivery attempt. When Delivered is false,
// Diagnostic holds the human-readable reason, naming the pid and the numeric
// detail where one exists. Outcomes are per call and never persisted.
type SignalOutcome struct {
	Delivered  bool   `json:"delivered"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

// SignalProcess resolves pid and delivers signum to its process group. The
// returned error is non-nil only when the privilege gate rejects the caller,
// and that happens before any lookup. Every other failure is soft: a false
// outcome with a diagnostic, so a caller sweeping a list of pids is never
// aborted by entries that went stale mid-sweep.
func (s *Service) SignalProcess(id identity.Identity, pid, signum int) (SignalOutcome, error) {
	if err := s.requireAdmin(id, "signal process"); err != nil {
		return SignalOutcome{}, err
	}
	return s.dispatch(s.Resolve(pid), signum), nil
}

// dispatch delivers signum according to an earlier resolution. Resolution
// and delivery are deliberately not atomic: the target can exit and its pid
// be reassigned between the two, and with monotonic pid allocation that
// window is accepted rather than papered over with locking no platform
// offers for foreign processes.
func (s *Service) dispatch(res Resolution, signum int) SignalOutcome {
	if res.Target == TargetNotFound {
		diag := fmt.Sprintf("PID %d is not a warden-managed process", res.PID)
		s.logger.Warn("signal target not found", "pid", res.PID, "signal", signum)
		metrics.AddSignalDelivery(metrics.OutcomeNotFound)
		return SignalOutcome{Diagnostic: diag}
	}

	// Group delivery so a worker's children go down with it. The signaler
	// falls back to the single process on platforms without groups.
	if err := s.signaler.Signal(res.PID, signum, true); err != nil {
		diag := fmt.Sprintf("could not send signal %d to process %d: %v", signum, res.PID, err)
		s.logger.Warn("signal delivery failed", "pid", res.PID, "signal", signum, "target", res.Target.String(), "error", err)
		metrics.AddSignalDelivery(metrics.OutcomeFailed)
		return SignalOutcome{Diagnostic: diag}
	}

	s.logger.Info("signal delivered", "pid", res.PID, "signal", signum, "target", res.Target.String())
	s.record(journal.RecordSignalled, res.Entry.Name, res.PID, fmt.Sprintf("signal %d to %s", signum, res.Target))
	metrics.AddSignalDelivery(metrics.OutcomeDelivered)
	return SignalOutcome{Delivered: true}
}
