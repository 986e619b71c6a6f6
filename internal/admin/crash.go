package admin

import (
	"errors"

	"github.com/wardenhq/warden/internal/identity"
	"github.com/wardenhq/warden/internal/journal"
	"github.com/wardenhq/warden/internal/metrics"
)

// ErrFatalInjected is the panic value raised by InduceFatal. The serving
// layer recovers it and severs exactly the session that asked to die,
// leaving sibling sessions and the daemon untouched.
var ErrFatalInjected = errors.New("fatal termination injected")

// InducePanic tears down the daemon and every process it supervises, the
// way an unrecoverable internal error would. The call returns only when the
// privilege gate rejects the caller; on the success path the crasher aborts
// the process and control never comes back.
func (s *Service) InducePanic(id identity.Identity) error {
	if err := s.requireAdmin(id, "induce panic"); err != nil {
		return err
	}
	s.record(journal.RecordCrash, "", 0, "panic injection requested")
	metrics.AddCrashInjection(metrics.CrashModePanic)
	s.logger.Error("panic injection requested, aborting daemon and all managed processes")
	s.crasher.Panic("administrator requested panic")
	return nil
}

// InduceFatal terminates only the calling session: it panics with
// ErrFatalInjected after passing the privilege gate, and the session
// boundary translates that into an aborted connection with any in-flight
// work rolled back. Like InducePanic it returns normally only on gate
// rejection.
func (s *Service) InduceFatal(id identity.Identity) error {
	if err := s.requireAdmin(id, "induce fatal"); err != nil {
		return err
	}
	s.record(journal.RecordFatal, "", 0, "fatal injection requested")
	metrics.AddCrashInjection(metrics.CrashModeFatal)
	s.logger.Warn("fatal injection requested, terminating calling session")
	panic(ErrFatalInjected)
}
