// Package admin implements the daemon's administrative control surface:
// crash injection for failure testing, signal delivery to managed processes
// addressed by pid, and read access to the replication timelines. Every
// collaborator is injected so the package carries no state of its own and
// can be exercised against fakes.
package admin

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/wardenhq/warden/internal/identity"
	"github.com/wardenhq/warden/internal/journal"
	"github.com/wardenhq/warden/internal/registry"
)

// ErrInsufficientPrivilege is returned when a caller without administrator
// rights invokes a privileged operation. It is the only hard failure the
// package produces; everything else is reported as a soft outcome.
var ErrInsufficientPrivilege = errors.New("insufficient privilege")

// Authorizer decides whether an identity may use the privileged operations.
type Authorizer interface {
	IsAdministrator(id identity.Identity) bool
}

// Registry is the live-process registry the resolver consults. The registry
// owns all synchronization; lookups are unsynchronized point-in-time reads
// and the returned entries must not be held across calls.
type Registry interface {
	SupervisorPID() int
	FindWorkerByPID(pid int) (registry.Entry, bool)
	FindAuxiliaryByPID(pid int) (registry.Entry, bool)
}

// Signaler delivers an OS signal to a process, or to its whole process group
// when group is set and the platform supports it.
type Signaler interface {
	Signal(pid, signum int, group bool) error
}

// Crasher tears down the daemon and everything it supervises. Production
// implementations must not return from Panic.
type Crasher interface {
	Panic(reason string)
}

// TimelineSource exposes replication progress. Implementations encode "not
// yet established" as the zero TimelineID.
type TimelineSource interface {
	Current() journal.TimelineID
	LastReplayed() journal.TimelineID
	LastReceived() journal.TimelineID
}

// Recorder appends administrative events to the journal. Appends from this
// package are best effort: a recording failure never blocks the operation
// that triggered it.
type Recorder interface {
	Append(kind journal.RecordKind, worker string, pid int, detail string) (journal.Record, error)
}

// Config wires a Service to its collaborators.
type Config struct {
	Authorizer Authorizer
	Registry   Registry
	Signaler   Signaler
	Crasher    Crasher
	Timelines  TimelineSource
	Recorder   Recorder     // optional
	Logger     *slog.Logger // optional, defaults to slog.Default()
}

// Service is the administrative control surface. It holds no mutable state;
// concurrent calls are safe because every read goes to a collaborator that
// synchronizes itself.
type Service struct {
	auth      Authorizer
	registry  Registry
	signaler  Signaler
	crasher   Crasher
	timelines TimelineSource
	recorder  Recorder
	logger    *slog.Logger
}

// New validates cfg and returns a ready Service.
func New(cfg Config) (*Service, error) {
	if cfg.Authorizer == nil {
		return nil, errors.New("admin: authorizer is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("admin: registry is required")
	}
	if cfg.Signaler == nil {
		return nil, errors.New("admin: signaler is required")
	}
	if cfg.Crasher == nil {
		return nil, errors.New("admin: crasher is required")
	}
	if cfg.Timelines == nil {
		return nil, errors.New("admin: timeline source is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		auth:      cfg.Authorizer,
		registry:  cfg.Registry,
		signaler:  cfg.Signaler,
		crasher:   cfg.Crasher,
		timelines: cfg.Timelines,
		recorder:  cfg.Recorder,
		logger:    logger,
	}, nil
}

// RequireAdministrator runs the privilege gate shared by every privileged
// operation, here and in the daemon layer. Rejection carries the operation
// name and the reminder that these calls exist for testing and diagnostics.
func RequireAdministrator(auth Authorizer, id identity.Identity, op string) error {
	if auth.IsAdministrator(id) {
		return nil
	}
	return fmt.Errorf("%s: %w (operation is restricted to administrators for testing and diagnostic use)", op, ErrInsufficientPrivilege)
}

// requireAdmin must be the first thing every privileged operation does.
func (s *Service) requireAdmin(id identity.Identity, op string) error {
	return RequireAdministrator(s.auth, id, op)
}

// record journals an administrative event without letting a journal problem
// disturb the operation. Standby journals refuse appends; that is expected
// and not worth a log line.
func (s *Service) record(kind journal.RecordKind, worker string, pid int, detail string) {
	if s.recorder == nil {
		return
	}
	if _, err := s.recorder.Append(kind, worker, pid, detail); err != nil && !errors.Is(err, journal.ErrStandby) {
		s.logger.Warn("journal append failed", "kind", string(kind), "error", err)
	}
}
