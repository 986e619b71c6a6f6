// Package supervisor runs the daemon's managed processes: it spawns each
// configured worker in its own process group, restarts crashed workers with
// jittered exponential backoff, and keeps the process registry and journal
// consistent with what is actually running.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"syscall"
	"time"

	"github.com/wardenhq/warden/internal/journal"
	"github.com/wardenhq/warden/internal/proc"
	"github.com/wardenhq/warden/internal/registry"
)

const defaultGrace = 2 * time.Second

// Recorder appends lifecycle records to the journal.
type Recorder interface {
	Append(kind journal.RecordKind, worker string, pid int, detail string) (journal.Record, error)
}

// Config wires a Supervisor to its collaborators.
type Config struct {
	Registry *registry.Registry
	Journal  Recorder // optional
	Logger   *slog.Logger
	Workers  []WorkerSpec
	// Grace is how long a stopping worker gets between SIGTERM and SIGKILL.
	Grace time.Duration
}

// Supervisor owns the full set of managed workers. Start may be deferred:
// a standby daemon constructs its Supervisor at boot but only starts the
// workers once it has been promoted.
type Supervisor struct {
	registry *registry.Registry
	journal  Recorder
	logger   *slog.Logger
	specs    []WorkerSpec
	grace    time.Duration
	events   chan Event

	launcher launcher
	jitter   func(time.Duration) time.Duration

	mu      sync.Mutex
	workers []*worker
	started bool
}

// New validates cfg and returns a Supervisor that has not started anything.
func New(cfg Config) (*Supervisor, error) {
	if cfg.Registry == nil {
		return nil, errors.New("supervisor: registry is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	grace := cfg.Grace
	if grace <= 0 {
		grace = defaultGrace
	}
	return &Supervisor{
		registry: cfg.Registry,
		journal:  cfg.Journal,
		logger:   logger,
		specs:    cfg.Workers,
		grace:    grace,
		events:   make(chan Event, 128),
		launcher: execLauncher{logger: logger},
		jitter:   defaultJitter,
	}, nil
}

// Events exposes the lifecycle notifications of every worker. The channel is
// never closed; events are dropped rather than block worker loops.
func (s *Supervisor) Events() <-chan Event {
	return s.events
}

// Start launches every configured worker. Calling Start twice is a no-op.
func (s *Supervisor) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	for _, spec := range s.specs {
		w := newWorker(spec, s)
		s.workers = append(s.workers, w)
		w.start(ctx)
	}
	s.logger.Info("supervisor started", "workers", len(s.specs))
}

// Stop terminates every worker gracefully and waits for the loops to drain,
// or gives up when ctx expires.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	workers := append([]*worker(nil), s.workers...)
	s.mu.Unlock()

	for _, w := range workers {
		if w.cancel != nil {
			w.cancel()
		}
	}
	for _, w := range workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Panic kills every managed process group with SIGQUIT and then aborts the
// daemon itself. Nothing is cleaned up: the registry, journal and children
// are left exactly as a real crash would leave them. It never returns.
func (s *Supervisor) Panic(reason string) {
	s.logger.Error("daemon abort requested", "reason", reason)
	for _, pid := range s.registry.Pids() {
		_ = proc.Signal(pid, int(syscall.SIGQUIT), true)
	}
	proc.Abort()
}
