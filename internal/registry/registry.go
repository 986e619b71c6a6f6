// Package registry tracks the worker and auxiliary processes currently
// managed by the daemon, keyed by pid. The registry owns all synchronization;
// lookups return copies that are only valid as a point-in-time observation,
// because the underlying process may exit at any moment.
package registry

import (
	"os"
	"sort"
	"sync"
	"time"
)

// Role tags the kind of managed process an entry tracks.
type Role string

const (
	RoleWorker    Role = "worker"
	RoleAuxiliary Role = "auxiliary"
)

// Entry is a point-in-time view of one managed process.
type Entry struct {
	Name      string
	PID       int
	Role      Role
	StartedAt time.Time
	Restarts  int
}

// Registry maintains the live worker and auxiliary tables for one daemon.
// The supervisor itself is deliberately not tracked here; callers resolve it
// through SupervisorPID.
type Registry struct {
	supervisorPID int

	mu          sync.RWMutex
	workers     map[int]Entry
	auxiliaries map[int]Entry
}

// New constructs a registry whose supervisor pid is the current process.
func New() *Registry {
	return NewWithSupervisorPID(os.Getpid())
}

// NewWithSupervisorPID constructs a registry with an explicit supervisor pid.
// Intended for tests that need a predictable well-known identifier.
func NewWithSupervisorPID(pid int) *Registry {
	return &Registry{
		supervisorPID: pid,
		workers:       make(map[int]Entry),
		auxiliaries:   make(map[int]Entry),
	}
}

// SupervisorPID returns the well-known identifier of the supervising daemon.
func (r *Registry) SupervisorPID() int {
	return r.supervisorPID
}

// Add records a managed process. An existing entry with the same pid is
// replaced; the operating system guarantees pid uniqueness among live
// processes, so a replacement means the old holder already exited.
func (r *Registry) Add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workers, e.PID)
	delete(r.auxiliaries, e.PID)
	switch e.Role {
	case RoleAuxiliary:
		r.auxiliaries[e.PID] = e
	default:
		e.Role = RoleWorker
		r.workers[e.PID] = e
	}
}

// Remove drops the entry for pid from whichever table holds it.
func (r *Registry) Remove(pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workers, pid)
	delete(r.auxiliaries, pid)
}

// FindWorkerByPID looks up a live worker. The boolean reports whether the
// pid was present at the instant of the call.
func (r *Registry) FindWorkerByPID(pid int) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.workers[pid]
	return e, ok
}

// FindAuxiliaryByPID looks up a live auxiliary process.
func (r *Registry) FindAuxiliaryByPID(pid int) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.auxiliaries[pid]
	return e, ok
}

// Snapshot returns every tracked entry ordered by role, name and pid.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	entries := make([]Entry, 0, len(r.workers)+len(r.auxiliaries))
	for _, e := range r.workers {
		entries = append(entries, e)
	}
	for _, e := range r.auxiliaries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Role != entries[j].Role {
			return entries[i].Role < entries[j].Role
		}
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].PID < entries[j].PID
	})
	return entries
}

// Pids returns the pids of every tracked process, workers first.
func (r *Registry) Pids() []int {
	entries := r.Snapshot()
	pids := make([]int, 0, len(entries))
	for _, e := range entries {
		pids = append(pids, e.PID)
	}
	return pids
}
