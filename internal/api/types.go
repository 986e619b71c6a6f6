// Package api defines the contract between the daemon and control clients.
package api

import (
	stdcontext "context"
	"errors"
	"time"

	"github.com/wardenhq/warden/internal/identity"
	"github.com/wardenhq/warden/internal/journal"
)

var (
	// ErrUnauthorized is returned when a request presents no valid bearer
	// token.
	ErrUnauthorized = errors.New("invalid or missing bearer token")
	// ErrUnknownSignal is returned when a signal name or number cannot be
	// resolved on this platform.
	ErrUnknownSignal = errors.New("unknown signal")
	// ErrInvalidPID is returned when a pid argument is not a positive
	// integer.
	ErrInvalidPID = errors.New("invalid pid")
	// ErrInvalidArgument is returned for malformed query parameters.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrRateLimited is returned when a caller exceeds the mutation budget.
	ErrRateLimited = errors.New("rate limited")
)

// WorkerStatus describes one managed process at the time of the report.
type WorkerStatus struct {
	Name       string    `json:"name"`
	Role       string    `json:"role"`
	PID        int       `json:"pid"`
	StartedAt  time.Time `json:"started_at"`
	Restarts   int       `json:"restarts"`
	Alive      bool      `json:"alive"`
	CPUPercent float64   `json:"cpu_percent,omitempty"`
	RSSBytes   uint64    `json:"rss_bytes,omitempty"`
}

// TimelineReport carries the three replication positions. A nil field means
// the position has not been established on this daemon.
type TimelineReport struct {
	Current      *journal.TimelineID `json:"current"`
	LastReplayed *journal.TimelineID `json:"last_replayed"`
	LastReceived *journal.TimelineID `json:"last_received"`
}

// StatusReport aggregates daemon-wide state for status consumers.
type StatusReport struct {
	Daemon        string         `json:"daemon"`
	Version       string         `json:"version"`
	Mode          string         `json:"mode"`
	SupervisorPID int            `json:"supervisor_pid"`
	StartedAt     time.Time      `json:"started_at"`
	GeneratedAt   time.Time      `json:"generated_at"`
	Workers       []WorkerStatus `json:"workers"`
	Timelines     TimelineReport `json:"timelines"`
}

// SignalResult reports the outcome of one delivery attempt. Delivered false
// with a diagnostic is a soft miss, not an error.
type SignalResult struct {
	PID        int    `json:"pid"`
	Signal     int    `json:"signal"`
	Delivered  bool   `json:"delivered"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

// PromoteResult reports the timeline a standby switched to.
type PromoteResult struct {
	Timeline   journal.TimelineID `json:"timeline"`
	PromotedAt time.Time          `json:"promoted_at"`
}

// JournalPage is one page of durable journal records. Next is the cursor to
// pass as the subsequent after argument; it equals the request cursor when no
// records were returned.
type JournalPage struct {
	Records []journal.Record `json:"records"`
	Next    uint64           `json:"next"`
}

// Controller exposes the daemon operations required by control servers.
// Read operations are open to any authenticated caller; the privileged
// operations take the caller's identity and enforce the administrator gate
// before acting.
type Controller interface {
	Status(stdcontext.Context) (*StatusReport, error)
	Timelines(stdcontext.Context) (*TimelineReport, error)
	JournalRecords(ctx stdcontext.Context, after uint64, limit int) (*JournalPage, error)
	SignalProcess(ctx stdcontext.Context, id identity.Identity, pid, signum int) (*SignalResult, error)
	InducePanic(ctx stdcontext.Context, id identity.Identity) error
	InduceFatal(ctx stdcontext.Context, id identity.Identity) error
	Promote(ctx stdcontext.Context, id identity.Identity) (*PromoteResult, error)
}
