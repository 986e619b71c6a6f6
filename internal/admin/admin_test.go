package admin

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/wardenhq/warden/internal/identity"
	"github.com/wardenhq/warden/internal/journal"
	"github.com/wardenhq/warden/internal/registry"
)

var (
	adminID    = identity.Identity{Name: "root", Role: identity.RoleAdmin}
	observerID = identity.Identity{Name: "watcher", Role: identity.RoleObserver}
)

type fakeRegistry struct {
	supervisorPID int
	workers       map[int]registry.Entry
	auxiliaries   map[int]registry.Entry
	lookups       int
}

func (f *fakeRegistry) SupervisorPID() int { return f.supervisorPID }

func (f *fakeRegistry) FindWorkerByPID(pid int) (registry.Entry, bool) {
	f.lookups++
	entry, ok := f.workers[pid]
	return entry, ok
}

func (f *fakeRegistry) FindAuxiliaryByPID(pid int) (registry.Entry, bool) {
	f.lookups++
	entry, ok := f.auxiliaries[pid]
	return entry, ok
}

type signalCall struct {
	pid    int
	signum int
	group  bool
}

type fakeSignaler struct {
	calls []signalCall
	err   error
}

func (f *fakeSignaler) Signal(pid, signum int, group bool) error {
	f.calls = append(f.calls, signalCall{pid: pid, signum: signum, group: group})
	return f.err
}

type fakeCrasher struct {
	reasons []string
}

func (f *fakeCrasher) Panic(reason string) {
	f.reasons = append(f.reasons, reason)
}

type fakeSource struct {
	current  journal.TimelineID
	replayed journal.TimelineID
	received journal.TimelineID
}

func (f fakeSource) Current() journal.TimelineID      { return f.current }
func (f fakeSource) LastReplayed() journal.TimelineID { return f.replayed }
func (f fakeSource) LastReceived() journal.TimelineID { return f.received }

type fakeRecorder struct {
	records []journal.Record
	err     error
}

func (f *fakeRecorder) Append(kind journal.RecordKind, worker string, pid int, detail string) (journal.Record, error) {
	if f.err != nil {
		return journal.Record{}, f.err
	}
	rec := journal.Record{
		Seq:      uint64(len(f.records) + 1),
		Timeline: 1,
		Kind:     kind,
		Worker:   worker,
		PID:      pid,
		Detail:   detail,
	}
	f.records = append(f.records, rec)
	return rec, nil
}

// logCapture is a slog handler that keeps every record so tests can count
// emitted diagnostics.
type logCapture struct {
	mu      sync.Mutex
	records []slog.Record
}

func (c *logCapture) Enabled(context.Context, slog.Level) bool { return true }

func (c *logCapture) Handle(_ context.Context, r slog.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
	return nil
}

func (c *logCapture) WithAttrs([]slog.Attr) slog.Handler { return c }
func (c *logCapture) WithGroup(string) slog.Handler      { return c }

func (c *logCapture) warnings() []slog.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []slog.Record
	for _, r := range c.records {
		if r.Level == slog.LevelWarn {
			out = append(out, r)
		}
	}
	return out
}

type fixture struct {
	service  *Service
	registry *fakeRegistry
	signaler *fakeSignaler
	crasher  *fakeCrasher
	recorder *fakeRecorder
	source   fakeSource
	logs     *logCapture
}

const supervisorPID = 4000

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		registry: &fakeRegistry{
			supervisorPID: supervisorPID,
			workers: map[int]registry.Entry{
				5001: {Name: "web", PID: 5001, Role: registry.RoleWorker},
				5002: {Name: "queue", PID: 5002, Role: registry.RoleWorker},
			},
			auxiliaries: map[int]registry.Entry{
				6001: {Name: "janitor", PID: 6001, Role: registry.RoleAuxiliary},
			},
		},
		signaler: &fakeSignaler{},
		crasher:  &fakeCrasher{},
		recorder: &fakeRecorder{},
		logs:     &logCapture{},
	}
	svc, err := New(Config{
		Authorizer: identity.Gate{},
		Registry:   fx.registry,
		Signaler:   fx.signaler,
		Crasher:    fx.crasher,
		Timelines:  fx.source,
		Recorder:   fx.recorder,
		Logger:     slog.New(fx.logs),
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	fx.service = svc
	return fx
}

func TestNewRequiresCollaborators(t *testing.T) {
	base := func() Config {
		return Config{
			Authorizer: identity.Gate{},
			Registry:   &fakeRegistry{},
			Signaler:   &fakeSignaler{},
			Crasher:    &fakeCrasher{},
			Timelines:  fakeSource{},
		}
	}

	if _, err := New(base()); err != nil {
		t.Fatalf("New with full config returned error: %v", err)
	}

	tests := []struct {
		name  string
		strip func(*Config)
	}{
		{name: "authorizer", strip: func(c *Config) { c.Authorizer = nil }},
		{name: "registry", strip: func(c *Config) { c.Registry = nil }},
		{name: "signaler", strip: func(c *Config) { c.Signaler = nil }},
		{name: "crasher", strip: func(c *Config) { c.Crasher = nil }},
		{name: "timelines", strip: func(c *Config) { c.Timelines = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.strip(&cfg)
			if _, err := New(cfg); err == nil {
				t.Fatalf("New without %s succeeded, want error", tt.name)
			}
		})
	}
}

func TestGateMessageNamesOperation(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.service.SignalProcess(observerID, 5001, 15)
	if err == nil {
		t.Fatal("SignalProcess by observer succeeded, want privilege error")
	}
	if !strings.Contains(err.Error(), "signal process") {
		t.Errorf("error %q does not name the operation", err)
	}
	if !strings.Contains(err.Error(), "testing and diagnostic") {
		t.Errorf("error %q does not carry the diagnostic-use note", err)
	}
}
