package daemon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/wardenhq/warden/internal/admin"
	"github.com/wardenhq/warden/internal/client"
	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/identity"
	"github.com/wardenhq/warden/internal/journal"
	"github.com/wardenhq/warden/internal/registry"
	"github.com/wardenhq/warden/internal/supervisor"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baseConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Version: "1",
		Daemon: config.DaemonSpec{
			Name:   "testd",
			Listen: "127.0.0.1:0",
		},
		Journal: config.JournalSpec{Dir: "/journal"},
		Auth: config.AuthSpec{Tokens: []config.TokenSpec{
			{Name: "ops", Token: "tok-admin", Role: "admin"},
			{Name: "dashboard", Token: "tok-read", Role: "observer"},
		}},
	}
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	return cfg
}

func standbyConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Version: "1",
		Mode:    config.ModeStandby,
		Daemon: config.DaemonSpec{
			Name:   "testd-standby",
			Listen: "127.0.0.1:0",
		},
		Journal: config.JournalSpec{Dir: "/journal"},
		Primary: &config.PrimarySpec{URL: "http://127.0.0.1:9", Token: "tok-upstream"},
		Auth: config.AuthSpec{Tokens: []config.TokenSpec{
			{Name: "ops", Token: "tok-admin", Role: "admin"},
		}},
	}
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	return cfg
}

func newTestDaemon(t *testing.T, cfg *config.Config) *Daemon {
	t.Helper()
	d, err := New(cfg, Options{Logger: testLogger(), Filesystem: afero.NewMemMapFs(), Version: "test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { d.journal.Close() })
	return d
}

var adminID = identity.Identity{Name: "ops", Role: identity.RoleAdmin}
var observerID = identity.Identity{Name: "dashboard", Role: identity.RoleObserver}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := New(nil, Options{}); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestStatusReportsDaemonAndTimeline(t *testing.T) {
	d := newTestDaemon(t, baseConfig(t))

	report, err := d.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if report.Daemon != "testd" || report.Version != "test" {
		t.Fatalf("unexpected identity: %+v", report)
	}
	if report.Mode != config.ModePrimary {
		t.Fatalf("mode = %q, want primary", report.Mode)
	}
	if report.SupervisorPID != os.Getpid() {
		t.Fatalf("supervisor pid = %d, want %d", report.SupervisorPID, os.Getpid())
	}
	if len(report.Workers) != 0 {
		t.Fatalf("workers = %+v, want none", report.Workers)
	}
	if report.Timelines.Current == nil || *report.Timelines.Current != 1 {
		t.Fatalf("current timeline = %v, want 1", report.Timelines.Current)
	}
	if report.Timelines.LastReplayed != nil {
		t.Fatalf("last replayed = %v, want absent on a fresh primary", *report.Timelines.LastReplayed)
	}
}

func TestJournalRecordsPaging(t *testing.T) {
	d := newTestDaemon(t, baseConfig(t))
	for i := 0; i < 3; i++ {
		if _, err := d.journal.Append(journal.RecordStarted, "web", 100+i, ""); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	page, err := d.JournalRecords(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("JournalRecords: %v", err)
	}
	if len(page.Records) != 2 || page.Records[0].Seq != 2 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Next != 3 {
		t.Fatalf("next = %d, want 3", page.Next)
	}

	empty, err := d.JournalRecords(context.Background(), 100, 10)
	if err != nil {
		t.Fatalf("JournalRecords: %v", err)
	}
	if len(empty.Records) != 0 || empty.Next != 100 {
		t.Fatalf("empty page should keep the cursor: %+v", empty)
	}
}

func TestSignalProcessSoftMiss(t *testing.T) {
	d := newTestDaemon(t, baseConfig(t))

	result, err := d.SignalProcess(context.Background(), adminID, 1, 15)
	if err != nil {
		t.Fatalf("SignalProcess: %v", err)
	}
	if result.Delivered {
		t.Fatal("expected a soft miss for an unmanaged pid")
	}
	if !strings.Contains(result.Diagnostic, "not a warden-managed process") {
		t.Fatalf("diagnostic = %q", result.Diagnostic)
	}
	if result.PID != 1 || result.Signal != 15 {
		t.Fatalf("echoed fields wrong: %+v", result)
	}
}

func TestPrivilegedOperationsRequireAdmin(t *testing.T) {
	d := newTestDaemon(t, baseConfig(t))
	ctx := context.Background()

	if _, err := d.SignalProcess(ctx, observerID, 1, 15); !errors.Is(err, admin.ErrInsufficientPrivilege) {
		t.Fatalf("SignalProcess error = %v, want privilege rejection", err)
	}
	if err := d.InducePanic(ctx, observerID); !errors.Is(err, admin.ErrInsufficientPrivilege) {
		t.Fatalf("InducePanic error = %v, want privilege rejection", err)
	}
	if err := d.InduceFatal(ctx, observerID); !errors.Is(err, admin.ErrInsufficientPrivilege) {
		t.Fatalf("InduceFatal error = %v, want privilege rejection", err)
	}
	if _, err := d.Promote(ctx, observerID); !errors.Is(err, admin.ErrInsufficientPrivilege) {
		t.Fatalf("Promote error = %v, want privilege rejection", err)
	}
}

func TestPromoteLifecycle(t *testing.T) {
	d := newTestDaemon(t, standbyConfig(t))
	ctx := context.Background()

	if d.mode() != config.ModeStandby {
		t.Fatalf("mode = %q, want standby before promote", d.mode())
	}

	result, err := d.Promote(ctx, adminID)
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if result.Timeline != 1 {
		t.Fatalf("timeline = %d, want 1", result.Timeline)
	}
	if d.mode() != config.ModePrimary {
		t.Fatalf("mode = %q, want primary after promote", d.mode())
	}

	if _, err := d.Promote(ctx, adminID); !errors.Is(err, journal.ErrNotStandby) {
		t.Fatalf("second promote error = %v, want not-standby", err)
	}
}

func TestRestartPolicyMapping(t *testing.T) {
	def := supervisor.DefaultPolicy()

	if got := restartPolicy(nil); got != def {
		t.Fatalf("nil policy = %+v, want default %+v", got, def)
	}

	forever := restartPolicy(&config.RestartPolicy{MaxRetries: -1})
	if forever.MaxRetries != -1 || forever.Min != def.Min {
		t.Fatalf("unexpected mapping: %+v", forever)
	}

	full := restartPolicy(&config.RestartPolicy{
		MaxRetries: 7,
		Backoff: &config.BackoffSpec{
			Min:    config.Duration{Duration: 250 * time.Millisecond},
			Max:    config.Duration{Duration: 4 * time.Second},
			Factor: 3,
		},
	})
	if full.MaxRetries != 7 || full.Min != 250*time.Millisecond || full.Max != 4*time.Second || full.Factor != 3 {
		t.Fatalf("unexpected mapping: %+v", full)
	}

	partial := restartPolicy(&config.RestartPolicy{
		MaxRetries: 2,
		Backoff:    &config.BackoffSpec{Min: config.Duration{Duration: 100 * time.Millisecond}},
	})
	if partial.Min != 100*time.Millisecond || partial.Max != def.Max || partial.Factor != def.Factor {
		t.Fatalf("unexpected mapping: %+v", partial)
	}
}

func TestWorkerSpecsOrderAndRoles(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Workers = map[string]*config.WorkerSpec{
		"web": {Command: []string{"./web"}, Env: map[string]string{"A": "1"}},
		"api": {Command: []string{"./api"}},
	}
	cfg.Auxiliaries = map[string]*config.WorkerSpec{
		"janitor": {Command: []string{"./janitor"}},
	}

	specs := workerSpecs(cfg)
	if len(specs) != 3 {
		t.Fatalf("specs = %d, want 3", len(specs))
	}
	names := []string{specs[0].Name, specs[1].Name, specs[2].Name}
	if names[0] != "api" || names[1] != "web" || names[2] != "janitor" {
		t.Fatalf("order = %v", names)
	}
	if specs[0].Role != registry.RoleWorker || specs[2].Role != registry.RoleAuxiliary {
		t.Fatalf("roles = %q/%q", specs[0].Role, specs[2].Role)
	}

	cfg.Workers["web"].Env["A"] = "changed"
	for _, s := range specs {
		if s.Name == "web" && s.Env["A"] != "1" {
			t.Fatal("spec env aliases the config map")
		}
	}
}

func TestIdentityStoreMapping(t *testing.T) {
	store := identityStore(baseConfig(t))

	id := store.Identify("tok-admin")
	if id.Name != "ops" || id.Role != identity.RoleAdmin {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if got := store.Identify("nope"); got != identity.Anonymous {
		t.Fatalf("unknown token resolved to %+v", got)
	}
}

func TestRunServesControlAPI(t *testing.T) {
	cfg := baseConfig(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	d, err := New(cfg, Options{
		Logger:     testLogger(),
		Filesystem: afero.NewMemMapFs(),
		Version:    "test",
		Listener:   ln,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	cl, err := client.New(client.Config{
		BaseURL: "http://" + ln.Addr().String(),
		Token:   "tok-admin",
		Timeout: time.Second,
	})
	if err != nil {
		t.Fatalf("client: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		report, statusErr := cl.Status(ctx)
		if statusErr == nil {
			if report.Daemon != "testd" || report.Mode != config.ModePrimary {
				t.Fatalf("unexpected report: %+v", report)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("control API never answered: %v", statusErr)
		case <-time.After(20 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
