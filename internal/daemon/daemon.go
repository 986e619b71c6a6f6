// Package daemon assembles one warden process: configuration, journal,
// process registry, supervisor, admin core, replication follower and the
// HTTP control API, wired together and run under a single context.
package daemon

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/wardenhq/warden/internal/admin"
	apihttp "github.com/wardenhq/warden/internal/api/http"
	"github.com/wardenhq/warden/internal/client"
	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/identity"
	"github.com/wardenhq/warden/internal/journal"
	"github.com/wardenhq/warden/internal/proc"
	"github.com/wardenhq/warden/internal/registry"
	"github.com/wardenhq/warden/internal/replica"
	"github.com/wardenhq/warden/internal/supervisor"
)

// Options carries the collaborators New cannot derive from configuration.
type Options struct {
	Logger  *slog.Logger
	Version string
	// Filesystem backs the journal. Nil means the OS filesystem.
	Filesystem afero.Fs
	// Listener overrides the control API listener, for tests.
	Listener net.Listener
}

// Daemon is one running warden instance. It implements api.Controller, so
// the HTTP layer talks straight to it.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	version string

	ids      *identity.Store
	registry *registry.Registry
	journal  *journal.Journal
	sup      *supervisor.Supervisor
	service  *admin.Service
	follower *replica.Follower

	listener  net.Listener
	startedAt time.Time

	mu           sync.Mutex
	runCtx       context.Context
	stopFollower context.CancelFunc
	addr         string
}

// osSignaler delivers signals through the real kill(2) path.
type osSignaler struct{}

func (osSignaler) Signal(pid, signum int, group bool) error {
	return proc.Signal(pid, signum, group)
}

// New builds a Daemon from a loaded configuration. Nothing is started; the
// journal is opened (and recovered) here so configuration problems surface
// before Run.
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon: config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fsys := opts.Filesystem
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	standby := cfg.Mode == config.ModeStandby
	jrnl, err := journal.Open(fsys, cfg.Journal.Dir, logger.With("component", "journal"), standby)
	if err != nil {
		return nil, err
	}

	reg := registry.New()
	sup, err := supervisor.New(supervisor.Config{
		Registry: reg,
		Journal:  jrnl,
		Logger:   logger.With("component", "supervisor"),
		Workers:  workerSpecs(cfg),
		Grace:    cfg.Daemon.Grace.Duration,
	})
	if err != nil {
		jrnl.Close()
		return nil, err
	}

	service, err := admin.New(admin.Config{
		Authorizer: identity.Gate{},
		Registry:   reg,
		Signaler:   osSignaler{},
		Crasher:    sup,
		Timelines:  jrnl.State(),
		Recorder:   jrnl,
		Logger:     logger.With("component", "admin"),
	})
	if err != nil {
		jrnl.Close()
		return nil, err
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		version:  opts.Version,
		ids:      identityStore(cfg),
		registry: reg,
		journal:  jrnl,
		sup:      sup,
		service:  service,
		listener: opts.Listener,
	}

	if standby {
		upstream, err := client.New(client.Config{
			BaseURL: cfg.Primary.URL,
			Token:   cfg.Primary.Token,
		})
		if err != nil {
			jrnl.Close()
			return nil, err
		}
		follower, err := replica.New(replica.Config{
			Source:   upstream,
			Journal:  jrnl,
			Logger:   logger.With("component", "replica"),
			Interval: cfg.Primary.PollInterval.Duration,
		})
		if err != nil {
			jrnl.Close()
			return nil, err
		}
		d.follower = follower
	}
	return d, nil
}

// Run serves the control API and, on a primary, the supervised workers,
// until ctx is cancelled. A standby runs the follower instead and starts
// its workers only after Promote.
func (d *Daemon) Run(ctx context.Context) error {
	srv, err := apihttp.NewServer(apihttp.Config{
		Addr:       d.cfg.Daemon.Listen,
		Controller: d,
		Identities: d.ids,
		Logger:     d.logger.With("component", "api"),
		Listener:   d.listener,
	})
	if err != nil {
		return err
	}

	g, runCtx := errgroup.WithContext(ctx)

	d.mu.Lock()
	d.runCtx = runCtx
	d.addr = srv.Addr()
	d.startedAt = time.Now().UTC()
	d.mu.Unlock()

	g.Go(func() error { return srv.Run(runCtx) })
	g.Go(func() error {
		d.drainEvents(runCtx)
		return nil
	})

	if d.follower != nil {
		folCtx, cancel := context.WithCancel(runCtx)
		d.mu.Lock()
		d.stopFollower = cancel
		d.mu.Unlock()
		g.Go(func() error {
			defer cancel()
			return d.follower.Run(folCtx)
		})
		d.logger.Info("daemon started",
			"mode", config.ModeStandby, "addr", srv.Addr(), "primary", d.cfg.Primary.URL)
	} else {
		d.sup.Start(runCtx)
		d.logger.Info("daemon started",
			"mode", config.ModePrimary, "addr", srv.Addr(),
			"workers", len(d.cfg.Workers), "auxiliaries", len(d.cfg.Auxiliaries))
	}

	err = g.Wait()

	grace := d.cfg.Daemon.Grace.Duration
	if grace <= 0 {
		grace = 2 * time.Second
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), grace+2*time.Second)
	defer cancel()
	if stopErr := d.sup.Stop(stopCtx); stopErr != nil {
		d.logger.Warn("supervisor stop timed out", "error", stopErr)
	}
	if closeErr := d.journal.Close(); closeErr != nil {
		d.logger.Warn("journal close failed", "error", closeErr)
	}
	d.logger.Info("daemon stopped")

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr reports the control API address once Run has bound it.
func (d *Daemon) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addr
}

// drainEvents turns worker lifecycle events into log lines. Restart metrics
// are counted by the supervisor itself.
func (d *Daemon) drainEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.sup.Events():
			d.logEvent(ev)
		}
	}
}

func (d *Daemon) logEvent(ev supervisor.Event) {
	logger := d.logger.With("worker", ev.Worker)
	switch ev.Type {
	case supervisor.EventStarting:
		logger.Debug("worker starting", "attempt", ev.Attempt)
	case supervisor.EventStarted:
		logger.Info("worker started", "pid", ev.PID, "attempt", ev.Attempt)
	case supervisor.EventExited:
		if ev.Err != nil {
			logger.Warn("worker exited", "pid", ev.PID, "error", ev.Err)
		} else {
			logger.Info("worker exited", "pid", ev.PID)
		}
	case supervisor.EventRestarting:
		logger.Warn("worker restarting", "attempt", ev.Attempt)
	case supervisor.EventFailed:
		logger.Error("worker gave up", "pid", ev.PID, "error", ev.Err)
	case supervisor.EventStopped:
		logger.Info("worker stopped", "pid", ev.PID)
	}
}

func identityStore(cfg *config.Config) *identity.Store {
	creds := make([]identity.Credential, 0, len(cfg.Auth.Tokens))
	for _, t := range cfg.Auth.Tokens {
		creds = append(creds, identity.Credential{
			Token:    t.Token,
			Identity: identity.Identity{Name: t.Name, Role: identity.Role(t.Role)},
		})
	}
	return identity.NewStore(creds)
}

func workerSpecs(cfg *config.Config) []supervisor.WorkerSpec {
	specs := make([]supervisor.WorkerSpec, 0, len(cfg.Workers)+len(cfg.Auxiliaries))
	for _, name := range cfg.WorkersSorted() {
		specs = append(specs, workerSpec(name, cfg.Workers[name], registry.RoleWorker))
	}
	for _, name := range cfg.AuxiliariesSorted() {
		specs = append(specs, workerSpec(name, cfg.Auxiliaries[name], registry.RoleAuxiliary))
	}
	return specs
}

func workerSpec(name string, w *config.WorkerSpec, role registry.Role) supervisor.WorkerSpec {
	spec := supervisor.WorkerSpec{
		Name:    name,
		Command: append([]string(nil), w.Command...),
		Workdir: w.ResolvedWorkdir,
		Role:    role,
		Policy:  restartPolicy(w.RestartPolicy),
	}
	if len(w.Env) > 0 {
		spec.Env = make(map[string]string, len(w.Env))
		for k, v := range w.Env {
			spec.Env[k] = v
		}
	}
	return spec
}

func restartPolicy(p *config.RestartPolicy) supervisor.Policy {
	policy := supervisor.DefaultPolicy()
	if p == nil {
		return policy
	}
	policy.MaxRetries = p.MaxRetries
	if b := p.Backoff; b != nil {
		if b.Min.IsSet() {
			policy.Min = b.Min.Duration
		}
		if b.Max.IsSet() {
			policy.Max = b.Max.Duration
		}
		if b.Factor != 0 {
			policy.Factor = b.Factor
		}
	}
	return policy
}
