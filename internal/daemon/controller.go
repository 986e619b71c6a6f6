package daemon

import (
	stdcontext "context"
	"time"

	"github.com/wardenhq/warden/internal/admin"
	"github.com/wardenhq/warden/internal/api"
	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/identity"
	"github.com/wardenhq/warden/internal/proc"
)

// Status reports the daemon, every registered process and the replication
// positions as one consistent-enough snapshot. Liveness and resource usage
// are sampled per pid and may already be stale when the reply is read.
func (d *Daemon) Status(ctx stdcontext.Context) (*api.StatusReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries := d.registry.Snapshot()
	workers := make([]api.WorkerStatus, 0, len(entries))
	for _, e := range entries {
		ws := api.WorkerStatus{
			Name:      e.Name,
			Role:      string(e.Role),
			PID:       e.PID,
			StartedAt: e.StartedAt,
			Restarts:  e.Restarts,
			Alive:     proc.Alive(e.PID),
		}
		if stat, err := proc.ReadStat(e.PID); err == nil {
			ws.CPUPercent = stat.CPUPercent
			ws.RSSBytes = stat.RSSBytes
		}
		workers = append(workers, ws)
	}

	d.mu.Lock()
	startedAt := d.startedAt
	d.mu.Unlock()

	return &api.StatusReport{
		Daemon:        d.cfg.Daemon.Name,
		Version:       d.version,
		Mode:          d.mode(),
		SupervisorPID: d.registry.SupervisorPID(),
		StartedAt:     startedAt,
		GeneratedAt:   time.Now().UTC(),
		Workers:       workers,
		Timelines:     d.timelineReport(),
	}, nil
}

// Timelines reports the three replication positions. A position that has
// never been established is nil and renders as JSON null.
func (d *Daemon) Timelines(ctx stdcontext.Context) (*api.TimelineReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report := d.timelineReport()
	return &report, nil
}

// JournalRecords pages through the durable journal for followers and
// operators. Next is the cursor to pass on the following call.
func (d *Daemon) JournalRecords(ctx stdcontext.Context, after uint64, limit int) (*api.JournalPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	recs, err := d.journal.Records(after, limit)
	if err != nil {
		return nil, err
	}
	next := after
	if len(recs) > 0 {
		next = recs[len(recs)-1].Seq
	}
	return &api.JournalPage{Records: recs, Next: next}, nil
}

// SignalProcess delivers signum to pid through the admin core. A pid that
// does not resolve to a managed process is a soft miss carried in the
// result, not an error.
func (d *Daemon) SignalProcess(ctx stdcontext.Context, id identity.Identity, pid, signum int) (*api.SignalResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	outcome, err := d.service.SignalProcess(id, pid, signum)
	if err != nil {
		return nil, err
	}
	return &api.SignalResult{
		PID:        pid,
		Signal:     signum,
		Delivered:  outcome.Delivered,
		Diagnostic: outcome.Diagnostic,
	}, nil
}

// InducePanic asks the admin core to tear the daemon down. On success the
// process aborts and this call never returns.
func (d *Daemon) InducePanic(ctx stdcontext.Context, id identity.Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.service.InducePanic(id)
}

// InduceFatal asks the admin core to sever the calling connection. On
// success it panics with the injected-fatal sentinel for the HTTP recoverer
// to translate.
func (d *Daemon) InduceFatal(ctx stdcontext.Context, id identity.Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.service.InduceFatal(id)
}

// Promote ends standby mode: the journal switches to a fresh timeline, the
// follower stops, and the configured workers start under the supervisor.
func (d *Daemon) Promote(ctx stdcontext.Context, id identity.Identity) (*api.PromoteResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := admin.RequireAdministrator(identity.Gate{}, id, "promote"); err != nil {
		return nil, err
	}

	tl, err := d.journal.Promote()
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	if d.stopFollower != nil {
		d.stopFollower()
		d.stopFollower = nil
	}
	runCtx := d.runCtx
	d.mu.Unlock()

	d.sup.Start(runCtx)
	d.logger.Info("daemon promoted", "by", id.Name, "timeline", uint32(tl),
		"workers", len(d.cfg.Workers), "auxiliaries", len(d.cfg.Auxiliaries))

	return &api.PromoteResult{Timeline: tl, PromotedAt: time.Now().UTC()}, nil
}

func (d *Daemon) mode() string {
	if d.journal.Standby() {
		return config.ModeStandby
	}
	return config.ModePrimary
}

func (d *Daemon) timelineReport() api.TimelineReport {
	var report api.TimelineReport
	if tl, ok := d.service.CurrentTimeline(); ok {
		report.Current = &tl
	}
	if tl, ok := d.service.LastReplayedTimeline(); ok {
		report.LastReplayed = &tl
	}
	if tl, ok := d.service.LastReceivedTimeline(); ok {
		report.LastReceived = &tl
	}
	return report
}

var _ api.Controller = (*Daemon)(nil)
