package supervisor

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/wardenhq/warden/internal/journal"
	"github.com/wardenhq/warden/internal/metrics"
	"github.com/wardenhq/warden/internal/registry"
)

const (
	defaultBackoffMin    = time.Second
	defaultBackoffMax    = 30 * time.Second
	defaultBackoffFactor = 2.0
	defaultMaxRetries    = 3
)

// Policy controls how a worker is restarted after it exits or fails to
// start. A negative MaxRetries restarts forever.
type Policy struct {
	MaxRetries int
	Min        time.Duration
	Max        time.Duration
	Factor     float64
}

func (p Policy) normalized() Policy {
	if p.Min <= 0 {
		p.Min = defaultBackoffMin
	}
	if p.Max <= 0 {
		p.Max = defaultBackoffMax
	}
	if p.Max < p.Min {
		p.Max = p.Min
	}
	if p.Factor <= 1 {
		p.Factor = defaultBackoffFactor
	}
	return p
}

// DefaultPolicy is applied to workers whose configuration names no policy.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: defaultMaxRetries}.normalized()
}

// WorkerSpec describes one process the supervisor manages.
type WorkerSpec struct {
	Name    string
	Command []string
	Env     map[string]string
	Workdir string
	Role    registry.Role
	Policy  Policy
}

// worker runs one managed process in a dedicated goroutine, restarting it
// per policy and keeping the registry and journal in step with reality.
type worker struct {
	spec     WorkerSpec
	policy   Policy
	launcher launcher
	registry *registry.Registry
	journal  Recorder
	events   chan<- Event
	grace    time.Duration

	jitter func(time.Duration) time.Duration
	sleep  func(context.Context, time.Duration) error

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	current handle
}

func newWorker(spec WorkerSpec, s *Supervisor) *worker {
	return &worker{
		spec:     spec,
		policy:   spec.Policy.normalized(),
		launcher: s.launcher,
		registry: s.registry,
		journal:  s.journal,
		events:   s.events,
		grace:    s.grace,
		jitter:   s.jitter,
		sleep:    sleepWithContext,
		done:     make(chan struct{}),
	}
}

func (w *worker) start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)
	go w.run()
}

func (w *worker) run() {
	defer close(w.done)

	restarts := 0
	backoffBase := w.policy.Min

	for {
		if w.ctx.Err() != nil {
			return
		}

		w.emit(Event{Type: EventStarting, Attempt: restarts})
		inst, err := w.launcher.Launch(w.spec)
		if err != nil {
			if w.ctx.Err() != nil {
				return
			}
			w.emit(Event{Type: EventExited, Err: err, Attempt: restarts})
			if !w.allowRestart(restarts) {
				w.emit(Event{Type: EventFailed, Err: err, Attempt: restarts})
				return
			}
			restarts++
			metrics.IncWorkerRestart(w.spec.Name)
			if w.sleepBackoff(&backoffBase) != nil {
				return
			}
			continue
		}

		pid := inst.PID()
		w.registry.Add(registry.Entry{
			Name:      w.spec.Name,
			PID:       pid,
			Role:      w.spec.Role,
			StartedAt: time.Now(),
			Restarts:  restarts,
		})
		w.record(journal.RecordStarted, pid, "")
		w.emit(Event{Type: EventStarted, PID: pid, Attempt: restarts})
		w.setCurrent(inst)

		exitErr, stopped := w.watch(inst)
		w.setCurrent(nil)
		w.registry.Remove(pid)

		if stopped {
			w.record(journal.RecordExited, pid, "stopped")
			w.emit(Event{Type: EventStopped, PID: pid})
			return
		}

		detail := "exit status 0"
		if exitErr != nil {
			detail = exitErr.Error()
		}
		w.record(journal.RecordExited, pid, detail)
		w.emit(Event{Type: EventExited, PID: pid, Err: exitErr, Attempt: restarts})

		if !w.allowRestart(restarts) {
			w.emit(Event{Type: EventFailed, PID: pid, Err: exitErr, Attempt: restarts})
			return
		}
		restarts++
		metrics.IncWorkerRestart(w.spec.Name)
		w.emit(Event{Type: EventRestarting, Attempt: restarts})
		if w.sleepBackoff(&backoffBase) != nil {
			return
		}
	}
}

// watch blocks until the process exits on its own or the worker context is
// cancelled, in which case the group is stopped gracefully. The boolean
// reports the cancellation case.
func (w *worker) watch(inst handle) (error, bool) {
	select {
	case <-inst.Done():
		return inst.Err(), false
	case <-w.ctx.Done():
		stopCtx, cancel := context.WithTimeout(context.Background(), w.grace+5*time.Second)
		defer cancel()
		_ = inst.Stop(stopCtx, w.grace)
		return nil, true
	}
}

func (w *worker) allowRestart(restarts int) bool {
	if w.policy.MaxRetries < 0 {
		return true
	}
	return restarts < w.policy.MaxRetries
}

func (w *worker) sleepBackoff(base *time.Duration) error {
	delay := *base
	if delay <= 0 {
		delay = w.policy.Min
	}
	if delay > w.policy.Max {
		delay = w.policy.Max
	}

	jittered := w.jitter(delay)
	if jittered > w.policy.Max {
		jittered = w.policy.Max
	}
	if jittered < 0 {
		jittered = 0
	}

	if err := w.sleep(w.ctx, jittered); err != nil {
		return err
	}

	next := float64(delay) * w.policy.Factor
	if math.IsInf(next, 0) || next > float64(w.policy.Max) {
		*base = w.policy.Max
		return nil
	}
	n := time.Duration(next)
	if n < w.policy.Min {
		n = w.policy.Min
	}
	if n > w.policy.Max {
		n = w.policy.Max
	}
	*base = n
	return nil
}

func (w *worker) setCurrent(inst handle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.current = inst
}

func (w *worker) record(kind journal.RecordKind, pid int, detail string) {
	if w.journal == nil {
		return
	}
	_, _ = w.journal.Append(kind, w.spec.Name, pid, detail)
}

// emit sends a lifecycle event without ever stalling the run loop; a full
// buffer drops the event rather than wedge a worker on a slow consumer.
func (w *worker) emit(e Event) {
	if w.events == nil {
		return
	}
	e.At = time.Now()
	e.Worker = w.spec.Name
	select {
	case w.events <- e:
	default:
	}
}

func defaultJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	// Full jitter: random duration in [0, d].
	return time.Duration(rand.Float64() * float64(d))
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
