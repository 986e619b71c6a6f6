package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/wardenhq/warden/internal/proc"
)

// handle is one running attempt of a worker, reduced to the slice of process
// lifecycle the run loop needs so tests can substitute scripted handles.
type handle interface {
	PID() int
	// Done is closed once the process has been reaped. Err is valid after.
	Done() <-chan struct{}
	Err() error
	// Stop terminates the process group: SIGTERM, a grace period, SIGKILL.
	Stop(ctx context.Context, grace time.Duration) error
}

// launcher starts one attempt of a worker.
type launcher interface {
	Launch(spec WorkerSpec) (handle, error)
}

// execLauncher runs workers as local OS processes, each leading its own
// process group, with stdout and stderr streamed to the daemon's log.
type execLauncher struct {
	logger *slog.Logger
}

func (l execLauncher) Launch(spec WorkerSpec) (handle, error) {
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("worker %s has no command", spec.Name)
	}

	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	if spec.Workdir != "" {
		cmd.Dir = spec.Workdir
	}
	env := os.Environ()
	for k, v := range spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = env

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker %s stdout: %w", spec.Name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("worker %s stderr: %w", spec.Name, err)
	}

	proc.GroupAttr(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker %s: %w", spec.Name, err)
	}

	in := &instance{
		name:     spec.Name,
		cmd:      cmd,
		waitDone: make(chan struct{}),
	}

	logger := l.logger.With("worker", spec.Name, "pid", cmd.Process.Pid)
	var wg sync.WaitGroup
	wg.Add(2)
	go streamOutput(stdout, logger, slog.LevelInfo, &wg)
	go streamOutput(stderr, logger, slog.LevelWarn, &wg)
	go func() {
		// Both pipes must be drained before Wait reaps the process.
		wg.Wait()
		in.waitErr = cmd.Wait()
		close(in.waitDone)
	}()

	return in, nil
}

func streamOutput(r io.Reader, logger *slog.Logger, level slog.Level, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		logger.Log(context.Background(), level, line)
	}
}

type instance struct {
	name     string
	cmd      *exec.Cmd
	waitErr  error
	waitDone chan struct{}
}

func (in *instance) PID() int {
	return in.cmd.Process.Pid
}

func (in *instance) Done() <-chan struct{} {
	return in.waitDone
}

func (in *instance) Err() error {
	return in.waitErr
}

// Stop asks the whole group to terminate and escalates to SIGKILL once the
// grace period runs out. A group that is already gone is a success.
func (in *instance) Stop(ctx context.Context, grace time.Duration) error {
	if in.cmd.Process == nil {
		return nil
	}
	pid := in.cmd.Process.Pid

	if err := proc.Signal(pid, int(syscall.SIGTERM), true); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("signal worker group %s: %w", in.name, err)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-in.waitDone:
		return in.waitErr
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := proc.Signal(pid, int(syscall.SIGKILL), true); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("kill worker group %s: %w", in.name, err)
	}
	select {
	case <-in.waitDone:
		return in.waitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}
