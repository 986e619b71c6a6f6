// Package proc wraps the operating-system process primitives the daemon
// relies on: signal delivery, liveness checks, resource sampling and the
// crash path.
//
// Signal delivery targets the process group led by the given pid so that
// helpers forked by a worker receive the signal too. Group delivery is only
// available on Unix systems; on Windows the same call falls back to the
// single process and only termination-style signals are honoured. Workers
// must therefore be started with GroupAttr applied to their exec.Cmd, which
// makes each worker a process-group leader on Unix and is a no-op elsewhere.
package proc
