package process

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// State is the observable lifecycle of a launched product.
type State int

const (
	NotStarted State = iota
	Running
	Exited
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Exited:
		return "exited"
	default:
		return "not_started"
	}
}

// DefaultGrace is how long Terminate waits after the polite signal before killing.
const DefaultGrace = 3 * time.Second

// Handle is an opaque, internally synchronized reference to a spawned process.
// A single goroutine reaps the child; Poll never blocks.
type Handle struct {
	mu       sync.Mutex
	cmd      *exec.Cmd
	pid      int
	started  time.Time
	grace    time.Duration
	done     chan struct{}
	exitCode int
	exitErr  error
	closers  []io.Closer
}

// start runs cmd and begins reaping it.
func start(cmd *exec.Cmd, grace time.Duration, closers ...io.Closer) (*Handle, error) {
	if err := cmd.Start(); err != nil {
		for _, c := range closers {
			_ = c.Close()
		}
		return nil, err
	}
	if grace <= 0 {
		grace = DefaultGrace
	}
	h := &Handle{
		cmd:      cmd,
		pid:      cmd.Process.Pid,
		started:  time.Now(),
		grace:    grace,
		done:     make(chan struct{}),
		exitCode: -1,
		closers:  closers,
	}
	go h.reap()
	return h, nil
}

func (h *Handle) reap() {
	err := h.cmd.Wait()
	h.mu.Lock()
	h.exitErr = err
	if h.cmd.ProcessState != nil {
		h.exitCode = h.cmd.ProcessState.ExitCode()
	}
	closers := h.closers
	h.closers = nil
	h.mu.Unlock()
	for _, c := range closers {
		_ = c.Close()
	}
	close(h.done)
}

// Poll reports the current state without blocking.
func (h *Handle) Poll() State {
	if h == nil || h.done == nil {
		return NotStarted
	}
	select {
	case <-h.done:
		return Exited
	default:
		return Running
	}
}

// Alive is shorthand for Poll() == Running.
func (h *Handle) Alive() bool { return h.Poll() == Running }

// Done is closed once the process has been reaped.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) PID() int { return h.pid }

func (h *Handle) StartedAt() time.Time { return h.started }

// ExitCode is -1 while running or when the process was killed by a signal.
func (h *Handle) ExitCode() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode
}

// ExitErr returns the error reported by Wait, if any.
func (h *Handle) ExitErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

// Terminate asks the process (and its group where supported) to stop and
// escalates to a kill after the grace period. Terminating an exited process is a no-op.
func (h *Handle) Terminate() error {
	if h.Poll() != Running {
		return nil
	}
	h.mu.Lock()
	err := terminate(h.pid)
	h.mu.Unlock()
	if err != nil && !isGone(err) {
		return err
	}
	select {
	case <-h.done:
		return nil
	case <-time.After(h.grace):
	}
	h.mu.Lock()
	err = kill(h.pid)
	if err != nil && !isGone(err) {
		// fall back to the direct child
		err = h.cmd.Process.Kill()
	}
	h.mu.Unlock()
	if err != nil && !isGone(err) {
		return err
	}
	select {
	case <-h.done:
	case <-time.After(h.grace):
	}
	return nil
}

func isGone(err error) bool {
	return errors.Is(err, os.ErrProcessDone) || isNoSuchProcess(err)
}
