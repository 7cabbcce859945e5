// Package lifecycle runs a single background loop with start, stop and
// self-cancel semantics shared by the daemon workers.
package lifecycle

import (
	"sync"

	"github.com/cuemby/ipsecd/pkg/types"
)

// State is the lifecycle state of a worker
type State string

const (
	StateNotStarted State = "not_started"
	StateRunning    State = "running"
	StateStopping   State = "stopping"
)

// Runner owns the background goroutine of a worker. The loop body is
// supplied on Start and receives a channel that is closed when the worker
// should stop.
type Runner struct {
	mu     sync.Mutex
	state  State
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewRunner creates a runner in the not_started state
func NewRunner() *Runner {
	return &Runner{state: StateNotStarted}
}

// Start spawns loop on its own goroutine
func (r *Runner) Start(loop func(stopCh <-chan struct{})) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateNotStarted && r.state != "" {
		return types.ErrAlreadyRunning
	}

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	r.state = StateRunning
	r.stopCh = stopCh
	r.doneCh = doneCh

	go func() {
		defer func() {
			r.mu.Lock()
			// A newer Start may already own the runner
			if r.doneCh == doneCh {
				r.state = StateNotStarted
			}
			r.mu.Unlock()
			close(doneCh)
		}()
		loop(stopCh)
	}()

	return nil
}

// Stop signals the loop, calls wake so a blocked loop can observe the
// signal, and waits for the loop to return. wake may be nil.
func (r *Runner) Stop(wake func()) error {
	r.mu.Lock()
	if r.state != StateRunning {
		r.mu.Unlock()
		return types.ErrNotRunning
	}
	r.state = StateStopping
	close(r.stopCh)
	doneCh := r.doneCh
	r.mu.Unlock()

	if wake != nil {
		wake()
	}

	<-doneCh
	return nil
}

// Cancel moves a running worker to stopping without waiting. It is meant
// to be called from the loop itself, where waiting would deadlock.
func (r *Runner) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateRunning {
		return
	}
	r.state = StateStopping
	close(r.stopCh)
}

// Wait blocks until the current loop, if any, has returned
func (r *Runner) Wait() {
	r.mu.Lock()
	doneCh := r.doneCh
	r.mu.Unlock()

	if doneCh != nil {
		<-doneCh
	}
}

// State returns the current state
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == "" {
		return StateNotStarted
	}
	return r.state
}

// Running reports whether the worker is in the running state
func (r *Runner) Running() bool {
	return r.State() == StateRunning
}

// Stopped reports whether stopCh has been closed
func Stopped(stopCh <-chan struct{}) bool {
	select {
	case <-stopCh:
		return true
	default:
		return false
	}
}
