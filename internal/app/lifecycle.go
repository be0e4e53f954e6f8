package app

import (
	"context"
	"sync"
	"time"

	"github.com/bft-labs/clipd/internal/domain"
	"github.com/bft-labs/clipd/internal/ports"
)

// ShutdownTimeout is the maximum time Stop waits for the daemon's tasks.
const ShutdownTimeout = 10 * time.Second

// State is the daemon's lifecycle state.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateCrashed:
		return "Crashed"
	default:
		return "Unknown"
	}
}

// transitions lists the states reachable from each state.
var transitions = map[State][]State{
	StateStopped:  {StateStarting},
	StateStarting: {StateRunning, StateStopping, StateCrashed},
	StateRunning:  {StateStopping, StateCrashed},
	StateStopping: {StateStopped, StateCrashed},
	StateCrashed:  {StateStarting},
}

// Lifecycle tracks the daemon state and owns the cancel func of a run.
type Lifecycle struct {
	mu     sync.RWMutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
	logger ports.Logger
}

// NewLifecycle creates a stopped Lifecycle.
func NewLifecycle(logger ports.Logger) *Lifecycle {
	return &Lifecycle{
		state:  StateStopped,
		logger: logger,
	}
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// TransitionTo moves to next if the current state allows it. Leaving
// Stopped or Crashed fails with domain.ErrNotRunning; any other refused
// move fails with domain.ErrAlreadyRunning.
func (l *Lifecycle) TransitionTo(next State, reason string) error {
	l.mu.Lock()
	prev := l.state
	allowed := false
	for _, s := range transitions[prev] {
		if s == next {
			allowed = true
			break
		}
	}
	if !allowed {
		l.mu.Unlock()
		if prev == StateStopped || prev == StateCrashed {
			return domain.ErrNotRunning
		}
		return domain.ErrAlreadyRunning
	}

	l.state = next
	switch next {
	case StateStarting:
		l.done = make(chan struct{})
	case StateStopped, StateCrashed:
		if l.done != nil {
			close(l.done)
			l.done = nil
		}
	}
	l.mu.Unlock()

	l.logger.Info("state transition",
		ports.String("from", prev.String()),
		ports.String("to", next.String()),
		ports.String("reason", reason),
	)
	return nil
}

// SetCancel stores the cancel function of the current run.
func (l *Lifecycle) SetCancel(cancel context.CancelFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cancel = cancel
}

// Cancel asks the current run to stop.
func (l *Lifecycle) Cancel() {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the current run reaches Stopped or Crashed. It
// returns domain.ErrShutdownTimeout if that takes longer than timeout.
func (l *Lifecycle) Wait(timeout time.Duration) error {
	l.mu.RLock()
	done := l.done
	l.mu.RUnlock()
	if done == nil {
		return nil
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return nil
	case <-t.C:
		l.logger.Warn("shutdown timeout", ports.Duration("timeout", timeout))
		return domain.ErrShutdownTimeout
	}
}
