// Package worker provides the self-terminating goroutine runner behind every
// pipeline consumer.
//
// A Runner starts its goroutine on demand, idles out after a configurable
// quiet period, and is resurrected by the next EnsureRunning call. Queue wake
// hooks point at EnsureRunning so producers restart their consumer before new
// work becomes visible.
package worker

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// minStopWait is the floor on how long Stop waits for the goroutine to exit.
const minStopWait = 10 * time.Second

// Step does one unit of work and reports whether any work was found.
// Returning false lets the runner count idle time toward self-termination.
type Step func() bool

// Runner drives a Step in a restartable background goroutine.
type Runner struct {
	name         string
	idleTimeout  time.Duration
	pollInterval time.Duration
	stopTimeout  time.Duration
	step         Step
	log          zerolog.Logger

	mu       sync.Mutex
	running  bool
	stopSent bool
	stopCh   chan struct{}
	doneCh   chan struct{}

	activityMu   sync.Mutex
	lastActivity time.Time
}

// New creates a runner for step. An idleTimeout of zero disables
// self-termination. pollInterval is the sleep between empty polls.
func New(name string, idleTimeout, pollInterval, stopTimeout time.Duration, log zerolog.Logger, step Step) *Runner {
	if pollInterval <= 0 {
		pollInterval = 300 * time.Millisecond
	}
	return &Runner{
		name:         name,
		idleTimeout:  idleTimeout,
		pollInterval: pollInterval,
		stopTimeout:  stopTimeout,
		step:         step,
		log:          log.With().Str("worker", name).Logger(),
	}
}

// EnsureRunning starts the goroutine if it is not running and refreshes the
// activity clock either way. Safe to call from queue wake hooks.
func (r *Runner) EnsureRunning() {
	r.MarkActive()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.log.Info().Msg("worker not running, starting it")
	r.running = true
	r.stopSent = false
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	go r.loop(r.stopCh, r.doneCh)
}

func (r *Runner) loop(stopCh, doneCh chan struct{}) {
	r.log.Debug().Msg("worker started")
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		close(doneCh)
		r.log.Info().Msg("worker terminated")
	}()

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		if r.step() {
			r.MarkActive()
			continue
		}

		if r.IdleExpired() {
			return
		}
		select {
		case <-stopCh:
			return
		case <-time.After(r.pollInterval):
		}
	}
}

// Stop signals the goroutine and waits for it to exit, warning if it does
// not stop within the termination timeout.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	if !r.stopSent {
		close(r.stopCh)
		r.stopSent = true
	}
	done := r.doneCh
	r.mu.Unlock()

	wait := r.stopTimeout
	if wait < minStopWait {
		wait = minStopWait
	}
	select {
	case <-done:
	case <-time.After(wait):
		r.log.Warn().Msg("worker did not stop gracefully")
	}
}

// IsRunning reports whether the goroutine is alive.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// MarkActive resets the idle clock.
func (r *Runner) MarkActive() {
	r.activityMu.Lock()
	r.lastActivity = time.Now()
	r.activityMu.Unlock()
}

// IdleExpired reports whether the worker has been idle longer than its
// timeout. Always false when no timeout is configured.
func (r *Runner) IdleExpired() bool {
	if r.idleTimeout <= 0 {
		return false
	}
	r.activityMu.Lock()
	idle := time.Since(r.lastActivity)
	r.activityMu.Unlock()
	if idle > r.idleTimeout {
		r.log.Info().Dur("idle", idle).Msg("worker idle timeout reached")
		return true
	}
	return false
}
