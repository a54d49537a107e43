package worker

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/mcp-brag/internal/logging"
)

func TestEnsureRunningStartsOnce(t *testing.T) {
	t.Parallel()

	var steps atomic.Int32
	r := New("test", 0, time.Millisecond, time.Second, logging.Nop(), func() bool {
		steps.Add(1)
		return false
	})

	assert.False(t, r.IsRunning())
	r.EnsureRunning()
	r.EnsureRunning()
	r.EnsureRunning()
	assert.True(t, r.IsRunning())

	assert.Eventually(t, func() bool { return steps.Load() > 0 }, 2*time.Second, time.Millisecond)
	r.Stop()
	assert.False(t, r.IsRunning())
}

func TestIdleSelfTermination(t *testing.T) {
	// Test Plan: a worker with a short idle timeout and no work must stop
	// itself, then come back when EnsureRunning fires again.
	t.Parallel()

	r := New("idler", 20*time.Millisecond, time.Millisecond, time.Second, logging.Nop(), func() bool {
		return false
	})
	r.EnsureRunning()

	assert.Eventually(t, func() bool { return !r.IsRunning() }, 2*time.Second, time.Millisecond)

	r.EnsureRunning()
	assert.True(t, r.IsRunning())
	r.Stop()
}

func TestWorkKeepsWorkerAlive(t *testing.T) {
	t.Parallel()

	var steps atomic.Int32
	r := New("busy", 50*time.Millisecond, time.Millisecond, time.Second, logging.Nop(), func() bool {
		steps.Add(1)
		return steps.Load() < 100
	})
	r.EnsureRunning()

	assert.Eventually(t, func() bool { return steps.Load() >= 100 }, 2*time.Second, time.Millisecond)
	assert.True(t, r.IsRunning(), "worker with recent activity must not idle out")
	r.Stop()
}

func TestZeroIdleTimeoutNeverExpires(t *testing.T) {
	t.Parallel()

	r := New("forever", 0, time.Millisecond, time.Second, logging.Nop(), func() bool { return false })
	r.MarkActive()
	time.Sleep(10 * time.Millisecond)
	assert.False(t, r.IdleExpired())
}

func TestStopIsIdempotent(t *testing.T) {
	t.Parallel()

	stepped := make(chan struct{}, 1)
	r := New("stopper", 0, time.Millisecond, time.Second, logging.Nop(), func() bool {
		select {
		case stepped <- struct{}{}:
		default:
		}
		return false
	})
	r.EnsureRunning()
	<-stepped

	r.Stop()
	require.False(t, r.IsRunning())
	r.Stop()
	r.Stop()
}

func TestResurrectionAfterStop(t *testing.T) {
	t.Parallel()

	var steps atomic.Int32
	r := New("phoenix", 0, time.Millisecond, time.Second, logging.Nop(), func() bool {
		steps.Add(1)
		return false
	})

	r.EnsureRunning()
	assert.Eventually(t, func() bool { return steps.Load() > 0 }, 2*time.Second, time.Millisecond)
	r.Stop()

	before := steps.Load()
	r.EnsureRunning()
	assert.Eventually(t, func() bool { return steps.Load() > before }, 2*time.Second, time.Millisecond)
	r.Stop()
}
