package app_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Liergab/peercall/internal/app"
	"github.com/Liergab/peercall/internal/domain"
)

// newTestScheduler wires the scheduler to a channel the test drains
// itself, mirroring how the orchestrator loop executes posted closures.
func newTestScheduler() (*app.Scheduler, chan func()) {
	ops := make(chan func(), 32)
	return app.NewScheduler(func(fn func()) { ops <- fn }), ops
}

// runOps executes posted closures on the test goroutine until d elapses.
func runOps(ops chan func(), d time.Duration) {
	deadline := time.After(d)
	for {
		select {
		case fn := <-ops:
			fn()
		case <-deadline:
			return
		}
	}
}

func TestSchedulerFires(t *testing.T) {
	s, ops := newTestScheduler()
	peer := domain.PeerID("room-j1")

	fired := false
	s.After(peer, "ping", 10*time.Millisecond, func() { fired = true })
	assert.True(t, s.Pending(peer, "ping"))

	runOps(ops, 100*time.Millisecond)

	assert.True(t, fired)
	assert.False(t, s.Pending(peer, "ping"), "a fired task leaves the table")
}

func TestSchedulerSupersedes(t *testing.T) {
	s, ops := newTestScheduler()
	peer := domain.PeerID("room-j1")

	var first, second bool
	s.After(peer, "ping", 40*time.Millisecond, func() { first = true })
	s.After(peer, "ping", 20*time.Millisecond, func() { second = true })

	runOps(ops, 120*time.Millisecond)

	assert.False(t, first, "superseded task must never run")
	assert.True(t, second)
}

func TestSchedulerDifferentPurposesCoexist(t *testing.T) {
	s, ops := newTestScheduler()
	peer := domain.PeerID("room-j1")

	var a, b bool
	s.After(peer, "ping", 10*time.Millisecond, func() { a = true })
	s.After(peer, "sync", 10*time.Millisecond, func() { b = true })

	runOps(ops, 100*time.Millisecond)

	assert.True(t, a)
	assert.True(t, b)
}

func TestSchedulerCancel(t *testing.T) {
	s, ops := newTestScheduler()
	peer := domain.PeerID("room-j1")

	fired := false
	s.After(peer, "ping", 20*time.Millisecond, func() { fired = true })

	assert.True(t, s.Cancel(peer, "ping"))
	assert.False(t, s.Cancel(peer, "ping"), "second cancel finds nothing")

	runOps(ops, 80*time.Millisecond)
	assert.False(t, fired)
}

func TestSchedulerCancelPeer(t *testing.T) {
	s, ops := newTestScheduler()

	var fired int
	s.After("room-a", "ping", 10*time.Millisecond, func() { fired++ })
	s.After("room-a", "sync", 10*time.Millisecond, func() { fired++ })
	s.After("room-b", "ping", 10*time.Millisecond, func() { fired++ })

	assert.Equal(t, 2, s.CancelPeer("room-a"))
	assert.True(t, s.Pending("room-b", "ping"))

	runOps(ops, 80*time.Millisecond)
	assert.Equal(t, 1, fired, "only the other peer's task survives")
}

func TestSchedulerCancelAll(t *testing.T) {
	s, ops := newTestScheduler()

	fired := false
	s.After("room-a", "ping", 10*time.Millisecond, func() { fired = true })
	s.After("room-b", "ping", 10*time.Millisecond, func() { fired = true })

	s.CancelAll()
	assert.False(t, s.Pending("room-a", "ping"))
	assert.False(t, s.Pending("room-b", "ping"))

	runOps(ops, 80*time.Millisecond)
	assert.False(t, fired)
}
