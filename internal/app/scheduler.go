package app

import (
	"time"

	"github.com/Liergab/peercall/internal/domain"
)

// Task purposes. One pending task per (peer, purpose); scheduling the
// same pair again cancels the pending one.
const (
	purposeJoinRetry  = "join-retry"
	purposeRecall     = "recall"
	purposeRepair     = "repair"
	purposeRemove     = "remove"
	purposeScreenOpen = "screen-open"
	purposeScreenWait = "screen-wait"
	purposeConnect    = "connect"
)

type taskKey struct {
	peer    domain.PeerID
	purpose string
}

type task struct {
	timer *time.Timer
	seq   uint64
}

// Scheduler is the single table of pending timed work. Schedule and
// Cancel run on the orchestrator goroutine; the timer callback only
// posts back into it, so the map needs no lock. A fired task re-checks
// its sequence number inside the loop, which rules out the race where a
// timer fires while its replacement is being scheduled.
type Scheduler struct {
	post  func(func())
	tasks map[taskKey]*task
	seq   uint64
}

func NewScheduler(post func(func())) *Scheduler {
	return &Scheduler{post: post, tasks: make(map[taskKey]*task)}
}

// After runs fn on the orchestrator goroutine after d. A pending task
// with the same (peer, purpose) is cancelled first; superseding is
// explicit cancellation, never an implicit overwrite.
func (s *Scheduler) After(peer domain.PeerID, purpose string, d time.Duration, fn func()) {
	key := taskKey{peer: peer, purpose: purpose}
	if t, ok := s.tasks[key]; ok {
		t.timer.Stop()
		delete(s.tasks, key)
	}
	s.seq++
	seq := s.seq
	t := &task{seq: seq}
	t.timer = time.AfterFunc(d, func() {
		s.post(func() {
			cur, ok := s.tasks[key]
			if !ok || cur.seq != seq {
				return
			}
			delete(s.tasks, key)
			fn()
		})
	})
	s.tasks[key] = t
}

// Cancel drops the pending task for (peer, purpose), reporting whether
// one existed.
func (s *Scheduler) Cancel(peer domain.PeerID, purpose string) bool {
	key := taskKey{peer: peer, purpose: purpose}
	t, ok := s.tasks[key]
	if !ok {
		return false
	}
	t.timer.Stop()
	delete(s.tasks, key)
	return true
}

// CancelPeer drops every pending task for peer, returning the count.
func (s *Scheduler) CancelPeer(peer domain.PeerID) int {
	n := 0
	for key, t := range s.tasks {
		if key.peer == peer {
			t.timer.Stop()
			delete(s.tasks, key)
			n++
		}
	}
	return n
}

func (s *Scheduler) CancelAll() {
	for key, t := range s.tasks {
		t.timer.Stop()
		delete(s.tasks, key)
	}
}

// Pending reports whether a task is scheduled for (peer, purpose).
func (s *Scheduler) Pending(peer domain.PeerID, purpose string) bool {
	_, ok := s.tasks[taskKey{peer: peer, purpose: purpose}]
	return ok
}
