// Package watchdogtest provides deterministic collaborators for driving
// watchdogs in tests of the packages built on top of them.
package watchdogtest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/hamed0406/dashwatch/internal/notify"
	"github.com/hamed0406/dashwatch/internal/watchdog"
)

// Clock is a settable time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{t: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// Scheduler records tasks and only runs them on request.
type Scheduler struct {
	mu    sync.Mutex
	tasks []*task
}

type task struct {
	s         *Scheduler
	d         time.Duration
	fn        func()
	every     bool
	fired     bool
	cancelled bool
}

func (t *task) Cancel() {
	t.s.mu.Lock()
	t.cancelled = true
	t.s.mu.Unlock()
}

func (s *Scheduler) add(d time.Duration, fn func(), every bool) watchdog.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &task{s: s, d: d, fn: fn, every: every}
	s.tasks = append(s.tasks, t)
	return t
}

func (s *Scheduler) Every(d time.Duration, fn func()) watchdog.Task { return s.add(d, fn, true) }
func (s *Scheduler) After(d time.Duration, fn func()) watchdog.Task { return s.add(d, fn, false) }

// Tick runs every live periodic task once.
func (s *Scheduler) Tick() {
	s.run(func(t *task) bool { return t.every })
}

// Flush fires the pending one-shot tasks with a delay of at most max.
func (s *Scheduler) Flush(max time.Duration) int {
	return s.run(func(t *task) bool {
		if t.every || t.fired || t.d > max {
			return false
		}
		t.fired = true
		return true
	})
}

func (s *Scheduler) run(pick func(*task) bool) int {
	s.mu.Lock()
	var fns []func()
	for _, t := range s.tasks {
		if !t.cancelled && pick(t) {
			fns = append(fns, t.fn)
		}
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

// ActiveEvery counts the periodic tasks not yet cancelled.
func (s *Scheduler) ActiveEvery() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if t.every && !t.cancelled {
			n++
		}
	}
	return n
}

// Recorder is a notify.Notifier that keeps what it was sent.
type Recorder struct {
	mu  sync.Mutex
	got []notify.Notification
	Err error
}

func (r *Recorder) Send(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return r.Err
}

func (r *Recorder) Got() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.got)
}

func (r *Recorder) Titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.got))
	for _, n := range r.got {
		out = append(out, n.Title)
	}
	return out
}
