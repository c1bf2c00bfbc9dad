package watchdog

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hamed0406/dashwatch/internal/domain"
	"github.com/hamed0406/dashwatch/internal/notify"
)

// ---- shared helpers ----

var t0 = time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// manualSched records tasks and runs them only when the test says so.
type manualSched struct {
	mu    sync.Mutex
	tasks []*manualTask
}

type manualTask struct {
	s         *manualSched
	d         time.Duration
	fn        func()
	every     bool
	fired     bool
	cancelled bool
}

func (t *manualTask) Cancel() {
	t.s.mu.Lock()
	t.cancelled = true
	t.s.mu.Unlock()
}

func (s *manualSched) add(d time.Duration, fn func(), every bool) Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTask{s: s, d: d, fn: fn, every: every}
	s.tasks = append(s.tasks, t)
	return t
}

func (s *manualSched) Every(d time.Duration, fn func()) Task { return s.add(d, fn, true) }
func (s *manualSched) After(d time.Duration, fn func()) Task { return s.add(d, fn, false) }

// Tick runs every live periodic task once.
func (s *manualSched) Tick() {
	s.mu.Lock()
	var fns []func()
	for _, t := range s.tasks {
		if t.every && !t.cancelled {
			fns = append(fns, t.fn)
		}
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// RunAfters fires the one-shot tasks whose delay is at most max.
func (s *manualSched) RunAfters(max time.Duration) int {
	s.mu.Lock()
	var fns []func()
	for _, t := range s.tasks {
		if !t.every && !t.fired && !t.cancelled && t.d <= max {
			t.fired = true
			fns = append(fns, t.fn)
		}
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

func (s *manualSched) ActiveEvery() int {
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

func (s *manualSched) PendingAfters() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if !t.every && !t.fired && !t.cancelled {
			n++
		}
	}
	return n
}

type recorder struct {
	mu  sync.Mutex
	got []notify.Notification
	err error
}

func (r *recorder) Send(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return r.err
}

func (r *recorder) Got() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.got)
}

type prefs struct {
	mu  sync.Mutex
	m   map[string]bool
	err error
}

func (p *prefs) Set(id string, on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.m == nil {
		p.m = map[string]bool{}
	}
	p.m[id] = on
}

func (p *prefs) GetPreference(_ context.Context, id string) (*domain.Preference, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	on, ok := p.m[id]
	if !ok {
		return nil, nil
	}
	return &domain.Preference{SignalID: id, AlertsEnabled: on}, nil
}

type memDedup struct {
	mu sync.Mutex
	m  map[string][]byte
	// loadFailures makes that many LoadDedup calls fail first.
	loadFailures int
	loads        int
}

func (d *memDedup) LoadDedup(_ context.Context, id string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loads++
	if d.loadFailures > 0 {
		d.loadFailures--
		return nil, errors.New("store unavailable")
	}
	return d.m[id], nil
}

func (d *memDedup) SaveDedup(_ context.Context, id string, b []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.m == nil {
		d.m = map[string][]byte{}
	}
	d.m[id] = slices.Clone(b)
	return nil
}

// source is a scripted Poll function.
type source[T any] struct {
	mu    sync.Mutex
	v     T
	err   error
	hook  func(ctx context.Context) (T, error)
	calls int
}

func (s *source[T]) Set(v T) {
	s.mu.Lock()
	s.v, s.err = v, nil
	s.mu.Unlock()
}

func (s *source[T]) Fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *source[T]) Hook(fn func(ctx context.Context) (T, error)) {
	s.mu.Lock()
	s.hook = fn
	s.mu.Unlock()
}

func (s *source[T]) Poll(ctx context.Context) (T, error) {
	s.mu.Lock()
	s.calls++
	v, err, hook := s.v, s.err, s.hook
	s.mu.Unlock()
	if hook != nil {
		return hook(ctx)
	}
	return v, err
}

var errFetch = errors.New("fetch failed")

func stringAdapter(src *source[string]) Adapter[string] {
	return Adapter[string]{
		Poll:  src.Poll,
		Equal: func(a, b string) bool { return a == b },
		Format: func(tr Transition[string]) (Message, bool) {
			return Message{Title: "now " + tr.To, Body: tr.From + " -> " + tr.To}, true
		},
	}
}

func keyedAdapter(src *source[[]string]) Adapter[[]string] {
	return Adapter[[]string]{
		Poll:  src.Poll,
		Equal: func(a, b []string) bool { return slices.Equal(a, b) },
		Keys:  func(v []string) []string { return v },
		Format: func(tr Transition[[]string]) (Message, bool) {
			return Message{Title: "due: " + strings.Join(tr.Keys, ",")}, true
		},
		Describe: func(v []string) string { return strings.Join(v, ",") },
	}
}

type env struct {
	cfg   Config
	clock *fakeClock
	sched *manualSched
	notes *recorder
	life  *Broadcaster
	prefs *prefs
	dedup *memDedup
	logs  *observer.ObservedLogs
	log   *zap.Logger
}

func testConfig() Config {
	return Config{
		Interval:         10 * time.Second,
		ConfirmThreshold: 2,
		SleepGap:         30 * time.Second,
		GracePolls:       2,
	}
}

func newEnv(cfg Config) *env {
	core, logs := observer.New(zapcore.DebugLevel)
	return &env{
		cfg:   cfg,
		clock: &fakeClock{t: t0},
		sched: &manualSched{},
		notes: &recorder{},
		life:  NewBroadcaster(),
		prefs: &prefs{},
		dedup: &memDedup{},
		logs:  logs,
		log:   zap.New(core),
	}
}

func (e *env) deps() Deps {
	return Deps{
		Logger:    e.log,
		Notifier:  e.notes,
		Prefs:     e.prefs,
		Dedup:     e.dedup,
		Scheduler: e.sched,
		Lifecycle: e.life,
		Now:       e.clock.Now,
		Location:  time.UTC,
	}
}

// start starts h and runs the immediate baseline poll.
func (e *env) start(h Handle) {
	h.Start()
	e.sched.RunAfters(0)
}

// step lets one interval pass and runs the scheduled poll.
func (e *env) step() {
	e.clock.Advance(e.cfg.Interval)
	e.sched.Tick()
}

func (e *env) count(msg string) int {
	return e.logs.FilterMessage(msg).Len()
}

func newStringController(t *testing.T, e *env, src *source[string]) *Controller[string] {
	t.Helper()
	c, err := New("network", e.cfg, stringAdapter(src), e.deps())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}
