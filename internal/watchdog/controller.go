package watchdog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hamed0406/dashwatch/internal/domain"
	"github.com/hamed0406/dashwatch/internal/notify"
)

const (
	storeTimeout   = 5 * time.Second
	deliverTimeout = 15 * time.Second
)

// PreferenceReader supplies the per-signal "alerts enabled" flag.
type PreferenceReader interface {
	// GetPreference returns nil, nil when the user never set one.
	GetPreference(ctx context.Context, signalID string) (*domain.Preference, error)
}

// Deps are the collaborators of a Controller. Notifier is required, and Dedup
// is required when the adapter has Keys; everything else has a default.
type Deps struct {
	Logger    *zap.Logger
	Notifier  notify.Notifier
	Prefs     PreferenceReader
	Dedup     DedupStore
	Scheduler Scheduler
	Lifecycle LifecycleSource
	Now       func() time.Time
	Location  *time.Location
	Tracer    trace.Tracer
}

// Controller watches a single signal. All methods are safe for concurrent use.
type Controller[T any] struct {
	id      string
	cfg     Config
	adapter Adapter[T]

	log      *zap.Logger
	notifier notify.Notifier
	prefs    PreferenceReader
	dedup    *dailyDedup
	sched    Scheduler
	life     LifecycleSource
	now      func() time.Time
	tracer   trace.Tracer

	mu        sync.Mutex
	active    bool
	epoch     uint64 // bumped by Start and Stop; stale callbacks compare against it
	seq       uint64 // bumped per poll; only the latest poll may apply its result
	runCtx    context.Context
	cancelRun context.CancelFunc
	inflight  context.CancelFunc
	ticker    Task
	unsub     func()
	state     State[T]
	polls     int
	notified  int
}

// New validates cfg and the adapter and returns a stopped controller.
func New[T any](signalID string, cfg Config, a Adapter[T], deps Deps) (*Controller[T], error) {
	var err error
	if signalID == "" {
		err = errors.Join(err, errors.New("watchdog: empty signal id"))
	}
	if deps.Notifier == nil {
		err = errors.Join(err, errors.New("watchdog: Deps.Notifier is required"))
	}
	err = errors.Join(err, cfg.Validate(), a.validate(deps.Dedup != nil))
	if err != nil {
		return nil, fmt.Errorf("watchdog %q: %w", signalID, err)
	}

	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	sched := deps.Scheduler
	if sched == nil {
		sched = TimeScheduler{}
	}
	life := deps.Lifecycle
	if life == nil {
		life = NopSource{}
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	loc := deps.Location
	if loc == nil {
		loc = time.Local
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/hamed0406/dashwatch/internal/watchdog")
	}

	c := &Controller[T]{
		id:       signalID,
		cfg:      cfg,
		adapter:  a,
		log:      log.With(zap.String("signal", signalID)),
		notifier: deps.Notifier,
		prefs:    deps.Prefs,
		sched:    sched,
		life:     life,
		now:      now,
		tracer:   tracer,
		state:    newState[T](signalID),
	}
	if a.Keys != nil {
		c.dedup = &dailyDedup{store: deps.Dedup, signal: signalID, loc: loc, log: c.log}
	}
	return c, nil
}

func (c *Controller[T]) SignalID() string { return c.id }

// Start begins polling. Calling Start on an active controller does nothing.
// The first poll runs right away and only records a baseline.
func (c *Controller[T]) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return
	}
	c.active = true
	c.epoch++
	c.state = newState[T](c.id)
	c.runCtx, c.cancelRun = context.WithCancel(context.Background())
	c.ticker = c.sched.Every(c.cfg.Interval, c.tick)
	c.sched.After(0, c.tick)
	c.unsub = c.life.Subscribe(c.onLifecycle)

	c.log.Info("watchdog_started",
		zap.Duration("interval", c.cfg.Interval),
		zap.Int("confirm_threshold", c.cfg.ConfirmThreshold),
		zap.Duration("debounce", c.cfg.Debounce),
		zap.Duration("sleep_gap", c.cfg.SleepGap),
		zap.Int("grace_polls", c.cfg.GracePolls),
	)
}

// Stop halts polling, cancels the debounce timer and any in-flight fetch, and
// forgets the transition state. Persisted de-duplication records are kept.
// A fetch that completes after Stop is discarded.
func (c *Controller[T]) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	c.active = false
	c.epoch++
	if c.ticker != nil {
		c.ticker.Cancel()
		c.ticker = nil
	}
	c.cancelPendingLocked("stopped")
	if c.inflight != nil {
		c.inflight()
		c.inflight = nil
	}
	c.cancelRun()
	if c.unsub != nil {
		c.unsub()
		c.unsub = nil
	}
	c.state = newState[T](c.id)
	c.log.Info("watchdog_stopped")
}

// ForceCheck polls immediately, through the same pipeline as scheduled polls.
func (c *Controller[T]) ForceCheck() error {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if !active {
		return ErrNotActive
	}
	c.poll("forced")
	return nil
}

// Active reports whether the controller is polling.
func (c *Controller[T]) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Value returns the accepted value, if a baseline exists.
func (c *Controller[T]) Value() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.LastKnown, c.state.Initialized
}

// Snapshot is for display only; never base control decisions on it.
func (c *Controller[T]) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := &c.state
	s := Snapshot{
		SignalID:             c.id,
		Active:               c.active,
		Initialized:          st.Initialized,
		ConsecutiveMatches:   st.ConsecutiveMatchCount,
		Pending:              st.Pending != nil,
		Suppressed:           st.Suppressed(),
		SuppressionRemaining: st.SuppressionRemaining,
		LastPoll:             st.LastPoll,
		Polls:                c.polls,
		Notifications:        c.notified,
	}
	if st.Initialized {
		s.Value = c.adapter.describe(st.LastKnown)
	}
	if st.HasCandidate {
		s.Candidate = c.adapter.describe(st.Candidate)
	}
	return s
}

func (c *Controller[T]) tick() { c.poll("scheduled") }

// poll runs one cycle. It never panics: a failure inside one cycle is logged
// and the next scheduled poll still happens.
func (c *Controller[T]) poll(trigger string) {
	defer func() {
		if r := recover(); r != nil {
			pollsTotal.WithLabelValues(c.id, "panic").Inc()
			c.log.Error("watchdog_poll_panic",
				zap.String("trigger", trigger),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	p, ok := c.beginPoll()
	if !ok {
		return
	}
	defer p.cancel()

	v, err := c.fetch(p.ctx, trigger)
	if n := c.observe(p, v, err); n != nil {
		c.deliver(*n)
	}
}

// pollTicket identifies one poll cycle from start to observation.
type pollTicket struct {
	epoch, seq uint64
	ctx        context.Context
	cancel     context.CancelFunc
	// graced is set when the poll started inside a post-sleep grace window.
	graced bool
}

func (c *Controller[T]) beginPoll() (pollTicket, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return pollTicket{}, false
	}
	c.detectGapLocked(c.now())

	// Every poll after a sleep uses up one grace poll, whatever it observes.
	st := &c.state
	graced := st.SuppressionRemaining > 0
	if graced {
		st.SuppressionRemaining--
	}

	// A newer poll supersedes an older one still waiting on the network.
	if c.inflight != nil {
		c.inflight()
	}
	c.seq++
	ctx, cancel := context.WithTimeout(c.runCtx, c.cfg.timeout())
	c.inflight = cancel
	c.polls++
	return pollTicket{epoch: c.epoch, seq: c.seq, ctx: ctx, cancel: cancel, graced: graced}, true
}

func (c *Controller[T]) detectGapLocked(now time.Time) {
	st := &c.state
	// Wall clock: the monotonic clock does not advance while the host is suspended.
	wall := now.Round(0)
	if !st.LastPoll.IsZero() {
		if gap := wall.Sub(st.LastPoll); gap > c.cfg.SleepGap {
			c.enterGraceLocked("elapsed", wall, gap)
		}
	}
	st.LastPoll = wall
}

func (c *Controller[T]) enterGraceLocked(detector string, at time.Time, gap time.Duration) {
	st := &c.state
	st.clearCandidate()
	c.cancelPendingLocked("sleep")
	st.SuppressionRemaining = c.cfg.GracePolls
	st.SleepDetected = at
	sleepEventsTotal.WithLabelValues(c.id, detector).Inc()
	c.log.Info("watchdog_sleep_detected",
		zap.String("detector", detector),
		zap.Duration("gap", gap),
		zap.Int("grace_polls", c.cfg.GracePolls),
	)
}

func (c *Controller[T]) fetch(ctx context.Context, trigger string) (T, error) {
	ctx, span := c.tracer.Start(ctx, "watchdog.poll", trace.WithAttributes(
		attribute.String("signal.id", c.id),
		attribute.String("trigger", trigger),
	))
	defer span.End()

	start := time.Now()
	v, err := c.adapter.Poll(ctx)
	pollDuration.WithLabelValues(c.id).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return v, err
}

func (c *Controller[T]) observe(p pollTicket, v T, err error) *notify.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active || p.epoch != c.epoch || p.seq != c.seq {
		pollsTotal.WithLabelValues(c.id, "discarded").Inc()
		c.log.Debug("watchdog_poll_discarded")
		return nil
	}
	c.inflight = nil

	if err != nil {
		var folded bool
		if c.adapter.Fold != nil {
			v, folded = c.adapter.Fold(err)
		}
		c.log.Warn("watchdog_poll_error", zap.Error(err), zap.Bool("folded", folded))
		if !folded {
			pollsTotal.WithLabelValues(c.id, "dropped").Inc()
			return nil
		}
		pollsTotal.WithLabelValues(c.id, "degraded").Inc()
	} else {
		pollsTotal.WithLabelValues(c.id, "ok").Inc()
	}

	ctx, cancel := context.WithTimeout(c.runCtx, storeTimeout)
	defer cancel()
	return c.observeLocked(ctx, v, p.graced)
}

func (c *Controller[T]) observeLocked(ctx context.Context, v T, graced bool) *notify.Notification {
	st := &c.state
	now := c.now()
	st.LastObserved, st.HasObserved = v, true

	if !st.Initialized {
		st.LastKnown = v
		st.Initialized = true
		c.log.Info("watchdog_baseline", zap.String("value", c.adapter.describe(v)))
		return nil
	}

	var (
		unseen  []string
		changed bool
	)
	if c.dedup != nil {
		unseen = c.dedup.unseen(ctx, now, c.adapter.Keys(v))
		changed = len(unseen) > 0
	} else {
		changed = !c.adapter.Equal(st.LastKnown, v)
	}

	if !changed {
		st.clearCandidate()
		if c.dedup != nil {
			st.LastKnown = v
		}
		return nil
	}

	if st.HasCandidate && c.adapter.Equal(st.Candidate, v) {
		st.ConsecutiveMatchCount++
	} else {
		st.Candidate = v
		st.HasCandidate = true
		st.ConsecutiveMatchCount = 1
	}
	if st.ConsecutiveMatchCount < c.cfg.ConfirmThreshold {
		c.log.Debug("watchdog_candidate",
			zap.String("candidate", c.adapter.describe(v)),
			zap.Int("matches", st.ConsecutiveMatchCount),
		)
		return nil
	}
	return c.confirmLocked(ctx, v, unseen, now, graced)
}

func (c *Controller[T]) confirmLocked(ctx context.Context, v T, unseen []string, now time.Time, graced bool) *notify.Notification {
	st := &c.state
	tr := Transition[T]{SignalID: c.id, From: st.LastKnown, To: v, Keys: unseen, At: now}
	st.LastKnown = v
	st.clearCandidate()
	transitionsTotal.WithLabelValues(c.id).Inc()
	c.log.Info("watchdog_transition",
		zap.String("from", c.adapter.describe(tr.From)),
		zap.String("to", c.adapter.describe(tr.To)),
	)

	if p := st.Pending; p != nil {
		c.cancelPendingLocked("superseded")
		if c.adapter.Equal(p.tr.From, v) {
			// Flapped back before the first notification went out: nothing happened.
			suppressedTotal.WithLabelValues(c.id, "debounce").Inc()
			c.log.Info("watchdog_debounce_reverted")
			return nil
		}
		tr.From = p.tr.From
	}

	if graced {
		c.markLocked(ctx, now, unseen)
		suppressedTotal.WithLabelValues(c.id, "sleep").Inc()
		c.log.Info("watchdog_suppressed", zap.String("reason", "sleep"), zap.Int("remaining", st.SuppressionRemaining))
		return nil
	}
	if !c.alertsEnabledLocked(ctx) {
		c.markLocked(ctx, now, unseen)
		suppressedTotal.WithLabelValues(c.id, "disabled").Inc()
		c.log.Info("watchdog_suppressed", zap.String("reason", "disabled"))
		return nil
	}

	msg, ok := c.adapter.Format(tr)
	if !ok {
		c.markLocked(ctx, now, unseen)
		c.log.Debug("watchdog_transition_silent")
		return nil
	}
	n := notify.Notification{
		ID:         uuid.NewString(),
		SignalID:   c.id,
		Title:      msg.Title,
		Body:       msg.Body,
		Link:       msg.Link,
		At:         now,
		OnActivate: msg.OnActivate,
	}

	if c.cfg.Debounce > 0 && !st.FirstNotified {
		p := &pendingTransition[T]{tr: tr, n: n, keys: unseen}
		epoch := c.epoch
		p.task = c.sched.After(c.cfg.Debounce, func() { c.firePending(p, epoch) })
		st.Pending = p
		c.log.Debug("watchdog_debounce_scheduled", zap.Duration("delay", c.cfg.Debounce))
		return nil
	}

	st.FirstNotified = true
	c.markLocked(ctx, now, unseen)
	return &n
}

func (c *Controller[T]) firePending(p *pendingTransition[T], epoch uint64) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("watchdog_debounce_panic", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	if n, ok := c.resolvePending(p, epoch); ok {
		c.deliver(n)
	}
}

// resolvePending re-validates a debounced transition at fire time.
func (c *Controller[T]) resolvePending(p *pendingTransition[T], epoch uint64) (notify.Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := &c.state
	if !c.active || c.epoch != epoch || st.Pending != p {
		return notify.Notification{}, false
	}
	st.Pending = nil

	if !c.adapter.Equal(st.LastKnown, p.tr.To) || !c.adapter.Equal(st.LastObserved, p.tr.To) {
		// The value moved away during the debounce window; treat the transition as never accepted.
		st.LastKnown = p.tr.From
		st.clearCandidate()
		suppressedTotal.WithLabelValues(c.id, "debounce").Inc()
		c.log.Info("watchdog_debounce_cancelled", zap.String("observed", c.adapter.describe(st.LastObserved)))
		return notify.Notification{}, false
	}

	ctx, cancel := context.WithTimeout(c.runCtx, storeTimeout)
	defer cancel()
	now := c.now()
	if !c.alertsEnabledLocked(ctx) {
		c.markLocked(ctx, now, p.keys)
		suppressedTotal.WithLabelValues(c.id, "disabled").Inc()
		return notify.Notification{}, false
	}
	st.FirstNotified = true
	c.markLocked(ctx, now, p.keys)
	return p.n, true
}

func (c *Controller[T]) cancelPendingLocked(reason string) {
	st := &c.state
	if st.Pending == nil {
		return
	}
	st.Pending.task.Cancel()
	st.Pending = nil
	c.log.Debug("watchdog_debounce_dropped", zap.String("reason", reason))
}

func (c *Controller[T]) markLocked(ctx context.Context, now time.Time, keys []string) {
	if c.dedup != nil {
		c.dedup.mark(ctx, now, keys)
	}
}

func (c *Controller[T]) alertsEnabledLocked(ctx context.Context) bool {
	if c.prefs == nil {
		return true
	}
	p, err := c.prefs.GetPreference(ctx, c.id)
	if err != nil {
		c.log.Warn("preference_read_error", zap.Error(err))
		return true
	}
	if p == nil {
		return true
	}
	return p.AlertsEnabled
}

func (c *Controller[T]) deliver(n notify.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	if err := c.notifier.Send(ctx, n); err != nil {
		c.log.Warn("watchdog_notify_error", zap.String("title", n.Title), zap.Error(err))
		return
	}

	c.mu.Lock()
	c.notified++
	c.mu.Unlock()
	notificationsTotal.WithLabelValues(c.id).Inc()
	c.log.Info("watchdog_notified", zap.String("id", n.ID), zap.String("title", n.Title))
}

func (c *Controller[T]) onLifecycle(ev LifecycleEvent) {
	if c.handleLifecycle(ev) {
		c.sched.After(0, func() { c.poll("resume") })
	}
}

// handleLifecycle applies a suspend/resume event and reports whether a poll
// should follow.
func (c *Controller[T]) handleLifecycle(ev LifecycleEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return false
	}
	st := &c.state
	at := ev.At.Round(0)

	switch ev.Kind {
	case Suspend:
		if st.HiddenAt.IsZero() {
			st.HiddenAt = at
		}
		return false
	case Resume:
		hidden := st.HiddenAt
		st.HiddenAt = time.Time{}
		if hidden.IsZero() {
			return false
		}
		if gap := at.Sub(hidden); gap > c.cfg.SleepGap {
			// The elapsed-time detector may already have caught this sleep.
			if st.SleepDetected.Before(hidden) {
				c.enterGraceLocked("visibility", at, gap)
			}
			st.LastPoll = at
		}
		return c.cfg.CheckOnResume
	}
	return false
}
