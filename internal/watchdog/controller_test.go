package watchdog

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/dashwatch/internal/domain"
)

func TestNew_RejectsIncompleteSetup(t *testing.T) {
	e := newEnv(testConfig())

	_, err := New("x", e.cfg, Adapter[string]{}, e.deps())
	require.ErrorIs(t, err, ErrMissingAdapterFunc)

	_, err = New("", e.cfg, stringAdapter(&source[string]{}), e.deps())
	require.Error(t, err)

	d := e.deps()
	d.Notifier = nil
	_, err = New("x", e.cfg, stringAdapter(&source[string]{}), d)
	require.Error(t, err)

	d = e.deps()
	d.Dedup = nil
	_, err = New("x", e.cfg, keyedAdapter(&source[[]string]{}), d)
	require.ErrorContains(t, err, "Keys requires Deps.Dedup")

	bad := e.cfg
	bad.SleepGap = bad.Interval
	_, err = New("x", bad, stringAdapter(&source[string]{}), e.deps())
	require.ErrorContains(t, err, "SleepGap")
}

func TestFirstPollNeverNotifies(t *testing.T) {
	e := newEnv(testConfig())
	src := &source[string]{v: "offline"}
	c := newStringController(t, e, src)

	e.start(c)

	require.Empty(t, e.notes.Got())
	snap := c.Snapshot()
	require.True(t, snap.Initialized)
	require.Equal(t, "offline", snap.Value)
	require.Equal(t, 1, e.count("watchdog_baseline"))
}

func TestConfirmThreshold(t *testing.T) {
	e := newEnv(testConfig())
	src := &source[string]{v: "online"}
	c := newStringController(t, e, src)
	e.start(c)

	src.Set("offline")
	e.step()
	require.Empty(t, e.notes.Got(), "one observation is not enough")
	require.Equal(t, 1, c.Snapshot().ConsecutiveMatches)
	require.Equal(t, "offline", c.Snapshot().Candidate)

	// A blip back resets the count.
	src.Set("online")
	e.step()
	require.Zero(t, c.Snapshot().ConsecutiveMatches)

	src.Set("offline")
	e.step()
	e.step()

	got := e.notes.Got()
	require.Len(t, got, 1)
	assert.Equal(t, "now offline", got[0].Title)
	assert.Equal(t, "online -> offline", got[0].Body)
	assert.Equal(t, "network", got[0].SignalID)
	assert.NotEmpty(t, got[0].ID)
	assert.Equal(t, "offline", c.Snapshot().Value)

	// Staying offline does not repeat the alert.
	e.step()
	e.step()
	require.Len(t, e.notes.Got(), 1)
}

func TestDebounceDelaysOnlyTheFirstNotification(t *testing.T) {
	cfg := testConfig()
	cfg.Debounce = 3 * time.Second
	e := newEnv(cfg)
	src := &source[string]{v: "online"}
	c := newStringController(t, e, src)
	e.start(c)

	src.Set("offline")
	e.step()
	e.step()
	require.Empty(t, e.notes.Got())
	require.True(t, c.Snapshot().Pending)

	require.Equal(t, 1, e.sched.RunAfters(cfg.Debounce))
	require.Len(t, e.notes.Got(), 1)
	require.False(t, c.Snapshot().Pending)

	src.Set("online")
	e.step()
	e.step()
	require.Len(t, e.notes.Got(), 2, "later transitions are not debounced")
	require.Zero(t, e.sched.PendingAfters())
}

func TestDebounceCancelledWhenValueMovesAway(t *testing.T) {
	cfg := testConfig()
	cfg.Debounce = 3 * time.Second
	e := newEnv(cfg)
	src := &source[string]{v: "online"}
	c := newStringController(t, e, src)
	e.start(c)

	src.Set("offline")
	e.step()
	e.step()
	require.True(t, c.Snapshot().Pending)

	// Back online before the timer fires, but not yet confirmed.
	src.Set("online")
	e.step()

	e.sched.RunAfters(cfg.Debounce)
	require.Empty(t, e.notes.Got())
	require.Equal(t, "online", c.Snapshot().Value)
	require.Equal(t, 1, e.count("watchdog_debounce_cancelled"))

	// Nothing to report: the link never really went down.
	e.step()
	e.step()
	require.Empty(t, e.notes.Got())
}

func TestDebounceFlapBackIsSilent(t *testing.T) {
	cfg := testConfig()
	cfg.Debounce = 3 * time.Second
	e := newEnv(cfg)
	src := &source[string]{v: "online"}
	c := newStringController(t, e, src)
	e.start(c)

	src.Set("offline")
	e.step()
	e.step()
	src.Set("online")
	e.step()
	e.step()

	require.False(t, c.Snapshot().Pending)
	require.Zero(t, e.sched.RunAfters(time.Hour), "the pending timer was cancelled")
	require.Empty(t, e.notes.Got())
	require.Equal(t, 1, e.count("watchdog_debounce_reverted"))
}

func TestDebounceRetargetsToLatestValue(t *testing.T) {
	cfg := testConfig()
	cfg.Debounce = 3 * time.Second
	e := newEnv(cfg)
	src := &source[string]{v: "operational"}
	c := newStringController(t, e, src)
	e.start(c)

	src.Set("degraded")
	e.step()
	e.step()
	src.Set("outage")
	e.step()
	e.step()

	require.Equal(t, 1, e.sched.RunAfters(cfg.Debounce), "only the newest timer survives")
	got := e.notes.Got()
	require.Len(t, got, 1)
	require.Equal(t, "operational -> outage", got[0].Body)
}

func TestSleepGapOpensGracePeriod(t *testing.T) {
	e := newEnv(testConfig())
	src := &source[string]{v: "online"}
	c := newStringController(t, e, src)
	e.start(c)

	// The laptop lid was closed for ten minutes.
	e.clock.Advance(10 * time.Minute)
	src.Set("offline")
	e.sched.Tick()
	require.True(t, c.Snapshot().Suppressed)
	require.Equal(t, 1, c.Snapshot().SuppressionRemaining)
	require.Equal(t, 1, e.count("watchdog_sleep_detected"))

	e.step()
	require.Equal(t, "offline", c.Snapshot().Value)
	require.False(t, c.Snapshot().Suppressed, "grace ends after GracePolls polls")
	require.Empty(t, e.notes.Got(), "the transition confirmed during grace stays silent")
	require.Equal(t, 1, e.count("watchdog_suppressed"))

	src.Set("online")
	e.step()
	e.step()
	require.Len(t, e.notes.Got(), 1)
	require.Equal(t, "now online", e.notes.Got()[0].Title)
}

func TestGraceExpiresWhileSignalIsStable(t *testing.T) {
	e := newEnv(testConfig())
	src := &source[string]{v: "online"}
	c := newStringController(t, e, src)
	e.start(c)

	e.clock.Advance(time.Hour)
	e.sched.Tick()
	require.True(t, c.Snapshot().Suppressed)

	for range 100 {
		e.step()
	}
	require.False(t, c.Snapshot().Suppressed)
	require.Zero(t, c.Snapshot().SuppressionRemaining)

	src.Set("offline")
	e.step()
	e.step()
	require.Len(t, e.notes.Got(), 1, "an outage long after waking is reported")

	src.Set("online")
	e.step()
	e.step()
	require.Len(t, e.notes.Got(), 2, "and so is its recovery")
}

func TestSleepCancelsPendingDebounce(t *testing.T) {
	cfg := testConfig()
	cfg.Debounce = 3 * time.Second
	e := newEnv(cfg)
	src := &source[string]{v: "online"}
	c := newStringController(t, e, src)
	e.start(c)

	src.Set("offline")
	e.step()
	e.step()
	require.True(t, c.Snapshot().Pending)

	e.clock.Advance(time.Hour)
	e.sched.Tick()
	require.False(t, c.Snapshot().Pending)
	require.Zero(t, e.sched.RunAfters(cfg.Debounce))
	require.Empty(t, e.notes.Got())
}

func TestVisibilityResumeEntersGraceOnce(t *testing.T) {
	cfg := testConfig()
	cfg.CheckOnResume = true
	e := newEnv(cfg)
	src := &source[string]{v: "online"}
	c := newStringController(t, e, src)
	e.start(c)

	e.life.Visibility(true, e.clock.Now())
	e.clock.Advance(5 * time.Minute)
	e.life.Visibility(false, e.clock.Now())

	snap := c.Snapshot()
	require.True(t, snap.Suppressed)
	require.Equal(t, cfg.GracePolls, snap.SuppressionRemaining)

	// The resume check and the next tick must not count the same sleep again.
	require.Equal(t, 1, e.sched.RunAfters(0))
	e.step()
	require.Equal(t, 1, e.count("watchdog_sleep_detected"))
	require.False(t, c.Snapshot().Suppressed, "the resume check and the tick used up the grace polls")
}

func TestVisibilityAfterElapsedDetectorIsIgnored(t *testing.T) {
	e := newEnv(testConfig())
	src := &source[string]{v: "online"}
	c := newStringController(t, e, src)
	e.start(c)

	e.life.Visibility(true, e.clock.Now())
	e.clock.Advance(5 * time.Minute)
	e.sched.Tick() // the timer fired first on wake
	e.life.Visibility(false, e.clock.Now())

	require.Equal(t, 1, e.count("watchdog_sleep_detected"))
	require.Zero(t, e.sched.PendingAfters(), "CheckOnResume is off")
}

func TestShortHideIsNotSleep(t *testing.T) {
	e := newEnv(testConfig())
	src := &source[string]{v: "online"}
	c := newStringController(t, e, src)
	e.start(c)

	e.life.Visibility(true, e.clock.Now())
	e.clock.Advance(5 * time.Second)
	e.life.Visibility(false, e.clock.Now())

	require.False(t, c.Snapshot().Suppressed)
	require.Zero(t, e.count("watchdog_sleep_detected"))
}

func TestPreferenceIsReadBeforeEveryNotification(t *testing.T) {
	e := newEnv(testConfig())
	src := &source[string]{v: "online"}
	c := newStringController(t, e, src)
	e.start(c)

	disabled := testutil.ToFloat64(suppressedTotal.WithLabelValues("network", "disabled"))
	e.prefs.Set("network", false)
	src.Set("offline")
	e.step()
	e.step()
	require.Empty(t, e.notes.Got())
	require.Equal(t, disabled+1, testutil.ToFloat64(suppressedTotal.WithLabelValues("network", "disabled")))
	require.Equal(t, "offline", c.Snapshot().Value, "the transition is still accepted")

	e.prefs.Set("network", true)
	src.Set("online")
	e.step()
	e.step()
	require.Len(t, e.notes.Got(), 1)
}

func TestPreferenceReadErrorFailsOpen(t *testing.T) {
	e := newEnv(testConfig())
	e.prefs.err = errors.New("db down")
	src := &source[string]{v: "online"}
	c := newStringController(t, e, src)
	e.start(c)

	src.Set("offline")
	e.step()
	e.step()
	require.Len(t, e.notes.Got(), 1)
	require.Equal(t, 1, e.count("preference_read_error"))
}

func TestFetchErrors(t *testing.T) {
	t.Run("dropped without Fold", func(t *testing.T) {
		e := newEnv(testConfig())
		src := &source[string]{v: "online"}
		c := newStringController(t, e, src)
		e.start(c)

		src.Fail(errFetch)
		e.step()
		e.step()
		e.step()
		require.Empty(t, e.notes.Got())
		require.Equal(t, "online", c.Snapshot().Value)
		require.Equal(t, 3, e.count("watchdog_poll_error"))
	})

	t.Run("folded into a value", func(t *testing.T) {
		e := newEnv(testConfig())
		src := &source[string]{v: "online"}
		a := stringAdapter(src)
		a.Fold = func(error) (string, bool) { return "offline", true }
		c, err := New("network", e.cfg, a, e.deps())
		require.NoError(t, err)
		e.start(c)

		src.Fail(errFetch)
		e.step()
		e.step()
		require.Len(t, e.notes.Got(), 1)
		require.Equal(t, "offline", c.Snapshot().Value)
	})
}

func TestPanicInPollIsContained(t *testing.T) {
	e := newEnv(testConfig())
	src := &source[string]{v: "online"}
	c := newStringController(t, e, src)
	e.start(c)

	panics := testutil.ToFloat64(pollsTotal.WithLabelValues("network", "panic"))
	src.Hook(func(context.Context) (string, error) { panic("boom") })
	require.NotPanics(t, e.step)
	require.Equal(t, 1, e.count("watchdog_poll_panic"))
	require.Equal(t, panics+1, testutil.ToFloat64(pollsTotal.WithLabelValues("network", "panic")))

	src.Hook(nil)
	src.Set("offline")
	e.step()
	e.step()
	require.Len(t, e.notes.Got(), 1, "the controller keeps working")
}

func TestNotifierErrorIsLogged(t *testing.T) {
	e := newEnv(testConfig())
	e.notes.err = errors.New("slack down")
	src := &source[string]{v: "online"}
	c := newStringController(t, e, src)
	e.start(c)

	src.Set("offline")
	e.step()
	e.step()
	require.Equal(t, 1, e.count("watchdog_notify_error"))
	require.Zero(t, c.Snapshot().Notifications, "only delivered notifications are counted")

	e.notes.mu.Lock()
	e.notes.err = nil
	e.notes.mu.Unlock()
	src.Set("online")
	e.step()
	e.step()
	require.Equal(t, 1, c.Snapshot().Notifications)
}

func TestStartIsIdempotent(t *testing.T) {
	e := newEnv(testConfig())
	c := newStringController(t, e, &source[string]{v: "online"})

	c.Start()
	c.Start()
	require.Equal(t, 1, e.sched.ActiveEvery())
	require.Equal(t, 1, e.life.Subscribers())
	require.Equal(t, 1, e.count("watchdog_started"))
}

func TestStopReleasesEverything(t *testing.T) {
	cfg := testConfig()
	cfg.Debounce = 3 * time.Second
	e := newEnv(cfg)
	src := &source[string]{v: "online"}
	c := newStringController(t, e, src)
	e.start(c)

	src.Set("offline")
	e.step()
	e.step()
	require.True(t, c.Snapshot().Pending)

	c.Stop()
	require.Zero(t, e.sched.ActiveEvery())
	require.Zero(t, e.sched.PendingAfters())
	require.Zero(t, e.life.Subscribers())
	require.ErrorIs(t, c.ForceCheck(), ErrNotActive)

	snap := c.Snapshot()
	require.False(t, snap.Active)
	require.False(t, snap.Initialized)
	require.Empty(t, e.notes.Got())

	// Restarting begins from a fresh baseline.
	e.start(c)
	require.Equal(t, 1, e.sched.ActiveEvery())
	require.Equal(t, "offline", c.Snapshot().Value)
	require.Empty(t, e.notes.Got())
}

func TestResultAfterStopIsDiscarded(t *testing.T) {
	e := newEnv(testConfig())
	src := &source[string]{v: "online"}
	c := newStringController(t, e, src)
	e.start(c)

	entered := make(chan struct{})
	release := make(chan struct{})
	var ctxErr error
	src.Hook(func(ctx context.Context) (string, error) {
		close(entered)
		<-release
		ctxErr = ctx.Err()
		return "offline", nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = c.ForceCheck()
	}()
	<-entered
	c.Stop()
	close(release)
	wg.Wait()

	require.ErrorIs(t, ctxErr, context.Canceled)
	require.False(t, c.Snapshot().Initialized)
	require.Equal(t, 1, e.count("watchdog_poll_discarded"))
}

func TestNewerPollSupersedesInFlight(t *testing.T) {
	e := newEnv(testConfig())
	src := &source[string]{v: "online"}
	c := newStringController(t, e, src)
	e.start(c)

	entered := make(chan struct{})
	release := make(chan struct{})
	var ctxErr error
	src.Hook(func(ctx context.Context) (string, error) {
		close(entered)
		<-release
		ctxErr = ctx.Err()
		return "offline", nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = c.ForceCheck()
	}()
	<-entered

	src.Hook(nil)
	require.NoError(t, c.ForceCheck())
	close(release)
	wg.Wait()

	require.ErrorIs(t, ctxErr, context.Canceled)
	require.Zero(t, c.Snapshot().ConsecutiveMatches, "the stale offline result was not observed")
	require.Equal(t, 1, e.count("watchdog_poll_discarded"))
}

func keyedConfig() Config {
	return Config{
		Interval:         time.Minute,
		ConfirmThreshold: 1,
		SleepGap:         2 * time.Minute,
	}
}

func newKeyed(t *testing.T, e *env, src *source[[]string]) *Controller[[]string] {
	t.Helper()
	c, err := New("reminders", e.cfg, keyedAdapter(src), e.deps())
	require.NoError(t, err)
	return c
}

func TestKeyedNotifiesEachKeyOncePerDay(t *testing.T) {
	e := newEnv(keyedConfig())
	src := &source[[]string]{v: []string{"a"}}
	c := newKeyed(t, e, src)
	e.start(c)
	require.Empty(t, e.notes.Got())

	e.step()
	got := e.notes.Got()
	require.Len(t, got, 1, "already-due items are reported once after the baseline")
	require.Equal(t, "due: a", got[0].Title)

	e.step()
	require.Len(t, e.notes.Got(), 1)

	src.Set([]string{"a", "b"})
	e.step()
	got = e.notes.Got()
	require.Len(t, got, 2)
	require.Equal(t, "due: b", got[1].Title)

	var rec domain.DedupRecord
	require.NoError(t, json.Unmarshal(e.dedup.m["reminders"], &rec))
	require.Equal(t, "2026-10-18", rec.Date)
	require.ElementsMatch(t, []string{"a", "b"}, rec.NotifiedIDs)

	// Completing an item is not a notification.
	src.Set([]string{"b"})
	e.step()
	require.Len(t, e.notes.Got(), 2)
	require.Equal(t, "b", c.Snapshot().Value)
}

func TestKeyedRecordSurvivesRestart(t *testing.T) {
	e := newEnv(keyedConfig())
	src := &source[[]string]{v: []string{"a"}}
	c := newKeyed(t, e, src)
	e.start(c)
	e.step()
	require.Len(t, e.notes.Got(), 1)
	c.Stop()

	c2 := newKeyed(t, e, src)
	e.start(c2)
	e.step()
	e.step()
	require.Len(t, e.notes.Got(), 1)
}

func TestKeyedCorruptRecordIsReset(t *testing.T) {
	e := newEnv(keyedConfig())
	e.dedup.m = map[string][]byte{"reminders": []byte("{not json")}
	src := &source[[]string]{v: []string{"a"}}
	c := newKeyed(t, e, src)
	e.start(c)
	e.step()

	require.Len(t, e.notes.Got(), 1)
	require.Equal(t, 1, e.count("dedup_record_reset"))
}

func TestKeyedLoadErrorIsRetried(t *testing.T) {
	e := newEnv(keyedConfig())
	stored, _ := json.Marshal(domain.DedupRecord{Date: "2026-10-18", NotifiedIDs: []string{"a"}})
	e.dedup.m = map[string][]byte{"reminders": stored}
	e.dedup.loadFailures = 1
	src := &source[[]string]{v: []string{"a"}}
	c := newKeyed(t, e, src)
	e.start(c)

	e.step()
	require.Empty(t, e.notes.Got(), "nothing is announced while the record is unreadable")
	require.Equal(t, 1, e.count("dedup_record_load_error"))

	e.step()
	require.Empty(t, e.notes.Got(), "a was already announced today")
	require.Equal(t, 2, e.dedup.loads)

	src.Set([]string{"a", "b"})
	e.step()
	got := e.notes.Got()
	require.Len(t, got, 1)
	require.Equal(t, "due: b", got[0].Title)

	var rec domain.DedupRecord
	require.NoError(t, json.Unmarshal(e.dedup.m["reminders"], &rec))
	require.ElementsMatch(t, []string{"a", "b"}, rec.NotifiedIDs)
}

func TestKeyedRecordFromAnotherDayIsIgnored(t *testing.T) {
	e := newEnv(keyedConfig())
	old, _ := json.Marshal(domain.DedupRecord{Date: "2026-10-17", NotifiedIDs: []string{"a"}})
	e.dedup.m = map[string][]byte{"reminders": old}
	src := &source[[]string]{v: []string{"a"}}
	c := newKeyed(t, e, src)
	e.start(c)
	e.step()

	require.Len(t, e.notes.Got(), 1)
	require.Equal(t, 1, e.count("dedup_record_rollover"))
}

func TestKeyedMidnightRollover(t *testing.T) {
	e := newEnv(keyedConfig())
	src := &source[[]string]{v: []string{"a"}}
	c := newKeyed(t, e, src)
	e.start(c)
	e.step()
	require.Len(t, e.notes.Got(), 1)

	e.clock.Advance(24 * time.Hour)
	e.sched.Tick()
	require.Len(t, e.notes.Got(), 2, "a still-due item is reported again the next day")
}

func TestKeyedSuppressedKeysAreStillMarked(t *testing.T) {
	cfg := keyedConfig()
	cfg.GracePolls = 1
	e := newEnv(cfg)
	src := &source[[]string]{v: nil}
	c := newKeyed(t, e, src)
	e.start(c)

	e.clock.Advance(time.Hour)
	src.Set([]string{"a"})
	e.sched.Tick()
	require.Empty(t, e.notes.Got())

	e.step()
	require.Empty(t, e.notes.Got(), "the muted key is remembered for the day")
}
