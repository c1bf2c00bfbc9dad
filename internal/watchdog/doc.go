// Package watchdog runs background health monitors.
//
// A [Controller] polls one signal on an interval, requires a number of
// consistent observations before it accepts a new value, mutes alerts for a
// few transitions after the host was asleep, and hands one notification per
// real transition to a [notify.Notifier]. The value type is a type parameter,
// so the same engine watches a boolean connectivity flag, a severity enum or a
// set of due reminders.
//
// A [Registry] keys controllers by signal id and guarantees a single active
// poll loop per id no matter how many callers ask to start it.
package watchdog
