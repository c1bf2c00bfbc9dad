package watchdog

import (
	"errors"
	"time"
)

// Config tunes a Controller.
type Config struct {
	// Interval between scheduled polls.
	Interval time.Duration

	// Timeout bounds a single fetch, independently of Interval. Zero means Interval.
	Timeout time.Duration

	// ConfirmThreshold is the number of consecutive polls that must report the
	// same new value before the transition is accepted.
	ConfirmThreshold int

	// Debounce delays the first notification-worthy transition after start.
	// Later transitions notify immediately.
	Debounce time.Duration

	// SleepGap is the pause between polls (or the hidden duration reported by
	// the lifecycle source) beyond which the host is assumed to have slept.
	SleepGap time.Duration

	// GracePolls is how many confirmed transitions are muted after a sleep.
	GracePolls int

	// CheckOnResume issues an immediate poll when the lifecycle source reports a resume.
	CheckOnResume bool
}

// Validate reports every problem with c at once.
func (c Config) Validate() error {
	var err error
	if c.Interval <= 0 {
		err = errors.Join(err, errors.New("Config.Interval must be positive"))
	}
	if c.Timeout < 0 {
		err = errors.Join(err, errors.New("Config.Timeout must not be negative"))
	}
	if c.ConfirmThreshold < 1 {
		err = errors.Join(err, errors.New("Config.ConfirmThreshold must be at least 1"))
	}
	if c.Debounce < 0 {
		err = errors.Join(err, errors.New("Config.Debounce must not be negative"))
	}
	if c.SleepGap <= 0 {
		err = errors.Join(err, errors.New("Config.SleepGap must be positive"))
	}
	if c.SleepGap > 0 && c.Interval > 0 && c.SleepGap <= c.Interval {
		err = errors.Join(err, errors.New("Config.SleepGap must be longer than Config.Interval"))
	}
	if c.GracePolls < 0 {
		err = errors.Join(err, errors.New("Config.GracePolls must not be negative"))
	}
	return err
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return c.Interval
}
