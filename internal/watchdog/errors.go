package watchdog

import "errors"

var (
	// ErrUnknownSignal is returned by Registry methods for ids never added.
	ErrUnknownSignal = errors.New("watchdog: unknown signal")

	// ErrDuplicateSignal is returned when a second controller claims an id.
	ErrDuplicateSignal = errors.New("watchdog: signal already registered")

	// ErrNotActive is returned by ForceCheck on a stopped controller.
	ErrNotActive = errors.New("watchdog: not active")

	// ErrMissingAdapterFunc is returned by New when a required Adapter field is nil.
	ErrMissingAdapterFunc = errors.New("watchdog: adapter function missing")
)
