package watchdog

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Adapter plugs one signal type into the engine.
type Adapter[T any] struct {
	// Poll fetches the current value. Required.
	Poll func(ctx context.Context) (T, error)

	// Equal compares two values. Required.
	Equal func(a, b T) bool

	// Format turns an accepted transition into a message. Returning false
	// accepts the transition silently. Required.
	Format func(tr Transition[T]) (Message, bool)

	// Fold converts a fetch error into an observation. When nil, or when it
	// returns false, the poll cycle is dropped: logged but not observed.
	Fold func(err error) (T, bool)

	// Keys lists identifiers for daily de-duplication. When set, a transition
	// exists whenever the observed value carries a key not yet notified today,
	// instead of whenever the value differs from the last accepted one.
	Keys func(v T) []string

	// Describe renders a value for snapshots. Defaults to fmt.Sprint.
	Describe func(v T) string
}

func (a Adapter[T]) validate(needDedup bool) error {
	var err error
	if a.Poll == nil {
		err = errors.Join(err, fmt.Errorf("%w: Poll", ErrMissingAdapterFunc))
	}
	if a.Equal == nil {
		err = errors.Join(err, fmt.Errorf("%w: Equal", ErrMissingAdapterFunc))
	}
	if a.Format == nil {
		err = errors.Join(err, fmt.Errorf("%w: Format", ErrMissingAdapterFunc))
	}
	if a.Keys != nil && !needDedup {
		err = errors.Join(err, errors.New("watchdog: Adapter.Keys requires Deps.Dedup"))
	}
	return err
}

func (a Adapter[T]) describe(v T) string {
	if a.Describe != nil {
		return a.Describe(v)
	}
	return fmt.Sprint(v)
}

// Transition is an accepted change of value.
type Transition[T any] struct {
	SignalID string
	From, To T

	// Keys holds the de-duplication keys of To not yet notified today.
	// Empty for adapters without Keys.
	Keys []string

	At time.Time
}

// Message is what an adapter wants to tell the user about a transition.
type Message struct {
	Title string
	Body  string
	Link  string

	OnActivate func()
}
