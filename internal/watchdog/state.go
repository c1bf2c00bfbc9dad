package watchdog

import (
	"time"

	"github.com/hamed0406/dashwatch/internal/notify"
)

// State is the in-memory bookkeeping of one active controller. It is created
// by Start and thrown away by Stop.
type State[T any] struct {
	SignalID string

	Initialized bool
	LastKnown   T

	// Most recent raw observation, used to re-validate debounced notifications.
	LastObserved T
	HasObserved  bool

	// Candidate is the new value being confirmed.
	Candidate             T
	HasCandidate          bool
	ConsecutiveMatchCount int

	Pending *pendingTransition[T]

	// SuppressionRemaining counts the polls still muted after a sleep. Each
	// poll lowers it by one; transitions confirmed by those polls are silent.
	SuppressionRemaining int

	LastPoll      time.Time
	HiddenAt      time.Time
	SleepDetected time.Time

	FirstNotified bool
}

type pendingTransition[T any] struct {
	tr   Transition[T]
	n    notify.Notification
	keys []string
	task Task
}

func newState[T any](id string) State[T] {
	return State[T]{SignalID: id}
}

func (s *State[T]) clearCandidate() {
	var zero T
	s.Candidate = zero
	s.HasCandidate = false
	s.ConsecutiveMatchCount = 0
}

// Suppressed reports whether alerts are currently muted after a sleep.
func (s *State[T]) Suppressed() bool {
	return s.SuppressionRemaining > 0
}

// Snapshot is a read-only view of a controller for display.
type Snapshot struct {
	SignalID             string    `json:"signal_id"`
	Active               bool      `json:"active"`
	Initialized          bool      `json:"initialized"`
	Value                string    `json:"value,omitempty"`
	Candidate            string    `json:"candidate,omitempty"`
	ConsecutiveMatches   int       `json:"consecutive_matches"`
	Pending              bool      `json:"pending"`
	Suppressed           bool      `json:"suppressed"`
	SuppressionRemaining int       `json:"suppression_remaining"`
	LastPoll             time.Time `json:"last_poll,omitzero"`
	Polls                int       `json:"polls"`
	Notifications        int       `json:"notifications"` // delivered without error
}
