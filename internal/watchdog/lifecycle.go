package watchdog

import (
	"sync"
	"time"
)

// LifecycleKind tells whether the host went away or came back.
type LifecycleKind int

const (
	Suspend LifecycleKind = iota
	Resume
)

func (k LifecycleKind) String() string {
	switch k {
	case Suspend:
		return "suspend"
	case Resume:
		return "resume"
	default:
		return "unknown"
	}
}

type LifecycleEvent struct {
	Kind LifecycleKind
	At   time.Time
}

// LifecycleSource delivers suspend/resume events (page hidden/visible, host
// sleep/wake). Subscribe returns a function that removes the handler.
type LifecycleSource interface {
	Subscribe(fn func(LifecycleEvent)) (unsubscribe func())
}

// NopSource never emits; hosts without lifecycle signals rely on the
// elapsed-time detector alone.
type NopSource struct{}

func (NopSource) Subscribe(func(LifecycleEvent)) func() { return func() {} }

// Broadcaster fans events out to every subscriber.
type Broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(LifecycleEvent)
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]func(LifecycleEvent))}
}

func (b *Broadcaster) Subscribe(fn func(LifecycleEvent)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers ev synchronously to a snapshot of the subscribers.
// Handlers run without the broadcaster lock held.
func (b *Broadcaster) Publish(ev LifecycleEvent) {
	b.mu.Lock()
	fns := make([]func(LifecycleEvent), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Visibility adapts page visibility reports: hidden is a Suspend, shown a Resume.
func (b *Broadcaster) Visibility(hidden bool, at time.Time) {
	kind := Resume
	if hidden {
		kind = Suspend
	}
	b.Publish(LifecycleEvent{Kind: kind, At: at})
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
