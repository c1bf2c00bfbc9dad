package watchdog

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Handle is the type-erased view of a Controller used by the Registry.
type Handle interface {
	SignalID() string
	Start()
	Stop()
	ForceCheck() error
	Active() bool
	Snapshot() Snapshot
}

var _ Handle = (*Controller[int])(nil)

// Registry owns at most one controller per signal id, so starting a signal
// twice never produces two poll loops.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]Handle
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]Handle)}
}

// Add registers h. It fails if the id is already taken.
func (r *Registry) Add(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := h.SignalID()
	if _, ok := r.handles[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSignal, id)
	}
	r.handles[id] = h
	r.order = append(r.order, id)
	return nil
}

// Ensure returns the controller registered under id, or builds and registers
// one with build. A registered controller of another value type is an error.
func Ensure[T any](r *Registry, id string, build func() (*Controller[T], error)) (*Controller[T], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handles[id]; ok {
		c, ok := h.(*Controller[T])
		if !ok {
			return nil, fmt.Errorf("%w: %s has a different value type", ErrDuplicateSignal, id)
		}
		return c, nil
	}
	c, err := build()
	if err != nil {
		return nil, err
	}
	if c.SignalID() != id {
		return nil, fmt.Errorf("watchdog: built controller for %q under id %q", c.SignalID(), id)
	}
	r.handles[id] = c
	r.order = append(r.order, id)
	return c, nil
}

func (r *Registry) Get(id string) (Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSignal, id)
	}
	return h, nil
}

func (r *Registry) Start(id string) error {
	h, err := r.Get(id)
	if err != nil {
		return err
	}
	h.Start()
	return nil
}

func (r *Registry) Stop(id string) error {
	h, err := r.Get(id)
	if err != nil {
		return err
	}
	h.Stop()
	return nil
}

func (r *Registry) ForceCheck(id string) error {
	h, err := r.Get(id)
	if err != nil {
		return err
	}
	return h.ForceCheck()
}

func (r *Registry) State(id string) (Snapshot, error) {
	h, err := r.Get(id)
	if err != nil {
		return Snapshot{}, err
	}
	return h.Snapshot(), nil
}

// States returns a snapshot of every registered controller, sorted by id.
func (r *Registry) States() []Snapshot {
	r.mu.RLock()
	hs := make([]Handle, 0, len(r.handles))
	for _, h := range r.handles {
		hs = append(hs, h)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, 0, len(hs))
	for _, h := range hs {
		out = append(out, h.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SignalID < out[j].SignalID })
	return out
}

// StartAll starts every controller in registration order.
func (r *Registry) StartAll() {
	for _, h := range r.ordered() {
		h.Start()
	}
}

// StopAll stops every controller, newest first.
func (r *Registry) StopAll() {
	hs := r.ordered()
	for i := len(hs) - 1; i >= 0; i-- {
		hs[i].Stop()
	}
}

// IDs lists the registered signal ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Known reports whether id is registered; it is used by the preference
// handlers to reject unknown ids without touching a controller.
func (r *Registry) Known(id string) bool {
	_, err := r.Get(id)
	return !errors.Is(err, ErrUnknownSignal)
}

func (r *Registry) ordered() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hs := make([]Handle, 0, len(r.order))
	for _, id := range r.order {
		hs = append(hs, r.handles[id])
	}
	return hs
}
