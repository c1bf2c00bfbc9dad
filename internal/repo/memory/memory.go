package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/hamed0406/dashwatch/internal/domain"
	"github.com/hamed0406/dashwatch/internal/repo"
)

var _ repo.Store = (*Store)(nil)

// Store keeps everything in process memory; records die with the process.
type Store struct {
	mu    sync.RWMutex
	dedup map[string][]byte
	prefs map[string]domain.Preference
}

func New() *Store {
	return &Store{
		dedup: make(map[string][]byte),
		prefs: make(map[string]domain.Preference),
	}
}

func (m *Store) Close() error { return nil }

// ---- DedupStore ----

func (m *Store) LoadDedup(ctx context.Context, signalID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.dedup[signalID]
	if !ok {
		return nil, nil
	}
	return slices.Clone(b), nil
}

func (m *Store) SaveDedup(ctx context.Context, signalID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dedup[signalID] = slices.Clone(data)
	return nil
}

// ---- PreferenceStore ----

func (m *Store) GetPreference(ctx context.Context, signalID string) (*domain.Preference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.prefs[signalID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Store) SetPreference(ctx context.Context, p domain.Preference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	m.prefs[p.SignalID] = p
	return nil
}

func (m *Store) ListPreferences(ctx context.Context) ([]domain.Preference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Preference, 0, len(m.prefs))
	for _, p := range m.prefs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SignalID < out[j].SignalID })
	return out, nil
}
