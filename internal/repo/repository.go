package repo

import (
	"context"

	"github.com/hamed0406/dashwatch/internal/domain"
)

// Ports (interfaces): swap in any DB adapter later.

// DedupStore keeps the daily de-duplication record of each signal. The
// watchdog owns the encoding; stores treat it as opaque bytes.
type DedupStore interface {
	// LoadDedup returns nil, nil if there's no record yet.
	LoadDedup(ctx context.Context, signalID string) ([]byte, error)
	SaveDedup(ctx context.Context, signalID string, data []byte) error
}

// PreferenceStore keeps the per-signal "alerts enabled" flag.
type PreferenceStore interface {
	// GetPreference returns nil, nil if the user never set one.
	GetPreference(ctx context.Context, signalID string) (*domain.Preference, error)
	SetPreference(ctx context.Context, p domain.Preference) error
	ListPreferences(ctx context.Context) ([]domain.Preference, error)
}

// Store is implemented by the database adapters, which keep both.
type Store interface {
	DedupStore
	PreferenceStore
	Close() error
}
