package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers as "sqlite"

	"github.com/hamed0406/dashwatch/internal/domain"
	"github.com/hamed0406/dashwatch/internal/repo"
	"github.com/hamed0406/dashwatch/internal/repo/migrations"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens (or creates) the database at path and migrates it. Use ":memory:" in tests.
func Open(ctx context.Context, path string, log *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; also keeps a ":memory:" database on a single connection.
	db.SetMaxOpenConns(1)

	for _, p := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	if err := migrations.Up(ctx, db, goose.DialectSQLite3, log); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("sqlite_store_ready", zap.String("path", path))
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// ---- DedupStore ----

func (s *Store) LoadDedup(ctx context.Context, signalID string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM dedup_records WHERE signal_id = ?`, signalID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load dedup %s: %w", signalID, err)
	}
	return data, nil
}

func (s *Store) SaveDedup(ctx context.Context, signalID string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dedup_records (signal_id, data, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (signal_id)
		DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		signalID, data, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save dedup %s: %w", signalID, err)
	}
	return nil
}

// ---- PreferenceStore ----

func (s *Store) GetPreference(ctx context.Context, signalID string) (*domain.Preference, error) {
	p := domain.Preference{SignalID: signalID}
	var updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT alerts_enabled, updated_at FROM preferences WHERE signal_id = ?`, signalID).
		Scan(&p.AlertsEnabled, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get preference %s: %w", signalID, err)
	}
	p.UpdatedAt = parseTime(updated)
	return &p, nil
}

func (s *Store) SetPreference(ctx context.Context, p domain.Preference) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (signal_id, alerts_enabled, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (signal_id)
		DO UPDATE SET alerts_enabled = excluded.alerts_enabled, updated_at = excluded.updated_at`,
		p.SignalID, p.AlertsEnabled, p.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("set preference %s: %w", p.SignalID, err)
	}
	return nil
}

func (s *Store) ListPreferences(ctx context.Context) ([]domain.Preference, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT signal_id, alerts_enabled, updated_at FROM preferences ORDER BY signal_id`)
	if err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	defer rows.Close()

	var out []domain.Preference
	for rows.Next() {
		var (
			p       domain.Preference
			updated string
		)
		if err := rows.Scan(&p.SignalID, &p.AlertsEnabled, &updated); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		p.UpdatedAt = parseTime(updated)
		out = append(out, p)
	}
	return out, rows.Err()
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
