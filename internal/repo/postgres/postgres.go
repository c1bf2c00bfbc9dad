package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/hamed0406/dashwatch/internal/domain"
	"github.com/hamed0406/dashwatch/internal/repo"
	"github.com/hamed0406/dashwatch/internal/repo/migrations"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// New connects, pings and migrates the database.
func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	err = migrations.Up(ctx, db, goose.DialectPostgres, log)
	_ = db.Close()
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// ---- DedupStore ----

func (s *Store) LoadDedup(ctx context.Context, signalID string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM dedup_records WHERE signal_id = $1`, signalID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load dedup %s: %w", signalID, err)
	}
	return data, nil
}

func (s *Store) SaveDedup(ctx context.Context, signalID string, data []byte) error {
	const q = `
		INSERT INTO dedup_records (signal_id, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (signal_id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
	`
	if _, err := s.pool.Exec(ctx, q, signalID, data); err != nil {
		return fmt.Errorf("save dedup %s: %w", signalID, err)
	}
	return nil
}

// ---- PreferenceStore ----

func (s *Store) GetPreference(ctx context.Context, signalID string) (*domain.Preference, error) {
	p := domain.Preference{SignalID: signalID}
	err := s.pool.QueryRow(ctx,
		`SELECT alerts_enabled, updated_at FROM preferences WHERE signal_id = $1`, signalID).
		Scan(&p.AlertsEnabled, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get preference %s: %w", signalID, err)
	}
	return &p, nil
}

func (s *Store) SetPreference(ctx context.Context, p domain.Preference) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	const q = `
		INSERT INTO preferences (signal_id, alerts_enabled, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (signal_id)
		DO UPDATE SET alerts_enabled = EXCLUDED.alerts_enabled, updated_at = EXCLUDED.updated_at
	`
	if _, err := s.pool.Exec(ctx, q, p.SignalID, p.AlertsEnabled, p.UpdatedAt); err != nil {
		return fmt.Errorf("set preference %s: %w", p.SignalID, err)
	}
	return nil
}

func (s *Store) ListPreferences(ctx context.Context) ([]domain.Preference, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT signal_id, alerts_enabled, updated_at FROM preferences ORDER BY signal_id`)
	if err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	defer rows.Close()

	var out []domain.Preference
	for rows.Next() {
		var p domain.Preference
		if err := rows.Scan(&p.SignalID, &p.AlertsEnabled, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
