package main

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/dashwatch/internal/config"
	"github.com/hamed0406/dashwatch/internal/monitors"
	"github.com/hamed0406/dashwatch/internal/probe"
	"github.com/hamed0406/dashwatch/internal/repo"
	"github.com/hamed0406/dashwatch/internal/repo/memory"
	"github.com/hamed0406/dashwatch/internal/repo/postgres"
	"github.com/hamed0406/dashwatch/internal/repo/prefsfile"
	"github.com/hamed0406/dashwatch/internal/repo/sqlite"
	"github.com/hamed0406/dashwatch/internal/upstream"
)

type stores struct {
	Dedup  repo.DedupStore
	Prefs  repo.PreferenceStore
	closer []func() error
}

func (s *stores) Close() error {
	var err error
	for i := len(s.closer) - 1; i >= 0; i-- {
		err = multierr.Append(err, s.closer[i]())
	}
	return err
}

// openStores picks Postgres, then SQLite, then memory. A preferences file,
// when configured, replaces the database for preferences only.
func openStores(ctx context.Context, cfg config.Config, log *zap.Logger) (*stores, error) {
	var db repo.Store
	switch {
	case cfg.DatabaseURL != "":
		pg, err := postgres.New(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, err
		}
		db = pg
		log.Info("store_selected", zap.String("kind", "postgres"))
	case cfg.SQLitePath != "":
		lite, err := sqlite.Open(ctx, cfg.SQLitePath, log)
		if err != nil {
			return nil, err
		}
		db = lite
		log.Info("store_selected", zap.String("kind", "sqlite"), zap.String("path", cfg.SQLitePath))
	default:
		db = memory.New()
		log.Warn("store_selected", zap.String("kind", "memory"))
	}

	s := &stores{Dedup: db, Prefs: db, closer: []func() error{db.Close}}
	if cfg.PrefsFile != "" {
		pf, err := prefsfile.Open(cfg.PrefsFile, log)
		if err != nil {
			return nil, multierr.Append(err, s.Close())
		}
		s.Prefs = pf
		s.closer = append(s.closer, pf.Close)
	}
	return s, nil
}

// settings maps the configuration onto the watchdogs to build. Probing from
// this host wins over the backend's network measurement.
func settings(cfg config.Config, log *zap.Logger) monitors.Settings {
	s := monitors.Settings{
		Connectivity: monitors.ConnectivityOptions{
			Config:           cfg.Network.Config(),
			MaxPacketLossPct: cfg.NetworkMaxLossPct,
			MaxLatency:       cfg.NetworkMaxLatency,
		},
		PlatformIDs:    cfg.Platforms,
		PlatformConfig: cfg.Platform.Config(),
		Reminders:      cfg.Reminders.Config(),
	}

	var backend *upstream.Client
	if cfg.DashboardAPI != "" {
		backend = upstream.NewClient(cfg.DashboardAPI, cfg.HTTPTimeout)
	}

	if cfg.Network.Enabled {
		switch {
		case len(cfg.ProbeTargets) > 0:
			s.Network = &probe.Connectivity{
				Checker: &probe.RetryChecker{
					Inner:    probe.NewHTTPChecker(cfg.HTTPTimeout),
					Attempts: cfg.RetryAttempts,
					Backoff:  cfg.RetryBackoff,
				},
				Targets:  cfg.ProbeTargets,
				Attempts: cfg.ProbeAttempts,
				DNS:      probe.NewDNSChecker(),
				Log:      log.Named("probe"),
			}
		case backend != nil:
			s.Network = upstream.NewNetworkClient(backend)
		}
	}
	if backend != nil && cfg.Platform.Enabled && len(cfg.Platforms) > 0 {
		s.Platforms = upstream.NewPlatformClient(backend, cfg.PlatformCacheTTL)
	}
	if backend != nil && cfg.Reminders.Enabled {
		s.Todos = upstream.NewTodoClient(backend)
	}
	return s
}
