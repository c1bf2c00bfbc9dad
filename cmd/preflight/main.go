// cmd/preflight/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/dashwatch/internal/config"
	"github.com/hamed0406/dashwatch/internal/probe"
	"github.com/hamed0406/dashwatch/internal/repo/postgres"
	"github.com/hamed0406/dashwatch/internal/repo/prefsfile"
	"github.com/hamed0406/dashwatch/internal/repo/sqlite"
)

type report struct {
	failed bool
}

func (r *report) fail(msg string) {
	r.failed = true
	fmt.Fprintln(os.Stderr, "✖", msg)
}
func (r *report) warn(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
func (r *report) ok(msg string)   { fmt.Println("✔", msg) }

func main() {
	var r report
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		r.fail(err.Error())
		os.Exit(1)
	}
	r.ok("configuration valid")

	checkKeys(&r, cfg)
	checkStorage(ctx, &r, cfg)
	checkUpstreams(ctx, &r, cfg)

	if r.failed {
		os.Exit(1)
	}
	r.ok("preflight passed")
}

func checkKeys(r *report, cfg config.Config) {
	if len(cfg.AdminAPIKeys) == 0 {
		r.fail("ADMIN_API_KEYS is empty (start/stop/check and preference routes are open).")
	}
	if len(cfg.PublicAPIKeys) == 0 {
		r.warn("PUBLIC_API_KEYS is empty (read routes accept admin keys only).")
	}
	if len(cfg.AllowedOrigins) == 0 {
		r.warn("ALLOWED_ORIGINS empty: any page may open the notification websocket.")
	} else {
		r.ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}
	if cfg.SlackWebhook == "" {
		r.warn("SLACK_WEBHOOK empty: notifications reach open dashboard pages only.")
	}
}

func checkStorage(ctx context.Context, r *report, cfg config.Config) {
	log := zap.NewNop()
	switch {
	case cfg.DatabaseURL != "":
		st, err := postgres.New(ctx, cfg.DatabaseURL, log)
		if err != nil {
			r.fail("postgres: " + err.Error())
			return
		}
		_ = st.Close()
		r.ok("postgres reachable and migrated")
	case cfg.SQLitePath != "":
		st, err := sqlite.Open(ctx, cfg.SQLitePath, log)
		if err != nil {
			r.fail("sqlite: " + err.Error())
			return
		}
		_ = st.Close()
		r.ok("sqlite database ready at " + cfg.SQLitePath)
	default:
		r.warn("DATABASE_URL and SQLITE_PATH empty: reminder de-duplication resets on restart.")
	}

	if cfg.PrefsFile != "" {
		pf, err := prefsfile.Open(cfg.PrefsFile, log)
		if err != nil {
			r.fail("preferences file: " + err.Error())
			return
		}
		_ = pf.Close()
		r.ok("preferences file readable: " + cfg.PrefsFile)
	}
}

func checkUpstreams(ctx context.Context, r *report, cfg config.Config) {
	targets := append([]string(nil), cfg.ProbeTargets...)
	if cfg.DashboardAPI != "" {
		targets = append(targets, cfg.DashboardAPI)
	} else if cfg.Platform.Enabled || cfg.Reminders.Enabled {
		r.warn("DASHBOARD_API empty: platform and reminder watchdogs are disabled.")
	}

	mc := probe.NewMultiChecker(probe.NewDNSChecker(), probe.NewHTTPChecker(cfg.HTTPTimeout))
	for _, t := range targets {
		for _, res := range mc.Run(ctx, t) {
			msg := fmt.Sprintf("%s %s: %s", res.Name, t, res.Message)
			if res.Success {
				r.ok(msg)
			} else {
				r.warn(msg)
			}
		}
	}
}
