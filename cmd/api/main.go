package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/dashwatch/internal/config"
	"github.com/hamed0406/dashwatch/internal/httpapi"
	apimw "github.com/hamed0406/dashwatch/internal/httpapi/middleware"
	"github.com/hamed0406/dashwatch/internal/logging"
	"github.com/hamed0406/dashwatch/internal/monitors"
	"github.com/hamed0406/dashwatch/internal/notify"
	"github.com/hamed0406/dashwatch/internal/telemetry"
	"github.com/hamed0406/dashwatch/internal/watchdog"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel, cfg.LogConsole)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api_exit", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) (err error) {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	shutdownTracing, err := telemetry.Setup(ctx, cfg.TraceExporter, "dashwatch", os.Stdout)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, shutdownTracing(context.Background())) }()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, st.Close()) }()

	life := watchdog.NewBroadcaster()
	hub := notify.NewHub(logger.Named("hub"), notify.HubOptions{
		OnVisibility:   life.Visibility,
		AllowedOrigins: cfg.AllowedOrigins,
	})
	defer hub.Close()

	// No open page with notification permission is normal; Slack and the log still get it.
	sinks := notify.Multi{notify.IgnoreDenied(hub, logger)}
	if cfg.SlackWebhook != "" {
		sinks = append(sinks, notify.NewSlack(cfg.SlackWebhook))
	}
	sinks = append(sinks, notify.Log{Logger: logger.Named("notify")})

	deps := watchdog.Deps{
		Logger:    logger,
		Notifier:  sinks,
		Prefs:     st.Prefs,
		Dedup:     st.Dedup,
		Scheduler: watchdog.TimeScheduler{},
		Lifecycle: life,
		Now:       time.Now,
		Location:  loc,
		Tracer:    otel.Tracer("github.com/hamed0406/dashwatch/watchdog"),
	}

	reg := watchdog.NewRegistry()
	if err := monitors.Build(reg, settings(cfg, logger), deps); err != nil {
		return err
	}
	reg.StartAll()
	defer reg.StopAll()
	logger.Info("watchdogs_started", zap.Strings("signals", reg.IDs()))

	api := httpapi.NewServer(logger, reg, st.Prefs, hub)
	keys := apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(keys, cfg.AllowedOrigins, cfg.PublicRPM, cfg.PublicBurst, cfg.AdminRPM, cfg.AdminBurst),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api_listen", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("api_shutdown")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
