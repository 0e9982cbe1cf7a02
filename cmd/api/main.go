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

	"go.uber.org/zap"

	"github.com/hamed0406/livemonitor/internal/config"
	"github.com/hamed0406/livemonitor/internal/domain"
	"github.com/hamed0406/livemonitor/internal/httpapi"
	apimw "github.com/hamed0406/livemonitor/internal/httpapi/middleware"
	"github.com/hamed0406/livemonitor/internal/logging"
	"github.com/hamed0406/livemonitor/internal/notify"
	"github.com/hamed0406/livemonitor/internal/probe"
	"github.com/hamed0406/livemonitor/internal/repo"
	"github.com/hamed0406/livemonitor/internal/repo/memory"
	pg "github.com/hamed0406/livemonitor/internal/repo/postgres"
	"github.com/hamed0406/livemonitor/internal/repo/sqlite"
	"github.com/hamed0406/livemonitor/internal/scheduler"
	"github.com/hamed0406/livemonitor/internal/stream"
)

// lifecycle forwards store changes to the engine and drops alert state of deleted services.
type lifecycle struct {
	*scheduler.Coordinator
	alerter *scheduler.Alerter
}

func (l lifecycle) OnDelete(id domain.TargetID) {
	l.Coordinator.OnDelete(id)
	l.alerter.Forget(id)
}

func main() {
	cfg := config.FromEnv()
	logger, err := logging.NewLogger(logging.Options{Dir: cfg.LogDir, Level: cfg.LogLevel, Stdout: cfg.LogStdout})
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store_open_error", zap.Error(err))
	}
	defer store.Close()

	if cfg.SeedFile != "" {
		if err := seed(ctx, store, cfg.SeedFile, logger); err != nil {
			logger.Fatal("seed_error", zap.String("file", cfg.SeedFile), zap.Error(err))
		}
	}

	// Engine: registry -> per-target loops -> (websocket hub, alerter)
	reg := scheduler.NewRegistry()
	hub := stream.NewHub(logger, cfg.AllowedOrigins, stream.DefaultWriteTimeout)

	notifier := notify.Multi{notify.Log{Logger: logger}}
	if slack := notify.NewSlack(cfg.SlackWebhookURL, 5*time.Second); slack != nil {
		notifier = append(notifier, slack)
	}
	alerter := scheduler.NewAlerter(logger, reg, notifier, nil, scheduler.AlerterConfig{
		AlertOnRecovery: cfg.AlertOnRecovery,
		Cooldown:        cfg.AlertCooldown,
	})

	checker := probe.New(probe.Options{
		Timeout:  cfg.ProbeTimeout,
		Attempts: cfg.RetryAttempts,
		Backoff:  cfg.RetryBackoff,
	})
	sched := scheduler.New(logger, reg, checker, scheduler.Fanout{hub, alerter})
	coord := scheduler.NewCoordinator(logger, reg, sched)

	sched.Start(ctx)
	if _, err := coord.Sync(ctx, store); err != nil {
		logger.Fatal("registry_sync_error", zap.Error(err))
	}

	api := httpapi.NewServer(logger, store, lifecycle{Coordinator: coord, alerter: alerter})
	api.Stream = hub
	api.Targets = reg
	api.Loops = sched
	api.Observers = hub

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: api.Router(httpapi.RouterOptions{
			Keys:               apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys},
			AllowedOrigins:     cfg.AllowedOrigins,
			HealthAllowedHosts: cfg.HealthAllowedHosts,
			PublicRPM:          cfg.PublicRPM,
			PublicBurst:        cfg.PublicBurst,
			AdminRPM:           cfg.AdminRPM,
			AdminBurst:         cfg.AdminBurst,
			Production:         cfg.Production(),
		}),
		ReadHeaderTimeout: 8 * time.Second,
		IdleTimeout:       4 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr), zap.String("mode", cfg.Mode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal")
	case err := <-errCh:
		logger.Error("api_listen_error", zap.Error(err))
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_shutdown_error", zap.Error(err))
	}
	// Loops first: a loop finishing its last check may still broadcast.
	sched.Wait()
	hub.Close()
	alerter.Wait()
	logger.Info("shutdown_complete")
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (repo.ServiceStore, error) {
	switch {
	case cfg.DatabaseURL != "":
		logger.Info("store_selected", zap.String("kind", "postgres"))
		return pg.New(ctx, cfg.DatabaseURL, logger)
	case cfg.SQLitePath != "":
		logger.Info("store_selected", zap.String("kind", "sqlite"), zap.String("path", cfg.SQLitePath))
		return sqlite.Open(ctx, cfg.SQLitePath, logger)
	default:
		logger.Info("store_selected", zap.String("kind", "memory"))
		return memory.New(), nil
	}
}

// seed creates the services of the seed file; ones already stored are skipped.
func seed(ctx context.Context, store repo.ServiceStore, path string, logger *zap.Logger) error {
	s, err := config.LoadSeed(path)
	if err != nil {
		return err
	}
	created := 0
	for _, e := range s.Services {
		svc := &domain.Service{Name: e.Name, URI: e.URI, MonitorInterval: e.MonitorInterval}
		for _, th := range e.Thresholds {
			svc.Thresholds = append(svc.Thresholds, domain.Threshold{LowerLimit: th.Lower, UpperLimit: th.Upper})
		}
		err := store.Create(ctx, svc)
		switch {
		case errors.Is(err, repo.ErrConflict):
			continue
		case err != nil:
			return err
		}
		created++
	}
	logger.Info("seed_applied", zap.Int("entries", len(s.Services)), zap.Int("created", created))
	return nil
}
