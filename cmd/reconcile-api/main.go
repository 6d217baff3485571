package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/k1networth/syncbridge/internal/api"
	"github.com/k1networth/syncbridge/internal/backoff"
	"github.com/k1networth/syncbridge/internal/deadletter"
	"github.com/k1networth/syncbridge/internal/mapping"
	"github.com/k1networth/syncbridge/internal/reconcile"
	"github.com/k1networth/syncbridge/internal/remote"
	"github.com/k1networth/syncbridge/internal/retryqueue"
	"github.com/k1networth/syncbridge/internal/shared/config"
	"github.com/k1networth/syncbridge/internal/shared/db"
	"github.com/k1networth/syncbridge/internal/shared/httpx"
	"github.com/k1networth/syncbridge/internal/shared/kafkax"
	"github.com/k1networth/syncbridge/internal/shared/logger"
	"github.com/k1networth/syncbridge/internal/syncer"
	"github.com/k1networth/syncbridge/internal/telemetry"
	"github.com/k1networth/syncbridge/internal/visits"
)

const appName = "reconcile-api"

func main() {
	cfg := config.Load()
	log := logger.New(appName, cfg.AppEnv)

	if cfg.DatabaseURL == "" {
		log.Error("config_error", slog.String("err", "DATABASE_URL is empty"))
		os.Exit(2)
	}

	pg, err := db.OpenPostgres(context.Background(), db.PostgresConfig{DatabaseURL: cfg.DatabaseURL})
	if err != nil {
		log.Error("db_open_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = pg.Close() }()

	reg := prometheus.NewRegistry()
	tel := telemetry.NewStdRecorder(log, reg)

	producer := kafkax.NewProducer(kafkax.ProducerConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.EventTopic,
		ClientID: appName,
	})
	defer func() { _ = producer.Close() }()

	queue := retryqueue.New(producer, tel, log)
	engine := syncer.New(queue, tel, log)
	policy := backoff.DefaultPolicy()

	source := visits.NewSourceClient(remote.NewClient(cfg.SourceBaseURL, cfg.RemoteTimeout))
	target := visits.NewTargetClient(remote.NewClient(cfg.TargetBaseURL, cfg.RemoteTimeout))
	store := mapping.NewPostgresStore(pg)

	visitH := visits.NewHandler(source, target, store, engine, policy, tel, log)
	visitChecker := visits.NewChecker(source, target, policy)
	reconciler := reconcile.New(cfg.ReconcilePageSize, tel, log)

	apiH := &api.Handler{
		Log: log,
		Reconcilers: map[string]api.ReconcileFunc{
			visitChecker.Name(): func(ctx context.Context) {
				if _, err := reconciler.Run(ctx, visitChecker); err != nil {
					log.Error("reconciliation_run_failed",
						slog.String("domain", visitChecker.Name()),
						slog.String("err", err.Error()),
					)
				}
			},
		},
		Repairers: map[string]api.RepairFunc{
			visitH.Domain(): visitH.Repair,
		},
		DeadLetters: deadletter.NewStore(pg),
		Queue:       queue,
	}

	handler := api.NewRouter(log, apiH, httpx.NewMetrics(reg), promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info("http_listen", slog.String("addr", srv.Addr))

	go func() {
		err := srv.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Error("http_server_error", slog.String("err", err.Error()))
		}
	}()

	httpx.WaitAndShutdown(log, srv, 10*time.Second)
}
