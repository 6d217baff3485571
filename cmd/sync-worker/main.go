package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/k1networth/syncbridge/internal/backoff"
	"github.com/k1networth/syncbridge/internal/deadletter"
	"github.com/k1networth/syncbridge/internal/dispatch"
	"github.com/k1networth/syncbridge/internal/featureswitch"
	"github.com/k1networth/syncbridge/internal/mapping"
	"github.com/k1networth/syncbridge/internal/remote"
	"github.com/k1networth/syncbridge/internal/retryqueue"
	"github.com/k1networth/syncbridge/internal/shared/config"
	"github.com/k1networth/syncbridge/internal/shared/db"
	"github.com/k1networth/syncbridge/internal/shared/kafkax"
	"github.com/k1networth/syncbridge/internal/shared/logger"
	"github.com/k1networth/syncbridge/internal/syncer"
	"github.com/k1networth/syncbridge/internal/telemetry"
	"github.com/k1networth/syncbridge/internal/visits"
)

const appName = "sync-worker"

func main() {
	cfg := config.Load()
	log := logger.New(appName, cfg.AppEnv)

	if cfg.DatabaseURL == "" {
		log.Error("config_error", slog.String("err", "DATABASE_URL is empty"))
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := db.OpenPostgres(ctx, db.PostgresConfig{DatabaseURL: cfg.DatabaseURL})
	if err != nil {
		log.Error("db_open_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = pg.Close() }()

	reg := prometheus.NewRegistry()
	tel := telemetry.NewStdRecorder(log, reg)

	processed := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sync_messages_total", Help: "Processed inbound messages."},
		[]string{"status"},
	)
	reg.MustRegister(processed)

	consumer := kafkax.NewConsumer(kafkax.ConsumerConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.EventTopic,
		GroupID: cfg.KafkaGroupID,
	})
	defer func() { _ = consumer.Close() }()

	producer := kafkax.NewProducer(kafkax.ProducerConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.EventTopic,
		ClientID: appName,
	})
	defer func() { _ = producer.Close() }()

	queue := retryqueue.New(producer, tel, log)
	engine := syncer.New(queue, tel, log)
	policy := backoff.DefaultPolicy()

	store := mapping.NewPostgresStore(pg)
	visitH := visits.NewHandler(
		visits.NewSourceClient(remote.NewClient(cfg.SourceBaseURL, cfg.RemoteTimeout)),
		visits.NewTargetClient(remote.NewClient(cfg.TargetBaseURL, cfg.RemoteTimeout)),
		store, engine, policy, tel, log,
	)

	switches := featureswitch.New(cfg.DisabledPairs())
	dispatcher := dispatch.New(switches, queue, deadletter.NewStore(pg), cfg.RetryMaxAttempts, tel, log)
	dispatcher.Register(visitH, visits.EventTypes()...)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		log.Info("metrics_listen", slog.String("addr", cfg.MetricsAddr))
		_ = http.ListenAndServe(cfg.MetricsAddr, mux)
	}()

	log.Info("consumer_start",
		slog.String("topic", cfg.EventTopic),
		slog.String("group_id", cfg.KafkaGroupID),
	)

	for {
		select {
		case <-ctx.Done():
			log.Info("consumer_shutdown")
			return
		default:
			msg, err := consumer.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				log.Error("kafka_fetch_failed", slog.String("err", err.Error()))
				time.Sleep(300 * time.Millisecond)
				continue
			}

			if err := dispatcher.Dispatch(ctx, msg.Value); err != nil {
				// No commit: the transport redelivers the whole message.
				processed.WithLabelValues("error").Inc()
				log.Error("message_dispatch_failed", slog.String("err", err.Error()))
				continue
			}

			processed.WithLabelValues("ok").Inc()
			if err := consumer.CommitMessages(ctx, msg); err != nil {
				log.Error("kafka_commit_failed", slog.String("err", err.Error()))
			}
		}
	}
}
