package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	auditmetrics "projectdesk/internal/audit/metrics"
	"projectdesk/internal/audit/outbox"
	auditpostgres "projectdesk/internal/audit/store/postgres"
	"projectdesk/internal/platform/config"
	"projectdesk/internal/platform/httpserver"
	"projectdesk/internal/platform/kafka"
	"projectdesk/internal/platform/logger"
	"projectdesk/internal/platform/postgres"
	"projectdesk/internal/platform/txscope"
)

// main drains the audit outbox into Kafka and exposes /metrics until interrupted.
func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
	if err != nil {
		log.Error("kafka producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureTopic(ctx, 3, 1); err != nil {
		log.Error("audit topic unavailable", "topic", cfg.Kafka.AuditTopic, "error", err)
		os.Exit(1)
	}

	relay := outbox.New(auditpostgres.New(db), producer, txscope.NewPostgres(db, cfg.TxTimeout),
		outbox.WithInterval(cfg.Relay.Interval),
		outbox.WithBatchSize(cfg.Relay.BatchSize),
		outbox.WithLogger(log),
		outbox.WithMetrics(auditmetrics.New(prometheus.DefaultRegisterer)),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return relay.Run(ctx)
	})
	g.Go(func() error {
		return httpserver.Serve(ctx, httpserver.New(cfg.MetricsAddr, promhttp.Handler()))
	})

	log.Info("audit relay started", "topic", cfg.Kafka.AuditTopic, "metrics_addr", cfg.MetricsAddr)
	if err := g.Wait(); err != nil {
		log.Error("audit relay stopped", "error", err)
		os.Exit(1)
	}
	log.Info("audit relay stopped")
}
