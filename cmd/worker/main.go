package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mstfa13/asura-backend/internal/config"
	"github.com/mstfa13/asura-backend/internal/observability"
	"github.com/mstfa13/asura-backend/internal/queue"
	"github.com/mstfa13/asura-backend/internal/worker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()
	observability.SetupLogging(cfg.AppEnv)

	if !cfg.RabbitMQ.Enabled() {
		logrus.Fatal("RABBITMQ_URL is required for the worker")
	}
	if cfg.Worker.Count < 1 {
		logrus.Fatal("WORKER_COUNT must be at least 1")
	}

	var out io.Writer = os.Stdout
	if cfg.Worker.AuditLogPath != "" {
		f, err := os.OpenFile(cfg.Worker.AuditLogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to open audit log")
		}
		defer f.Close()
		out = f
	}
	audit := worker.NewAuditLog(out)

	conn, err := queue.SetupRabbitMQ(&cfg.RabbitMQ)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize RabbitMQ")
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logrus.WithError(err).Error("Failed to close RabbitMQ connection")
		}
	}()

	consumerChannel, err := queue.CreateChannel(conn)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create RabbitMQ channel")
	}
	if _, err := queue.DeclareQueue(consumerChannel, cfg.RabbitMQ.Queue); err != nil {
		logrus.WithError(err).Fatal("Failed to declare RabbitMQ queue")
	}
	if err := consumerChannel.Close(); err != nil {
		logrus.WithError(err).Fatal("Failed to close RabbitMQ channel")
	}

	// Initialize Prometheus metrics
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.Worker.MetricsPort,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logrus.Infof("Worker metrics server started on :%s", cfg.Worker.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("Metrics server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for i := 1; i <= cfg.Worker.Count; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := worker.StartWorker(ctx, conn, cfg.RabbitMQ.Queue, audit, metrics, id); err != nil {
				logrus.WithError(err).Error("Worker exited")
			}
		}(i)
	}

	// stop waiting if every worker exits on its own
	go func() {
		wg.Wait()
		stop()
	}()

	<-ctx.Done()
	logrus.Info("Shutting down workers...")
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
}
