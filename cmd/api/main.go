package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mstfa13/asura-backend/internal/cache"
	"github.com/mstfa13/asura-backend/internal/config"
	"github.com/mstfa13/asura-backend/internal/db"
	"github.com/mstfa13/asura-backend/internal/handler"
	"github.com/mstfa13/asura-backend/internal/observability"
	"github.com/mstfa13/asura-backend/internal/queue"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.Load()
	observability.SetupLogging(cfg.AppEnv)

	if err := cfg.Validate(); err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	database, err := db.Init(ctx, &cfg.DB)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize database")
	}
	defer func() {
		if err := database.Close(); err != nil {
			logrus.WithError(err).Error("Failed to close database connection")
		}
	}()

	// Initialize Prometheus metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)
	logrus.Info("Metrics initialized")

	deps := handler.Dependencies{
		DB:       database,
		Config:   cfg,
		Metrics:  metrics,
		Gatherer: reg,
	}

	if cfg.Redis.Enabled() {
		rdb, err := cache.SetupRedis(ctx, &cfg.Redis)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to initialize Redis")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logrus.WithError(err).Error("Failed to close redis connection")
			}
		}()
		deps.Redis = rdb
	} else {
		logrus.Info("REDIS_HOST not set, data cache disabled")
	}

	if cfg.RabbitMQ.Enabled() {
		conn, err := queue.SetupRabbitMQ(&cfg.RabbitMQ)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to initialize RabbitMQ")
		}
		defer func() {
			if err := conn.Close(); err != nil {
				logrus.WithError(err).Error("Failed to close RabbitMQ connection")
			}
		}()

		ch, err := queue.CreateChannel(conn)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to create RabbitMQ channel")
		}
		if _, err := queue.DeclareQueue(ch, cfg.RabbitMQ.Queue); err != nil {
			logrus.WithError(err).Fatal("Failed to declare RabbitMQ queue")
		}
		deps.Events = queue.NewRabbitPublisher(ch, cfg.RabbitMQ.Queue, metrics)
	} else {
		logrus.Info("RABBITMQ_URL not set, domain events disabled")
	}

	r, err := handler.SetupHandler(deps)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to set up HTTP handler")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logrus.Infof("Starting server on :%s", cfg.AppPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-quit
	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Graceful shutdown failed")
	}
	logrus.Info("Server gracefully stopped")
}
