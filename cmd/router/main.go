package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/cams-router/internal/api"
	"github.com/xela07ax/cams-router/internal/broker"
	"github.com/xela07ax/cams-router/internal/cams"
	"github.com/xela07ax/cams-router/internal/health"
	"github.com/xela07ax/cams-router/internal/infra"
	"github.com/xela07ax/cams-router/internal/metrics"
	"github.com/xela07ax/cams-router/internal/repository/postgres"
	"github.com/xela07ax/cams-router/internal/router"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Инфраструктура и ресурсы
	// Postgres — хранилище каталога CAMS
	repo, err := postgres.NewMappingRepo(appCtx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer repo.Close()

	if err := repo.Migrate(appCtx); err != nil {
		logger.Fatal("failed to migrate schema", zap.Error(err))
	}
	if err := repo.Ping(appCtx); err != nil {
		logger.Fatal("postgres ping failed", zap.Error(err))
	}

	// Redis-кэш резолва — опционален: пустой addr выключает кэширование
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
	}

	// Метрики
	reg := prometheus.NewRegistry()
	sink := metrics.NewSink(reg)

	// Экспортируем метрики для Prometheus на отдельном порту
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		logger.Info("metrics server started", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Fatal("metrics server failed", zap.Error(err))
		}
	}()

	// 3. Сборка слоев: каталог -> брокер -> пайплайн -> health
	directory := cams.New(repo, rdb, sink, logger, cams.Config{
		RetryAttempts:    cfg.CAMS.RetryAttempts,
		RetryBaseDelay:   cfg.CAMS.RetryBaseDelay,
		CacheTTL:         cfg.CAMS.CacheTTL,
		NegativeCacheTTL: cfg.CAMS.NegativeCacheTTL,
		CBMaxRequests:    cfg.CAMS.CBMaxRequests,
		CBInterval:       cfg.CAMS.CBInterval,
		CBTimeout:        cfg.CAMS.CBTimeout,
	})

	publisher := broker.NewKafkaPublisher(cfg.Broker.Brokers, cfg.Broker.WriteTimeout, logger)
	defer publisher.Close()

	pipeline := router.NewPipeline(directory, publisher, sink, logger)
	healthSvc := health.NewService(directory, sink, logger)

	// 4. HTTP Server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewServer(logger, pipeline, directory, healthSvc, cfg.Server.IngestRPS, cfg.Server.IngestBurst),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("router started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	// 5. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("router stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server shutdown failed", zap.Error(err))
	}
	logger.Info("router exited properly")
}
