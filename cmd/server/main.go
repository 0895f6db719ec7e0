package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/Orko24/fintech-document-intelligence-sub000/internal/api"
	"github.com/Orko24/fintech-document-intelligence-sub000/internal/config"
	"github.com/Orko24/fintech-document-intelligence-sub000/internal/db"
	grpcserver "github.com/Orko24/fintech-document-intelligence-sub000/internal/grpc/server"
	"github.com/Orko24/fintech-document-intelligence-sub000/internal/logger"
	"github.com/Orko24/fintech-document-intelligence-sub000/internal/messaging"
	"github.com/Orko24/fintech-document-intelligence-sub000/internal/metrics"
	"github.com/Orko24/fintech-document-intelligence-sub000/internal/repository"
	"github.com/Orko24/fintech-document-intelligence-sub000/internal/stream"
)

func main() {
	log := logger.New()
	log.Info().Msg("starting transaction stream processor")

	cfg := config.Load()
	log.Info().
		Str("clickhouse", cfg.ClickHouse.Host).
		Str("exchange", cfg.RabbitMQ.Exchange).
		Int("workers", cfg.Stream.WorkerCount).
		Dur("commit_interval", cfg.Stream.CommitInterval).
		Dur("count_window", cfg.Stream.CountWindow).
		Dur("sum_window", cfg.Stream.SumWindow).
		Msg("configuration loaded")

	clickhouseClient, err := db.NewClickHouseClient(cfg.ClickHouse)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize ClickHouse client")
	}
	defer clickhouseClient.Close()
	log.Info().Msg("connected to ClickHouse")

	repo := repository.NewAggregateRepository(clickhouseClient)

	registry := prometheus.NewRegistry()
	metricsSink := metrics.NewPrometheus(registry)

	publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQ, cfg.Stream, metricsSink, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create RabbitMQ publisher")
	}
	defer publisher.Close()

	processor := stream.NewProcessor(cfg.Stream, publisher, repo, metricsSink, log)

	consumer, err := messaging.NewRabbitMQConsumer(cfg.RabbitMQ, processor, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create RabbitMQ consumer")
	}
	defer consumer.Close()

	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Partition workers
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := processor.Run(ctx); err != nil {
			log.Error().Err(err).Msg("stream processor stopped with error")
			cancel()
		}
	}()

	// Ingress consumer
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := consumer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("RabbitMQ consumer stopped with error")
			cancel()
		}
	}()

	// HTTP API: health, metrics, aggregate queries
	handler := api.NewHandler(repo, log)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: api.NewRouter(handler, registry),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server stopped with error")
			cancel()
		}
	}()

	// gRPC health server for platform probes
	grpcServer := grpcserver.NewGRPCServer()
	healthServer := grpcserver.RegisterHealthServer(grpcServer)
	wg.Add(1)
	go func() {
		defer wg.Done()
		listener, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
		if err != nil {
			log.Error().Err(err).Str("port", cfg.GRPCPort).Msg("failed to listen for gRPC")
			cancel()
			return
		}
		log.Info().Str("port", cfg.GRPCPort).Msg("gRPC health server listening")
		if err := grpcServer.Serve(listener); err != nil {
			log.Error().Err(err).Msg("gRPC server stopped with error")
			cancel()
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("received signal, initiating shutdown")
	case <-ctx.Done():
		log.Info().Msg("context cancelled, initiating shutdown")
	}

	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	grpcServer.GracefulStop()

	log.Info().Msg("waiting for workers to flush and stop")
	wg.Wait()

	log.Info().Msg("transaction stream processor stopped gracefully")
}
