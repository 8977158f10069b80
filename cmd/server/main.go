// Command server runs the community operations engine: the lifecycle API,
// the audit trail, and the bulk ingestion pipeline behind one HTTP server.
//
// Every backing service is optional. Without a database the engine runs on
// in-memory stores, without Redis import reports live in memory, and without
// Kafka the audit mirror is disabled. That keeps local development a single
// binary with no flags.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"villageops/internal/audit"
	"villageops/internal/audit/publisher"
	auditmemory "villageops/internal/audit/store/memory"
	auditpostgres "villageops/internal/audit/store/postgres"
	"villageops/internal/ingest"
	"villageops/internal/invoke"
	"villageops/internal/lifecycle"
	entitymemory "villageops/internal/lifecycle/store/memory"
	entitypostgres "villageops/internal/lifecycle/store/postgres"
	"villageops/internal/platform/config"
	"villageops/internal/platform/httpserver"
	"villageops/internal/platform/logger"
	"villageops/internal/platform/metrics"
	"villageops/internal/platform/postgres"
	"villageops/internal/platform/redis"
	transporthttp "villageops/internal/transport/http"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	db, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to postgres", "error", err)
		return err
	}
	if db != nil {
		defer db.Close()
	}

	redisClient, err := redis.New(cfg.RedisURL)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Audit trail. The mirror channel is drained by a worker publishing to
	// Kafka; the store stays authoritative either way.
	var auditStore audit.Store
	if db != nil {
		auditStore = auditpostgres.New(db)
	} else {
		auditStore = auditmemory.NewInMemoryStore()
		log.Warn("no database configured, audit trail is in-memory only")
	}

	auditOpts := []audit.Option{audit.WithLogger(log)}
	var mirror chan audit.Entry
	var kafkaPublisher *publisher.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher, err = publisher.NewKafkaPublisher(cfg.KafkaBrokers, cfg.AuditTopic)
		if err != nil {
			log.Error("failed to connect to kafka", "error", err)
			return err
		}
		defer kafkaPublisher.Close()
		mirror = make(chan audit.Entry, 256)
		auditOpts = append(auditOpts, audit.WithMirror(mirror))
	}
	auditSvc := audit.NewService(auditStore, auditOpts...)

	// Lifecycle engine.
	var entityStore lifecycle.EntityStore
	engineOpts := []lifecycle.EngineOption{
		lifecycle.WithEngineLogger(log),
		lifecycle.WithMetrics(m),
		lifecycle.WithTimeout(cfg.ProcedureTimeout),
	}
	if db != nil {
		entityStore = entitypostgres.New(db)
		engineOpts = append(engineOpts, lifecycle.WithStoreTx(lifecycle.NewSQLStoreTx(db)))
	} else {
		entityStore = entitymemory.NewInMemoryStore()
	}
	if cfg.ProcedureBaseURL != "" {
		engineOpts = append(engineOpts,
			lifecycle.WithInvoker(invoke.NewHTTPInvoker(cfg.ProcedureBaseURL, invoke.WithLogger(log))))
	} else {
		log.Warn("no procedure endpoint configured, remote-backed transitions will fail")
	}
	engine := lifecycle.NewEngine(entityStore, auditSvc, engineOpts...)

	// Ingestion pipeline.
	var reports ingest.ReportStore
	if redisClient != nil {
		reports = ingest.NewRedisReportStore(redisClient, cfg.ImportReportTTL)
	} else {
		reports = ingest.NewInMemoryReportStore()
	}
	pipeline := ingest.NewPipeline(engine, reports,
		ingest.WithPipelineLogger(log), ingest.WithPipelineMetrics(m))

	handler := transporthttp.NewHandler(engine, pipeline, auditSvc, log)
	server := httpserver.New(cfg.Addr, transporthttp.NewRouter(handler, []byte(cfg.JWTSigningKey)))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if kafkaPublisher != nil {
		worker := audit.NewWorker(kafkaPublisher, mirror, log)
		g.Go(func() error {
			err := worker.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited with error", "error", err)
		return err
	}
	log.Info("server stopped")
	return nil
}
