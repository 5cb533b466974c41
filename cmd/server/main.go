package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"assent/internal/audit"
	auditmetrics "assent/internal/audit/metrics"
	"assent/internal/jwtauth"
	"assent/internal/ledger"
	ledgermetrics "assent/internal/ledger/metrics"
	"assent/internal/ledger/store"
	"assent/internal/platform/config"
	"assent/internal/platform/health"
	"assent/internal/platform/kafka/producer"
	"assent/internal/platform/logger"
	platformmetrics "assent/internal/platform/metrics"
	platformredis "assent/internal/platform/redis"
	"assent/internal/platform/tracer"
	"assent/internal/policy"
	"assent/internal/signals"
	httptransport "assent/internal/transport/http"
	"assent/internal/visibility"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing assent",
		"addr", cfg.Addr,
		"policy_version", cfg.PolicyVersion,
	)

	healthHandler := health.New(os.Getenv("ENVIRONMENT"))

	// Persistence: Redis when configured, otherwise in-memory only.
	var repo store.Repository = store.NewInMemory()
	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis init failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		repo = store.NewRedis(redisClient.Client, store.WithRedisLogger(log))
		healthHandler.RegisterCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisClient.Health(ctx)
		})
		go func() {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for range ticker.C {
				redisClient.RecordPoolStats()
			}
		}()
	}

	// Audit pipeline: bounded outbox drained by a background worker into the
	// first configured sink (Kafka, then HTTP, then the structured log).
	auditMetrics := auditmetrics.New()
	outbox := audit.NewOutbox(cfg.AuditQueueSize, auditMetrics)

	var sink audit.Sink = audit.NewLogSink(log)
	var kafkaProducer *producer.Producer
	switch {
	case len(cfg.KafkaBrokers) > 0:
		kafkaProducer, err = producer.New(producer.Config{
			Brokers:         strings.Join(cfg.KafkaBrokers, ","),
			Acks:            "all",
			Retries:         3,
			DeliveryTimeout: 10 * time.Second,
		}, log)
		if err != nil {
			log.Error("kafka producer init failed", "error", err)
			os.Exit(1)
		}
		sink = audit.NewKafkaSink(kafkaProducer, cfg.KafkaAuditTopic)
		healthHandler.RegisterCheck("kafka", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if !kafkaProducer.Healthy(ctx) {
				return context.DeadlineExceeded
			}
			return nil
		})
	case cfg.AuditSinkURL != "":
		sink = audit.NewHTTPSink(cfg.AuditSinkURL, 5*time.Second)
	}

	worker := audit.NewWorker(outbox, sink,
		audit.WithPollInterval(cfg.AuditPollInterval),
		audit.WithWorkerMetrics(auditMetrics),
		audit.WithWorkerLogger(log),
	)
	worker.Start()

	emitter := audit.NewEmitter(outbox,
		audit.WithEmitterLogger(log),
		audit.WithEmitterMetrics(auditMetrics),
	)

	// Core services.
	ledgerSvc := ledger.New(repo, cfg.PolicyVersion,
		ledger.WithAuditor(emitter),
		ledger.WithLogger(log),
		ledger.WithMetrics(ledgermetrics.New()),
		ledger.WithTracer(tracer.NewOTel()),
		ledger.WithConsentTTLMonths(cfg.ConsentTTLMonths),
	)
	gate := policy.NewGate(cfg.PolicyVersion, policy.WithLookaheadDays(cfg.RenewalLookaheadDays))
	controller := visibility.NewController(gate, ledgerSvc)
	handles := ledger.NewHandleRegistry()

	rootCtx, stopBackground := context.WithCancel(context.Background())

	checker := policy.NewChecker(gate, ledgerSvc, emitter,
		policy.WithCheckInterval(cfg.RenewalCheckInterval),
		policy.WithCheckerLogger(log),
	)
	checker.Start(rootCtx)

	signalSource := signals.NewChannelSource(256)
	dispatcher := signals.NewDispatcher(signalSource, emitter,
		signals.WithDispatcherLogger(log),
	)
	dispatcher.Start(rootCtx)

	// HTTP surface.
	tokens := jwtauth.New(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.TokenTTL)
	consentHandler := httptransport.NewConsentHandler(log, ledgerSvc, gate, controller, handles)
	privacyHandler := httptransport.NewPrivacyHandler(log, emitter, signalSource)
	router := httptransport.NewRouter(log, consentHandler, privacyHandler, healthHandler, tokens, platformmetrics.New())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info("starting http server", "addr", cfg.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}

	// Stop the background loops, then drain the audit outbox before the
	// producer goes away.
	checker.Close()
	signalSource.Close()
	dispatcher.Wait()
	stopBackground()
	worker.Close()

	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			log.Error("kafka producer close failed", "error", err)
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Error("redis close failed", "error", err)
		}
	}

	log.Info("server stopped")
}
