package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gitlab.com/vendalink/api/crm-inbound-processor/internal/adapter"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/config"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/healthcheck"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/llm"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/model"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/notifier"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/observer"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/provider"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/ratelimit"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/scheduler"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/storage"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/usecase"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/webhook"
	"gitlab.com/vendalink/api/crm-inbound-processor/pkg/logger"
	"gitlab.com/vendalink/api/crm-inbound-processor/pkg/utils"
)

func main() {
	// Set timezone to UTC
	time.Local = time.UTC

	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	observer.InitMetrics(cfg.Metrics.Enabled)

	logger.Log.Info("Starting CRM Inbound Processor",
		zap.String("environment", cfg.Environment),
		zap.Int("port", cfg.Server.Port),
		zap.String("nats_url", cfg.NATS.URL),
	)

	// Repositories
	postgresRepo, err := initPostgresRepo(cfg.Database.PostgresDSN, cfg.Database.PostgresAutoMigrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize Postgres repository", zap.Error(err))
	}

	accountRepo := storage.NewAccountStorageAdapter(postgresRepo)
	channelRepo := storage.NewChannelStorageAdapter(postgresRepo)
	contactRepo := storage.NewContactStorageAdapter(postgresRepo)
	conversationRepo := storage.NewConversationStorageAdapter(postgresRepo)
	messageRepo := storage.NewMessageStorageAdapter(postgresRepo)
	pendingRepo := storage.NewPendingResponseStorageAdapter(postgresRepo)
	agentRepo := storage.NewAgentStorageAdapter(postgresRepo)
	dealRepo := storage.NewDealStorageAdapter(postgresRepo)
	transferRepo := storage.NewTransferStorageAdapter(postgresRepo)

	// Notification side channel
	notif, err := initNotifier(cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize notifier", zap.Error(err))
	}

	// Outbound providers
	providers := provider.NewRegistry()
	providers.Register(model.ProviderEvolution, provider.NewEvolutionClient(
		cfg.Providers.Evolution.BaseURL, cfg.Providers.Evolution.APIKey, cfg.Providers.Evolution.Timeout))
	metaClient := provider.NewMetaClient(cfg.Providers.Meta.BaseURL, cfg.Providers.Meta.Timeout)
	providers.Register(model.ProviderMeta, metaClient)
	providers.Register(model.ProviderInstagram, metaClient)

	// Webhook adapters
	adapters := adapter.NewRegistry()
	evolutionAdapter := adapter.NewEvolutionAdapter()
	adapters.Register(model.ProviderEvolution, evolutionAdapter)
	adapters.Register(model.ProviderMeta, adapter.NewMetaAdapter())
	adapters.Register(model.ProviderInstagram, adapter.NewInstagramAdapter())

	// Pipeline services
	llmClient := llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.Timeout)
	delivery := usecase.NewDeliveryService(channelRepo, contactRepo, conversationRepo, messageRepo, providers)
	executor := usecase.NewDirectiveExecutor(contactRepo, conversationRepo, messageRepo, agentRepo, dealRepo, transferRepo, notif)
	responder := usecase.NewResponderService(accountRepo, agentRepo, conversationRepo, messageRepo, llmClient, executor, delivery)

	sched := scheduler.NewScheduler(pendingRepo)
	dispatcher, err := scheduler.NewDispatcher(
		pendingRepo,
		responder.Respond,
		cfg.Scheduler.PollInterval,
		cfg.Scheduler.BatchSize,
		cfg.WorkerPools.Responder,
		logger.Log,
	)
	if err != nil {
		logger.Log.Fatal("Failed to initialize response dispatcher", zap.Error(err))
	}

	defaultWait := time.Duration(cfg.Scheduler.DefaultWaitSecs) * time.Second
	ingest := usecase.NewIngestService(channelRepo, contactRepo, conversationRepo, messageRepo, agentRepo, sched, defaultWait)
	channelStatus := usecase.NewChannelStatusService(channelRepo)

	limiter := ratelimit.New(cfg.RateLimit.Enabled, cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	// HTTP surfaces
	webhookServer := webhook.NewServer(cfg, ingest, channelStatus, adapters, evolutionAdapter, limiter, logger.Log)

	healthServer := healthcheck.NewServer(strconv.Itoa(cfg.Metrics.Port), logger.Log)
	healthServer.SetReadinessCheck(postgresRepo.Ping)
	if cfg.Metrics.Enabled {
		healthServer.RegisterMetricsHandler(promhttp.Handler())
		logger.Log.Info("Metrics endpoint enabled", zap.String("path", "/metrics"), zap.Int("port", cfg.Metrics.Port))
	}
	healthServer.Start()

	dispatcher.Start()

	webhookErr := make(chan error, 1)
	utils.SafeGo(func() {
		webhookErr <- webhookServer.Start()
	}, nil)

	// Wait for termination
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))
	case err := <-webhookErr:
		if err != nil {
			logger.Log.Error("Webhook server failed, shutting down", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", 30*time.Second))

	var wg sync.WaitGroup
	wg.Add(4)

	// Stop accepting webhooks first so no new work arrives.
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping webhook server")
		start := time.Now()
		if err := webhookServer.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping webhook server", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] Webhook server stopped", zap.Duration("duration", time.Since(start)))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping webhook server",
			zap.Any("panic", r), zap.ByteString("stack", stack))
		wg.Done()
	})

	// Drain the dispatcher; pending rows persist for the next boot.
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping response dispatcher")
		start := time.Now()
		dispatcher.Stop()
		logger.Log.Info("[shutdown] Response dispatcher stopped", zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping response dispatcher",
			zap.Any("panic", r), zap.ByteString("stack", stack))
		wg.Done()
	})

	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping health check server")
		start := time.Now()
		if err := healthServer.Stop(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping health check server", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] Health check server stopped", zap.Duration("duration", time.Since(start)))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping health check server",
			zap.Any("panic", r), zap.ByteString("stack", stack))
		wg.Done()
	})

	utils.SafeGo(func() {
		defer wg.Done()

		logger.Log.Info("[shutdown] Closing PostgreSQL connection")
		pgStart := time.Now()
		if err := postgresRepo.Close(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Failed to close PostgreSQL connection", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] PostgreSQL connection closed", zap.Duration("duration", time.Since(pgStart)))
		}

		logger.Log.Info("[shutdown] Closing NATS connection")
		natsStart := time.Now()
		notif.Close()
		logger.Log.Info("[shutdown] NATS connection closed", zap.Duration("duration", time.Since(natsStart)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while closing connections",
			zap.Any("panic", r), zap.ByteString("stack", stack))
		wg.Done()
	})

	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Log.Info("[shutdown] All components stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Log.Warn("[shutdown] Graceful shutdown timed out, forcing exit")
	}

	logger.Log.Info("CRM Inbound Processor shutdown complete")
}

// Initialize PostgreSQL repository
func initPostgresRepo(dsn string, autoMigrate bool) (*storage.PostgresRepo, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	repo, err := storage.NewPostgresRepo(dsn, autoMigrate)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres repository: %w", err)
	}

	logger.Log.Info("Initialized PostgreSQL repository")
	return repo, nil
}

// initNotifier connects to NATS and ensures the notification stream
// exists before anything can publish to it.
func initNotifier(cfg *config.Config) (*notifier.Notifier, error) {
	notif, err := notifier.New(cfg.NATS.URL, cfg.NATS.NotifySubject)
	if err != nil {
		return nil, fmt.Errorf("failed to create notifier: %w", err)
	}

	ctx := logger.WithLogger(context.Background(), logger.Log)
	streamCfg := &nats.StreamConfig{
		Name:      cfg.NATS.NotifyStream,
		Subjects:  []string{cfg.NATS.NotifySubject},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    time.Duration(cfg.NATS.NotifyMaxAgeDay) * 24 * time.Hour,
	}
	if err := notif.SetupStream(ctx, streamCfg); err != nil {
		notif.Close()
		return nil, fmt.Errorf("failed to set up notification stream: %w", err)
	}
	return notif, nil
}
