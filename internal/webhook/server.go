// Package webhook is the HTTP entry point for provider callbacks. The
// outward contract is rigid: POST handlers always answer 200 with a
// success-shaped body, no matter what happened inside, because providers
// treat anything else as an invitation to retry-storm.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/vendalink/api/crm-inbound-processor/internal/adapter"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/config"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/model"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/observer"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/ratelimit"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/tenant"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/usecase"
	"gitlab.com/vendalink/api/crm-inbound-processor/pkg/logger"
)

const maxBodyBytes = 2 << 20 // 2MB

// Server wires the gin router to the ingestion pipeline.
type Server struct {
	httpServer    *http.Server
	ingest        *usecase.IngestService
	channelStatus *usecase.ChannelStatusService
	adapters      *adapter.Registry
	evolution     *adapter.EvolutionAdapter
	limiter       *ratelimit.TenantLimiter
	verifyToken   string
	appSecret     string
	baseLogger    *zap.Logger
}

// NewServer builds the router and the underlying http.Server.
func NewServer(
	cfg *config.Config,
	ingest *usecase.IngestService,
	channelStatus *usecase.ChannelStatusService,
	adapters *adapter.Registry,
	evolution *adapter.EvolutionAdapter,
	limiter *ratelimit.TenantLimiter,
	baseLogger *zap.Logger,
) *Server {
	s := &Server{
		ingest:        ingest,
		channelStatus: channelStatus,
		adapters:      adapters,
		evolution:     evolution,
		limiter:       limiter,
		verifyToken:   cfg.Providers.Meta.VerifyToken,
		appSecret:     cfg.Providers.Meta.AppSecret,
		baseLogger:    baseLogger.Named("webhook"),
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), s.requestContext())

	router.POST("/webhooks/evolution/:instance", s.handleEvolution)
	router.GET("/webhooks/meta", s.handleVerify)
	router.POST("/webhooks/meta", s.handleGraph(model.ProviderMeta))
	router.GET("/webhooks/instagram", s.handleVerify)
	router.POST("/webhooks/instagram", s.handleGraph(model.ProviderInstagram))

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// requestContext seeds every request with a request-scoped logger.
func (s *Server) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.NewString()
		ctx := tenant.WithRequestID(c.Request.Context(), requestID)
		ctx = logger.WithLogger(ctx, s.baseLogger.With(zap.String("request_id", requestID)))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// ok is the only POST response body ever sent.
func ok(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleEvolution(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)
	instance := c.Param("instance")

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		log.Warn("Failed to read evolution webhook body", zap.Error(err))
		ok(c)
		return
	}
	observer.IncWebhooksReceived(model.ProviderEvolution, "")

	if s.evolution.IsStatusEvent(body) {
		s.applyStatus(ctx, body)
		ok(c)
		return
	}

	if !s.limiter.Allow(instance) {
		log.Warn("Rate limit exceeded for instance, dropping event",
			zap.String("instance", instance))
		observer.IncWebhooksRejected(model.ProviderEvolution, "")
		ok(c)
		return
	}

	events, err := s.evolution.Normalize(body)
	if err != nil {
		log.Warn("Failed to normalize evolution payload", zap.Error(err))
		ok(c)
		return
	}
	s.processEvents(ctx, model.ProviderEvolution, instance, events)
	ok(c)
}

// handleVerify answers the Graph API subscription handshake.
func (s *Server) handleVerify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && s.verifyToken != "" && token == s.verifyToken {
		c.String(http.StatusOK, challenge)
		return
	}
	logger.FromContext(c.Request.Context()).Warn("Webhook verification failed",
		zap.String("mode", mode))
	c.String(http.StatusForbidden, "verification failed")
}

func (s *Server) handleGraph(providerTag string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		log := logger.FromContext(ctx)

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
		if err != nil {
			log.Warn("Failed to read webhook body",
				zap.String("provider", providerTag), zap.Error(err))
			ok(c)
			return
		}
		observer.IncWebhooksReceived(providerTag, "")

		if !s.validSignature(c.GetHeader("X-Hub-Signature-256"), body) {
			// Accepted and dropped: the outward contract stays 200.
			log.Warn("Webhook signature mismatch, dropping payload",
				zap.String("provider", providerTag))
			observer.IncWebhooksRejected(providerTag, "")
			ok(c)
			return
		}

		a, err := s.adapters.For(providerTag)
		if err != nil {
			log.Error("No adapter for provider", zap.String("provider", providerTag))
			ok(c)
			return
		}
		events, err := a.Normalize(body)
		if err != nil {
			log.Warn("Failed to normalize webhook payload",
				zap.String("provider", providerTag), zap.Error(err))
			ok(c)
			return
		}
		s.processEvents(ctx, providerTag, "", events)
		ok(c)
	}
}

// validSignature checks the Graph API HMAC when an app secret is
// configured. No secret means no check.
func (s *Server) validSignature(header string, body []byte) bool {
	if s.appSecret == "" {
		return true
	}
	const prefix = "sha256="
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return false
	}
	mac := hmac.New(sha256.New, []byte(s.appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header[len(prefix):]))
}

// processEvents pushes normalized events through ingestion. Errors are
// logged and swallowed; the provider never sees them.
func (s *Server) processEvents(ctx context.Context, providerTag, rateKey string, events []model.InboundEvent) {
	log := logger.FromContext(ctx)
	for i := range events {
		event := events[i]
		key := rateKey
		if key == "" {
			key = event.ChannelInstanceKey
		}
		if !s.limiter.Allow(key) {
			log.Warn("Rate limit exceeded, dropping event",
				zap.String("instance_key", event.ChannelInstanceKey))
			observer.IncWebhooksRejected(providerTag, "")
			continue
		}
		if err := s.ingest.Process(ctx, providerTag, event); err != nil {
			log.Error("Inbound event processing failed",
				zap.String("provider", providerTag),
				zap.String("external_id", event.ExternalID),
				zap.Error(err))
		}
	}
}

func (s *Server) applyStatus(ctx context.Context, body []byte) {
	log := logger.FromContext(ctx)
	statusEvent, err := s.evolution.NormalizeStatus(body)
	if err != nil {
		log.Warn("Failed to normalize channel status payload", zap.Error(err))
		return
	}
	if err := s.channelStatus.Apply(ctx, statusEvent); err != nil {
		log.Error("Failed to apply channel status event", zap.Error(err))
	}
}

// Start begins serving. Blocks until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.baseLogger.Info("Webhook server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("webhook server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
