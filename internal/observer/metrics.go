package observer

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsEnabled = true // Flag to control metric collection

	// Labels for webhook ingestion metrics
	webhookLabels = []string{"provider", "account_id"}
	// Labels for ingestion outcomes
	ingestLabels = []string{"account_id", "outcome"}

	WebhooksReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_inbound_webhooks_received_total",
			Help: "Total number of webhook deliveries received, labeled by provider.",
		},
		webhookLabels,
	)
	WebhooksRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_inbound_webhooks_rejected_total",
			Help: "Total number of webhook deliveries dropped before the pipeline (bad payload, unknown instance, rate limited).",
		},
		webhookLabels,
	)
	MessagesIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_inbound_messages_ingested_total",
			Help: "Total number of inbound messages handled, labeled by outcome (stored, duplicate, error).",
		},
		ingestLabels,
	)

	IngestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crm_inbound_ingest_duration_seconds",
			Help:    "Histogram of end-to-end ingestion durations per inbound event.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		webhookLabels,
	)

	// Global metrics instance
	Metrics *metricsStore
)

// Scheduler and responder metrics
var (
	tenantLabels          = []string{"account_id"}
	responderResultLabels = []string{"account_id", "result"}

	responsesScheduledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_inbound_responses_scheduled_total",
			Help: "Total number of pending-response upserts (debounce arms and re-arms).",
		},
		tenantLabels,
	)
	responsesFiredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_inbound_responses_fired_total",
			Help: "Total number of response cycles run, labeled by result (replied, skipped, canned, superseded, error).",
		},
		responderResultLabels,
	)
	responderDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crm_inbound_responder_duration_seconds",
			Help:    "Histogram of full response-cycle durations (prompt assembly through delivery).",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
		tenantLabels,
	)
	responderQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crm_inbound_responder_queue_length",
		Help: "Approximate number of tasks waiting in the responder worker pool queue.",
	})

	llmRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crm_inbound_llm_request_duration_seconds",
			Help:    "Histogram of chat-completion request durations, labeled by result.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		},
		responderResultLabels,
	)

	deliveryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_inbound_delivery_attempts_total",
			Help: "Total number of outbound provider send attempts, labeled by result.",
		},
		responderResultLabels,
	)

	directivesExecutedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_inbound_directives_executed_total",
			Help: "Total number of reply directives executed, labeled by result.",
		},
		responderResultLabels,
	)
)

// Labels for database operations
var (
	dbOperationLabels = []string{"operation", "entity", "account_id", "status"}

	DatabaseOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crm_inbound_db_operation_duration_seconds",
			Help:    "Histogram of database operation durations.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		dbOperationLabels,
	)
)

// metricsStore holds references to all Prometheus metrics.
type metricsStore struct{}

// InitMetrics initializes and registers the Prometheus metrics if enabled.
// Call this function during application startup.
func InitMetrics(enabled bool) {
	if !enabled {
		metricsEnabled = false
		return
	}

	metricsEnabled = true
	// Metrics are auto-registered via promauto.
	Metrics = &metricsStore{}
}

// IncWebhooksReceived increments the webhook received counter.
func IncWebhooksReceived(provider, accountID string) {
	if !metricsEnabled {
		return
	}
	WebhooksReceivedTotal.WithLabelValues(provider, sanitizeTenant(accountID)).Inc()
}

// IncWebhooksRejected increments the webhook rejected counter.
func IncWebhooksRejected(provider, accountID string) {
	if !metricsEnabled {
		return
	}
	WebhooksRejectedTotal.WithLabelValues(provider, sanitizeTenant(accountID)).Inc()
}

// IncMessagesIngested increments the ingestion outcome counter.
func IncMessagesIngested(accountID, outcome string) {
	if !metricsEnabled {
		return
	}
	MessagesIngestedTotal.WithLabelValues(sanitizeTenant(accountID), outcome).Inc()
}

// ObserveIngestDuration records the end-to-end duration of one inbound event.
func ObserveIngestDuration(provider, accountID string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	IngestDurationSeconds.WithLabelValues(provider, sanitizeTenant(accountID)).Observe(duration.Seconds())
}

// sanitizeTenant ensures the tenant label is valid or returns a default value.
func sanitizeTenant(tenant string) string {
	if tenant == "" {
		return "unknown"
	}
	return tenant
}

// --- Scheduler / Responder Metric Helpers ---

// IncResponsesScheduled increments the debounce arm counter.
func IncResponsesScheduled(accountID string) {
	if Metrics != nil {
		responsesScheduledTotal.WithLabelValues(sanitizeTenant(accountID)).Inc()
	}
}

// IncResponsesFired increments the response-cycle result counter.
func IncResponsesFired(accountID, result string) {
	if Metrics != nil {
		responsesFiredTotal.WithLabelValues(sanitizeTenant(accountID), result).Inc()
	}
}

// ObserveResponderDuration records the duration of one response cycle.
func ObserveResponderDuration(accountID string, duration time.Duration) {
	if Metrics != nil {
		responderDurationSeconds.WithLabelValues(sanitizeTenant(accountID)).Observe(duration.Seconds())
	}
}

// SetResponderQueueLength sets the current responder pool queue length.
func SetResponderQueueLength(length int) {
	if Metrics != nil {
		responderQueueLength.Set(float64(length))
	}
}

// ObserveLLMRequestDuration records one chat-completion round trip.
func ObserveLLMRequestDuration(accountID, result string, duration time.Duration) {
	if Metrics != nil {
		llmRequestDurationSeconds.WithLabelValues(sanitizeTenant(accountID), result).Observe(duration.Seconds())
	}
}

// IncDeliveryAttempt increments the outbound send counter.
func IncDeliveryAttempt(accountID, result string) {
	if Metrics != nil {
		deliveryAttemptsTotal.WithLabelValues(sanitizeTenant(accountID), result).Inc()
	}
}

// IncDirectiveExecuted increments the directive execution counter.
func IncDirectiveExecuted(accountID, result string) {
	if Metrics != nil {
		directivesExecutedTotal.WithLabelValues(sanitizeTenant(accountID), result).Inc()
	}
}

// ObserveDbOperationDuration records the duration for a database operation.
func ObserveDbOperationDuration(operation, entity, accountID string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseOperationDurationSeconds.WithLabelValues(operation, entity, sanitizeTenant(accountID), status).Observe(duration.Seconds())
}

// SanitizeErrorType maps specific errors or provides a default category.
// Keep this simple to avoid high cardinality.
func SanitizeErrorType(errStr string) string {
	if errStr == "" || errStr == "none" {
		return "none"
	}

	switch {
	case strings.Contains(errStr, "database"), strings.Contains(errStr, "SQL"), strings.Contains(errStr, "duplicate key"), strings.Contains(errStr, "constraint"), strings.Contains(errStr, "connection"):
		return "database"
	case strings.Contains(errStr, "validation failed"), strings.Contains(errStr, "bad request"), strings.Contains(errStr, "invalid"), strings.Contains(errStr, "missing field"):
		return "validation"
	case strings.Contains(errStr, "not found"), strings.Contains(errStr, "no rows"):
		return "not_found"
	case strings.Contains(errStr, "nats"), strings.Contains(errStr, "jetstream"):
		return "nats"
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline exceeded"):
		return "timeout"
	case strings.Contains(errStr, "unmarshal"), strings.Contains(errStr, "json"):
		return "unmarshal"
	case strings.Contains(errStr, "panic"):
		return "panic"
	default:
		return "unknown"
	}
}
