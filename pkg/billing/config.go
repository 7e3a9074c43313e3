package billing

import (
	"context"
	"time"

	"github.com/mihaimyh/vocalize/pkg/subscription"
)

// Config defines the standard configuration all providers should accept
type Config struct {
	// Manager is the subscription Manager that webhook events are applied to
	Manager *subscription.Manager

	// WebhookSecret is the signing secret shared with the billing provider.
	// Requests are rejected while it is empty.
	WebhookSecret string

	// MaxBodyBytes limits the webhook payload size (default: 256 KiB)
	MaxBodyBytes int64

	// RateLimitRequests and RateLimitWindow bound webhook requests per client IP
	// (default: 100 requests per minute)
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Metrics is an optional metrics collector for tracking billing provider operations.
	// If nil, metrics will be silently ignored (no-op).
	// Use billing/metrics/prometheus.DefaultMetrics(namespace) for Prometheus metrics.
	Metrics Metrics

	// Logger is used for structured logging (default: NoopLogger)
	Logger subscription.Logger

	// WebhookCallback is invoked after a webhook changed stored subscription state.
	// A returned error fails the webhook with 500 so the provider redelivers it.
	WebhookCallback func(ctx context.Context, event WebhookEvent) error
}
