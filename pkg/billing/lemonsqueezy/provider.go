// Package lemonsqueezy implements the billing.Provider interface for Lemon Squeezy.
//
// The webhook handler verifies the X-Signature HMAC, decodes the event once,
// maps it to a subscription mutation and applies it through the
// subscription.Manager.
package lemonsqueezy

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/mihaimyh/vocalize/pkg/billing"
	"github.com/mihaimyh/vocalize/pkg/billing/internal"
	"github.com/mihaimyh/vocalize/pkg/subscription"
)

const (
	providerName             = "lemonsqueezy"
	defaultStoreSlug         = "vocalize"
	defaultMaxBodyBytes      = 256 * 1024
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 100
)

// Config extends billing.Config with Lemon Squeezy specific options
type Config struct {
	billing.Config // Base config (Manager, WebhookSecret, etc.)

	// StoreSlug is the store subdomain used for checkout and portal links
	// (default: "vocalize")
	StoreSlug string

	// Catalog maps plans to variant ids for checkout links.
	// If nil, the Manager's catalog is used.
	Catalog *subscription.Catalog
}

// Provider implements the billing.Provider and billing.CheckoutProvider
// interfaces for Lemon Squeezy
type Provider struct {
	manager       *subscription.Manager
	catalog       *subscription.Catalog
	rateLimiter   *internal.RateLimiter
	webhookSecret []byte
	storeSlug     string
	maxBodyBytes  int64
	metrics       billing.Metrics
	logger        subscription.Logger
	callback      func(ctx context.Context, event billing.WebhookEvent) error
}

// NewProvider creates a new Lemon Squeezy billing provider
func NewProvider(config Config) (*Provider, error) {
	if config.Manager == nil {
		return nil, billing.ErrProviderNotConfigured
	}

	storeSlug := strings.TrimSpace(config.StoreSlug)
	if storeSlug == "" {
		storeSlug = defaultStoreSlug
	}

	catalog := config.Catalog
	if catalog == nil {
		catalog = config.Manager.Catalog()
	}

	maxBody := config.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	limit := config.RateLimitRequests
	if limit <= 0 {
		limit = defaultRateLimitRequests
	}
	window := config.RateLimitWindow
	if window <= 0 {
		window = defaultRateLimitWindow
	}

	metrics := config.Metrics
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}
	logger := config.Logger
	if logger == nil {
		logger = &subscription.NoopLogger{}
	}

	return &Provider{
		manager:       config.Manager,
		catalog:       catalog,
		rateLimiter:   internal.NewRateLimiter(limit, window),
		webhookSecret: []byte(strings.TrimSpace(config.WebhookSecret)),
		storeSlug:     storeSlug,
		maxBodyBytes:  maxBody,
		metrics:       metrics,
		logger:        logger,
		callback:      config.WebhookCallback,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return providerName
}

// WebhookHandler returns the HTTP handler for Lemon Squeezy webhooks
func (p *Provider) WebhookHandler() http.Handler {
	handler := http.HandlerFunc(p.handleWebhook)
	return p.rateLimiter.Middleware(handler)
}
