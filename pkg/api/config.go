package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mihaimyh/vocalize/pkg/billing"
	"github.com/mihaimyh/vocalize/pkg/history"
	"github.com/mihaimyh/vocalize/pkg/subscription"
)

const defaultAppURL = "http://localhost:3000"

// CurrentUser is the authenticated caller
type CurrentUser struct {
	ID    string
	Email string
}

// Config holds configuration for the subscription API handler
type Config struct {
	// Manager is the subscription manager instance (required)
	Manager *subscription.Manager

	// GetCurrentUser resolves the authenticated user (required).
	// Returning nil or an empty ID answers 401.
	GetCurrentUser func(*http.Request) *CurrentUser

	// Checkout builds checkout and portal links.
	// If nil, the checkout and portal endpoints answer 503.
	Checkout billing.CheckoutProvider

	// History serves cloud history. If nil, the history endpoints answer 503.
	History *history.Service

	// AppURL is where checkout redirects after payment (default: http://localhost:3000)
	AppURL string

	// OnError handles errors (auth, internal, etc.)
	// If nil, uses default error handling
	OnError func(http.ResponseWriter, *http.Request, error)

	// Logger is used for structured logging (default: NoopLogger)
	Logger subscription.Logger
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Manager == nil {
		return fmt.Errorf("manager is required")
	}
	if c.GetCurrentUser == nil {
		return fmt.Errorf("getCurrentUser is required")
	}
	return nil
}

// NewHandler creates a new subscription API handler with the given configuration
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	config.AppURL = strings.TrimRight(strings.TrimSpace(config.AppURL), "/")
	if config.AppURL == "" {
		config.AppURL = defaultAppURL
	}
	if config.Logger == nil {
		config.Logger = &subscription.NoopLogger{}
	}
	return &Handler{
		config: config,
	}, nil
}

// Helper functions for common user extraction patterns

// FromHeaders returns a GetCurrentUser function that reads the user id and
// email from headers set by an authenticating proxy
func FromHeaders(idHeader, emailHeader string) func(*http.Request) *CurrentUser {
	return func(r *http.Request) *CurrentUser {
		id := strings.TrimSpace(r.Header.Get(idHeader))
		if id == "" {
			return nil
		}
		return &CurrentUser{ID: id, Email: strings.TrimSpace(r.Header.Get(emailHeader))}
	}
}

type currentUserKey struct{}

// WithCurrentUser stores the authenticated user in ctx
func WithCurrentUser(ctx context.Context, user *CurrentUser) context.Context {
	return context.WithValue(ctx, currentUserKey{}, user)
}

// FromContext is a GetCurrentUser function reading the user stored by WithCurrentUser
func FromContext(r *http.Request) *CurrentUser {
	user, _ := r.Context().Value(currentUserKey{}).(*CurrentUser)
	return user
}
