package billing

import (
	"net/http"
)

// Provider is the generic interface that any billing backend must implement.
type Provider interface {
	// Name returns the provider name (e.g., "lemonsqueezy")
	Name() string

	// WebhookHandler returns the HTTP handler that processes real-time events.
	// The implementation handles validation, parsing, and Manager updates internally.
	WebhookHandler() http.Handler
}

// CheckoutRequest identifies the buyer of a hosted checkout
type CheckoutRequest struct {
	PlanID string
	UserID string
	Email  string

	// SuccessURL is where the provider redirects after payment (optional)
	SuccessURL string
}

// CheckoutProvider builds links to the provider's hosted checkout and
// customer portal.
type CheckoutProvider interface {
	// CheckoutURL returns the hosted checkout link for req.PlanID.
	// Returns ErrUnknownPlan or ErrMissingEmail for unusable requests.
	CheckoutURL(req CheckoutRequest) (string, error)

	// PortalURL returns the link where customers manage their subscription
	PortalURL() string
}
