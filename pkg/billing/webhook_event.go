package billing

import (
	"time"

	"github.com/mihaimyh/vocalize/pkg/subscription"
)

// WebhookEvent contains information about a successful webhook processing event.
// This event is passed to the WebhookCallback after the subscription has been
// successfully updated in storage.
type WebhookEvent struct {
	// UserID is the internal user identifier resolved from the buyer email
	UserID string

	// ExternalID is the provider's subscription id
	ExternalID string

	// PreviousStatus is the status before the update.
	// Empty for new subscriptions and for status patches.
	PreviousStatus subscription.Status

	// NewStatus is the status after the update
	NewStatus subscription.Status

	// Provider is the billing provider name ("lemonsqueezy")
	Provider string

	// EventType is the provider-specific event name
	// (e.g., "subscription_created", "subscription_cancelled")
	EventType string

	// EndsAt is when access ends for cancelled subscriptions (nil otherwise)
	EndsAt *time.Time

	// Metadata contains provider-specific additional data
	// (e.g., variant_name, order_id)
	Metadata map[string]interface{}
}
