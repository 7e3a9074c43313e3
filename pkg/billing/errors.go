package billing

import "errors"

var (
	// ErrProviderNotConfigured is returned when a provider is not properly configured
	ErrProviderNotConfigured = errors.New("billing provider not configured")

	// ErrInvalidWebhookSignature is returned when webhook signature validation fails
	ErrInvalidWebhookSignature = errors.New("invalid webhook signature")

	// ErrInvalidWebhookPayload is returned when webhook payload cannot be parsed
	ErrInvalidWebhookPayload = errors.New("invalid webhook payload")

	// ErrUnknownPlan is returned when a checkout is requested for a plan that is not sold
	ErrUnknownPlan = errors.New("unknown plan")

	// ErrMissingEmail is returned when a checkout is requested without a customer email
	ErrMissingEmail = errors.New("customer email is required")
)
