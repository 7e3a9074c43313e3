package lemonsqueezy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mihaimyh/vocalize/pkg/billing"
	"github.com/mihaimyh/vocalize/pkg/billing/internal"
	"github.com/mihaimyh/vocalize/pkg/subscription"
)

const userNotFoundWarning = "User not found"

type webhookResponse struct {
	Received bool   `json:"received"`
	Warning  string `json:"warning,omitempty"`
}

// handleWebhook processes incoming Lemon Squeezy webhook events
func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	internal.SetSecurityHeaders(w)

	switch r.Method {
	case http.MethodPost:
	case http.MethodGet:
		// Lemon Squeezy may probe the endpoint
		_ = internal.WriteJSON(w, http.StatusOK, map[string]string{"status": "Webhook endpoint active"})
		return
	default:
		w.Header().Set("Allow", "GET, POST")
		internal.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// Read and validate body (with size limit protection)
	body, err := internal.ReadBodyStrict(w, r, p.maxBodyBytes)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			internal.WriteError(w, http.StatusRequestEntityTooLarge, "payload too large")
			p.metrics.RecordWebhookError(providerName, "payload_too_large")
		} else {
			internal.WriteError(w, http.StatusBadRequest, "invalid payload")
			p.metrics.RecordWebhookError(providerName, "invalid_payload")
		}
		return
	}

	if !VerifySignature(body, r.Header.Get(SignatureHeader), p.webhookSecret) {
		if len(p.webhookSecret) == 0 {
			p.logger.Error("webhook secret is not configured")
		} else {
			p.logger.Warn("invalid webhook signature", subscription.String("remote_ip", internal.ClientIP(r)))
		}
		internal.WriteError(w, http.StatusUnauthorized, "Invalid signature")
		p.metrics.RecordWebhookError(providerName, "auth_failed")
		return
	}

	event, err := ParseEvent(body)
	if err != nil {
		p.logger.Warn("rejected webhook payload", subscription.Err(err))
		if errors.Is(err, ErrNoUserEmail) {
			internal.WriteError(w, http.StatusBadRequest, "No user email")
		} else {
			internal.WriteError(w, http.StatusBadRequest, "invalid payload")
		}
		p.metrics.RecordWebhookError(providerName, "invalid_payload")
		return
	}

	eventType := string(event.Name)
	if eventType == "" {
		eventType = "unknown"
	}
	status, err := p.processEvent(r.Context(), event)
	p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
	if err != nil {
		p.logger.Error("webhook processing failed",
			subscription.String("event", eventType),
			subscription.String("external_id", event.SubscriptionID),
			subscription.Err(err),
		)
		internal.WriteError(w, http.StatusInternalServerError, "Database error")
		p.metrics.RecordWebhookEvent(providerName, eventType, "error")
		p.metrics.RecordWebhookError(providerName, "processing_error")
		return
	}
	p.metrics.RecordWebhookEvent(providerName, eventType, status)

	resp := webhookResponse{Received: true}
	if status == statusUserNotFound {
		resp.Warning = userNotFoundWarning
	}
	_ = internal.WriteJSON(w, http.StatusOK, resp)
}

const (
	statusSuccess      = "success"
	statusIgnored      = "ignored"
	statusUnmatched    = "unmatched"
	statusUserNotFound = "user_not_found"
)

// processEvent resolves the user and applies the event's mutation.
// It returns the outcome label used for metrics.
func (p *Provider) processEvent(ctx context.Context, event *Event) (string, error) {
	if event.Name.Known() && event.SubscriptionID == "" {
		p.logger.Warn("webhook event without subscription id",
			subscription.String("event", string(event.Name)),
			subscription.String("email", event.Email),
		)
		return statusIgnored, nil
	}

	userID, err := p.manager.LookupUserByEmail(ctx, event.Email)
	if errors.Is(err, subscription.ErrUserNotFound) {
		// the user may not have signed up yet; acknowledge so the vendor stops retrying
		p.logger.Warn("webhook user not found",
			subscription.String("event", string(event.Name)),
			subscription.String("email", event.Email),
		)
		return statusUserNotFound, nil
	}
	if err != nil {
		return "", err
	}

	mutation := MapEvent(event, userID)
	switch mutation.Kind {
	case MutationUpsert:
		return p.applyUpsert(ctx, event, mutation.Record)
	case MutationPatch:
		return p.applyPatch(ctx, event, userID, mutation)
	default:
		p.logger.Info("unhandled webhook event",
			subscription.String("event", string(event.Name)),
			subscription.String("user_id", userID),
		)
		return statusIgnored, nil
	}
}

func (p *Provider) applyUpsert(ctx context.Context, event *Event, rec *subscription.Subscription) (string, error) {
	var previous subscription.Status
	existing, err := p.manager.GetSubscription(ctx, rec.UserID)
	switch {
	case err == nil:
		previous = existing.Status
	case !errors.Is(err, subscription.ErrSubscriptionNotFound):
		return "", fmt.Errorf("load current subscription: %w", err)
	}

	if err := p.manager.Upsert(ctx, rec); err != nil {
		return "", err
	}
	p.logger.Info("subscription stored",
		subscription.String("event", string(event.Name)),
		subscription.String("user_id", rec.UserID),
		subscription.String("external_id", rec.ExternalID),
		subscription.String("status", string(rec.Status)),
	)

	if previous != rec.Status {
		p.metrics.RecordStatusChange(providerName, string(previous), string(rec.Status))
	}

	return statusSuccess, p.notify(ctx, billing.WebhookEvent{
		UserID:         rec.UserID,
		ExternalID:     rec.ExternalID,
		PreviousStatus: previous,
		NewStatus:      rec.Status,
		Provider:       providerName,
		EventType:      string(event.Name),
		EndsAt:         rec.EndsAt,
		Metadata: map[string]interface{}{
			"variant_name":   rec.VariantName,
			"variant_id":     rec.VariantID,
			"order_id":       rec.OrderID,
			"billing_period": string(rec.BillingPeriod),
		},
	})
}

func (p *Provider) applyPatch(ctx context.Context, event *Event, userID string, m Mutation) (string, error) {
	matched, err := p.manager.PatchByExternalID(ctx, m.ExternalID, m.Patch)
	if err != nil {
		return "", err
	}
	if !matched {
		// out of order delivery; the next full event repairs the row
		return statusUnmatched, nil
	}

	p.logger.Info("subscription status updated",
		subscription.String("event", string(event.Name)),
		subscription.String("user_id", userID),
		subscription.String("external_id", m.ExternalID),
		subscription.String("status", string(m.Patch.Status)),
	)
	p.metrics.RecordStatusChange(providerName, "", string(m.Patch.Status))

	var endsAt *time.Time
	if m.Patch.SetEndsAt {
		endsAt = m.Patch.EndsAt
	}
	return statusSuccess, p.notify(ctx, billing.WebhookEvent{
		UserID:     userID,
		ExternalID: m.ExternalID,
		NewStatus:  m.Patch.Status,
		Provider:   providerName,
		EventType:  string(event.Name),
		EndsAt:     endsAt,
	})
}

func (p *Provider) notify(ctx context.Context, event billing.WebhookEvent) error {
	if p.callback == nil {
		return nil
	}
	if err := p.callback(ctx, event); err != nil {
		return fmt.Errorf("webhook callback: %w", err)
	}
	return nil
}
