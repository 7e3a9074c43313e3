// Command examples replays a signed Lemon Squeezy subscription lifecycle
// against the webhook handler and prints the resulting entitlement.
package main

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"

	"github.com/mihaimyh/vocalize/pkg/billing"
	"github.com/mihaimyh/vocalize/pkg/billing/lemonsqueezy"
	"github.com/mihaimyh/vocalize/pkg/subscription"
	"github.com/mihaimyh/vocalize/storage/memory"
)

const secret = "whsec_example"

func main() {
	// 1. Storage with one registered user
	storage := memory.New()
	storage.AddUser("user-42", "jane@example.com")

	// 2. Subscription manager
	manager, err := subscription.NewManager(storage, subscription.Config{})
	if err != nil {
		log.Fatalf("Failed to create manager: %v", err)
	}

	// 3. Lemon Squeezy provider with a callback on every state change
	provider, err := lemonsqueezy.NewProvider(lemonsqueezy.Config{
		Config: billing.Config{
			Manager:       manager,
			WebhookSecret: secret,
			WebhookCallback: func(_ context.Context, event billing.WebhookEvent) error {
				fmt.Printf("  callback: %s %q -> %q\n", event.EventType, event.PreviousStatus, event.NewStatus)
				return nil
			},
		},
	})
	if err != nil {
		log.Fatalf("Failed to create provider: %v", err)
	}
	handler := provider.WebhookHandler()

	// 4. Replay the lifecycle
	events := []string{
		payload("subscription_created", "active", "null"),
		payload("subscription_payment_failed", "past_due", "null"),
		payload("subscription_payment_success", "active", "null"),
		payload("subscription_cancelled", "cancelled", `"2099-01-01T00:00:00Z"`),
		payload("subscription_expired", "expired", `"2099-01-01T00:00:00Z"`),
	}

	ctx := context.Background()
	for _, body := range events {
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/lemonsqueezy", bytes.NewBufferString(body))
		req.Header.Set(lemonsqueezy.SignatureHeader, lemonsqueezy.Sign([]byte(body), []byte(secret)))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		fmt.Printf("POST -> %d %s", rec.Code, rec.Body.String())

		eval, err := manager.Evaluate(ctx, "user-42")
		if err != nil {
			log.Fatalf("Evaluate failed: %v", err)
		}
		fmt.Printf("  entitled=%v label=%q plan=%s\n", eval.Entitled, eval.Label, eval.Plan.ID)
	}
}

func payload(event, status, endsAt string) string {
	return fmt.Sprintf(`{
  "meta": {"event_name": %q, "custom_data": {"user_email": "jane@example.com"}},
  "data": {
    "id": "sub_1001",
    "type": "subscriptions",
    "attributes": {
      "order_id": 2001,
      "product_id": 3001,
      "variant_id": 4001,
      "customer_id": 5001,
      "variant_name": "Pro Monthly",
      "status": %q,
      "renews_at": "2099-01-01T00:00:00Z",
      "ends_at": %s,
      "trial_ends_at": null,
      "first_subscription_item": {"price": 900}
    }
  }
}`, event, status, endsAt)
}
