package lemonsqueezy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mihaimyh/vocalize/pkg/billing"
	"github.com/mihaimyh/vocalize/pkg/subscription"
	"github.com/mihaimyh/vocalize/storage/memory"
)

const (
	testSecret    = "whsec_test_secret"
	testUserID    = "user_123"
	testUserEmail = "alice@example.com"
)

// countingStore wraps the memory storage and counts writes
type countingStore struct {
	*memory.Storage

	mu      sync.Mutex
	upserts int
	patches int
	lookups int
	failErr error
}

func (s *countingStore) UpsertSubscription(ctx context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	s.upserts++
	fail := s.failErr
	s.mu.Unlock()
	if fail != nil {
		return fail
	}
	return s.Storage.UpsertSubscription(ctx, sub)
}

func (s *countingStore) PatchByExternalID(ctx context.Context, externalID string, patch subscription.Patch) (bool, error) {
	s.mu.Lock()
	s.patches++
	fail := s.failErr
	s.mu.Unlock()
	if fail != nil {
		return false, fail
	}
	return s.Storage.PatchByExternalID(ctx, externalID, patch)
}

func (s *countingStore) LookupUserByEmail(ctx context.Context, email string) (string, error) {
	s.mu.Lock()
	s.lookups++
	s.mu.Unlock()
	return s.Storage.LookupUserByEmail(ctx, email)
}

func (s *countingStore) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts + s.patches
}

func newTestStore() *countingStore {
	store := &countingStore{Storage: memory.New()}
	store.AddUser(testUserID, testUserEmail)
	return store
}

func newTestProvider(t *testing.T, store *countingStore, mutate func(*Config)) *Provider {
	t.Helper()
	manager, err := subscription.NewManager(store, subscription.Config{
		Catalog: subscription.NewCatalog("variant_monthly", "variant_annual"),
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	cfg := Config{
		Config: billing.Config{
			Manager:       manager,
			WebhookSecret: testSecret,
		},
		StoreSlug: "vocalize-test",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	provider, err := NewProvider(cfg)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	return provider
}

type eventOptions struct {
	subscriptionID string
	customEmail    string
	attrEmail      string
	variantName    string
	status         string
	price          *int
	endsAt         *time.Time
	omitEndsAt     bool
}

func subscriptionPayload(eventName string, opts eventOptions) []byte {
	if opts.subscriptionID == "" {
		opts.subscriptionID = "sub_1"
	}
	if opts.status == "" {
		opts.status = "active"
	}
	if opts.variantName == "" {
		opts.variantName = "Pro Monthly"
	}

	attrs := map[string]interface{}{
		"store_id":      1,
		"customer_id":   42,
		"order_id":      1001,
		"product_id":    7,
		"variant_id":    99,
		"variant_name":  opts.variantName,
		"user_email":    opts.attrEmail,
		"status":        opts.status,
		"renews_at":     "2030-01-01T00:00:00.000000Z",
		"ends_at":       nil,
		"trial_ends_at": nil,
	}
	if opts.price != nil {
		attrs["first_subscription_item"] = map[string]interface{}{"price": *opts.price}
	}
	if opts.endsAt != nil {
		attrs["ends_at"] = opts.endsAt.Format(time.RFC3339)
	}
	if opts.omitEndsAt {
		delete(attrs, "ends_at")
	}

	meta := map[string]interface{}{"event_name": eventName}
	if opts.customEmail != "" {
		meta["custom_data"] = map[string]interface{}{"user_email": opts.customEmail, "user_id": testUserID}
	}

	body, err := json.Marshal(map[string]interface{}{
		"meta": meta,
		"data": map[string]interface{}{
			"type":       "subscriptions",
			"id":         opts.subscriptionID,
			"attributes": attrs,
		},
	})
	if err != nil {
		panic(fmt.Sprintf("marshal payload: %v", err))
	}
	return body
}

func intPtr(v int) *int { return &v }

func signedRequest(body []byte, secret string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/lemonsqueezy", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(body, []byte(secret)))
	return req
}

func serve(p *Provider, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	p.WebhookHandler().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %v (%q)", err, w.Body.String())
	}
	return out
}
