package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mihaimyh/vocalize/pkg/billing"
	"github.com/mihaimyh/vocalize/pkg/history"
	"github.com/mihaimyh/vocalize/pkg/subscription"
	"github.com/mihaimyh/vocalize/storage/memory"
)

const (
	testUserID    = "user123"
	testUserEmail = "user123@example.com"
)

type stubCheckout struct {
	last billing.CheckoutRequest
}

func (s *stubCheckout) CheckoutURL(req billing.CheckoutRequest) (string, error) {
	s.last = req
	if req.PlanID != subscription.PlanIDProMonthly && req.PlanID != subscription.PlanIDProAnnual {
		return "", billing.ErrUnknownPlan
	}
	if req.Email == "" {
		return "", billing.ErrMissingEmail
	}
	return "https://store.example/checkout/" + req.PlanID, nil
}

func (s *stubCheckout) PortalURL() string { return "https://store.example/billing" }

type testEnv struct {
	storage  *memory.Storage
	manager  *subscription.Manager
	checkout *stubCheckout
	handler  http.Handler
}

func newTestEnv(t *testing.T, user *CurrentUser) *testEnv {
	t.Helper()
	storage := memory.New()
	manager, err := subscription.NewManager(storage, subscription.Config{})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	hist, err := history.NewService(storage, manager, history.Config{})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	checkout := &stubCheckout{}
	h, err := NewHandler(Config{
		Manager:        manager,
		GetCurrentUser: func(*http.Request) *CurrentUser { return user },
		Checkout:       checkout,
		History:        hist,
		AppURL:         "https://app.example.com/",
	})
	if err != nil {
		t.Fatalf("NewHandler failed: %v", err)
	}
	return &testEnv{storage: storage, manager: manager, checkout: checkout, handler: h.Routes()}
}

func (e *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, http.NoBody)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) subscribe(t *testing.T, status subscription.Status, period subscription.BillingPeriod) {
	t.Helper()
	err := e.manager.Upsert(context.Background(), &subscription.Subscription{
		UserID:        testUserID,
		ExternalID:    "sub_1",
		Status:        status,
		BillingPeriod: period,
		VariantName:   "Pro",
		PriceCents:    900,
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
}

func TestNewHandler_Validation(t *testing.T) {
	if _, err := NewHandler(Config{}); err == nil {
		t.Error("expected error for missing manager")
	}
	manager, _ := subscription.NewManager(memory.New(), subscription.Config{})
	if _, err := NewHandler(Config{Manager: manager}); err == nil {
		t.Error("expected error for missing GetCurrentUser")
	}
}

func TestHandler_Unauthenticated(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, tc := range []struct{ method, target string }{
		{http.MethodGet, "/subscription"},
		{http.MethodPost, "/checkout?plan=pro_monthly"},
		{http.MethodGet, "/portal"},
		{http.MethodGet, "/history"},
		{http.MethodDelete, "/history/abc"},
	} {
		w := env.do(tc.method, tc.target, "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: status = %d, want 401", tc.method, tc.target, w.Code)
		}
	}
}

func TestHandler_GetSubscription_None(t *testing.T) {
	env := newTestEnv(t, &CurrentUser{ID: testUserID, Email: testUserEmail})

	w := env.do(http.MethodGet, "/subscription", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp SubscriptionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.UserID != testUserID || resp.Entitled || resp.Subscription != nil {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.Plan.ID != subscription.PlanIDFree || resp.Plan.RecordingLimitSeconds != 120 {
		t.Errorf("unexpected plan: %+v", resp.Plan)
	}
	if !strings.Contains(w.Body.String(), `"subscription":null`) {
		t.Errorf("subscription should serialize as null: %s", w.Body.String())
	}
}

func TestHandler_GetSubscription_Active(t *testing.T) {
	env := newTestEnv(t, &CurrentUser{ID: testUserID, Email: testUserEmail})
	env.subscribe(t, subscription.StatusActive, subscription.PeriodYear)

	w := env.do(http.MethodGet, "/subscription", "")
	var resp SubscriptionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Entitled || resp.StatusLabel != "Active" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.Subscription == nil || resp.Subscription.ExternalID != "sub_1" || resp.Subscription.BillingPeriod != "year" {
		t.Errorf("unexpected subscription: %+v", resp.Subscription)
	}
	if resp.Plan.ID != subscription.PlanIDProAnnual || resp.Plan.Price != "$54/yr" {
		t.Errorf("unexpected plan: %+v", resp.Plan)
	}
}

func TestHandler_CreateCheckout(t *testing.T) {
	env := newTestEnv(t, &CurrentUser{ID: testUserID, Email: testUserEmail})

	w := env.do(http.MethodPost, "/checkout?plan=pro_annual", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp CheckoutResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.CheckoutURL != "https://store.example/checkout/pro_annual" {
		t.Errorf("CheckoutURL = %q", resp.CheckoutURL)
	}
	if env.checkout.last.SuccessURL != "https://app.example.com/account?upgraded=true" {
		t.Errorf("SuccessURL = %q", env.checkout.last.SuccessURL)
	}
	if env.checkout.last.UserID != testUserID || env.checkout.last.Email != testUserEmail {
		t.Errorf("buyer not forwarded: %+v", env.checkout.last)
	}

	if w := env.do(http.MethodPost, "/checkout?plan=free", ""); w.Code != http.StatusBadRequest {
		t.Errorf("unknown plan: status = %d, want 400", w.Code)
	}
	if w := env.do(http.MethodGet, "/checkout?plan=pro_annual", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET checkout: status = %d, want 405", w.Code)
	}
}

func TestHandler_CreateCheckout_NoEmail(t *testing.T) {
	env := newTestEnv(t, &CurrentUser{ID: testUserID})

	if w := env.do(http.MethodPost, "/checkout?plan=pro_monthly", ""); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandler_GetPortal(t *testing.T) {
	env := newTestEnv(t, &CurrentUser{ID: testUserID, Email: testUserEmail})

	if w := env.do(http.MethodGet, "/portal", ""); w.Code != http.StatusNotFound {
		t.Fatalf("without subscription: status = %d, want 404", w.Code)
	}

	env.subscribe(t, subscription.StatusExpired, subscription.PeriodMonth)
	w := env.do(http.MethodGet, "/portal", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp PortalResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.PortalURL != "https://store.example/billing" {
		t.Errorf("PortalURL = %q", resp.PortalURL)
	}
}

const saveBody = `{"transcript":"raw words","result":"# Weekly Sync\nNotes","settings":{"doc_type":"MEETING_NOTES","length":"BALANCED","style":"PROFESSIONAL"}}`

func TestHandler_History_RequiresPro(t *testing.T) {
	env := newTestEnv(t, &CurrentUser{ID: testUserID, Email: testUserEmail})

	w := env.do(http.MethodPost, "/history", saveBody)
	if w.Code != http.StatusPaymentRequired {
		t.Errorf("status = %d, want 402", w.Code)
	}
}

func TestHandler_History_Lifecycle(t *testing.T) {
	env := newTestEnv(t, &CurrentUser{ID: testUserID, Email: testUserEmail})
	env.subscribe(t, subscription.StatusOnTrial, subscription.PeriodMonth)

	w := env.do(http.MethodPost, "/history", saveBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("save: status = %d, body = %s", w.Code, w.Body.String())
	}
	var item history.Item
	if err := json.Unmarshal(w.Body.Bytes(), &item); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if item.Title != "Weekly Sync" || item.ID == "" {
		t.Errorf("unexpected item: %+v", item)
	}

	w = env.do(http.MethodGet, "/history", "")
	var list struct {
		Items []history.Item `json:"items"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if len(list.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(list.Items))
	}

	if w := env.do(http.MethodDelete, "/history/"+item.ID, ""); w.Code != http.StatusNoContent {
		t.Errorf("delete: status = %d, want 204", w.Code)
	}
	if w := env.do(http.MethodDelete, "/history/"+item.ID, ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d, want 404", w.Code)
	}
}

func TestHandler_History_BadRequests(t *testing.T) {
	env := newTestEnv(t, &CurrentUser{ID: testUserID, Email: testUserEmail})
	env.subscribe(t, subscription.StatusActive, subscription.PeriodMonth)

	tests := map[string]string{
		"not json":      `{`,
		"empty result":  `{"result":"  ","settings":{"doc_type":"SUMMARY","length":"CONCISE","style":"DIRECT"}}`,
		"bad doc type":  `{"result":"x","settings":{"doc_type":"HAIKU","length":"CONCISE","style":"DIRECT"}}`,
		"missing style": `{"result":"x","settings":{"doc_type":"SUMMARY","length":"CONCISE"}}`,
	}
	for name, body := range tests {
		if w := env.do(http.MethodPost, "/history", body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, w.Code)
		}
	}
}

func TestHandler_OnError(t *testing.T) {
	var captured error
	manager, _ := subscription.NewManager(memory.New(), subscription.Config{})
	h, err := NewHandler(Config{
		Manager:        manager,
		GetCurrentUser: func(*http.Request) *CurrentUser { return nil },
		OnError: func(w http.ResponseWriter, _ *http.Request, err error) {
			captured = err
			w.WriteHeader(http.StatusTeapot)
		},
	})
	if err != nil {
		t.Fatalf("NewHandler failed: %v", err)
	}

	w := httptest.NewRecorder()
	h.GetSubscription(w, httptest.NewRequest(http.MethodGet, "/subscription", http.NoBody))
	if w.Code != http.StatusTeapot || captured == nil {
		t.Errorf("OnError not used: code=%d err=%v", w.Code, captured)
	}
}

func TestHandler_NotConfigured(t *testing.T) {
	manager, _ := subscription.NewManager(memory.New(), subscription.Config{})
	h, _ := NewHandler(Config{
		Manager:        manager,
		GetCurrentUser: func(*http.Request) *CurrentUser { return &CurrentUser{ID: testUserID} },
	})
	routes := h.Routes()

	for _, target := range []string{"/portal", "/history"} {
		w := httptest.NewRecorder()
		routes.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, http.NoBody))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d, want 503", target, w.Code)
		}
	}
}

type brokenStore struct{}

func (brokenStore) GetSubscription(context.Context, string) (*subscription.Subscription, error) {
	return nil, errors.New("db down")
}
func (brokenStore) UpsertSubscription(context.Context, *subscription.Subscription) error {
	return errors.New("db down")
}
func (brokenStore) PatchByExternalID(context.Context, string, subscription.Patch) (bool, error) {
	return false, errors.New("db down")
}

func TestHandler_StoreError(t *testing.T) {
	manager, _ := subscription.NewManager(brokenStore{}, subscription.Config{})
	h, _ := NewHandler(Config{
		Manager:        manager,
		GetCurrentUser: func(*http.Request) *CurrentUser { return &CurrentUser{ID: testUserID} },
	})

	w := httptest.NewRecorder()
	h.GetSubscription(w, httptest.NewRequest(http.MethodGet, "/subscription", http.NoBody))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestFromHeaders(t *testing.T) {
	get := FromHeaders("X-User-ID", "X-User-Email")

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	if get(req) != nil {
		t.Error("expected nil user without header")
	}
	req.Header.Set("X-User-ID", "u1")
	req.Header.Set("X-User-Email", "u1@example.com")
	if u := get(req); u == nil || u.ID != "u1" || u.Email != "u1@example.com" {
		t.Errorf("unexpected user: %+v", u)
	}
}

func TestFromContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	if FromContext(req) != nil {
		t.Error("expected nil user on empty context")
	}
	req = req.WithContext(WithCurrentUser(req.Context(), &CurrentUser{ID: "u2"}))
	if u := FromContext(req); u == nil || u.ID != "u2" {
		t.Errorf("unexpected user: %+v", u)
	}
}

func TestHandler_UserIDTooLong(t *testing.T) {
	env := newTestEnv(t, &CurrentUser{ID: strings.Repeat("x", maxUserIDLen+1)})
	if w := env.do(http.MethodGet, "/subscription", ""); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
