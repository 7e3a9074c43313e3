package fiber

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mihaimyh/vocalize/pkg/subscription"
	"github.com/mihaimyh/vocalize/storage/memory"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// errorStorage is a mock storage that always fails on reads
type errorStorage struct {
	*memory.Storage
}

func (s *errorStorage) GetSubscription(_ context.Context, _ string) (*subscription.Subscription, error) {
	return nil, errors.New("connection refused")
}

// Test helper to create a test manager
func setupTestManager(t *testing.T, store subscription.Store) *subscription.Manager {
	t.Helper()

	if store == nil {
		store = memory.New()
	}
	manager, err := subscription.NewManager(store, subscription.Config{
		Now: func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	return manager
}

func setupApp(cfg Config) *fiber.App {
	app := fiber.New()
	app.Use(Middleware(cfg))
	app.Get("/pro", func(c *fiber.Ctx) error {
		eval, ok := GetEvaluation(c)
		if !ok {
			return c.Status(fiber.StatusInternalServerError).SendString("missing evaluation")
		}
		return c.SendString(eval.Plan.ID)
	})
	return app
}

func TestMiddleware_Entitled(t *testing.T) {
	manager := setupTestManager(t, nil)
	if err := manager.Upsert(context.Background(), &subscription.Subscription{
		UserID:        "user1",
		ExternalID:    "sub_1",
		Status:        subscription.StatusActive,
		BillingPeriod: subscription.PeriodMonth,
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	app := setupApp(Config{Manager: manager, GetUserID: FromHeader("X-User-ID")})

	req := httptest.NewRequest(http.MethodGet, "/pro", nil)
	req.Header.Set("X-User-ID", "user1")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != subscription.PlanIDProMonthly {
		t.Errorf("Expected plan %s, got %s", subscription.PlanIDProMonthly, body)
	}
}

func TestMiddleware_NotEntitled(t *testing.T) {
	manager := setupTestManager(t, nil)
	if err := manager.Upsert(context.Background(), &subscription.Subscription{
		UserID:     "user1",
		ExternalID: "sub_1",
		Status:     subscription.StatusExpired,
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	app := setupApp(Config{Manager: manager, GetUserID: FromHeader("X-User-ID")})

	req := httptest.NewRequest(http.MethodGet, "/pro", nil)
	req.Header.Set("X-User-ID", "user1")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("Expected status 402, got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body["status"] != "Expired" {
		t.Errorf("Expected status Expired, got %q", body["status"])
	}
}

func TestMiddleware_Unauthorized(t *testing.T) {
	app := setupApp(Config{Manager: setupTestManager(t, nil), GetUserID: FromHeader("X-User-ID")})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/pro", nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.StatusCode)
	}
}

func TestMiddleware_StorageError(t *testing.T) {
	app := setupApp(Config{
		Manager:   setupTestManager(t, &errorStorage{Storage: memory.New()}),
		GetUserID: FromQuery("user"),
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/pro?user=user1", nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", resp.StatusCode)
	}
}

func TestMiddleware_FromContext(t *testing.T) {
	manager := setupTestManager(t, nil)
	if err := manager.Upsert(context.Background(), &subscription.Subscription{
		UserID:     "user1",
		ExternalID: "sub_1",
		Status:     subscription.StatusOnTrial,
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("UserID", "user1")
		return c.Next()
	})
	app.Use(Middleware(Config{Manager: manager, GetUserID: FromContext("UserID")}))
	app.Get("/pro", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/pro", nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", resp.StatusCode)
	}
}

func TestMiddleware_PanicsWithoutManager(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for missing manager")
		}
	}()
	Middleware(Config{GetUserID: FromHeader("X-User-ID")})
}
