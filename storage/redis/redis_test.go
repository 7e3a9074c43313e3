package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/vocalize/pkg/history"
	"github.com/mihaimyh/vocalize/pkg/subscription"
)

// setupTestRedis creates a Redis client for testing
// Requires Redis running on localhost:6379
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use DB 15 for testing
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	// Clear test database
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test database: %v", err)
	}

	return client
}

func setupTestStorage(t *testing.T) *Storage {
	t.Helper()

	client := setupTestRedis(t)
	t.Cleanup(func() { _ = client.Close() })

	storage, err := New(client, DefaultConfig())
	require.NoError(t, err)
	return storage
}

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		client     redis.UniversalClient
		config     Config
		wantErr    bool
		wantPrefix string
	}{
		{
			name:    "nil client",
			client:  nil,
			config:  DefaultConfig(),
			wantErr: true,
		},
		{
			name:       "valid client with default config",
			client:     redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
			config:     DefaultConfig(),
			wantPrefix: "vocalize:",
		},
		{
			name:       "custom prefix",
			client:     redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
			config:     Config{KeyPrefix: "test:"},
			wantPrefix: "test:",
		},
		{
			name:       "empty key prefix uses default",
			client:     redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
			config:     Config{},
			wantPrefix: "vocalize:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, err := New(tt.client, tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPrefix, storage.config.KeyPrefix)
			assert.Equal(t, tt.wantPrefix+"subscription:u1", storage.subscriptionKey("u1"))
			assert.Len(t, storage.scripts, 2)
		})
	}
}

func TestStorage_GetUpsertSubscription(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	_, err := storage.GetSubscription(ctx, "user1")
	assert.True(t, errors.Is(err, subscription.ErrSubscriptionNotFound))

	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	renews := created.AddDate(0, 1, 0)
	sub := &subscription.Subscription{
		UserID:        "user1",
		ExternalID:    "sub_1",
		VariantID:     "var_1",
		VariantName:   "Pro Monthly",
		Status:        subscription.StatusActive,
		PriceCents:    900,
		BillingPeriod: subscription.PeriodMonth,
		RenewsAt:      &renews,
		UpdatedAt:     created,
	}
	require.NoError(t, storage.UpsertSubscription(ctx, sub))

	got, err := storage.GetSubscription(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, "sub_1", got.ExternalID)
	assert.Equal(t, 900, got.PriceCents)
	assert.Equal(t, subscription.PeriodMonth, got.BillingPeriod)
	require.NotNil(t, got.RenewsAt)
	assert.True(t, got.RenewsAt.Equal(renews))
	assert.Nil(t, got.EndsAt)
	assert.True(t, got.CreatedAt.Equal(created))

	later := created.Add(time.Hour)
	sub2 := *sub
	sub2.ExternalID = "sub_2"
	sub2.Status = subscription.StatusOnTrial
	sub2.UpdatedAt = later
	require.NoError(t, storage.UpsertSubscription(ctx, &sub2))

	got, err = storage.GetSubscription(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, "sub_2", got.ExternalID)
	assert.Equal(t, subscription.StatusOnTrial, got.Status)
	assert.True(t, got.CreatedAt.Equal(created), "CreatedAt must survive upsert, got %v", got.CreatedAt)
	assert.True(t, got.UpdatedAt.Equal(later))

	// The superseded external id no longer resolves to the row
	matched, err := storage.PatchByExternalID(ctx, "sub_1", subscription.Patch{Status: subscription.StatusExpired})
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestStorage_UpsertSubscription_Invalid(t *testing.T) {
	storage, err := New(redis.NewClient(&redis.Options{Addr: "localhost:6379"}), DefaultConfig())
	require.NoError(t, err)

	err = storage.UpsertSubscription(context.Background(), &subscription.Subscription{})
	assert.True(t, errors.Is(err, subscription.ErrInvalidSubscription))
}

func TestStorage_PatchByExternalID(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	endsAt := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, storage.UpsertSubscription(ctx, &subscription.Subscription{
		UserID:     "user1",
		ExternalID: "sub_1",
		Status:     subscription.StatusActive,
		EndsAt:     &endsAt,
	}))

	t.Run("status only keeps ends_at", func(t *testing.T) {
		matched, err := storage.PatchByExternalID(ctx, "sub_1", subscription.Patch{Status: subscription.StatusPastDue})
		require.NoError(t, err)
		assert.True(t, matched)

		got, err := storage.GetSubscription(ctx, "user1")
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusPastDue, got.Status)
		require.NotNil(t, got.EndsAt)
		assert.True(t, got.EndsAt.Equal(endsAt))
	})

	t.Run("cancel sets ends_at", func(t *testing.T) {
		newEnd := endsAt.AddDate(0, -1, 0)
		matched, err := storage.PatchByExternalID(ctx, "sub_1", subscription.Patch{
			Status:    subscription.StatusCancelled,
			EndsAt:    &newEnd,
			SetEndsAt: true,
		})
		require.NoError(t, err)
		assert.True(t, matched)

		got, err := storage.GetSubscription(ctx, "user1")
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusCancelled, got.Status)
		require.NotNil(t, got.EndsAt)
		assert.True(t, got.EndsAt.Equal(newEnd))
	})

	t.Run("clearing ends_at", func(t *testing.T) {
		matched, err := storage.PatchByExternalID(ctx, "sub_1", subscription.Patch{
			Status:    subscription.StatusCancelled,
			SetEndsAt: true,
		})
		require.NoError(t, err)
		assert.True(t, matched)

		got, err := storage.GetSubscription(ctx, "user1")
		require.NoError(t, err)
		assert.Nil(t, got.EndsAt)
	})

	t.Run("unknown external id", func(t *testing.T) {
		matched, err := storage.PatchByExternalID(ctx, "sub_missing", subscription.Patch{Status: subscription.StatusExpired})
		require.NoError(t, err)
		assert.False(t, matched)
	})
}

func TestStorage_ExternalIDMovesToLatestOwner(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.UpsertSubscription(ctx, &subscription.Subscription{
		UserID: "user1", ExternalID: "sub_1", Status: subscription.StatusActive,
	}))
	require.NoError(t, storage.UpsertSubscription(ctx, &subscription.Subscription{
		UserID: "user2", ExternalID: "sub_1", Status: subscription.StatusActive,
	}))

	matched, err := storage.PatchByExternalID(ctx, "sub_1", subscription.Patch{Status: subscription.StatusExpired})
	require.NoError(t, err)
	assert.True(t, matched)

	prev, err := storage.GetSubscription(ctx, "user1")
	require.NoError(t, err)
	assert.Empty(t, prev.ExternalID, "previous holder must be detached")
	assert.Equal(t, subscription.StatusActive, prev.Status)

	owner, err := storage.GetSubscription(ctx, "user2")
	require.NoError(t, err)
	assert.Equal(t, "sub_1", owner.ExternalID)
	assert.Equal(t, subscription.StatusExpired, owner.Status)
}

func TestStorage_LookupUserByEmail(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.AddUser(ctx, "user1", "Jane@Example.com"))

	id, err := storage.LookupUserByEmail(ctx, " jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, "user1", id)

	_, err = storage.LookupUserByEmail(ctx, "nobody@example.com")
	assert.True(t, errors.Is(err, subscription.ErrUserNotFound))
}

func TestStorage_History(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, storage.SaveItem(ctx, &history.Item{
			ID:        fmt.Sprintf("item-%d", i),
			UserID:    "user1",
			Title:     fmt.Sprintf("Title %d", i),
			Result:    "body",
			Settings:  history.Settings{DocType: history.DocSummary, Length: history.LengthConcise, Style: history.StyleDirect},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	items, err := storage.ListItems(ctx, "user1", 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "item-4", items[0].ID)
	assert.Equal(t, "item-3", items[1].ID)
	assert.Equal(t, history.DocSummary, items[0].Settings.DocType)

	removed, err := storage.TrimItems(ctx, "user1", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	err = storage.DeleteItem(ctx, "user2", "item-4")
	assert.True(t, errors.Is(err, history.ErrItemNotFound))
	require.NoError(t, storage.DeleteItem(ctx, "user1", "item-4"))

	items, err = storage.ListItems(ctx, "user1", 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "item-3", items[0].ID)
	assert.Equal(t, "item-2", items[1].ID)

	empty, err := storage.ListItems(ctx, "user-none", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
