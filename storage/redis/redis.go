// Package redis provides a Redis implementation of the subscription.Store,
// subscription.UserDirectory and history.Store interfaces.
// Writes that touch more than one key run as Lua scripts.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/vocalize/pkg/history"
	"github.com/mihaimyh/vocalize/pkg/subscription"
)

// Storage implements subscription.Store using Redis
type Storage struct {
	client  redis.UniversalClient
	config  Config
	scripts map[string]*redis.Script
}

// Config holds Redis storage configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "vocalize:")
	KeyPrefix string

	// HistoryTTL is the TTL for history keys, refreshed on save (0 = no expiration)
	HistoryTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "vocalize:",
	}
}

// New creates a new Redis storage adapter
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = "vocalize:"
	}

	s := &Storage{
		client:  client,
		config:  config,
		scripts: make(map[string]*redis.Script),
	}

	s.loadScripts()

	return s, nil
}

// loadScripts loads and compiles Lua scripts for atomic operations
func (s *Storage) loadScripts() {
	// Upsert keeps created_at of the existing row, moves the external id index
	// and detaches a previous holder of the external id
	s.scripts["upsert"] = redis.NewScript(`
		local subKey = KEYS[1]
		local extKey = KEYS[2]
		local data = ARGV[1]
		local extPrefix = ARGV[2]
		local userID = ARGV[3]
		local subPrefix = ARGV[4]

		local record = cjson.decode(data)
		local existing = redis.call('GET', subKey)
		if existing then
			local old = cjson.decode(existing)
			if old.created_at then
				record.created_at = old.created_at
			end
			if old.external_id and old.external_id ~= record.external_id then
				local oldExtKey = extPrefix .. old.external_id
				if redis.call('GET', oldExtKey) == userID then
					redis.call('DEL', oldExtKey)
				end
			end
		end

		redis.call('SET', subKey, cjson.encode(record))
		if record.external_id ~= '' then
			local owner = redis.call('GET', extKey)
			if owner and owner ~= userID then
				local ownerKey = subPrefix .. owner
				local held = redis.call('GET', ownerKey)
				if held then
					local prev = cjson.decode(held)
					if prev.external_id == record.external_id then
						prev.external_id = ''
						redis.call('SET', ownerKey, cjson.encode(prev))
					end
				end
			end
			redis.call('SET', extKey, userID)
		end
		return 1
	`)

	// Patch resolves the row through the external id index
	s.scripts["patch"] = redis.NewScript(`
		local extKey = KEYS[1]
		local subPrefix = ARGV[1]
		local externalID = ARGV[2]
		local status = ARGV[3]
		local setEndsAt = ARGV[4]
		local endsAt = ARGV[5]
		local updatedAt = ARGV[6]

		local userID = redis.call('GET', extKey)
		if not userID then
			return 0
		end

		local subKey = subPrefix .. userID
		local existing = redis.call('GET', subKey)
		if not existing then
			return 0
		end

		local record = cjson.decode(existing)
		if record.external_id ~= externalID then
			return 0
		end

		record.status = status
		if setEndsAt == '1' then
			if endsAt == '' then
				record.ends_at = cjson.null
			else
				record.ends_at = endsAt
			end
		end
		record.updated_at = updatedAt

		redis.call('SET', subKey, cjson.encode(record))
		return 1
	`)
}

// record is the JSON document stored per user
type record struct {
	UserID        string     `json:"user_id"`
	ExternalID    string     `json:"external_id"`
	OrderID       string     `json:"order_id,omitempty"`
	ProductID     string     `json:"product_id,omitempty"`
	VariantID     string     `json:"variant_id,omitempty"`
	CustomerID    string     `json:"customer_id,omitempty"`
	VariantName   string     `json:"variant_name"`
	Status        string     `json:"status"`
	PriceCents    int        `json:"price_cents"`
	BillingPeriod string     `json:"billing_period"`
	RenewsAt      *time.Time `json:"renews_at"`
	EndsAt        *time.Time `json:"ends_at"`
	TrialEndsAt   *time.Time `json:"trial_ends_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func toRecord(sub *subscription.Subscription) record {
	return record{
		UserID:        sub.UserID,
		ExternalID:    sub.ExternalID,
		OrderID:       sub.OrderID,
		ProductID:     sub.ProductID,
		VariantID:     sub.VariantID,
		CustomerID:    sub.CustomerID,
		VariantName:   sub.VariantName,
		Status:        string(sub.Status),
		PriceCents:    sub.PriceCents,
		BillingPeriod: string(sub.BillingPeriod),
		RenewsAt:      sub.RenewsAt,
		EndsAt:        sub.EndsAt,
		TrialEndsAt:   sub.TrialEndsAt,
		CreatedAt:     sub.CreatedAt,
		UpdatedAt:     sub.UpdatedAt,
	}
}

func (r record) subscription() *subscription.Subscription {
	return &subscription.Subscription{
		UserID:        r.UserID,
		ExternalID:    r.ExternalID,
		OrderID:       r.OrderID,
		ProductID:     r.ProductID,
		VariantID:     r.VariantID,
		CustomerID:    r.CustomerID,
		VariantName:   r.VariantName,
		Status:        subscription.Status(r.Status),
		PriceCents:    r.PriceCents,
		BillingPeriod: subscription.BillingPeriod(r.BillingPeriod),
		RenewsAt:      r.RenewsAt,
		EndsAt:        r.EndsAt,
		TrialEndsAt:   r.TrialEndsAt,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// GetSubscription implements subscription.Store
func (s *Storage) GetSubscription(ctx context.Context, userID string) (*subscription.Subscription, error) {
	data, err := s.client.Get(ctx, s.subscriptionKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, subscription.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal subscription: %w", err)
	}
	return rec.subscription(), nil
}

// UpsertSubscription implements subscription.Store
func (s *Storage) UpsertSubscription(ctx context.Context, sub *subscription.Subscription) error {
	if sub == nil || sub.UserID == "" {
		return fmt.Errorf("%w: user id is required", subscription.ErrInvalidSubscription)
	}

	rec := toRecord(sub)
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	// Replaced by the stored value when the row already exists
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.UpdatedAt
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription: %w", err)
	}

	keys := []string{s.subscriptionKey(sub.UserID), s.externalKey(sub.ExternalID)}
	args := []interface{}{data, s.externalKey(""), sub.UserID, s.subscriptionKey("")}
	if err := s.scripts["upsert"].Run(ctx, s.client, keys, args...).Err(); err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

// PatchByExternalID implements subscription.Store
func (s *Storage) PatchByExternalID(ctx context.Context, externalID string, patch subscription.Patch) (bool, error) {
	updatedAt := patch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	setEndsAt, endsAt := "0", ""
	if patch.SetEndsAt {
		setEndsAt = "1"
		if patch.EndsAt != nil {
			endsAt = patch.EndsAt.Format(time.RFC3339Nano)
		}
	}

	keys := []string{s.externalKey(externalID)}
	args := []interface{}{
		s.subscriptionKey(""),
		externalID,
		string(patch.Status),
		setEndsAt,
		endsAt,
		updatedAt.Format(time.RFC3339Nano),
	}

	matched, err := s.scripts["patch"].Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return false, fmt.Errorf("failed to patch subscription: %w", err)
	}
	return matched == 1, nil
}

// LookupUserByEmail implements subscription.UserDirectory
func (s *Storage) LookupUserByEmail(ctx context.Context, email string) (string, error) {
	userID, err := s.client.Get(ctx, s.emailKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return "", subscription.ErrUserNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to lookup user: %w", err)
	}
	return userID, nil
}

// AddUser registers userID under email
func (s *Storage) AddUser(ctx context.Context, userID, email string) error {
	if err := s.client.Set(ctx, s.emailKey(email), userID, 0).Err(); err != nil {
		return fmt.Errorf("failed to add user: %w", err)
	}
	return nil
}

// SaveItem implements history.Store.
// Items are indexed in a sorted set scored by creation time in milliseconds.
func (s *Storage) SaveItem(ctx context.Context, item *history.Item) error {
	if item == nil || item.ID == "" || item.UserID == "" {
		return fmt.Errorf("invalid history item")
	}

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal history item: %w", err)
	}

	indexKey, itemsKey := s.historyIndexKey(item.UserID), s.historyItemsKey(item.UserID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, itemsKey, item.ID, data)
		pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(item.CreatedAt.UnixMilli()), Member: item.ID})
		if s.config.HistoryTTL > 0 {
			pipe.Expire(ctx, itemsKey, s.config.HistoryTTL)
			pipe.Expire(ctx, indexKey, s.config.HistoryTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save history item: %w", err)
	}
	return nil
}

// ListItems implements history.Store
func (s *Storage) ListItems(ctx context.Context, userID string, limit int) ([]history.Item, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	ids, err := s.client.ZRevRange(ctx, s.historyIndexKey(userID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	if len(ids) == 0 {
		return []history.Item{}, nil
	}

	values, err := s.client.HMGet(ctx, s.historyItemsKey(userID), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	items := make([]history.Item, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var item history.Item
		if err := json.Unmarshal([]byte(str), &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history item: %w", err)
		}
		items = append(items, item)
	}
	return items, nil
}

// DeleteItem implements history.Store
func (s *Storage) DeleteItem(ctx context.Context, userID, itemID string) error {
	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.ZRem(ctx, s.historyIndexKey(userID), itemID)
		pipe.HDel(ctx, s.historyItemsKey(userID), itemID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete history item: %w", err)
	}
	if removed.Val() == 0 {
		return history.ErrItemNotFound
	}
	return nil
}

// TrimItems implements history.Store
func (s *Storage) TrimItems(ctx context.Context, userID string, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	ids, err := s.client.ZRevRange(ctx, s.historyIndexKey(userID), int64(keep), -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to trim history: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, s.historyIndexKey(userID), members...)
		pipe.HDel(ctx, s.historyItemsKey(userID), ids...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to trim history: %w", err)
	}
	return len(ids), nil
}

func (s *Storage) subscriptionKey(userID string) string {
	return s.config.KeyPrefix + "subscription:" + userID
}

func (s *Storage) externalKey(externalID string) string {
	return s.config.KeyPrefix + "external:" + externalID
}

func (s *Storage) emailKey(email string) string {
	return s.config.KeyPrefix + "email:" + strings.ToLower(strings.TrimSpace(email))
}

func (s *Storage) historyIndexKey(userID string) string {
	return s.config.KeyPrefix + "history:" + userID
}

func (s *Storage) historyItemsKey(userID string) string {
	return s.config.KeyPrefix + "history_items:" + userID
}

// Close closes the Redis client connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
