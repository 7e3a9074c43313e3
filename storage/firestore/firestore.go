// Package firestore provides a Firestore implementation of the subscription.Store,
// subscription.UserDirectory and history.Store interfaces.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mihaimyh/vocalize/pkg/history"
	"github.com/mihaimyh/vocalize/pkg/subscription"
)

// Storage implements subscription.Store using Google Cloud Firestore
type Storage struct {
	client                  *firestore.Client
	subscriptionsCollection string
	profilesCollection      string
	historyCollection       string
}

// Config holds Firestore storage configuration
type Config struct {
	// SubscriptionsCollection holds one document per user, keyed by user id
	// Default: "subscriptions"
	SubscriptionsCollection string

	// ProfilesCollection holds registered users
	// Default: "profiles"
	ProfilesCollection string

	// HistoryCollection holds an "items" subcollection per user
	// Default: "history"
	HistoryCollection string
}

// New creates a new Firestore storage adapter
func New(client *firestore.Client, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	// Set defaults
	if config.SubscriptionsCollection == "" {
		config.SubscriptionsCollection = "subscriptions"
	}
	if config.ProfilesCollection == "" {
		config.ProfilesCollection = "profiles"
	}
	if config.HistoryCollection == "" {
		config.HistoryCollection = "history"
	}

	return &Storage{
		client:                  client,
		subscriptionsCollection: config.SubscriptionsCollection,
		profilesCollection:      config.ProfilesCollection,
		historyCollection:       config.HistoryCollection,
	}, nil
}

// GetSubscription implements subscription.Store
func (s *Storage) GetSubscription(ctx context.Context, userID string) (*subscription.Subscription, error) {
	snap, err := s.client.Collection(s.subscriptionsCollection).Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, subscription.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	if !snap.Exists() {
		return nil, subscription.ErrSubscriptionNotFound
	}

	return subscriptionFromData(userID, snap.Data()), nil
}

// UpsertSubscription implements subscription.Store.
// The read of created_at and the write share one transaction; other
// documents holding the same external id are detached in it.
func (s *Storage) UpsertSubscription(ctx context.Context, sub *subscription.Subscription) error {
	if sub == nil || sub.UserID == "" {
		return fmt.Errorf("%w: user id is required", subscription.ErrInvalidSubscription)
	}

	updatedAt := sub.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	period := sub.BillingPeriod
	if period == "" {
		period = subscription.PeriodMonth
	}

	doc := s.client.Collection(s.subscriptionsCollection).Doc(sub.UserID)

	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		createdAt := sub.CreatedAt
		if createdAt.IsZero() {
			createdAt = updatedAt
		}

		snap, err := tx.Get(doc)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil && snap.Exists() {
			if existing := getTime(snap.Data(), "created_at"); !existing.IsZero() {
				createdAt = existing
			}
		}

		// reads must precede writes: find other holders of the external id first
		var holders []*firestore.DocumentSnapshot
		if sub.ExternalID != "" {
			holders, err = tx.Documents(s.client.Collection(s.subscriptionsCollection).
				Where("external_id", "==", sub.ExternalID)).GetAll()
			if err != nil {
				return err
			}
		}
		for _, h := range holders {
			if h.Ref.ID == sub.UserID {
				continue
			}
			if err := tx.Update(h.Ref, []firestore.Update{{Path: "external_id", Value: ""}}); err != nil {
				return err
			}
		}

		return tx.Set(doc, map[string]interface{}{
			"external_id":    sub.ExternalID,
			"order_id":       sub.OrderID,
			"product_id":     sub.ProductID,
			"variant_id":     sub.VariantID,
			"customer_id":    sub.CustomerID,
			"variant_name":   sub.VariantName,
			"status":         string(sub.Status),
			"price_cents":    sub.PriceCents,
			"billing_period": string(period),
			"renews_at":      timeOrNil(sub.RenewsAt),
			"ends_at":        timeOrNil(sub.EndsAt),
			"trial_ends_at":  timeOrNil(sub.TrialEndsAt),
			"created_at":     createdAt,
			"updated_at":     updatedAt,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

// PatchByExternalID implements subscription.Store
func (s *Storage) PatchByExternalID(ctx context.Context, externalID string, patch subscription.Patch) (bool, error) {
	if externalID == "" {
		return false, nil
	}
	updatedAt := patch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	updates := []firestore.Update{
		{Path: "status", Value: string(patch.Status)},
		{Path: "updated_at", Value: updatedAt},
	}
	if patch.SetEndsAt {
		updates = append(updates, firestore.Update{Path: "ends_at", Value: timeOrNil(patch.EndsAt)})
	}

	query := s.client.Collection(s.subscriptionsCollection).
		Where("external_id", "==", externalID).
		Limit(1)

	var matched bool
	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		matched = false

		docs, err := tx.Documents(query).GetAll()
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return nil
		}

		matched = true
		return tx.Update(docs[0].Ref, updates)
	})
	if err != nil {
		return false, fmt.Errorf("failed to patch subscription: %w", err)
	}
	return matched, nil
}

// LookupUserByEmail implements subscription.UserDirectory
func (s *Storage) LookupUserByEmail(ctx context.Context, email string) (string, error) {
	docs, err := s.client.Collection(s.profilesCollection).
		Where("email_lower", "==", normalizeEmail(email)).
		Limit(1).
		Documents(ctx).
		GetAll()
	if err != nil {
		return "", fmt.Errorf("failed to lookup user: %w", err)
	}
	if len(docs) == 0 {
		return "", subscription.ErrUserNotFound
	}
	return docs[0].Ref.ID, nil
}

// AddUser registers or updates a profile
func (s *Storage) AddUser(ctx context.Context, userID, email string) error {
	_, err := s.client.Collection(s.profilesCollection).Doc(userID).Set(ctx, map[string]interface{}{
		"email":       email,
		"email_lower": normalizeEmail(email),
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to add user: %w", err)
	}
	return nil
}

// SaveItem implements history.Store
func (s *Storage) SaveItem(ctx context.Context, item *history.Item) error {
	if item == nil || item.ID == "" || item.UserID == "" {
		return fmt.Errorf("invalid history item")
	}

	_, err := s.itemsCollection(item.UserID).Doc(item.ID).Set(ctx, map[string]interface{}{
		"title":      item.Title,
		"transcript": item.Transcript,
		"result":     item.Result,
		"doc_type":   string(item.Settings.DocType),
		"length":     string(item.Settings.Length),
		"style":      string(item.Settings.Style),
		"created_at": item.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to save history item: %w", err)
	}
	return nil
}

// ListItems implements history.Store
func (s *Storage) ListItems(ctx context.Context, userID string, limit int) ([]history.Item, error) {
	query := s.itemsCollection(userID).OrderBy("created_at", firestore.Desc)
	if limit > 0 {
		query = query.Limit(limit)
	}

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	items := make([]history.Item, 0, len(docs))
	for _, doc := range docs {
		data := doc.Data()
		items = append(items, history.Item{
			ID:         doc.Ref.ID,
			UserID:     userID,
			Title:      getString(data, "title"),
			Transcript: getString(data, "transcript"),
			Result:     getString(data, "result"),
			Settings: history.Settings{
				DocType: history.DocType(getString(data, "doc_type")),
				Length:  history.Length(getString(data, "length")),
				Style:   history.Style(getString(data, "style")),
			},
			CreatedAt: getTime(data, "created_at"),
		})
	}
	return items, nil
}

// DeleteItem implements history.Store
func (s *Storage) DeleteItem(ctx context.Context, userID, itemID string) error {
	doc := s.itemsCollection(userID).Doc(itemID)

	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(doc)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return history.ErrItemNotFound
			}
			return err
		}
		if !snap.Exists() {
			return history.ErrItemNotFound
		}
		return tx.Delete(doc)
	})
	if errors.Is(err, history.ErrItemNotFound) {
		return history.ErrItemNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete history item: %w", err)
	}
	return nil
}

// TrimItems implements history.Store
func (s *Storage) TrimItems(ctx context.Context, userID string, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	docs, err := s.itemsCollection(userID).
		OrderBy("created_at", firestore.Desc).
		Offset(keep).
		Documents(ctx).
		GetAll()
	if err != nil {
		return 0, fmt.Errorf("failed to trim history: %w", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	bw := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(docs))
	for _, doc := range docs {
		job, err := bw.Delete(doc.Ref)
		if err != nil {
			bw.End()
			return 0, fmt.Errorf("failed to trim history: %w", err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	removed := 0
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return removed, fmt.Errorf("failed to trim history: %w", err)
		}
		removed++
	}
	return removed, nil
}

func (s *Storage) itemsCollection(userID string) *firestore.CollectionRef {
	return s.client.Collection(s.historyCollection).Doc(userID).Collection("items")
}

func subscriptionFromData(userID string, data map[string]interface{}) *subscription.Subscription {
	return &subscription.Subscription{
		UserID:        userID,
		ExternalID:    getString(data, "external_id"),
		OrderID:       getString(data, "order_id"),
		ProductID:     getString(data, "product_id"),
		VariantID:     getString(data, "variant_id"),
		CustomerID:    getString(data, "customer_id"),
		VariantName:   getString(data, "variant_name"),
		Status:        subscription.Status(getString(data, "status")),
		PriceCents:    getInt(data, "price_cents"),
		BillingPeriod: subscription.BillingPeriod(getString(data, "billing_period")),
		RenewsAt:      getTimePtr(data, "renews_at"),
		EndsAt:        getTimePtr(data, "ends_at"),
		TrialEndsAt:   getTimePtr(data, "trial_ends_at"),
		CreatedAt:     getTime(data, "created_at"),
		UpdatedAt:     getTime(data, "updated_at"),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// timeOrNil stores nil pointers as Firestore null
func timeOrNil(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

// Helper functions

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func getInt(data map[string]interface{}, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(math.Round(v))
	default:
		return 0
	}
}

func getTime(data map[string]interface{}, key string) time.Time {
	if v, ok := data[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}

func getTimePtr(data map[string]interface{}, key string) *time.Time {
	if v, ok := data[key].(time.Time); ok && !v.IsZero() {
		return &v
	}
	return nil
}
