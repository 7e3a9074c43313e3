// Package memory provides an in-memory implementation of the subscription.Store,
// subscription.UserDirectory and history.Store interfaces.
// This implementation is primarily intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mihaimyh/vocalize/pkg/history"
	"github.com/mihaimyh/vocalize/pkg/subscription"
)

// Storage implements subscription.Store using in-memory maps
type Storage struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription.Subscription // by user id
	externalIndex map[string]string                     // external id -> user id
	users         map[string]string                     // lower-cased email -> user id
	history       map[string][]history.Item             // by user id, insertion order
}

// New creates a new in-memory storage adapter
func New() *Storage {
	return &Storage{
		subscriptions: make(map[string]*subscription.Subscription),
		externalIndex: make(map[string]string),
		users:         make(map[string]string),
		history:       make(map[string][]history.Item),
	}
}

// AddUser registers a user so that vendor events addressed to email resolve to userID
func (s *Storage) AddUser(userID, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[normalizeEmail(email)] = userID
}

// LookupUserByEmail implements subscription.UserDirectory
func (s *Storage) LookupUserByEmail(ctx context.Context, email string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.users[normalizeEmail(email)]
	if !ok {
		return "", subscription.ErrUserNotFound
	}
	return userID, nil
}

// GetSubscription implements subscription.Store
func (s *Storage) GetSubscription(ctx context.Context, userID string) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[userID]
	if !ok {
		return nil, subscription.ErrSubscriptionNotFound
	}

	// Return a copy to prevent external mutations
	return copySubscription(sub), nil
}

// UpsertSubscription implements subscription.Store
func (s *Storage) UpsertSubscription(ctx context.Context, sub *subscription.Subscription) error {
	if sub == nil || sub.UserID == "" {
		return fmt.Errorf("%w: user id is required", subscription.ErrInvalidSubscription)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := copySubscription(sub)
	if existing, ok := s.subscriptions[sub.UserID]; ok {
		if !existing.CreatedAt.IsZero() {
			rec.CreatedAt = existing.CreatedAt
		}
		if existing.ExternalID != rec.ExternalID && s.externalIndex[existing.ExternalID] == sub.UserID {
			delete(s.externalIndex, existing.ExternalID)
		}
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.UpdatedAt
	}

	s.subscriptions[sub.UserID] = rec
	if rec.ExternalID != "" {
		if owner, ok := s.externalIndex[rec.ExternalID]; ok && owner != sub.UserID {
			if prev, ok := s.subscriptions[owner]; ok && prev.ExternalID == rec.ExternalID {
				prev.ExternalID = ""
			}
		}
		s.externalIndex[rec.ExternalID] = sub.UserID
	}
	return nil
}

// PatchByExternalID implements subscription.Store
func (s *Storage) PatchByExternalID(ctx context.Context, externalID string, patch subscription.Patch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok := s.externalIndex[externalID]
	if !ok {
		return false, nil
	}
	sub, ok := s.subscriptions[userID]
	if !ok || sub.ExternalID != externalID {
		return false, nil
	}

	sub.Status = patch.Status
	if patch.SetEndsAt {
		sub.EndsAt = copyTime(patch.EndsAt)
	}
	sub.UpdatedAt = patch.UpdatedAt
	return true, nil
}

// SaveItem implements history.Store
func (s *Storage) SaveItem(ctx context.Context, item *history.Item) error {
	if item == nil || item.UserID == "" || item.ID == "" {
		return fmt.Errorf("invalid history item")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[item.UserID] = append(s.history[item.UserID], *item)
	return nil
}

// ListItems implements history.Store
func (s *Storage) ListItems(ctx context.Context, userID string, limit int) ([]history.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := newestFirst(s.history[userID])
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// DeleteItem implements history.Store
func (s *Storage) DeleteItem(ctx context.Context, userID, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.history[userID]
	for i := range items {
		if items[i].ID == itemID {
			s.history[userID] = append(items[:i:i], items[i+1:]...)
			return nil
		}
	}
	return history.ErrItemNotFound
}

// TrimItems implements history.Store
func (s *Storage) TrimItems(ctx context.Context, userID string, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := newestFirst(s.history[userID])
	if len(items) <= keep {
		return 0, nil
	}

	kept := items[:keep]
	// store back in insertion order, oldest first
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	s.history[userID] = kept
	return len(items) - keep, nil
}

// newestFirst returns a sorted copy; items with equal timestamps keep
// reverse insertion order.
func newestFirst(items []history.Item) []history.Item {
	out := make([]history.Item, len(items))
	for i := range items {
		out[len(items)-1-i] = items[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func copySubscription(sub *subscription.Subscription) *subscription.Subscription {
	c := *sub
	c.RenewsAt = copyTime(sub.RenewsAt)
	c.EndsAt = copyTime(sub.EndsAt)
	c.TrialEndsAt = copyTime(sub.TrialEndsAt)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
