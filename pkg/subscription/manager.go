package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds Manager configuration
type Config struct {
	// Users resolves vendor emails to user ids.
	// If nil, the Store is used when it implements UserDirectory.
	Users UserDirectory

	// Catalog is the plan catalog used by Evaluate (default: DefaultCatalog)
	Catalog *Catalog

	// Metrics is used for tracking store operations (default: NoopMetrics)
	Metrics Metrics

	// Logger is used for structured logging (default: NoopLogger)
	Logger Logger

	// Now returns the current time (default: time.Now)
	Now func() time.Time
}

// Manager is the single entry point for reading and writing subscription state.
// It is safe for concurrent use as long as the Store is.
type Manager struct {
	store   Store
	users   UserDirectory
	catalog *Catalog
	metrics Metrics
	logger  Logger
	now     func() time.Time
}

// NewManager creates a new subscription manager over store
func NewManager(store Store, config Config) (*Manager, error) {
	if store == nil {
		return nil, ErrStorageUnavailable
	}

	users := config.Users
	if users == nil {
		if dir, ok := store.(UserDirectory); ok {
			users = dir
		}
	}
	if config.Catalog == nil {
		config.Catalog = DefaultCatalog
	}
	if config.Metrics == nil {
		config.Metrics = &NoopMetrics{}
	}
	if config.Logger == nil {
		config.Logger = &NoopLogger{}
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Manager{
		store:   store,
		users:   users,
		catalog: config.Catalog,
		metrics: config.Metrics,
		logger:  config.Logger,
		now:     config.Now,
	}, nil
}

// Now returns the manager's current time in UTC
func (m *Manager) Now() time.Time {
	return m.now().UTC()
}

// Catalog returns the plan catalog
func (m *Manager) Catalog() *Catalog {
	return m.catalog
}

// GetSubscription returns the user's subscription or ErrSubscriptionNotFound
func (m *Manager) GetSubscription(ctx context.Context, userID string) (*Subscription, error) {
	start := time.Now()
	sub, err := m.store.GetSubscription(ctx, userID)
	m.metrics.RecordStorageOperation("get", time.Since(start), ignoreNotFound(err))
	return sub, err
}

// Upsert writes a full subscription record keyed by user id.
// UpdatedAt is always set to the current time.
func (m *Manager) Upsert(ctx context.Context, sub *Subscription) error {
	if sub == nil || strings.TrimSpace(sub.UserID) == "" {
		return ErrInvalidSubscription
	}

	rec := *sub
	rec.UpdatedAt = m.Now()

	start := time.Now()
	err := m.store.UpsertSubscription(ctx, &rec)
	m.metrics.RecordStorageOperation("upsert", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("upsert subscription for user %s: %w", rec.UserID, err)
	}

	m.logger.Debug("subscription upserted",
		String("user_id", rec.UserID),
		String("external_id", rec.ExternalID),
		String("status", string(rec.Status)),
	)
	return nil
}

// PatchByExternalID applies a partial update to the row with externalID.
// A patch that matches no row is logged and reported as (false, nil):
// the event may have arrived before the creation event.
func (m *Manager) PatchByExternalID(ctx context.Context, externalID string, patch Patch) (bool, error) {
	if strings.TrimSpace(externalID) == "" || patch.Status == "" {
		return false, ErrInvalidPatch
	}

	patch.UpdatedAt = m.Now()

	start := time.Now()
	matched, err := m.store.PatchByExternalID(ctx, externalID, patch)
	m.metrics.RecordStorageOperation("patch", time.Since(start), err)
	if err != nil {
		return false, fmt.Errorf("patch subscription %s: %w", externalID, err)
	}

	if !matched {
		m.metrics.RecordPatchMiss(patch.Status)
		m.logger.Warn("subscription patch matched no row",
			String("external_id", externalID),
			String("status", string(patch.Status)),
		)
	}
	return matched, nil
}

// LookupUserByEmail resolves a vendor email to a registered user id
func (m *Manager) LookupUserByEmail(ctx context.Context, email string) (string, error) {
	if m.users == nil {
		return "", fmt.Errorf("user directory not configured: %w", ErrStorageUnavailable)
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return "", ErrUserNotFound
	}

	start := time.Now()
	userID, err := m.users.LookupUserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		m.metrics.RecordStorageOperation("lookup_user", time.Since(start), nil)
		return "", ErrUserNotFound
	}
	m.metrics.RecordStorageOperation("lookup_user", time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("lookup user: %w", err)
	}
	return userID, nil
}

// Evaluate returns the entitlement view for userID.
// A user without a subscription row is evaluated as not entitled.
func (m *Manager) Evaluate(ctx context.Context, userID string) (*Evaluation, error) {
	sub, err := m.GetSubscription(ctx, userID)
	if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, err
	}
	if err != nil {
		sub = nil
	}

	now := m.Now()
	eval := &Evaluation{
		UserID:       userID,
		Subscription: sub,
		Entitled:     IsEntitled(sub, now),
		Label:        StatusLabel(sub, now),
		Plan:         m.catalog.PlanFor(sub, now),
	}
	m.metrics.RecordEntitlementCheck(eval.Label, eval.Entitled)
	return eval, nil
}

func ignoreNotFound(err error) error {
	if errors.Is(err, ErrSubscriptionNotFound) {
		return nil
	}
	return err
}
