// Package tiered provides a Hot/Cold tiered storage adapter that puts a fast
// store (Hot) in front of a durable store (Cold) for subscription reads.
//
// Entitlement checks run on every gated request while webhooks write rarely,
// so reads go Hot first and every write goes to Cold before Hot.
package tiered

import (
	"context"
	"errors"

	"github.com/mihaimyh/vocalize/pkg/subscription"
)

// Config configures the tiered storage behavior
type Config struct {
	// Hot is the L1 cache storage (e.g., Redis, Memory) for entitlement reads
	Hot subscription.Store

	// Cold is the L2 persistence storage (e.g., Postgres, Firestore) as the source of truth
	Cold subscription.Store

	// Directory resolves users by email. Defaults to Cold when it implements
	// subscription.UserDirectory.
	Directory subscription.UserDirectory

	// HotErrorHandler is called when a best-effort Hot write fails.
	// Essential for monitoring consistency drift.
	HotErrorHandler func(error)
}

// Storage implements a Hot/Cold tiered storage architecture.
//   - Read-Through: GetSubscription (Hot → Cold → populate Hot)
//   - Write-Through: UpsertSubscription, PatchByExternalID (Cold → Hot)
type Storage struct {
	hot       subscription.Store
	cold      subscription.Store
	directory subscription.UserDirectory
	conf      Config
}

// New creates a new tiered storage adapter.
func New(config Config) (*Storage, error) {
	if config.Hot == nil || config.Cold == nil {
		return nil, errors.New("tiered storage: both hot and cold storage are required")
	}

	directory := config.Directory
	if directory == nil {
		directory, _ = config.Cold.(subscription.UserDirectory)
	}

	return &Storage{
		hot:       config.Hot,
		cold:      config.Cold,
		directory: directory,
		conf:      config,
	}, nil
}

// --- Strategy: Read-Through (Hot → Cold → Populate Hot) ---

// GetSubscription implements subscription.Store with read-through strategy.
func (s *Storage) GetSubscription(ctx context.Context, userID string) (*subscription.Subscription, error) {
	// 1. Try Hot
	sub, err := s.hot.GetSubscription(ctx, userID)
	if err == nil {
		return sub, nil
	}

	// 2. Try Cold (Source of Truth)
	sub, err = s.cold.GetSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}

	// 3. Populate Hot (Read-Repair)
	s.hotWrite(s.hot.UpsertSubscription(ctx, sub))

	return sub, nil
}

// --- Strategy: Write-Through (Cold → Hot) ---
// Subscription state must be durable first.

// UpsertSubscription implements subscription.Store with write-through strategy.
// Hot receives the row as stored in Cold so both agree on CreatedAt.
func (s *Storage) UpsertSubscription(ctx context.Context, sub *subscription.Subscription) error {
	// 1. Write Cold (Durability)
	if err := s.cold.UpsertSubscription(ctx, sub); err != nil {
		return err
	}

	// 2. Write Hot (Availability)
	stored, err := s.cold.GetSubscription(ctx, sub.UserID)
	if err != nil {
		s.hotWrite(err)
		return nil
	}
	s.hotWrite(s.hot.UpsertSubscription(ctx, stored))
	return nil
}

// PatchByExternalID implements subscription.Store with write-through strategy.
// The match result comes from Cold; a Hot miss only means the row is not cached.
func (s *Storage) PatchByExternalID(ctx context.Context, externalID string, patch subscription.Patch) (bool, error) {
	matched, err := s.cold.PatchByExternalID(ctx, externalID, patch)
	if err != nil || !matched {
		return matched, err
	}

	_, err = s.hot.PatchByExternalID(ctx, externalID, patch)
	s.hotWrite(err)
	return true, nil
}

// LookupUserByEmail implements subscription.UserDirectory by delegating to the directory.
func (s *Storage) LookupUserByEmail(ctx context.Context, email string) (string, error) {
	if s.directory == nil {
		return "", subscription.ErrUserNotFound
	}
	return s.directory.LookupUserByEmail(ctx, email)
}

func (s *Storage) hotWrite(err error) {
	if err != nil && s.conf.HotErrorHandler != nil {
		s.conf.HotErrorHandler(err)
	}
}
