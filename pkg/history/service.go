package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mihaimyh/vocalize/pkg/subscription"
)

// DefaultLimit is the number of items kept per user when the plan sets none
const DefaultLimit = 100

// Entitlements evaluates whether a user may use pro features.
// *subscription.Manager implements it.
type Entitlements interface {
	Evaluate(ctx context.Context, userID string) (*subscription.Evaluation, error)
}

// Config holds Service configuration
type Config struct {
	// Logger is used for structured logging (default: NoopLogger)
	Logger subscription.Logger

	// Now returns the current time (default: time.Now)
	Now func() time.Time

	// NewID generates item ids (default: uuid.NewString)
	NewID func() string
}

// Service manages cloud history for entitled users
type Service struct {
	store        Store
	entitlements Entitlements
	logger       subscription.Logger
	now          func() time.Time
	newID        func() string
}

// NewService creates a history service
func NewService(store Store, entitlements Entitlements, config Config) (*Service, error) {
	if store == nil {
		return nil, errors.New("history store is required")
	}
	if entitlements == nil {
		return nil, errors.New("entitlements are required")
	}
	if config.Logger == nil {
		config.Logger = &subscription.NoopLogger{}
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.NewID == nil {
		config.NewID = uuid.NewString
	}
	return &Service{
		store:        store,
		entitlements: entitlements,
		logger:       config.Logger,
		now:          config.Now,
		newID:        config.NewID,
	}, nil
}

// SaveRequest is the input of Save
type SaveRequest struct {
	Transcript string   `json:"transcript"`
	Result     string   `json:"result"`
	Settings   Settings `json:"settings"`
}

// Save stores a generated document for userID and trims the history to the
// plan limit. Users without pro access get ErrNotEntitled.
func (s *Service) Save(ctx context.Context, userID string, req SaveRequest) (*Item, error) {
	if strings.TrimSpace(req.Result) == "" {
		return nil, ErrEmptyResult
	}
	if err := req.Settings.Validate(); err != nil {
		return nil, err
	}

	eval, err := s.entitlements.Evaluate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("evaluate entitlement: %w", err)
	}
	if !eval.Entitled {
		return nil, ErrNotEntitled
	}

	item := &Item{
		ID:         s.newID(),
		UserID:     userID,
		Title:      GenerateTitle(req.Result),
		Transcript: req.Transcript,
		Result:     req.Result,
		Settings:   req.Settings,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.SaveItem(ctx, item); err != nil {
		return nil, fmt.Errorf("save history item: %w", err)
	}

	limit := eval.Plan.HistoryLimit
	if limit <= 0 {
		limit = DefaultLimit
	}
	trimmed, err := s.store.TrimItems(ctx, userID, limit)
	if err != nil {
		// the item is saved; trimming is retried on the next save
		s.logger.Warn("history trim failed",
			subscription.String("user_id", userID),
			subscription.Err(err),
		)
	} else if trimmed > 0 {
		s.logger.Debug("history trimmed",
			subscription.String("user_id", userID),
			subscription.Field{Key: "deleted", Value: trimmed},
		)
	}
	return item, nil
}

// List returns the user's items, newest first
func (s *Service) List(ctx context.Context, userID string) ([]Item, error) {
	items, err := s.store.ListItems(ctx, userID, DefaultLimit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return items, nil
}

// Delete removes one of the user's items
func (s *Service) Delete(ctx context.Context, userID, itemID string) error {
	if itemID == "" {
		return ErrItemNotFound
	}
	return s.store.DeleteItem(ctx, userID, itemID)
}
