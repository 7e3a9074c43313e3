package history

import "context"

// Store defines the interface for history persistence.
type Store interface {
	// SaveItem inserts a new item.
	SaveItem(ctx context.Context, item *Item) error

	// ListItems returns the user's items, newest first.
	// A limit <= 0 returns every item.
	ListItems(ctx context.Context, userID string, limit int) ([]Item, error)

	// DeleteItem removes the item owned by userID.
	// Returns ErrItemNotFound if no such item exists for the user.
	DeleteItem(ctx context.Context, userID, itemID string) error

	// TrimItems deletes the user's oldest items so that at most keep remain.
	// Returns the number of deleted items.
	TrimItems(ctx context.Context, userID string, keep int) (int, error)
}
