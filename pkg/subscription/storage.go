package subscription

import "context"

// Store defines the interface for subscription persistence.
// Implementations must make each call atomic for the single row it touches.
type Store interface {
	// GetSubscription retrieves the user's subscription.
	// Returns ErrSubscriptionNotFound if the user has none.
	GetSubscription(ctx context.Context, userID string) (*Subscription, error)

	// UpsertSubscription inserts or replaces the row keyed by sub.UserID.
	// A user's earlier subscriptions collapse into the latest one.
	// CreatedAt of an existing row is preserved; a new row takes sub.CreatedAt,
	// or sub.UpdatedAt when that is zero.
	// A non-empty ExternalID belongs to one row at a time: any other row
	// holding it is detached (its ExternalID cleared) by this call.
	UpsertSubscription(ctx context.Context, sub *Subscription) error

	// PatchByExternalID applies patch to the row whose ExternalID matches.
	// Returns false (and no error) when no row matches.
	PatchByExternalID(ctx context.Context, externalID string, patch Patch) (bool, error)
}

// UserDirectory resolves registered users.
// Storage adapters backed by the application database implement it
// alongside Store.
type UserDirectory interface {
	// LookupUserByEmail returns the user id registered for email.
	// Returns ErrUserNotFound if no user matches.
	LookupUserByEmail(ctx context.Context, email string) (string, error)
}
