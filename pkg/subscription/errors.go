package subscription

import "errors"

var (
	// ErrSubscriptionNotFound is returned when a user has no subscription row
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrUserNotFound is returned when no registered user matches an email
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidSubscription is returned for records missing required fields
	ErrInvalidSubscription = errors.New("invalid subscription")

	// ErrInvalidPatch is returned for patches without an external id or status
	ErrInvalidPatch = errors.New("invalid subscription patch")

	// ErrStorageUnavailable is returned when no storage is configured
	ErrStorageUnavailable = errors.New("storage unavailable")
)
