package history

import (
	"errors"
	"fmt"
)

var (
	// ErrNotEntitled is returned when a user without pro access saves to cloud history
	ErrNotEntitled = errors.New("cloud history requires an active subscription")

	// ErrItemNotFound is returned when an item does not exist for the user
	ErrItemNotFound = errors.New("history item not found")

	// ErrEmptyResult is returned when an item has no generated text
	ErrEmptyResult = errors.New("history item result is empty")

	// ErrInvalidSettings is matched by every InvalidSettingError
	ErrInvalidSettings = errors.New("invalid processing settings")
)

// InvalidSettingError reports an unknown processing option
type InvalidSettingError struct {
	Field string
	Value string
}

func (e *InvalidSettingError) Error() string {
	return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}

// Is makes errors.Is(err, ErrInvalidSettings) succeed
func (e *InvalidSettingError) Is(target error) bool {
	return target == ErrInvalidSettings
}
