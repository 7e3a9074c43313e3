package subscription

import "time"

// Metrics defines the interface for tracking subscription store and entitlement operations.
type Metrics interface {
	// RecordStorageOperation records the duration and status of a storage operation.
	// operation: "get", "upsert", "patch", "lookup_user"
	RecordStorageOperation(operation string, duration time.Duration, err error)

	// RecordPatchMiss records a patch that matched no subscription row.
	RecordPatchMiss(status Status)

	// RecordEntitlementCheck records the outcome of a status evaluation.
	RecordEntitlementCheck(label string, entitled bool)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordStorageOperation(operation string, duration time.Duration, err error) {}
func (n *NoopMetrics) RecordPatchMiss(status Status)                                              {}
func (n *NoopMetrics) RecordEntitlementCheck(label string, entitled bool)                         {}
