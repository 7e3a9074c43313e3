package subscription

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a subscription as reported by the payment vendor
type Status string

const (
	// StatusActive is a paid, current subscription
	StatusActive Status = "active"
	// StatusPastDue means the last renewal payment failed
	StatusPastDue Status = "past_due"
	// StatusCancelled means the subscription will not renew; access lasts until EndsAt
	StatusCancelled Status = "cancelled"
	// StatusExpired means the subscription has fully ended
	StatusExpired Status = "expired"
	// StatusPaused means billing is paused by the customer
	StatusPaused Status = "paused"
	// StatusOnTrial is a trial subscription
	StatusOnTrial Status = "on_trial"
)

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPastDue, StatusCancelled, StatusExpired, StatusPaused, StatusOnTrial:
		return true
	}
	return false
}

// BillingPeriod is the renewal interval of a plan
type BillingPeriod string

const (
	// PeriodMonth renews monthly
	PeriodMonth BillingPeriod = "month"
	// PeriodYear renews yearly
	PeriodYear BillingPeriod = "year"
)

// BillingPeriodForVariant derives the billing period from a plan variant name.
// Variants whose name contains "annual" (any case) bill yearly, everything else monthly.
func BillingPeriodForVariant(variantName string) BillingPeriod {
	if strings.Contains(strings.ToLower(variantName), "annual") {
		return PeriodYear
	}
	return PeriodMonth
}

// Subscription is the single subscription row kept per user
type Subscription struct {
	UserID     string
	ExternalID string

	OrderID    string
	ProductID  string
	VariantID  string
	CustomerID string

	VariantName   string
	Status        Status
	PriceCents    int
	BillingPeriod BillingPeriod

	RenewsAt    *time.Time
	EndsAt      *time.Time
	TrialEndsAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Patch is a partial update addressed by external subscription id.
// Only Status is always written; EndsAt is written only when SetEndsAt is true.
type Patch struct {
	Status    Status
	EndsAt    *time.Time
	SetEndsAt bool
	UpdatedAt time.Time
}

// Evaluation is the entitlement view of a user's subscription
type Evaluation struct {
	UserID       string
	Subscription *Subscription
	Entitled     bool
	Label        string
	Plan         Plan
}
