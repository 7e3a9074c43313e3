package subscription

import (
	"fmt"
	"strconv"
	"time"
)

// Plan describes a purchasable tier and the limits it grants
type Plan struct {
	ID            string
	Name          string
	Description   string
	PriceCents    int
	BillingPeriod BillingPeriod // empty for the free plan
	VariantID     string        // vendor variant id, empty for the free plan
	// RecordingLimit is the maximum length of a single recording
	RecordingLimit time.Duration
	// HistoryLimit is the number of history items kept
	HistoryLimit int
	Popular      bool
}

const (
	PlanIDFree       = "free"
	PlanIDProMonthly = "pro_monthly"
	PlanIDProAnnual  = "pro_annual"

	freeHistoryLimit = 5
	proHistoryLimit  = 100
)

// Catalog holds the plans offered by the store.
// Variant ids are deployment specific and set through NewCatalog.
type Catalog struct {
	plans map[string]Plan
}

// NewCatalog returns the standard catalog wired to the given vendor variant ids
func NewCatalog(monthlyVariantID, annualVariantID string) *Catalog {
	return &Catalog{plans: map[string]Plan{
		PlanIDFree: {
			ID:             PlanIDFree,
			Name:           "Free",
			Description:    "Get started with voice-to-text",
			RecordingLimit: 2 * time.Minute,
			HistoryLimit:   freeHistoryLimit,
		},
		PlanIDProMonthly: {
			ID:             PlanIDProMonthly,
			Name:           "Pro",
			Description:    "For power users who need more",
			PriceCents:     900,
			BillingPeriod:  PeriodMonth,
			VariantID:      monthlyVariantID,
			RecordingLimit: 30 * time.Minute,
			HistoryLimit:   proHistoryLimit,
		},
		PlanIDProAnnual: {
			ID:             PlanIDProAnnual,
			Name:           "Pro Annual",
			Description:    "Best value - save 50%",
			PriceCents:     5400,
			BillingPeriod:  PeriodYear,
			VariantID:      annualVariantID,
			RecordingLimit: 30 * time.Minute,
			HistoryLimit:   proHistoryLimit,
			Popular:        true,
		},
	}}
}

// DefaultCatalog is the catalog without vendor variant ids
var DefaultCatalog = NewCatalog("", "")

// Plan returns the plan with the given id
func (c *Catalog) Plan(id string) (Plan, bool) {
	p, ok := c.plans[id]
	return p, ok
}

// ByVariantID returns the plan sold under the vendor variant id
func (c *Catalog) ByVariantID(variantID string) (Plan, bool) {
	if variantID == "" {
		return Plan{}, false
	}
	for _, p := range c.plans {
		if p.VariantID == variantID {
			return p, true
		}
	}
	return Plan{}, false
}

// ProPlans returns the paid plans, monthly first
func (c *Catalog) ProPlans() []Plan {
	return []Plan{c.plans[PlanIDProMonthly], c.plans[PlanIDProAnnual]}
}

// PlanFor resolves the effective plan for sub at now.
// Users without entitlement are on the free plan.
func (c *Catalog) PlanFor(sub *Subscription, now time.Time) Plan {
	if !IsEntitled(sub, now) {
		return c.plans[PlanIDFree]
	}
	if sub.BillingPeriod == PeriodYear {
		return c.plans[PlanIDProAnnual]
	}
	return c.plans[PlanIDProMonthly]
}

// PlanFor resolves the effective plan using DefaultCatalog
func PlanFor(sub *Subscription, now time.Time) Plan {
	return DefaultCatalog.PlanFor(sub, now)
}

// FormatPrice renders a price in dollars with an optional period suffix,
// e.g. "$9/mo", "$54/yr", "$0".
func FormatPrice(cents int, period BillingPeriod) string {
	dollars := strconv.FormatFloat(float64(cents)/100, 'f', -1, 64)
	switch period {
	case PeriodMonth:
		return fmt.Sprintf("$%s/mo", dollars)
	case PeriodYear:
		return fmt.Sprintf("$%s/yr", dollars)
	default:
		return "$" + dollars
	}
}
