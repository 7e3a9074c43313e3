package lemonsqueezy

import (
	"github.com/mihaimyh/vocalize/pkg/subscription"
)

// MutationKind says how an event changes stored state
type MutationKind int

const (
	// MutationNone leaves the store untouched
	MutationNone MutationKind = iota
	// MutationUpsert writes the full record keyed by user
	MutationUpsert
	// MutationPatch updates the row matching ExternalID
	MutationPatch
)

func (k MutationKind) String() string {
	switch k {
	case MutationUpsert:
		return "upsert"
	case MutationPatch:
		return "patch"
	default:
		return "none"
	}
}

// Mutation is the store change an event maps to
type Mutation struct {
	Kind       MutationKind
	Record     *subscription.Subscription // MutationUpsert
	ExternalID string                     // MutationPatch
	Patch      subscription.Patch         // MutationPatch
}

// MapEvent translates an event for userID into a store mutation.
// It is pure: timestamps such as UpdatedAt are filled in by the Manager.
// Events without a subscription id map to MutationNone.
func MapEvent(ev *Event, userID string) Mutation {
	if ev.SubscriptionID == "" {
		return Mutation{Kind: MutationNone}
	}
	switch ev.Name {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionResumed:
		return Mutation{
			Kind: MutationUpsert,
			Record: &subscription.Subscription{
				UserID:        userID,
				ExternalID:    ev.SubscriptionID,
				OrderID:       ev.OrderID,
				ProductID:     ev.ProductID,
				VariantID:     ev.VariantID,
				CustomerID:    ev.CustomerID,
				VariantName:   ev.VariantName,
				Status:        subscription.Status(ev.Status),
				PriceCents:    ev.PriceCents,
				BillingPeriod: subscription.BillingPeriodForVariant(ev.VariantName),
				RenewsAt:      ev.RenewsAt,
				EndsAt:        ev.EndsAt,
				TrialEndsAt:   ev.TrialEndsAt,
			},
		}
	case EventSubscriptionCancelled:
		return patch(ev, subscription.Patch{
			Status:    subscription.StatusCancelled,
			EndsAt:    ev.EndsAt,
			SetEndsAt: ev.HasEndsAt,
		})
	case EventSubscriptionExpired:
		return patch(ev, subscription.Patch{Status: subscription.StatusExpired})
	case EventSubscriptionPaymentFailed:
		return patch(ev, subscription.Patch{Status: subscription.StatusPastDue})
	case EventSubscriptionPaymentSuccess:
		return patch(ev, subscription.Patch{Status: subscription.StatusActive})
	default:
		return Mutation{Kind: MutationNone}
	}
}

func patch(ev *Event, p subscription.Patch) Mutation {
	return Mutation{Kind: MutationPatch, ExternalID: ev.SubscriptionID, Patch: p}
}
