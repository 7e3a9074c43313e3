package api

import (
	"time"

	"github.com/mihaimyh/vocalize/pkg/subscription"
)

// SubscriptionResponse is the entitlement view returned to the signed-in user
type SubscriptionResponse struct {
	UserID       string            `json:"user_id"`
	Subscription *SubscriptionView `json:"subscription"`
	Entitled     bool              `json:"entitled"`
	StatusLabel  string            `json:"status_label"`
	Plan         PlanView          `json:"plan"`
}

// SubscriptionView is the stored subscription row
type SubscriptionView struct {
	ExternalID    string     `json:"lemon_squeezy_id"`
	OrderID       string     `json:"order_id,omitempty"`
	ProductID     string     `json:"product_id,omitempty"`
	VariantID     string     `json:"variant_id,omitempty"`
	VariantName   string     `json:"variant_name"`
	Status        string     `json:"status"`
	PriceCents    int        `json:"price_cents"`
	BillingPeriod string     `json:"billing_period"`
	RenewsAt      *time.Time `json:"renews_at"`
	EndsAt        *time.Time `json:"ends_at"`
	TrialEndsAt   *time.Time `json:"trial_ends_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// PlanView describes the effective plan
type PlanView struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	Price                 string `json:"price"`
	RecordingLimitSeconds int    `json:"recording_limit_seconds"`
	HistoryLimit          int    `json:"history_limit"`
	Popular               bool   `json:"popular,omitempty"`
}

// CheckoutResponse carries a hosted checkout link
type CheckoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
}

// PortalResponse carries the customer portal link
type PortalResponse struct {
	PortalURL string `json:"portal_url"`
}

func newSubscriptionResponse(eval *subscription.Evaluation) SubscriptionResponse {
	resp := SubscriptionResponse{
		UserID:      eval.UserID,
		Entitled:    eval.Entitled,
		StatusLabel: eval.Label,
		Plan:        newPlanView(eval.Plan),
	}
	if sub := eval.Subscription; sub != nil {
		resp.Subscription = &SubscriptionView{
			ExternalID:    sub.ExternalID,
			OrderID:       sub.OrderID,
			ProductID:     sub.ProductID,
			VariantID:     sub.VariantID,
			VariantName:   sub.VariantName,
			Status:        string(sub.Status),
			PriceCents:    sub.PriceCents,
			BillingPeriod: string(sub.BillingPeriod),
			RenewsAt:      sub.RenewsAt,
			EndsAt:        sub.EndsAt,
			TrialEndsAt:   sub.TrialEndsAt,
			CreatedAt:     sub.CreatedAt,
			UpdatedAt:     sub.UpdatedAt,
		}
	}
	return resp
}

func newPlanView(p subscription.Plan) PlanView {
	return PlanView{
		ID:                    p.ID,
		Name:                  p.Name,
		Price:                 subscription.FormatPrice(p.PriceCents, p.BillingPeriod),
		RecordingLimitSeconds: int(p.RecordingLimit.Seconds()),
		HistoryLimit:          p.HistoryLimit,
		Popular:               p.Popular,
	}
}
