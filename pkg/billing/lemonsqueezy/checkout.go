package lemonsqueezy

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/mihaimyh/vocalize/pkg/billing"
)

// CheckoutURL implements billing.CheckoutProvider.
// The user id and email travel as custom data so webhooks can be matched
// back to the account.
func (p *Provider) CheckoutURL(req billing.CheckoutRequest) (string, error) {
	plan, ok := p.catalog.Plan(req.PlanID)
	if !ok || plan.VariantID == "" {
		return "", fmt.Errorf("%w: %q", billing.ErrUnknownPlan, req.PlanID)
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return "", billing.ErrMissingEmail
	}

	q := url.Values{}
	q.Set("checkout[email]", email)
	q.Set("checkout[custom][user_id]", req.UserID)
	q.Set("checkout[custom][user_email]", email)
	if req.SuccessURL != "" {
		q.Set("checkout[success_url]", req.SuccessURL)
	}

	return fmt.Sprintf("%s/checkout/buy/%s?%s", p.storeURL(), url.PathEscape(plan.VariantID), q.Encode()), nil
}

// PortalURL implements billing.CheckoutProvider
func (p *Provider) PortalURL() string {
	return p.storeURL() + "/billing"
}

func (p *Provider) storeURL() string {
	return fmt.Sprintf("https://%s.lemonsqueezy.com", p.storeSlug)
}
