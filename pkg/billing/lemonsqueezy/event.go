package lemonsqueezy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mihaimyh/vocalize/pkg/billing"
)

// EventName is the vendor event name found in meta.event_name
type EventName string

const (
	EventSubscriptionCreated        EventName = "subscription_created"
	EventSubscriptionUpdated        EventName = "subscription_updated"
	EventSubscriptionResumed        EventName = "subscription_resumed"
	EventSubscriptionCancelled      EventName = "subscription_cancelled"
	EventSubscriptionExpired        EventName = "subscription_expired"
	EventSubscriptionPaymentFailed  EventName = "subscription_payment_failed"
	EventSubscriptionPaymentSuccess EventName = "subscription_payment_success"
)

// Known reports whether the event changes subscription state
func (n EventName) Known() bool {
	switch n {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionResumed,
		EventSubscriptionCancelled, EventSubscriptionExpired,
		EventSubscriptionPaymentFailed, EventSubscriptionPaymentSuccess:
		return true
	}
	return false
}

// Event is a validated webhook event.
// It is built once from the raw payload; optional vendor fields are
// resolved to zero values here so that mapping never deals with JSON.
type Event struct {
	Name EventName

	// Email identifies the buyer: meta.custom_data.user_email, falling back
	// to data.attributes.user_email
	Email string

	// CustomUserID is meta.custom_data.user_id when the checkout carried it
	CustomUserID string

	// SubscriptionID is the vendor subscription id the event refers to
	SubscriptionID string

	OrderID     string
	ProductID   string
	VariantID   string
	CustomerID  string
	VariantName string
	Status      string
	PriceCents  int

	RenewsAt    *time.Time
	EndsAt      *time.Time
	TrialEndsAt *time.Time

	// HasEndsAt is false when the payload omitted ends_at entirely;
	// an explicit null sets it with a nil EndsAt
	HasEndsAt bool
}

// payload mirrors the JSON:API body Lemon Squeezy posts
type payload struct {
	Meta struct {
		EventName  string `json:"event_name"`
		CustomData struct {
			UserEmail string `json:"user_email"`
			UserID    flexID `json:"user_id"`
		} `json:"custom_data"`
	} `json:"meta"`
	Data struct {
		Type       string     `json:"type"`
		ID         flexID     `json:"id"`
		Attributes attributes `json:"attributes"`
	} `json:"data"`
}

type attributes struct {
	StoreID        flexID `json:"store_id"`
	CustomerID     flexID `json:"customer_id"`
	OrderID        flexID `json:"order_id"`
	ProductID      flexID `json:"product_id"`
	VariantID      flexID `json:"variant_id"`
	SubscriptionID flexID `json:"subscription_id"` // set on subscription-invoice objects
	VariantName    string `json:"variant_name"`
	UserEmail      string `json:"user_email"`
	Status         string `json:"status"`

	RenewsAt    *time.Time   `json:"renews_at"`
	EndsAt      optionalTime `json:"ends_at"`
	TrialEndsAt *time.Time   `json:"trial_ends_at"`

	FirstSubscriptionItem *struct {
		Price int `json:"price"`
	} `json:"first_subscription_item"`
}

// flexID accepts ids encoded either as JSON strings or numbers
type flexID string

func (id *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = flexID(n.String())
	return nil
}

// optionalTime remembers whether its key was present in the payload
type optionalTime struct {
	Time *time.Time
	Set  bool
}

func (o *optionalTime) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Time = nil
		return nil
	}
	var t time.Time
	if err := json.Unmarshal(b, &t); err != nil {
		return err
	}
	o.Time = &t
	return nil
}

// ErrNoUserEmail is returned by ParseEvent when the payload names no buyer email
var ErrNoUserEmail = fmt.Errorf("%w: no user email", billing.ErrInvalidWebhookPayload)

// ParseEvent decodes and validates a webhook body.
// All returned errors wrap billing.ErrInvalidWebhookPayload.
func ParseEvent(body []byte) (*Event, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", billing.ErrInvalidWebhookPayload, err)
	}

	// a missing event name is treated as an unrecognized event
	name := EventName(strings.TrimSpace(p.Meta.EventName))

	attrs := p.Data.Attributes
	email := strings.TrimSpace(p.Meta.CustomData.UserEmail)
	if email == "" {
		email = strings.TrimSpace(attrs.UserEmail)
	}
	if email == "" {
		return nil, ErrNoUserEmail
	}

	ev := &Event{
		Name:           name,
		Email:          email,
		CustomUserID:   string(p.Meta.CustomData.UserID),
		SubscriptionID: string(p.Data.ID),
		OrderID:        string(attrs.OrderID),
		ProductID:      string(attrs.ProductID),
		VariantID:      string(attrs.VariantID),
		CustomerID:     string(attrs.CustomerID),
		VariantName:    attrs.VariantName,
		Status:         attrs.Status,
		RenewsAt:       attrs.RenewsAt,
		EndsAt:         attrs.EndsAt.Time,
		HasEndsAt:      attrs.EndsAt.Set,
		TrialEndsAt:    attrs.TrialEndsAt,
	}
	if attrs.FirstSubscriptionItem != nil {
		ev.PriceCents = attrs.FirstSubscriptionItem.Price
	}

	// Payment events carry a subscription invoice whose own id is not the
	// subscription id.
	if (name == EventSubscriptionPaymentFailed || name == EventSubscriptionPaymentSuccess) && attrs.SubscriptionID != "" {
		ev.SubscriptionID = string(attrs.SubscriptionID)
	}
	return ev, nil
}
