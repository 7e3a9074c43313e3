package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/mihaimyh/vocalize/pkg/billing"
	"github.com/mihaimyh/vocalize/pkg/history"
	"github.com/mihaimyh/vocalize/pkg/subscription"
)

const (
	maxUserIDLen      = 255
	maxHistoryBody    = 1 << 20
	successPath       = "/account?upgraded=true"
	errNotConfigured  = "not configured"
	errNoBilling      = "No billing history"
	errNotEntitledMsg = "Cloud history requires Pro"
)

// Handler provides HTTP endpoints for subscription state, checkout and history
type Handler struct {
	config Config
}

// Routes returns a mux serving every endpoint:
//
//	GET    /subscription
//	POST   /checkout?plan=pro_monthly|pro_annual
//	GET    /portal
//	GET    /history
//	POST   /history
//	DELETE /history/{id}
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /subscription", h.GetSubscription)
	mux.HandleFunc("POST /checkout", h.CreateCheckout)
	mux.HandleFunc("GET /portal", h.GetPortal)
	mux.HandleFunc("GET /history", h.ListHistory)
	mux.HandleFunc("POST /history", h.SaveHistory)
	mux.HandleFunc("DELETE /history/{id}", h.DeleteHistory)
	return mux
}

// GetSubscription returns the caller's subscription and entitlement
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	eval, err := h.config.Manager.Evaluate(r.Context(), user.ID)
	if err != nil {
		h.handleError(w, r, fmt.Errorf("failed to get subscription: %w", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, newSubscriptionResponse(eval))
}

// CreateCheckout returns a hosted checkout link for the plan in the "plan" query parameter
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if h.config.Checkout == nil {
		h.handleError(w, r, fmt.Errorf("checkout %s", errNotConfigured), http.StatusServiceUnavailable)
		return
	}

	link, err := h.config.Checkout.CheckoutURL(billing.CheckoutRequest{
		PlanID:     r.URL.Query().Get("plan"),
		UserID:     user.ID,
		Email:      user.Email,
		SuccessURL: h.config.AppURL + successPath,
	})
	switch {
	case errors.Is(err, billing.ErrUnknownPlan), errors.Is(err, billing.ErrMissingEmail):
		h.handleError(w, r, err, http.StatusBadRequest)
		return
	case err != nil:
		h.handleError(w, r, fmt.Errorf("failed to create checkout: %w", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, CheckoutResponse{CheckoutURL: link})
}

// GetPortal returns the customer portal link for users who have subscribed
func (h *Handler) GetPortal(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if h.config.Checkout == nil {
		h.handleError(w, r, fmt.Errorf("portal %s", errNotConfigured), http.StatusServiceUnavailable)
		return
	}

	_, err := h.config.Manager.GetSubscription(r.Context(), user.ID)
	if errors.Is(err, subscription.ErrSubscriptionNotFound) {
		h.handleError(w, r, errors.New(errNoBilling), http.StatusNotFound)
		return
	}
	if err != nil {
		h.handleError(w, r, fmt.Errorf("failed to get subscription: %w", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, PortalResponse{PortalURL: h.config.Checkout.PortalURL()})
}

// ListHistory returns the caller's cloud history, newest first
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireHistory(w, r)
	if !ok {
		return
	}

	items, err := h.config.History.List(r.Context(), user.ID)
	if err != nil {
		h.handleError(w, r, err, http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []history.Item{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

// SaveHistory stores a generated document for an entitled caller
func (h *Handler) SaveHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireHistory(w, r)
	if !ok {
		return
	}

	var req history.SaveRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxHistoryBody))
	if err := dec.Decode(&req); err != nil {
		h.handleError(w, r, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
		return
	}

	item, err := h.config.History.Save(r.Context(), user.ID, req)
	switch {
	case errors.Is(err, history.ErrNotEntitled):
		h.handleError(w, r, errors.New(errNotEntitledMsg), http.StatusPaymentRequired)
		return
	case errors.Is(err, history.ErrInvalidSettings), errors.Is(err, history.ErrEmptyResult):
		h.handleError(w, r, err, http.StatusBadRequest)
		return
	case err != nil:
		h.handleError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// DeleteHistory removes one of the caller's items
func (h *Handler) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireHistory(w, r)
	if !ok {
		return
	}

	err := h.config.History.Delete(r.Context(), user.ID, r.PathValue("id"))
	if errors.Is(err, history.ErrItemNotFound) {
		h.handleError(w, r, err, http.StatusNotFound)
		return
	}
	if err != nil {
		h.handleError(w, r, err, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (*CurrentUser, bool) {
	user := h.config.GetCurrentUser(r)
	if user == nil || user.ID == "" {
		h.handleError(w, r, fmt.Errorf("user ID not found"), http.StatusUnauthorized)
		return nil, false
	}
	if len(user.ID) > maxUserIDLen {
		h.handleError(w, r, fmt.Errorf("invalid user ID format"), http.StatusBadRequest)
		return nil, false
	}
	return user, true
}

func (h *Handler) requireHistory(w http.ResponseWriter, r *http.Request) (*CurrentUser, bool) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return nil, false
	}
	if h.config.History == nil {
		h.handleError(w, r, fmt.Errorf("history %s", errNotConfigured), http.StatusServiceUnavailable)
		return nil, false
	}
	return user, true
}

// handleError handles errors with appropriate HTTP status codes
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	if statusCode >= http.StatusInternalServerError {
		h.config.Logger.Error("api request failed",
			subscription.String("path", r.URL.Path),
			subscription.Err(err),
		)
	}
	if h.config.OnError != nil {
		h.config.OnError(w, r, err)
		return
	}
	writeJSON(w, statusCode, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	// response already committed; nothing useful to do on encode failure
	_ = json.NewEncoder(w).Encode(v)
}
