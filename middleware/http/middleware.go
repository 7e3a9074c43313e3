// Package http provides HTTP middleware that gates handlers on a Pro subscription
package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mihaimyh/vocalize/pkg/subscription"
)

// UserIDExtractor extracts the user ID from an HTTP request
// Return empty string if user is not authenticated
type UserIDExtractor func(r *http.Request) string

// Config holds middleware configuration
type Config struct {
	// Manager is the subscription manager instance
	Manager *subscription.Manager

	// GetUserID extracts user ID from request (required)
	GetUserID UserIDExtractor

	// OnNotEntitled is called when the user has no entitling subscription
	// If nil, returns 402 Payment Required
	OnNotEntitled func(w http.ResponseWriter, r *http.Request, eval *subscription.Evaluation)

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(w http.ResponseWriter, r *http.Request)

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// Middleware creates an HTTP middleware that only lets entitled users through.
// The evaluation is stored in the request context, see EvaluationFromContext.
func Middleware(config Config) func(http.Handler) http.Handler {
	if config.Manager == nil {
		panic("vocalize/http: Config.Manager is required")
	}
	if config.GetUserID == nil {
		panic("vocalize/http: Config.GetUserID is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := config.GetUserID(r)
			if userID == "" {
				if config.OnUnauthorized != nil {
					config.OnUnauthorized(w, r)
				} else {
					writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
				}
				return
			}

			eval, err := config.Manager.Evaluate(r.Context(), userID)
			if err != nil {
				if config.OnError != nil {
					config.OnError(w, r, err)
				} else {
					writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
				}
				return
			}

			if !eval.Entitled {
				if config.OnNotEntitled != nil {
					config.OnNotEntitled(w, r, eval)
				} else {
					writeJSON(w, http.StatusPaymentRequired, map[string]string{
						"error":  "Pro subscription required",
						"status": eval.Label,
					})
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(WithEvaluation(r.Context(), eval)))
		})
	}
}

// HandlerFunc creates an HTTP middleware for http.HandlerFunc handlers
func HandlerFunc(config Config) func(http.HandlerFunc) http.HandlerFunc {
	middleware := Middleware(config)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return middleware(next).ServeHTTP
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ContextKey is a type for context keys
type ContextKey string

const (
	// UserIDKey is the context key for user ID
	UserIDKey ContextKey = "vocalize:userID"

	// EvaluationKey is the context key for the subscription evaluation
	EvaluationKey ContextKey = "vocalize:evaluation"
)

// FromContext returns an UserIDExtractor that gets user ID from request context
func FromContext(key ContextKey) UserIDExtractor {
	return func(r *http.Request) string {
		if userID, ok := r.Context().Value(key).(string); ok {
			return userID
		}
		return ""
	}
}

// FromHeader returns an UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// WithUserID adds user ID to request context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithEvaluation adds a subscription evaluation to the context
func WithEvaluation(ctx context.Context, eval *subscription.Evaluation) context.Context {
	return context.WithValue(ctx, EvaluationKey, eval)
}

// EvaluationFromContext returns the evaluation stored by Middleware
func EvaluationFromContext(ctx context.Context) (*subscription.Evaluation, bool) {
	eval, ok := ctx.Value(EvaluationKey).(*subscription.Evaluation)
	return eval, ok && eval != nil
}
