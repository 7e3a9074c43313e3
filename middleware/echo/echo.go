// Package echo provides Echo middleware that gates routes on a Pro subscription
package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mihaimyh/vocalize/pkg/subscription"
)

// EvaluationKey is the echo context key holding the *subscription.Evaluation
const EvaluationKey = "vocalize.evaluation"

// UserIDExtractor extracts the user ID from an Echo context
// Return empty string if user is not authenticated
type UserIDExtractor func(c echo.Context) string

// Config holds middleware configuration
type Config struct {
	// Manager is the subscription manager instance
	Manager *subscription.Manager

	// GetUserID extracts user ID from context (required)
	GetUserID UserIDExtractor

	// OnNotEntitled is called when the user has no entitling subscription
	// If nil, returns 402 Payment Required JSON with the status label
	OnNotEntitled func(c echo.Context, eval *subscription.Evaluation) error

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c echo.Context) error

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c echo.Context, err error) error
}

// Middleware creates an Echo middleware that only lets entitled users through.
// On success the evaluation is available via GetEvaluation.
func Middleware(cfg Config) echo.MiddlewareFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Manager == nil {
		panic("vocalize/echo: Config.Manager is required")
	}
	if cfg.GetUserID == nil {
		panic("vocalize/echo: Config.GetUserID is required")
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := cfg.GetUserID(c)
			if userID == "" {
				if cfg.OnUnauthorized != nil {
					return cfg.OnUnauthorized(c)
				}
				return defaultUnauthorized(c)
			}

			eval, err := cfg.Manager.Evaluate(c.Request().Context(), userID)
			if err != nil {
				if cfg.OnError != nil {
					return cfg.OnError(c, err)
				}
				return defaultError(c, err)
			}

			if !eval.Entitled {
				if cfg.OnNotEntitled != nil {
					return cfg.OnNotEntitled(c, eval)
				}
				return defaultNotEntitled(c, eval)
			}

			c.Set(EvaluationKey, eval)
			return next(c)
		}
	}
}

// GetEvaluation returns the evaluation stored by Middleware
func GetEvaluation(c echo.Context) (*subscription.Evaluation, bool) {
	eval, ok := c.Get(EvaluationKey).(*subscription.Evaluation)
	return eval, ok
}

// Default error handlers

func defaultUnauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
}

func defaultNotEntitled(c echo.Context, eval *subscription.Evaluation) error {
	return c.JSON(http.StatusPaymentRequired, map[string]string{
		"error":  "Pro subscription required",
		"status": eval.Label,
	})
}

func defaultError(c echo.Context, _ error) error {
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
}

// Convenience extractors for User ID

// FromContext returns a UserIDExtractor that gets user ID from Echo context values
// This is the recommended approach for integrating with auth middleware that sets
// user information via c.Set("UserID", "...") or similar.
func FromContext(key string) UserIDExtractor {
	return func(c echo.Context) string {
		if val := c.Get(key); val != nil {
			if str, ok := val.(string); ok {
				return str
			}
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c echo.Context) string {
		return c.Request().Header.Get(headerName)
	}
}

// FromParam returns a UserIDExtractor that gets user ID from a route parameter
func FromParam(paramName string) UserIDExtractor {
	return func(c echo.Context) string {
		return c.Param(paramName)
	}
}

// FromQuery returns a UserIDExtractor that gets user ID from a query parameter
func FromQuery(queryName string) UserIDExtractor {
	return func(c echo.Context) string {
		return c.QueryParam(queryName)
	}
}
