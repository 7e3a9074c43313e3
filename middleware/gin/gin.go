// Package gin provides Gin middleware that gates routes on a Pro subscription
package gin

import (
	"net/http"

	gongin "github.com/gin-gonic/gin"

	"github.com/mihaimyh/vocalize/pkg/subscription"
)

// EvaluationKey is the gin context key holding the *subscription.Evaluation
const EvaluationKey = "vocalize.evaluation"

// UserIDExtractor extracts the user ID from a Gin context
// Return empty string if user is not authenticated
type UserIDExtractor func(c *gongin.Context) string

// Config holds middleware configuration
type Config struct {
	// Manager is the subscription manager instance
	Manager *subscription.Manager

	// GetUserID extracts user ID from context (required)
	GetUserID UserIDExtractor

	// OnNotEntitled is called when the user has no entitling subscription
	// If nil, returns 402 Payment Required JSON with the status label
	OnNotEntitled func(c *gongin.Context, eval *subscription.Evaluation)

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *gongin.Context)

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c *gongin.Context, err error)
}

// Middleware creates a Gin middleware that only lets entitled users through.
// On success the evaluation is available via GetEvaluation.
func Middleware(cfg Config) gongin.HandlerFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Manager == nil {
		panic("vocalize/gin: Config.Manager is required")
	}
	if cfg.GetUserID == nil {
		panic("vocalize/gin: Config.GetUserID is required")
	}

	return func(c *gongin.Context) {
		userID := cfg.GetUserID(c)
		if userID == "" {
			if cfg.OnUnauthorized != nil {
				cfg.OnUnauthorized(c)
			} else {
				defaultUnauthorized(c)
			}
			c.Abort()
			return
		}

		eval, err := cfg.Manager.Evaluate(c.Request.Context(), userID)
		if err != nil {
			if cfg.OnError != nil {
				cfg.OnError(c, err)
			} else {
				defaultError(c, err)
			}
			c.Abort()
			return
		}

		if !eval.Entitled {
			if cfg.OnNotEntitled != nil {
				cfg.OnNotEntitled(c, eval)
			} else {
				defaultNotEntitled(c, eval)
			}
			c.Abort()
			return
		}

		c.Set(EvaluationKey, eval)
		c.Next()
	}
}

// GetEvaluation returns the evaluation stored by Middleware
func GetEvaluation(c *gongin.Context) (*subscription.Evaluation, bool) {
	val, exists := c.Get(EvaluationKey)
	if !exists {
		return nil, false
	}
	eval, ok := val.(*subscription.Evaluation)
	return eval, ok
}

// Default error handlers

func defaultUnauthorized(c *gongin.Context) {
	c.JSON(http.StatusUnauthorized, gongin.H{"error": "Unauthorized"})
}

func defaultNotEntitled(c *gongin.Context, eval *subscription.Evaluation) {
	c.JSON(http.StatusPaymentRequired, gongin.H{
		"error":  "Pro subscription required",
		"status": eval.Label,
	})
}

func defaultError(c *gongin.Context, _ error) {
	c.JSON(http.StatusInternalServerError, gongin.H{"error": "Internal Server Error"})
}

// Convenience extractors for User ID

// FromContext returns a UserIDExtractor that gets user ID from Gin context values
// This is the recommended approach for integrating with auth middleware that sets
// user information via c.Set("UserID", "...") or similar.
//
// Example:
//
//	// In your auth middleware:
//	c.Set("UserID", userID)
//
//	// In subscription middleware config:
//	GetUserID: gin.FromContext("UserID")
func FromContext(key string) UserIDExtractor {
	return func(c *gongin.Context) string {
		if val, exists := c.Get(key); exists {
			if str, ok := val.(string); ok {
				return str
			}
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c *gongin.Context) string {
		return c.GetHeader(headerName)
	}
}

// FromParam returns a UserIDExtractor that gets user ID from a route parameter
func FromParam(paramName string) UserIDExtractor {
	return func(c *gongin.Context) string {
		return c.Param(paramName)
	}
}

// FromQuery returns a UserIDExtractor that gets user ID from a query parameter
func FromQuery(queryName string) UserIDExtractor {
	return func(c *gongin.Context) string {
		return c.Query(queryName)
	}
}
