// Package fiber provides Fiber middleware that gates routes on a Pro subscription
package fiber

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mihaimyh/vocalize/pkg/subscription"
)

// EvaluationKey is the Locals key holding the *subscription.Evaluation
const EvaluationKey = "vocalize.evaluation"

// UserIDExtractor extracts the user ID from a Fiber context
// Return empty string if user is not authenticated
type UserIDExtractor func(c *fiber.Ctx) string

// Config holds middleware configuration
type Config struct {
	// Manager is the subscription manager instance
	Manager *subscription.Manager

	// GetUserID extracts user ID from context (required)
	GetUserID UserIDExtractor

	// OnNotEntitled is called when the user has no entitling subscription
	// If nil, returns 402 Payment Required JSON with the status label
	OnNotEntitled func(c *fiber.Ctx, eval *subscription.Evaluation) error

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *fiber.Ctx) error

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c *fiber.Ctx, err error) error
}

// Middleware creates a Fiber middleware that only lets entitled users through.
// On success the evaluation is available via GetEvaluation.
func Middleware(cfg Config) fiber.Handler {
	// Validate required configuration at startup (fail fast)
	if cfg.Manager == nil {
		panic("vocalize/fiber: Config.Manager is required")
	}
	if cfg.GetUserID == nil {
		panic("vocalize/fiber: Config.GetUserID is required")
	}

	return func(c *fiber.Ctx) error {
		userID := cfg.GetUserID(c)
		if userID == "" {
			if cfg.OnUnauthorized != nil {
				return cfg.OnUnauthorized(c)
			}
			return defaultUnauthorized(c)
		}

		// Fiber uses fasthttp, so the request context.Context comes from UserContext
		eval, err := cfg.Manager.Evaluate(c.UserContext(), userID)
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

		c.Locals(EvaluationKey, eval)
		return c.Next()
	}
}

// GetEvaluation returns the evaluation stored by Middleware
func GetEvaluation(c *fiber.Ctx) (*subscription.Evaluation, bool) {
	eval, ok := c.Locals(EvaluationKey).(*subscription.Evaluation)
	return eval, ok
}

// Default error handlers

func defaultUnauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
}

func defaultNotEntitled(c *fiber.Ctx, eval *subscription.Evaluation) error {
	return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
		"error":  "Pro subscription required",
		"status": eval.Label,
	})
}

func defaultError(c *fiber.Ctx, _ error) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
}

// Convenience extractors for User ID

// FromContext returns a UserIDExtractor that gets user ID from Fiber context values (Locals)
// This is the recommended approach for integrating with auth middleware that sets
// user information via c.Locals("UserID", "...") or similar.
func FromContext(key string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		if val := c.Locals(key); val != nil {
			if str, ok := val.(string); ok {
				return str
			}
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Get(headerName)
	}
}

// FromParam returns a UserIDExtractor that gets user ID from a route parameter
func FromParam(paramName string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Params(paramName)
	}
}

// FromQuery returns a UserIDExtractor that gets user ID from a query parameter
func FromQuery(queryName string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Query(queryName)
	}
}
