package subscription

import "time"

// IsEntitled reports whether sub grants pro access at now.
//
// A cancelled subscription keeps access until EndsAt (grace period);
// a trial always grants access.
func IsEntitled(sub *Subscription, now time.Time) bool {
	if sub == nil {
		return false
	}
	switch sub.Status {
	case StatusActive, StatusOnTrial:
		return true
	case StatusCancelled:
		return inFuture(sub.EndsAt, now)
	default:
		return false
	}
}

// StatusLabel returns the human readable status shown to the user.
// Unknown statuses are echoed verbatim.
func StatusLabel(sub *Subscription, now time.Time) string {
	if sub == nil {
		return ""
	}
	switch sub.Status {
	case StatusActive:
		return "Active"
	case StatusPastDue:
		return "Past Due"
	case StatusCancelled:
		if inFuture(sub.EndsAt, now) {
			return "Cancelling"
		}
		return "Cancelled"
	case StatusExpired:
		return "Expired"
	case StatusPaused:
		return "Paused"
	case StatusOnTrial:
		return "Trial"
	default:
		return string(sub.Status)
	}
}

// Evaluate builds the entitlement view for userID's subscription (nil if none).
func Evaluate(userID string, sub *Subscription, now time.Time) *Evaluation {
	return &Evaluation{
		UserID:       userID,
		Subscription: sub,
		Entitled:     IsEntitled(sub, now),
		Label:        StatusLabel(sub, now),
		Plan:         PlanFor(sub, now),
	}
}

func inFuture(t *time.Time, now time.Time) bool {
	return t != nil && t.After(now)
}
