package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Capability is a single permission checked by the intake transition engine.
// Every state-mutating operation names exactly one capability; the mapping
// below is the one place role-based access is decided.
type Capability string

const (
	// CapSubmitIntake covers patient-initiated lifecycle steps: creating,
	// submitting, answering information requests, and cancelling own intakes.
	CapSubmitIntake Capability = "intake:submit"
	// CapReviewIntake covers clinician review transitions: start review,
	// request info, approve, decline, mark a script as sent.
	CapReviewIntake Capability = "intake:review"
	// CapBulkReview covers batch approve/decline from the queue dashboard.
	CapBulkReview Capability = "intake:bulk-review"
	// CapUndoAnySend lets an actor undo any mark-sent action regardless of
	// who sent it or how long ago. Non-admin senders rely on the undo window
	// instead.
	CapUndoAnySend Capability = "intake:undo-any-send"
	// CapEscalate covers priority grants/revocations and SLA reclassification.
	CapEscalate Capability = "intake:escalate"
	// CapConfirmPayment is the system/back-office transition recording an
	// external payment confirmation.
	CapConfirmPayment Capability = "intake:confirm-payment"
)

var roleCapabilities = map[Role]map[Capability]bool{
	RolePatient: {
		CapSubmitIntake: true,
	},
	RoleDoctor: {
		CapSubmitIntake: true,
		CapReviewIntake: true,
		CapBulkReview:   true,
	},
	RoleAdmin: {
		CapSubmitIntake:   true,
		CapReviewIntake:   true,
		CapBulkReview:     true,
		CapUndoAnySend:    true,
		CapEscalate:       true,
		CapConfirmPayment: true,
	},
}

// Can reports whether the role holds the capability.
func Can(role Role, cap Capability) bool {
	return roleCapabilities[role][cap]
}

// RequireCapability returns middleware that rejects requests whose actor does
// not hold the capability.
func RequireCapability(cap Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor := ActorFromContext(c.Request().Context())
			if !Can(actor.Role, cap) {
				return echo.NewHTTPError(http.StatusForbidden,
					fmt.Sprintf("required capability: %s", cap))
			}
			return next(c)
		}
	}
}

// RequireRole returns middleware that checks if the actor has one of the
// specified roles. Admin always passes.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor := ActorFromContext(c.Request().Context())
			for _, required := range roles {
				if actor.Role == required || actor.Role == RoleAdmin {
					return next(c)
				}
			}
			names := make([]string, len(roles))
			for i, r := range roles {
				names[i] = string(r)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(names, " or ")))
		}
	}
}
