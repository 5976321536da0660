package lifecycle

import (
	"bloodbank/internal/apperr"
	"bloodbank/internal/models"
)

// transitions is the full state table. Anything not listed is rejected.
var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.StatusPending:   {models.StatusVerified, models.StatusCancelled, models.StatusRejected},
	models.StatusVerified:  {models.StatusConfirmed, models.StatusCancelled, models.StatusRejected},
	models.StatusConfirmed: {models.StatusReady},
	models.StatusReady:     {models.StatusCompleted},
}

func Allowed(from, to models.OrderStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Next lists the statuses reachable from the given one.
func Next(from models.OrderStatus) []models.OrderStatus {
	next := transitions[from]
	out := make([]models.OrderStatus, len(next))
	copy(out, next)
	return out
}

// Authorize applies role rules and the state table to a requested change.
// Same-status requests are the caller's concern and are not checked here.
func Authorize(from, to models.OrderStatus, role models.Role) error {
	if !to.Valid() {
		return apperr.Validation(map[string]string{"status": "unknown status " + string(to)})
	}
	switch role {
	case models.RoleAdmin:
	case models.RolePurchaser:
		if to != models.StatusCancelled {
			return apperr.Forbidden("purchasers may only cancel their orders")
		}
	default:
		return apperr.Forbidden("unknown role %q", role)
	}
	if !Allowed(from, to) {
		return apperr.InvalidTransition(string(from), string(to))
	}
	return nil
}

// AcceptsPickup reports whether pickup details may be attached to an order in s.
func AcceptsPickup(s models.OrderStatus) bool {
	return s == models.StatusConfirmed || s == models.StatusReady || s == models.StatusCompleted
}

func ReceiptAvailable(s models.OrderStatus) bool {
	return s == models.StatusReady || s == models.StatusCompleted
}
