package order

import "github.com/gofrs/uuid"

// allowedTransitions lists what an administrator may do. Owners may only
// cancel a pending order.
var allowedTransitions = map[OrderStatus]map[OrderStatus]bool{
	StatusPending: {
		StatusProcessing: true,
		StatusCancelled:  true,
	},
	StatusProcessing: {
		StatusShipped:   true,
		StatusCancelled: true,
	},
	StatusShipped: {
		StatusDelivered: true,
	},
	StatusDelivered: {},
	StatusCancelled: {},
}

// CheckTransition reports whether actor may move an order of ownerID from
// `from` to `to`. It returns ErrForbidden or ErrInvalidTransition.
func CheckTransition(actor Actor, ownerID uuid.UUID, from, to OrderStatus) error {
	isOwner := actor.UserID == ownerID
	if !actor.Admin && !isOwner {
		return ErrForbidden
	}
	if from.IsTerminal() {
		return ErrInvalidTransition
	}

	if !actor.Admin {
		if to != StatusCancelled {
			return ErrForbidden
		}
		if from != StatusPending {
			return ErrInvalidTransition
		}
		return nil
	}

	if !allowedTransitions[from][to] {
		return ErrInvalidTransition
	}
	return nil
}
