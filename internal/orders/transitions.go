package orders

import "github.com/shoplane/shoplane-backend/pkg/enums"

// orderTransitions is the full order lifecycle. Anything not listed is
// rejected.
var orderTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:   {enums.OrderStatusConfirmed, enums.OrderStatusCanceled},
	enums.OrderStatusConfirmed: {enums.OrderStatusPaid, enums.OrderStatusCanceled},
	enums.OrderStatusPaid:      {enums.OrderStatusShipped},
	enums.OrderStatusShipped:   {enums.OrderStatusDelivered},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
