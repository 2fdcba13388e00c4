package lifecycle

import "orderFulfillmentTracking/models"

// transitionTable is the canonical set of legal status edges: a strict
// forward chain with cancelled reachable from every non-terminal state.
var transitionTable = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:    {models.OrderStatusConfirmed, models.OrderStatusCancelled},
	models.OrderStatusConfirmed:  {models.OrderStatusProcessing, models.OrderStatusCancelled},
	models.OrderStatusProcessing: {models.OrderStatusShipped, models.OrderStatusCancelled},
	models.OrderStatusShipped:    {models.OrderStatusInTransit, models.OrderStatusCancelled},
	models.OrderStatusInTransit:  {models.OrderStatusReceived, models.OrderStatusCancelled},
	models.OrderStatusReceived:   {models.OrderStatusCompleted, models.OrderStatusCancelled},
	models.OrderStatusCompleted:  {},
	models.OrderStatusCancelled:  {},
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to models.OrderStatus) bool {
	for _, next := range transitionTable[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses returns the statuses reachable in one step from the given
// status. The returned slice must not be mutated.
func NextStatuses(from models.OrderStatus) []models.OrderStatus {
	return transitionTable[from]
}
