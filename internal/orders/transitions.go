package orders

import "github.com/angelmondragon/shopflow-backend/pkg/enums"

var fulfillmentTransitions = map[enums.FulfillmentStatus][]enums.FulfillmentStatus{
	enums.FulfillmentStatusPending:    {enums.FulfillmentStatusProcessing, enums.FulfillmentStatusCancelled},
	enums.FulfillmentStatusProcessing: {enums.FulfillmentStatusDelivered, enums.FulfillmentStatusCancelled},
}

var paymentTransitions = map[enums.PaymentStatus][]enums.PaymentStatus{
	enums.PaymentStatusPending: {enums.PaymentStatusPaid, enums.PaymentStatusCanceled},
}

// CanTransitionFulfillment reports whether from -> to is a single legal step.
func CanTransitionFulfillment(from, to enums.FulfillmentStatus) bool {
	for _, next := range fulfillmentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransitionPayment reports whether from -> to is a single legal step.
func CanTransitionPayment(from, to enums.PaymentStatus) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
