package enums

// FulfillmentStatus is the commercial state of an order.
type FulfillmentStatus string

const (
	FulfillmentStatusPending    FulfillmentStatus = "PENDING"
	FulfillmentStatusProcessing FulfillmentStatus = "PROCESSING"
	FulfillmentStatusDelivered  FulfillmentStatus = "DELIVERED"
	FulfillmentStatusCancelled  FulfillmentStatus = "CANCELLED"
)

var fulfillmentStatuses = newValueSet("fulfillment status",
	FulfillmentStatusPending, FulfillmentStatusProcessing,
	FulfillmentStatusDelivered, FulfillmentStatusCancelled)

func (s FulfillmentStatus) String() string { return string(s) }

func (s FulfillmentStatus) IsValid() bool { return fulfillmentStatuses.has(s) }

// IsTerminal reports whether no further fulfillment transition is possible.
func (s FulfillmentStatus) IsTerminal() bool {
	return s == FulfillmentStatusDelivered || s == FulfillmentStatusCancelled
}

func ParseFulfillmentStatus(value string) (FulfillmentStatus, error) {
	return fulfillmentStatuses.parse(value)
}
