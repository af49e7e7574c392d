package enums

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregatePayment OutboxAggregateType = "payment_transaction"
)

var aggregateTypes = newValueSet("aggregate type", AggregateOrder, AggregatePayment)

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return aggregateTypes.parse(value)
}

// OutboxEventType names an event in the outbox log. Subscribers key on it,
// so values are never renamed.
type OutboxEventType string

const (
	EventOrderCreated                  OutboxEventType = "order_created"
	EventOrderFulfillmentStatusChanged OutboxEventType = "order_fulfillment_status_changed"
	EventOrderPaymentStatusChanged     OutboxEventType = "order_payment_status_changed"
	EventOrderDeleted                  OutboxEventType = "order_deleted"
	EventPaymentInitiated              OutboxEventType = "payment_initiated"
	EventPaymentFinalized              OutboxEventType = "payment_finalized"
)

var eventTypes = newValueSet("event type",
	EventOrderCreated,
	EventOrderFulfillmentStatusChanged,
	EventOrderPaymentStatusChanged,
	EventOrderDeleted,
	EventPaymentInitiated,
	EventPaymentFinalized,
)

func (e OutboxEventType) IsValid() bool { return eventTypes.has(e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return eventTypes.parse(value)
}
