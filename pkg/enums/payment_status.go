package enums

// PaymentStatus is the settlement state of an order, independent of fulfillment.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusCanceled PaymentStatus = "CANCELED"
)

var paymentStatuses = newValueSet("payment status",
	PaymentStatusPending, PaymentStatusPaid, PaymentStatusCanceled)

func (s PaymentStatus) String() string { return string(s) }

func (s PaymentStatus) IsValid() bool { return paymentStatuses.has(s) }

// IsTerminal reports whether the payment axis is settled one way or the other.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusPaid || s == PaymentStatusCanceled
}

func ParsePaymentStatus(value string) (PaymentStatus, error) {
	return paymentStatuses.parse(value)
}
