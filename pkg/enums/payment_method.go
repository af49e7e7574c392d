package enums

import "strings"

// PaymentMethod selects the payment channel at checkout. COD settles on
// delivery; QR settles through the MoMo provider.
type PaymentMethod string

const (
	PaymentMethodCOD PaymentMethod = "COD"
	PaymentMethodQR  PaymentMethod = "QR"
)

var paymentMethods = newValueSet("payment method", PaymentMethodCOD, PaymentMethodQR)

func (m PaymentMethod) String() string { return string(m) }

func (m PaymentMethod) IsValid() bool { return paymentMethods.has(m) }

// IsAsync reports whether settlement is learned out of band.
func (m PaymentMethod) IsAsync() bool {
	return m == PaymentMethodQR
}

// ParsePaymentMethod is case-insensitive and ignores surrounding space.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	return paymentMethods.parse(strings.ToUpper(strings.TrimSpace(value)))
}
