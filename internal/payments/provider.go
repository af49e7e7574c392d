package payments

import (
	"context"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/shopflow-backend/pkg/errors"
)

// Outcome is what the provider concluded about one attempt. Pending is not
// an error; it drives the bounded retry loop.
type Outcome string

const (
	OutcomeSettled Outcome = "settled"
	OutcomePending Outcome = "pending"
	OutcomeFailed  Outcome = "failed"
)

// LineItem is an order line forwarded to the provider's payment page.
type LineItem struct {
	ID        string
	Name      string
	ImageURL  string
	Quantity  int
	UnitPrice int64
	Total     int64
}

// Payer is the contact forwarded to the provider.
type Payer struct {
	Name  string
	Phone string
}

// InitiateRequest starts one attempt. Amount always includes shipping.
type InitiateRequest struct {
	OrderID               uuid.UUID
	ProviderTransactionID string
	RequestID             string
	Amount                int64
	Description           string
	Items                 []LineItem
	Payer                 Payer
}

// Initiation is the provider's acceptance of an attempt.
type Initiation struct {
	PayURL     string
	ResultCode int
	Message    string
}

// Confirmation is the provider's current view of an attempt.
type Confirmation struct {
	Outcome         Outcome
	ResultCode      int
	Message         string
	ProviderOrderID string
}

// Provider is the QR push-payment gateway contract.
type Provider interface {
	Name() string
	Initiate(ctx context.Context, req InitiateRequest) (*Initiation, error)
	Confirm(ctx context.Context, providerTransactionID string) (*Confirmation, error)
}

// Unconfigured stands in for the gateway when no provider credentials are
// set. COD checkout keeps working; every QR call fails as a dependency error.
type Unconfigured struct{}

func (Unconfigured) Name() string { return "unconfigured" }

func (Unconfigured) Initiate(context.Context, InitiateRequest) (*Initiation, error) {
	return nil, pkgerrors.New(pkgerrors.CodeDependency, "QR payments are not configured")
}

func (Unconfigured) Confirm(context.Context, string) (*Confirmation, error) {
	return nil, pkgerrors.New(pkgerrors.CodeDependency, "QR payments are not configured")
}
