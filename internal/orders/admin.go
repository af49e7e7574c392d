package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopflow-backend/pkg/errors"
	"github.com/angelmondragon/shopflow-backend/pkg/outbox"
	"github.com/angelmondragon/shopflow-backend/pkg/pagination"
)

// AdminConsole is the privileged surface over the order lifecycle. It owns no
// state of its own; every write goes through the same idempotent setters the
// reconciler uses.
type AdminConsole struct {
	orders Service
}

// NewAdminConsole wraps the lifecycle service for administrative use.
func NewAdminConsole(orders Service) (*AdminConsole, error) {
	if orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	return &AdminConsole{orders: orders}, nil
}

func (a *AdminConsole) List(ctx context.Context, filter AdminFilter, params pagination.Params) (*ListResult, error) {
	return a.orders.ListAll(ctx, filter, params)
}

func (a *AdminConsole) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	return a.orders.GetByID(ctx, id)
}

func (a *AdminConsole) SetFulfillmentStatus(ctx context.Context, adminID uuid.UUID, id uuid.UUID, next enums.FulfillmentStatus, reason string) (*Order, bool, error) {
	return a.orders.SetFulfillmentStatus(ctx, id, next, adminChange(adminID, reason))
}

func (a *AdminConsole) SetPaymentStatus(ctx context.Context, adminID uuid.UUID, id uuid.UUID, next enums.PaymentStatus, reason string) (*Order, bool, error) {
	return a.orders.SetPaymentStatus(ctx, id, next, adminChange(adminID, reason))
}

// Delete is irreversible and refuses to run unless confirmed is set.
func (a *AdminConsole) Delete(ctx context.Context, adminID uuid.UUID, id uuid.UUID, confirmed bool) error {
	if !confirmed {
		return pkgerrors.New(pkgerrors.CodeValidation, "order deletion must be confirmed")
	}
	return a.orders.Delete(ctx, id, adminChange(adminID, "admin delete"))
}

func adminChange(adminID uuid.UUID, reason string) Change {
	actor := &outbox.ActorRef{Role: outbox.RoleAdmin}
	if adminID != uuid.Nil {
		id := adminID
		actor.UserID = &id
	}
	if reason == "" {
		reason = "admin override"
	}
	return Change{Actor: actor, Reason: reason}
}
