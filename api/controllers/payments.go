package controllers

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/angelmondragon/shopflow-backend/api/controllers/ownercontext"
	"github.com/angelmondragon/shopflow-backend/api/responses"
	"github.com/angelmondragon/shopflow-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/shopflow-backend/pkg/errors"
	"github.com/angelmondragon/shopflow-backend/pkg/logger"
	"github.com/angelmondragon/shopflow-backend/pkg/momo"
)

type pendingPayments interface {
	PendingMarker(ctx context.Context, session string) (*payments.Marker, error)
	CheckPending(ctx context.Context, session string) (*payments.CheckResult, error)
	Poll(ctx context.Context, session string) (*payments.CheckResult, error)
	Reconcile(ctx context.Context, providerTransactionID, source string) (*payments.CheckResult, error)
}

type notificationVerifier interface {
	VerifyNotification(n momo.Notification) bool
}

// PaymentsCheckPending runs one confirmation pass for the caller's pending
// QR payment, if there is one. The client calls it on app load.
func PaymentsCheckPending(reconciler pendingPayments, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reconciler == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment reconciler unavailable"))
			return
		}
		owner, err := ownercontext.ResolveOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := reconciler.CheckPending(r.Context(), owner.StateSession())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// PaymentsReturn handles the shopper's redirect back from the provider. The
// query carries a signed notification; the outcome is still confirmed with
// the provider before anything is applied.
func PaymentsReturn(reconciler pendingPayments, verifier notificationVerifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reconciler == nil || verifier == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment reconciler unavailable"))
			return
		}

		n, err := notificationFromQuery(r.URL.Query())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !verifier.VerifyNotification(n) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "invalid payment return signature"))
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithField(ctx, "provider_transaction_id", n.OrderID)
		}

		// the marker owner polls so the marker is cleared on a terminal answer
		if owner, ownerErr := ownercontext.ResolveOwner(r); ownerErr == nil {
			session := owner.StateSession()
			marker, err := reconciler.PendingMarker(ctx, session)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if marker != nil && marker.ProviderTransactionID == n.OrderID {
				result, err := reconciler.Poll(ctx, session)
				if err != nil {
					responses.WriteError(ctx, logg, w, err)
					return
				}
				responses.WriteSuccess(w, result)
				return
			}
		}

		result, err := reconciler.Reconcile(ctx, n.OrderID, payments.SourceReturn)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func notificationFromQuery(q url.Values) (momo.Notification, error) {
	n := momo.Notification{
		PartnerCode: q.Get("partnerCode"),
		OrderID:     strings.TrimSpace(q.Get("orderId")),
		RequestID:   q.Get("requestId"),
		OrderInfo:   q.Get("orderInfo"),
		OrderType:   q.Get("orderType"),
		Message:     q.Get("message"),
		PayType:     q.Get("payType"),
		ExtraData:   q.Get("extraData"),
		Signature:   q.Get("signature"),
	}
	if n.OrderID == "" || n.Signature == "" {
		return n, pkgerrors.New(pkgerrors.CodeValidation, "payment return is missing orderId or signature")
	}

	ints := []struct {
		name string
		dst  *int64
	}{
		{"amount", &n.Amount},
		{"transId", &n.TransID},
		{"responseTime", &n.ResponseTime},
	}
	for _, field := range ints {
		raw := strings.TrimSpace(q.Get(field.name))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return n, pkgerrors.New(pkgerrors.CodeValidation, "payment return parameter must be numeric").WithDetails(map[string]any{"field": field.name})
		}
		*field.dst = v
	}

	code, err := strconv.Atoi(strings.TrimSpace(q.Get("resultCode")))
	if err != nil {
		return n, pkgerrors.New(pkgerrors.CodeValidation, "payment return parameter must be numeric").WithDetails(map[string]any{"field": "resultCode"})
	}
	n.ResultCode = code
	return n, nil
}
