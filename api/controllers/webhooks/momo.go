package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/angelmondragon/shopflow-backend/api/responses"
	"github.com/angelmondragon/shopflow-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/shopflow-backend/pkg/errors"
	"github.com/angelmondragon/shopflow-backend/pkg/logger"
	"github.com/angelmondragon/shopflow-backend/pkg/momo"
)

const maxNotificationBytes = 64 << 10

type confirmationApplier interface {
	ApplyConfirmation(ctx context.Context, providerTransactionID string, conf *payments.Confirmation, source string) (*payments.CheckResult, error)
}

type notificationVerifier interface {
	VerifyNotification(n momo.Notification) bool
}

type deliveryGuard interface {
	CheckAndMark(ctx context.Context, deliveryID string) (bool, error)
	Release(ctx context.Context, deliveryID string) error
}

// MoMoIPN applies the provider's instant payment notification. The provider
// retries until it gets a 2xx, so answers that can never succeed (unknown
// attempt, closed order) are acknowledged instead of failed.
func MoMoIPN(reconciler confirmationApplier, verifier notificationVerifier, guard deliveryGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if reconciler == nil || verifier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment reconciler unavailable"))
			return
		}

		var n momo.Notification
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxNotificationBytes)).Decode(&n); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid notification body"))
			return
		}
		if n.OrderID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "notification missing orderId"))
			return
		}
		if !verifier.VerifyNotification(n) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid notification signature"))
			return
		}

		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"provider_transaction_id": n.OrderID,
				"result_code":             n.ResultCode,
				"trans_id":                n.TransID,
			})
		}

		deliveryID := fmt.Sprintf("%s:%d:%d", n.OrderID, n.TransID, n.ResultCode)
		if guard != nil {
			seen, err := guard.CheckAndMark(ctx, deliveryID)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check notification delivery"))
				return
			}
			if seen {
				if logg != nil {
					logg.Info(ctx, "momo.ipn_duplicate")
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}

		result, err := reconciler.ApplyConfirmation(ctx, n.OrderID, payments.ConfirmationFromNotification(n), payments.SourceIPN)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) || pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
				if logg != nil {
					logg.Warn(ctx, "momo.ipn_ignored: "+err.Error())
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
			if guard != nil {
				if releaseErr := guard.Release(ctx, deliveryID); releaseErr != nil && logg != nil {
					logg.Error(ctx, "momo.ipn_release_failed", releaseErr)
				}
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil && result != nil {
			logg.Info(logg.WithField(ctx, "status", string(result.Status)), "momo.ipn_applied")
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
