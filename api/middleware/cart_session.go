package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/angelmondragon/shopflow-backend/api/responses"
	pkgerrors "github.com/angelmondragon/shopflow-backend/pkg/errors"
	"github.com/angelmondragon/shopflow-backend/pkg/logger"
)

// CartSessionHeader carries the anonymous shopper's session id.
const CartSessionHeader = "X-Cart-Session"

var cartSessionPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,128}$`)

// CartSession records the anonymous session header when one is sent. A
// malformed header is rejected so it never becomes a storage key.
func CartSession(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := strings.TrimSpace(r.Header.Get(CartSessionHeader))
			if session == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !cartSessionPattern.MatchString(session) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid cart session").WithDetails(map[string]any{
					"header": CartSessionHeader,
				}))
				return
			}
			ctx := WithCartSession(r.Context(), session)
			if logg != nil {
				ctx = logg.WithSessionID(ctx, session)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
