package middleware

import (
	"net/http"

	"github.com/angelmondragon/shopflow-backend/api/responses"
	"github.com/angelmondragon/shopflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopflow-backend/pkg/errors"
	"github.com/angelmondragon/shopflow-backend/pkg/logger"
)

// RequireRole admits only callers holding role. It must run after Auth.
func RequireRole(role enums.UserRole, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			var err error
			switch {
			case UserIDFromContext(ctx) == "":
				err = pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
			case enums.UserRole(RoleFromContext(ctx)) != role:
				err = pkgerrors.New(pkgerrors.CodeForbidden, "role required")
			}
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
