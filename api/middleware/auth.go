package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/shopflow-backend/api/responses"
	pkgAuth "github.com/angelmondragon/shopflow-backend/pkg/auth"
	"github.com/angelmondragon/shopflow-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/shopflow-backend/pkg/errors"
	"github.com/angelmondragon/shopflow-backend/pkg/logger"
)

const bearerScheme = "bearer"

// Auth rejects requests without a valid bearer token.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return authenticate(cfg, logg, true)
}

// OptionalAuth lets anonymous requests through. A token that is sent must
// still verify; a broken one is never treated as anonymous.
func OptionalAuth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return authenticate(cfg, logg, false)
}

func authenticate(cfg config.JWTConfig, logg *logger.Logger, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if strings.TrimSpace(header) == "" && !required {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(header)
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims, logg)))
		})
	}
}

// bearerToken extracts the credential from an Authorization header. The
// scheme is optional and matched case-insensitively.
func bearerToken(header string) (string, bool) {
	token := strings.TrimSpace(header)
	if scheme, rest, found := strings.Cut(token, " "); found && strings.EqualFold(scheme, bearerScheme) {
		token = strings.TrimSpace(rest)
	}
	return token, token != ""
}

func withClaims(ctx context.Context, claims *pkgAuth.AccessTokenClaims, logg *logger.Logger) context.Context {
	userID := claims.UserID.String()
	ctx = WithRole(WithUserID(ctx, userID), string(claims.Role))
	if logg == nil {
		return ctx
	}
	return logg.WithFields(ctx, map[string]any{
		"user_id":    userID,
		"actor_role": string(claims.Role),
	})
}
