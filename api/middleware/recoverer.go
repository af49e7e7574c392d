package middleware

import (
	"fmt"
	"net/http"

	"github.com/angelmondragon/shopflow-backend/api/responses"
	pkgerrors "github.com/angelmondragon/shopflow-backend/pkg/errors"
	"github.com/angelmondragon/shopflow-backend/pkg/logger"
)

// Recoverer answers a panicking handler with the internal error envelope.
// http.ErrAbortHandler passes through untouched.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	if logg == nil {
		logg = logger.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					handlePanic(logg, w, r, rec)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func handlePanic(logg *logger.Logger, w http.ResponseWriter, r *http.Request, rec any) {
	if rec == http.ErrAbortHandler {
		panic(rec)
	}
	ctx := logg.WithFields(r.Context(), map[string]any{
		"method": r.Method,
		"path":   r.URL.Path,
	})
	cause := fmt.Errorf("panic: %v", rec)
	logg.Error(ctx, "panic.recovered", cause)
	responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeInternal, cause, "panic"))
}
