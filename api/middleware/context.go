package middleware

import "context"

// ctxKey is typed by the value it stores so lookups cannot mix them up.
type ctxKey[T any] struct{ name string }

var (
	userIDKey      = ctxKey[string]{"user_id"}
	roleKey        = ctxKey[string]{"actor_role"}
	cartSessionKey = ctxKey[string]{"cart_session"}
)

func lookup[T any](ctx context.Context, key ctxKey[T]) T {
	var zero T
	if ctx == nil {
		return zero
	}
	v, ok := ctx.Value(key).(T)
	if !ok {
		return zero
	}
	return v
}

func withValue[T any](ctx context.Context, key ctxKey[T], value T) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, value)
}

func UserIDFromContext(ctx context.Context) string { return lookup(ctx, userIDKey) }

func RoleFromContext(ctx context.Context) string { return lookup(ctx, roleKey) }

// CartSessionFromContext returns the anonymous cart session sent by the client.
func CartSessionFromContext(ctx context.Context) string { return lookup(ctx, cartSessionKey) }

func WithUserID(ctx context.Context, userID string) context.Context {
	return withValue(ctx, userIDKey, userID)
}

func WithRole(ctx context.Context, role string) context.Context {
	return withValue(ctx, roleKey, role)
}

func WithCartSession(ctx context.Context, session string) context.Context {
	return withValue(ctx, cartSessionKey, session)
}
