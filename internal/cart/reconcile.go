package cart

import "context"

// applyThenReconcile applies mutate to a copy of current and hands the copy to
// commit. After a successful commit the state reported by refetch wins; if
// refetch fails the committed copy is returned. A failed mutate or commit
// returns the untouched pre-mutation snapshot together with the error.
func applyThenReconcile[T any](
	ctx context.Context,
	current T,
	clone func(T) T,
	mutate func(*T) error,
	commit func(context.Context, T) error,
	refetch func(context.Context) (T, error),
) (T, error) {
	next := clone(current)
	if err := mutate(&next); err != nil {
		return current, err
	}
	if err := commit(ctx, next); err != nil {
		return current, err
	}
	fresh, err := refetch(ctx)
	if err != nil {
		return next, nil
	}
	return fresh, nil
}
