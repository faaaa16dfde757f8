package uow

import "context"

type ctxKey struct{}

func withUnit(ctx context.Context, u *UnitOfWork) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// FromCtx returns the unit of work currently dispatching, if any.
// Before-save subscribers use it to stage records into the same
// commit.
func FromCtx(ctx context.Context) (*UnitOfWork, bool) {
	u, ok := ctx.Value(ctxKey{}).(*UnitOfWork)
	return u, ok
}
