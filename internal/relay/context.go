package relay

import "context"

type excludedConnKey struct{}

// WithExcludedConn marks the originating connection of the current
// command so pushes (local and relayed) skip it.
func WithExcludedConn(ctx context.Context, connId string) context.Context {
	return context.WithValue(ctx, excludedConnKey{}, connId)
}

func ExcludedConnFromCtx(ctx context.Context) string {
	connId, ok := ctx.Value(excludedConnKey{}).(string)
	if !ok {
		return ""
	}

	return connId
}
