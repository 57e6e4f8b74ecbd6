package auth

import "context"

type contextKey struct{}

// ClientContext identifies the API client making a request.
type ClientContext struct {
	ClientID int64
	Name     string
}

func WithClient(ctx context.Context, cc ClientContext) context.Context {
	return context.WithValue(ctx, contextKey{}, cc)
}

func FromContext(ctx context.Context) (ClientContext, bool) {
	cc, ok := ctx.Value(contextKey{}).(ClientContext)
	return cc, ok
}

// ClientName returns the authenticated client's name, or "" if none.
func ClientName(ctx context.Context) string {
	cc, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return cc.Name
}
