package handler

import "context"

type contextKey struct{}

// WithParentID stores the authenticated parent id in the context.
func WithParentID(ctx context.Context, parentID string) context.Context {
	return context.WithValue(ctx, contextKey{}, parentID)
}

// ParentIDFromContext retrieves the authenticated parent id from the context.
func ParentIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}
