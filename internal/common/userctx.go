package common

import "context"

// UserContext holds the authenticated identity resolved from the session cookie.
// Absent (nil) means the request is anonymous.
type UserContext struct {
	UserID    int64
	Username  string
	SessionID string
}

type contextKey int

const userContextKey contextKey = iota

// WithUserContext stores a UserContext in the request context.
func WithUserContext(ctx context.Context, uc *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, uc)
}

// UserContextFromContext retrieves the UserContext from context, or nil if absent.
func UserContextFromContext(ctx context.Context) *UserContext {
	uc, _ := ctx.Value(userContextKey).(*UserContext)
	return uc
}

// ResolveUserID returns the authenticated user id and whether one is present.
func ResolveUserID(ctx context.Context) (int64, bool) {
	if uc := UserContextFromContext(ctx); uc != nil && uc.UserID > 0 {
		return uc.UserID, true
	}
	return 0, false
}
